package serverrun

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	cfgpkg "github.com/beamhq/beam/internal/config"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestRunServesUntilCanceled(t *testing.T) {
	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{HTTPAddr: addr, Config: cfgpkg.Default()})
	}()

	url := fmt.Sprintf("http://%s/v1/healthz", addr)
	var ok bool
	for i := 0; i < 50; i++ {
		resp, err := http.Get(url)
		if err == nil {
			var body map[string]string
			_ = json.NewDecoder(resp.Body).Decode(&body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK && body["status"] == "ok" {
				ok = true
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !ok {
		t.Fatalf("server never became healthy")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not stop on cancel")
	}
}

func TestBuildLoggerRejectsBadLevel(t *testing.T) {
	t.Setenv("BEAM_LOG_LEVEL", "")
	if _, err := buildLogger(cfgpkg.LogConfig{Level: "loud"}); err == nil {
		t.Fatalf("want error for invalid level")
	}
}
