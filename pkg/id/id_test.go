package id

import (
	"testing"
	"time"
)

func resetClock() { NowMs = func() int64 { return time.Now().UnixMilli() } }

func TestOrderingMonotonic(t *testing.T) {
	g := NewGenerator()
	NowMs = func() int64 { return 1000 }
	defer resetClock()

	a := g.Next()
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected a<b")
	}
	if !a.Less(b) {
		t.Fatalf("Less disagrees with Compare")
	}
}

func TestClockRegressionGuard(t *testing.T) {
	g := NewGenerator()
	ms := int64(1000)
	NowMs = func() int64 { return ms }
	defer resetClock()

	a := g.Next() // uses 1000
	ms = 900      // clock went backwards
	b := g.Next() // should still be > a
	if a.Compare(b) >= 0 {
		t.Fatalf("expected b>a despite clock regression")
	}
}

func TestStringOrderMatchesByteOrder(t *testing.T) {
	g := NewGenerator()
	NowMs = func() int64 { return 5000 }
	defer resetClock()

	a := g.Next()
	b := g.Next()
	if !(a.String() < b.String()) {
		t.Fatalf("hex string order should match chronological order: %s vs %s", a, b)
	}
}

func TestParseRoundTrip(t *testing.T) {
	g := NewGenerator()
	a := g.Next()
	got, err := Parse(a.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != a {
		t.Fatalf("round-trip mismatch: %v != %v", got, a)
	}
	if _, err := Parse("zz"); err == nil {
		t.Fatalf("expected error for short input")
	}
	if _, err := Parse("zz000000000000000000000000000000"); err == nil {
		t.Fatalf("expected error for non-hex input")
	}
}

func TestMillisAndSeqAccessors(t *testing.T) {
	g := NewGenerator()
	NowMs = func() int64 { return 123456 }
	defer resetClock()

	a := g.Next()
	b := g.Next()
	if a.Millis() != 123456 {
		t.Fatalf("millis: got %d", a.Millis())
	}
	if b.Seq() != a.Seq()+1 {
		t.Fatalf("sequence should increment within one millisecond")
	}
	if a.Time().UnixMilli() != 123456 {
		t.Fatalf("time accessor mismatch")
	}
}
