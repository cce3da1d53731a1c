// Package wsserver provides the duplex websocket surface: one upgraded
// session per client with bidirectional JSON frames for publishing and
// subscribing, ping/pong liveness, and cursor resume across reconnects.
package wsserver
