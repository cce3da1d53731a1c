// Package conn models one logical client connection across the three
// transport tiers (duplex, streaming, polling).
//
// The state machine is a pure function from (state, input) to
// (state, actions): drivers feed it dial results, transport errors,
// liveness timeouts, delivered batches, and close requests, and perform the
// returned actions (dial, sleep, stop). On sustained failure a tier backs
// off exponentially and, once its retry budget is spent, demotes to the
// next tier down; the polling floor never demotes and instead surfaces a
// degraded signal while it keeps retrying.
//
// The Heartbeat monitor implements the shared liveness protocol for the
// two connection-oriented tiers.
package conn
