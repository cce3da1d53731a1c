// Package deliverysvc is the transport-independent delivery service:
// authorized publish into the channel store, cursor replay plus live push
// through transport sinks, and stateless polling pages. The WebSocket, SSE,
// and polling surfaces are thin bindings over this service.
package deliverysvc
