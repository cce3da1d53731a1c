// Package client provides the `beam` command-line client.
//
// The CLI talks to the beam HTTP, SSE, and websocket endpoints. The base
// URL comes from the embedding binary via a BaseURLFunc; the standalone
// binary defaults to http://127.0.0.1:8080 and honors BEAM_HTTP.
//
// Usage
//
//	beam publish --channel team-42 --type comment.created \
//	    --data '{"projectId":"p1","text":"hi"}'
//
//	# Follow a channel live. Starts on the duplex tier and falls back
//	# to SSE, then polling, if the connection keeps failing.
//	beam tail --channel team-42
//	beam tail --channel team-42 --filter 'type == "competitor.alert"'
//	beam tail --channel team-42 --last-event-id 0000019934f0... --transport stream
//
//	# One stateless page
//	beam poll --channel team-42 --since 2026-08-30T12:00:00Z --limit 20
package client
