// Package wshandler serves the FleetSocket wire protocol over WebSocket.
//
// A Handler exposes:
//
//	GET /ws                    -> WebSocket endpoint (also accepted at /)
//	GET /health                -> {"ok":true}
//	GET /protocol.schema.json  -> JSON Schema of inbound and outbound frames
//
// Each accepted connection becomes one relay session. Frames from a
// connection are processed one at a time in arrival order; replies and room
// broadcasts share a bounded outbound queue drained by a single writer. A
// connection whose queue fills up loses the frames that do not fit, and
// nothing else.
package wshandler
