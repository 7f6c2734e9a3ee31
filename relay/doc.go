// Package relay is the server core of FleetSocket: it maps live connections
// to room memberships, persists and orders messages through a store.Store, and
// fans broker deliveries out to the local connections joined to each room.
//
// Layers & Roles
//
//	Registry  -> live sessions: connection handle, display name, joined rooms
//	Engine    -> per-room broker subscription (once per process) and fan-out
//	Pipeline  -> validates and executes setName / join / send requests
//
// Transports (see wshandler) own the connections: they register a Conn with
// the Registry, feed decoded frames to the Pipeline one at a time, and write
// the frames the Pipeline and Engine hand back.
//
// # Delivery
//
// Fan-out is fire-and-forget. A Conn that is closed or saturated fails its
// own delivery and nothing else: the failure is logged at debug level, never
// retried, and never stops delivery to the remaining members of the room.
// Across a disconnect the only recovery is the history replayed on the next
// join.
package relay
