// Package chat defines the data shared by the FleetSocket server and client:
// the immutable message Envelope and the JSON frames exchanged over a
// connection.
//
// Wire protocol
//
//	client -> server   setName{name} | join{roomId} | send{roomId, content}
//	server -> client   nameSet{name} | history{roomId, messages} |
//	                   message{payload} | sent{message}
//
// Every frame is a single JSON object carrying a "type" discriminator. Unknown
// fields are ignored so that clients may transmit their optimistic envelope
// (id, ts, from) alongside a send request.
//
// Limits
//
//	HistoryLimit    : envelopes replayed to a session on join
//	RetentionLimit  : envelopes retained per room, oldest evicted first
//	DedupWindow     : timestamp tolerance used to match an optimistic echo
//	                  with its authoritative broadcast copy
package chat
