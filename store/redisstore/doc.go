// Package redisstore implements store.Store on Redis so that many relay
// processes can share room history and fan out each other's messages.
//
// Design Notes
//   - Room list: RPUSH + LTRIM inside MULTI/EXEC so the retention bound holds
//     even between the two commands
//   - History: LRANGE -n -1 (oldest first)
//   - Broker: PUBLISH / SUBSCRIBE on one channel per room; every process
//     subscribed to the channel receives every envelope (at-least-once while
//     connected, nothing across disconnects)
//   - Keys: <prefix>room:<id>:messages and <prefix>room:<id>:pubsub
//
// Trade-offs
//
//	Pros: shared history, multi-process fan-out, simple operational model
//	Cons: one pub/sub connection per subscribed room; room keys are never
//	      deleted, so the key space grows with the number of rooms ever used
//
// Example:
//
//	st, err := redisstore.NewFromEnv(ctx)
//	if err != nil { ... }
//	defer st.Close()
package redisstore
