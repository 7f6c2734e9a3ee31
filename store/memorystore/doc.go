// Package memorystore provides an in-memory store.Store suitable for tests,
// development, and single-process servers. All state is discarded on exit.
//
// Characteristics
//
//	Durability        : none (RAM only)
//	Horizontal scale  : no (process local); several relay engines in one
//	                    process may share a Store to simulate many nodes
//	Ordering          : per room, publish order for every subscriber
//	Event delivery    : sequential per subscription, one goroutine each
//	Concurrency       : safe (store mutex + per-room publish lock)
//
// Example:
//
//	st := memorystore.New()
//	h, _ := wshandler.New(st)
//
// For multi-node deployments use redisstore.
package memorystore
