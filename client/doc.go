// Package client is the FleetSocket client reconciliation layer.
//
// A Session holds what a user sees in one room and reconciles three sources
// of messages: the user's own sends (shown immediately), room broadcasts
// from the server (deduplicated against those optimistic entries) and the
// history snapshot that answers every join (which replaces the list).
// Sends made while disconnected wait in an Outbox and are transmitted, in
// order, as soon as the connection is ready again.
//
// Client drives a Session over a WebSocket and reconnects with exponential
// backoff. Connectivity is reported as state, never as an error.
package client
