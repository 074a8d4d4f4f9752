// Package collab provides the shared Redis primitives behind the real-time
// board collaboration engine: advisory entity locks, TTL-based presence
// tracking, room-scoped event broadcast, and one-time connection tickets.
//
// # Overview
//
// Every server replica talks to the same Redis instance, which makes the
// primitives here safe to use across horizontally scaled processes. The
// relational store remains the single source of truth for entity state;
// Redis only carries the ephemeral coordination data (locks, presence,
// in-flight events) that must be visible to all replicas at once.
//
// # Core Concepts
//
// Locks are short-TTL advisory markers keyed by entity id. They serialize
// overlapping edits of the same card or column for the duration of one
// guarded mutation. Acquisition is fail-fast: a denied acquire is reported
// to the caller immediately rather than queued.
//
// Presence is the set of users currently connected to a board, derived
// from TTL-refreshed connection state. A crashed client disappears when
// its TTL lapses without requiring an explicit disconnect event.
//
// Rooms are named broadcast targets: "board:{id}" reaches everyone viewing
// a board, "user:{id}" reaches one user's connections. Delivery is
// best-effort to currently connected subscribers; there is no queueing for
// offline clients, who must re-fetch authoritative state on reconnect.
//
// # Multi-Instance Support
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so
// several deployments can safely share a Redis server.
package collab
