// Package session owns the room lifecycle: the registry of active rooms,
// the per-room simulation clock, and admission of controller input into
// each room's pending buffer.
//
// Concurrency model: the Manager's map is guarded by one RWMutex and every
// Room by its own lock, so operations against different rooms never contend.
// Destroying a room stops its clock synchronously; a clock fire that races
// teardown observes the room is gone and becomes a no-op.
package session
