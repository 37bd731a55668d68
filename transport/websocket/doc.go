// Package websocket carries the real-time traffic: controllers stream
// input frames up, the hub fans room events and simulation snapshots out
// to every connection in a room.
package websocket
