// Package mcp provides the Model Context Protocol operator surface for the
// party-game server.
//
// The package exposes the following tools:
//   - list_games: List the playable game catalog
//   - list_rooms: List all active rooms with status and player counts
//   - room_state: Latest simulation snapshot for one room
//   - finish_room: Force-finish a stuck room
//   - match_history: Recently completed matches
//
// The server runs over stdio or is mounted as an HTTP message endpoint.
package mcp
