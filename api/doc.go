// Package api exposes the REST surface: guest authentication, the game
// catalog, room lifecycle operations, QR join codes and match history.
package api
