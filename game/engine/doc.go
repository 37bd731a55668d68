// Package engine implements the pluggable simulations behind each game
// type: pong, duel racer, and reaction blitz.
//
// An Engine is driven by the room clock: each tick it consumes the inputs
// drained from the room's buffer and returns the next state. States form a
// tagged union (see State and DecodeState) so the clock and the broadcast
// layer never depend on a concrete game.
package engine
