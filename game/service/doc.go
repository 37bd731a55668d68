// Package service holds the in-memory stores behind the HTTP and socket
// surfaces: guest identities and completed-match history.
package service
