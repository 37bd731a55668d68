// Package catalog serves the list of playable games: built-in definitions
// plus optional JSON overrides loaded from a definitions directory.
package catalog
