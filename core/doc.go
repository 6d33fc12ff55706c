// Package core turns a callback-driven in-app purchase storefront into
// request/response operations. A Bridge owns at most one pending purchase or
// restore, routes every storefront transaction update to it, and finalizes
// each terminal transaction exactly once.
//
// Storefront implementations and transports live outside this package and
// depend on it, never the reverse.
package core
