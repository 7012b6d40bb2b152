// Package gateway implements the worker RPC boundary. The server side is the
// only state-mutating surface reachable by execution workers; the client side
// is what workers use to talk to it. Every operation is a single
// bearer-authenticated request/response call over JSON.
package gateway
