package stools

import "net/http"

// Middleware wraps an http.HandlerFunc with cross-cutting behavior.
type Middleware func(http.HandlerFunc) http.HandlerFunc

// AdaptHandler applies middlewares to h in the order given, so the first
// middleware is the outermost.
func AdaptHandler(h http.HandlerFunc, middlewares ...Middleware) http.HandlerFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
