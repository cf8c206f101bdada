// Package api assembles the HTTP surface: the anonymous public site
// endpoints under /public, the sign-on endpoints under /auth and the
// management endpoints under /cms, with the middleware chain and the
// per-route permission guards applied in one place.
package api
