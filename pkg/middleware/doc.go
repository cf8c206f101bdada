// Package middleware provides the HTTP middleware chain: request IDs,
// request logging, session authentication, authorization guards and rate
// limiting.
//
// Authorization is enforced in two layers. RequirePermission gates an
// endpoint on a capability from the permission catalog; department scoped
// endpoints additionally pass the target department through the identity's
// access check. Requests without an identity get 401, identities without
// the capability get 403.
package middleware
