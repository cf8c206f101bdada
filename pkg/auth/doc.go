// Package auth establishes who is making a request. Sign-in happens via
// the institution's identity provider (OIDC or SAML); on success a server
// side session is created and the user is provisioned into the local
// directory with their roles resolved.
//
// The authenticated Identity is placed on the request context by the
// session middleware and consumed by the authorization middleware.
package auth
