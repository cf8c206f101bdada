// Package users manages the CMS user directory. Accounts are provisioned
// on first SSO sign-in and linked to departments; role assignments live in
// the rbac package.
package users
