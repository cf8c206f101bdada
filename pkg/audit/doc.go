// Package audit records who changed what: sign-ins, role and permission
// changes, and content mutations land in the audit_logs table. The HTTP
// middleware captures mutating requests automatically; domain code logs
// richer events directly where the context matters.
package audit
