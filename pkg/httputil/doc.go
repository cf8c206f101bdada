// Package httputil provides HTTP handler utilities: the uniform
// {"data": ...} / {"error": ...} response envelope, strict JSON request
// decoding, and path/query parameter parsing.
//
// Every API response uses the envelope. Success responses carry the payload
// under "data"; failures carry a human-readable message under "error".
// Internal error detail is never written to the client, only logged.
package httputil
