// Package httpx provides HTTP response utilities.
package httpx

import "net/http"

// Deny reasons exposed to callers. A denial never names the missing
// permission; the two reasons below are the only signals the gate emits.
const (
	DenyInactive     = "account inactive"
	DenyNoPermission = "insufficient permission"
)

// Unauthorized reports a request with no usable identity.
func Unauthorized(w http.ResponseWriter) {
	Problem(w, http.StatusUnauthorized, "Unauthorized", "")
}

// Deny reports an authorization failure with one of the uniform reasons.
func Deny(w http.ResponseWriter, reason string) {
	Problem(w, http.StatusForbidden, "Not Authorized", reason)
}

// BadRequest reports a malformed or invalid payload.
func BadRequest(w http.ResponseWriter, detail string) {
	Problem(w, http.StatusBadRequest, "Validation Failed", detail)
}

// Internal reports an unexpected server-side failure without detail.
func Internal(w http.ResponseWriter) {
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
