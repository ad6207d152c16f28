// Package errors provides structured error handling for the ledger service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidArgument represents malformed or missing caller input.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Lookup errors
	CodeNotFound Code = "NOT_FOUND"

	// Ownership errors
	CodeNotOwner         Code = "NOT_OWNER"
	CodeAlreadyExchanged Code = "ALREADY_EXCHANGED"

	// Economy errors
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"

	// Mint errors
	CodeConsecutiveDummyMint Code = "CONSECUTIVE_DUMMY_MINT"
	CodeGenerationExhausted  Code = "GENERATION_EXHAUSTED"

	// Authorization errors
	CodeGrantInvalid Code = "GRANT_INVALID"

	// Collaborator errors
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"

	// CodeInternalInconsistency flags state the invariants say cannot exist.
	// It is reported, never fatal.
	CodeInternalInconsistency Code = "INTERNAL_INCONSISTENCY"
)

// HTTPStatus maps domain codes to HTTP status codes for client responses.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument:
		return http.StatusBadRequest

	case CodeNotFound:
		return http.StatusNotFound

	case CodeGrantInvalid:
		return http.StatusUnauthorized

	// FailedPrecondition-style rejections: the request was well formed but
	// current ledger state disallows it.
	case CodeNotOwner,
		CodeAlreadyExchanged,
		CodeInsufficientFunds,
		CodeConsecutiveDummyMint:
		return http.StatusConflict

	case CodeServiceUnavailable,
		CodeGenerationExhausted:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
