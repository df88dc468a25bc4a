//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// Error codes in the 40001-49999 range are the caller's fault and return an
// HTTP 4xx status; codes 50001-59999 are the server's fault and return 5xx.
// Codes are never reused or renumbered; new errors are appended after the
// current last one of each range.
//
// Rejection errors deliberately carry no identity data: the reason is a
// coarse label, never the triggering field values.
var (
	ErrResourceNotFound = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody    = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrInvalidInput     = Error{Code: 40101, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid input")}
	ErrNotEligible      = Error{Code: 40102, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("not eligible")}
	ErrAlreadyVoted     = Error{Code: 40103, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("already voted")}
	ErrAdminDisabled    = Error{Code: 40104, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("administrative operations are disabled")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
)
