package qbo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/and161185/ovis-qbsync/internal/errs"
)

// staleObjectCode is the QuickBooks fault code for an outdated SyncToken.
const staleObjectCode = "5010"

// Fault is the error envelope QuickBooks returns on validation and service failures.
type Fault struct {
	Type   string       `json:"type"`
	Errors []FaultError `json:"Error"`
}

// FaultError is one entry of a Fault.
type FaultError struct {
	Message string `json:"Message"`
	Detail  string `json:"Detail"`
	Code    string `json:"code"`
	Element string `json:"element,omitempty"`
}

// APIError is returned for every non-2xx response. Body is the raw response text.
type APIError struct {
	StatusCode int
	Body       string
	Fault      *Fault
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quickbooks api error %d: %s", e.StatusCode, e.Body)
}

// Is lets callers test with errors.Is against errs.ErrVersionConflict and errs.ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	switch target {
	case errs.ErrVersionConflict:
		return e.Stale()
	case errs.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// Stale reports whether the fault is QuickBooks rejecting an outdated SyncToken.
func (e *APIError) Stale() bool {
	if e.Fault == nil {
		return false
	}
	for _, fe := range e.Fault.Errors {
		if fe.Code == staleObjectCode || strings.Contains(fe.Message, "Stale Object") {
			return true
		}
	}
	return false
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: strings.TrimSpace(string(body))}
	var env struct {
		Fault *Fault `json:"Fault"`
	}
	if json.Unmarshal(body, &env) == nil {
		e.Fault = env.Fault
	}
	return e
}
