// Package apierror defines the error taxonomy of the model API and
// normalizes error input into response entries.
package apierror

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bitechdev/ModelSpec/pkg/common"
)

// Kind classifies an API error.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindUnauthorized     Kind = "unauthorized"
	KindBadPayload       Kind = "bad_payload"
	KindBadRequest       Kind = "bad_request"
	KindValidationFailed Kind = "validation_failed"
	KindInternalError    Kind = "internal_error"
	KindNotImplemented   Kind = "not_implemented"
)

// HTTPStatus returns the response status code of the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBadPayload, KindBadRequest, KindValidationFailed:
		return http.StatusBadRequest
	case KindNotImplemented:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// Status returns the operation status reported for the kind.
func (k Kind) Status() common.Status {
	switch k {
	case KindNotFound:
		return common.StatusNotFound
	case KindUnauthorized:
		return common.StatusUnauthorized
	case KindBadPayload, KindBadRequest, KindValidationFailed:
		return common.StatusBadRequest
	case KindNotImplemented:
		return common.StatusNotImplemented
	}
	return common.StatusInternalError
}

// KindForStatus maps an operation status back to an error kind.
func KindForStatus(s common.Status) Kind {
	switch s {
	case common.StatusNotFound:
		return KindNotFound
	case common.StatusUnauthorized:
		return KindUnauthorized
	case common.StatusBadRequest:
		return KindBadRequest
	case common.StatusNotImplemented:
		return KindNotImplemented
	}
	return KindInternalError
}

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadPayload   = errors.New("bad payload")
	ErrBadRequest   = errors.New("bad request")
)

// Error is an expected failure carried as data.
type Error struct {
	Kind    Kind
	Entries []common.ErrorEntry
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var msgs []string
	for _, entry := range e.Entries {
		msgs = append(msgs, entry.Message)
	}
	msg := string(e.Kind)
	if len(msgs) > 0 {
		msg += ": " + strings.Join(msgs, "; ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	switch e.Kind {
	case KindNotFound:
		return ErrNotFound
	case KindUnauthorized:
		return ErrUnauthorized
	case KindBadPayload:
		return ErrBadPayload
	case KindBadRequest, KindValidationFailed:
		return ErrBadRequest
	}
	return nil
}

// New builds an error of kind from any input Normalize accepts.
func New(kind Kind, input interface{}, field string) *Error {
	return &Error{Kind: kind, Entries: Normalize(input, field)}
}

func entry(err, msg string) []common.ErrorEntry {
	return []common.ErrorEntry{{Error: err, Message: msg}}
}

func NotFound() *Error {
	return &Error{Kind: KindNotFound, Entries: entry("No resource found",
		"No resource found at the path provided or matching the criteria specified")}
}

// BadPayload names the expected body format, e.g. "json".
func BadPayload(format string) *Error {
	if format == "" {
		format = "json"
	}
	return &Error{Kind: KindBadPayload, Entries: entry("Missing/invalid request body (payload)",
		fmt.Sprintf("A properly-formatted %s payload was expected in the HTTP request body but not found", strings.ToUpper(format)))}
}

// BadRequest uses the generic texts for empty arguments.
func BadRequest(err, message string) *Error {
	if err == "" {
		err = "Invalid API request"
	}
	if message == "" {
		message = "This request is invalid for the resource in its present state"
	}
	return &Error{Kind: KindBadRequest, Entries: entry(err, message)}
}

func Unauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Entries: entry("Not authorized",
		"Missing one or more privileges required to complete request")}
}

func NotImplemented() *Error {
	return &Error{Kind: KindNotImplemented, Entries: entry("Not implemented",
		"This API feature is presently unavailable")}
}

// Unspecified is the entry reported when an operation failed without any
// validation detail.
func Unspecified(op common.Operation) common.ErrorEntry {
	return common.ErrorEntry{
		Error:   "Unspecified error",
		Message: fmt.Sprintf("Unspecified error processing %s: Please contact customer service for further assistance.", op),
	}
}

const genericInternalMessage = "An internal server error has occurred while processing your request."

// Internal renders an unclassified fault. verbose includes the fault and stack.
func Internal(err error, verbose bool, stack string) *Error {
	e := common.ErrorEntry{Error: "Internal error", Message: genericInternalMessage}
	if verbose && err != nil {
		e.Message = "Exception: " + err.Error()
		for _, line := range strings.Split(strings.TrimSpace(stack), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				e.Backtrace = append(e.Backtrace, line)
			}
		}
	}
	return &Error{Kind: KindInternalError, Entries: []common.ErrorEntry{e}, Err: err}
}

// As returns the classified error carried by err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Classify maps persistence errors onto the taxonomy. It returns nil for
// errors it does not recognize.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	if errors.Is(err, sql.ErrNoRows) {
		e := NotFound()
		e.Err = err
		return e
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		var msg string
		switch pgErr.Code {
		case "23505": // unique_violation
			msg = "has already been taken"
		case "23503": // foreign_key_violation
			msg = "references a missing record"
		case "23514": // check_violation
			msg = "is invalid"
		case "23502": // not_null_violation
			msg = "can't be blank"
		default:
			return nil
		}
		field := pgErr.ColumnName
		if field == "" {
			field = pgErr.ConstraintName
		}
		return &Error{
			Kind:    KindValidationFailed,
			Entries: []common.ErrorEntry{{Error: "Invalid " + field, Message: strings.TrimSpace(field + " " + msg), Field: field}},
			Err:     err,
		}
	}
	return nil
}
