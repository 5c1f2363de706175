package service

import (
	"fmt"

	"github.com/septivank/utility-reading-api/internal/validator"
)

// Stable error codes carried in API responses. Clients are built against
// these strings; do not rename them.
const (
	CodeInvalidData           = "INVALID_DATA"
	CodeInvalidType           = "INVALID_TYPE"
	CodeDoubleReport          = "DOUBLE_REPORT"
	CodeMeasureNotFound       = "MEASURE_NOT_FOUND"
	CodeMeasuresNotFound      = "MEASURES_NOT_FOUND"
	CodeConfirmationDuplicate = "CONFIRMATION_DUPLICATE"
	CodeInternalError         = "INTERNAL_ERROR"
)

// BadRequestError reports a validation failure. Fields carries per-field
// messages for INVALID_DATA; Description is used when Fields is nil.
type BadRequestError struct {
	Code        string
	Fields      validator.FieldErrors
	Description string
}

func (e *BadRequestError) Error() string {
	if e.Fields != nil {
		return fmt.Sprintf("%s: %d invalid field(s)", e.Code, len(e.Fields))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// ConflictError reports a duplicate report or duplicate confirmation
type ConflictError struct {
	Code        string
	Description string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NotFoundError reports an unknown measure or an empty listing
type NotFoundError struct {
	Code        string
	Description string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}
