package app

import (
	"errors"
	"net/http"

	"bbsfolio/api/internal/content"
	"bbsfolio/api/internal/export"
	"bbsfolio/api/internal/media"
	"bbsfolio/api/internal/ordering"
	"bbsfolio/api/internal/store"
)

// DomainError is an error the service already knows how to present: its status,
// code and message go to the client verbatim. Err keeps the cause for logs.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}

// invalid reports a validation failure; the cause's text is the message.
func invalid(err error) error {
	return &DomainError{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: err.Error(), Err: err}
}

func unavailable(code, message string) error {
	return domainError(http.StatusServiceUnavailable, code, message, nil)
}

// errorRule maps sentinel errors of the lower layers onto a response. An empty
// message passes the error's own text through.
type errorRule struct {
	targets []error
	status  int
	code    string
	message string
}

var errorRules = []errorRule{
	{[]error{store.ErrNotFound}, http.StatusNotFound, "NOT_FOUND", "Not found"},
	{[]error{store.ErrDuplicateKey}, http.StatusConflict, "DUPLICATE_KEY", "A section with this key already exists"},
	{[]error{store.ErrSchemaOutdated}, http.StatusServiceUnavailable, "SCHEMA_OUTDATED", "Database schema is behind this build; run migrate"},
	{[]error{content.ErrInvalidSection, content.ErrInvalidEntry}, http.StatusBadRequest, "VALIDATION_ERROR", ""},
	{[]error{ordering.ErrBadIndex, ordering.ErrNotPermutation, ordering.ErrMissingID}, http.StatusBadRequest, "INVALID_REORDER", ""},
	{[]error{media.ErrUpload, media.ErrPublicURL}, http.StatusBadGateway, "UPLOAD_FAILED", "Upload failed"},
	{[]error{export.ErrUnsupportedFormat}, http.StatusBadRequest, "INVALID_FORMAT", "format must be html or pdf"},
	{[]error{export.ErrPDFDependencyMissing}, http.StatusNotImplemented, "PDF_UNAVAILABLE", "PDF export requires Chrome or Chromium"},
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	for _, rule := range errorRules {
		for _, target := range rule.targets {
			if !errors.Is(err, target) {
				continue
			}
			if rule.message == "" {
				return rule.status, rule.code, err.Error(), nil
			}
			return rule.status, rule.code, rule.message, nil
		}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
