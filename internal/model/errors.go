package model

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rezonia/erp-invoicer/internal/xmlrpc"
)

// ErrorCode classifies a failure for callers and the HTTP layer
type ErrorCode string

const (
	ErrCodeConfiguration  ErrorCode = "CONFIGURATION"
	ErrCodeValidation     ErrorCode = "VALIDATION"
	ErrCodeLookup         ErrorCode = "LOOKUP"
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION"
	ErrCodeHTTP           ErrorCode = "HTTP"
	ErrCodeRPCFault       ErrorCode = "RPC_FAULT"
	ErrCodeDataIntegrity  ErrorCode = "DATA_INTEGRITY"
	ErrCodeTransport      ErrorCode = "TRANSPORT"
	ErrCodeDecode         ErrorCode = "DECODE"
	ErrCodeInternal       ErrorCode = "INTERNAL"
)

// ConfigurationError represents missing or invalid deployment settings
type ConfigurationError struct {
	Keys    []string
	Message string
}

func (e *ConfigurationError) Error() string {
	if len(e.Keys) > 0 {
		return fmt.Sprintf("configuration error: %s (%s)", e.Message, strings.Join(e.Keys, ", "))
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, keys ...string) *ConfigurationError {
	return &ConfigurationError{
		Keys:    keys,
		Message: message,
	}
}

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed on %s: %s (value=%v, rule=%s)", e.Field, e.Message, e.Value, e.Rule)
	}
	return fmt.Sprintf("validation failed on %s: %s (rule=%s)", e.Field, e.Message, e.Rule)
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value interface{}, rule, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Rule:    rule,
		Message: message,
	}
}

// LookupError means a referenced local entity does not exist
type LookupError struct {
	Entity string
	Key    string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// NewLookupError creates a new lookup error
func NewLookupError(entity, key string) *LookupError {
	return &LookupError{Entity: entity, Key: key}
}

// DataIntegrityError means the ERP lacks an entity the configuration refers to
type DataIntegrityError struct {
	Model   string
	Message string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("erp data integrity [%s]: %s", e.Model, e.Message)
}

// NewDataIntegrityError creates a new data integrity error
func NewDataIntegrityError(model, message string) *DataIntegrityError {
	return &DataIntegrityError{Model: model, Message: message}
}

// ReconciliationWarning reports a local-store update that failed after the
// remote invoice was created. It is surfaced, never escalated.
type ReconciliationWarning struct {
	InvoiceID int64
	Cause     error
}

func (e *ReconciliationWarning) Error() string {
	return fmt.Sprintf("invoice %d created in ERP but local reconciliation failed: %v", e.InvoiceID, e.Cause)
}

func (e *ReconciliationWarning) Unwrap() error {
	return e.Cause
}

// Classify maps any error from the workflow to an error code
func Classify(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var (
		validationErr *ValidationError
		configErr     *ConfigurationError
		lookupErr     *LookupError
		integrityErr  *DataIntegrityError
		authErr       *xmlrpc.AuthenticationError
		httpErr       *xmlrpc.HTTPError
		fault         *xmlrpc.Fault
		decodeErr     *xmlrpc.DecodeError
	)

	switch {
	case errors.As(err, &validationErr):
		return ErrCodeValidation
	case errors.As(err, &configErr):
		return ErrCodeConfiguration
	case errors.As(err, &lookupErr):
		return ErrCodeLookup
	case errors.As(err, &authErr):
		return ErrCodeAuthentication
	case errors.As(err, &httpErr):
		return ErrCodeHTTP
	case errors.As(err, &fault):
		return ErrCodeRPCFault
	case errors.As(err, &integrityErr):
		return ErrCodeDataIntegrity
	case errors.As(err, &decodeErr):
		return ErrCodeDecode
	case errors.Is(err, xmlrpc.ErrTransport):
		return ErrCodeTransport
	}
	return ErrCodeInternal
}

// HTTPStatus picks the response status for an error code
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeLookup:
		return http.StatusNotFound
	case ErrCodeConfiguration, ErrCodeInternal:
		return http.StatusInternalServerError
	case ErrCodeAuthentication, ErrCodeHTTP, ErrCodeRPCFault, ErrCodeDataIntegrity,
		ErrCodeTransport, ErrCodeDecode:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
