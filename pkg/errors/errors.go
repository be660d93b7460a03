package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error представляет кастомную ошибку с дополнительной информацией
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	// Status HTTP статус ответа бэкенда, 0 если ответа не было
	Status int   `json:"status,omitempty"`
	Cause  error `json:"-"`
}

// ErrorCode представляет код ошибки
type ErrorCode string

// Определение кодов ошибок
const (
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrForbidden    ErrorCode = "FORBIDDEN"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrConflict     ErrorCode = "CONFLICT"
	ErrConnection   ErrorCode = "CONNECTION_ERROR"
	ErrUnexpected   ErrorCode = "UNEXPECTED_ERROR"
)

// Error возвращает сообщение об ошибке
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap возвращает причину ошибки
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is проверяет, является ли ошибка указанного типа
func (e *Error) Is(target error) bool {
	if targetError, ok := target.(*Error); ok {
		return e.Code == targetError.Code
	}
	return false
}

// New создает новую кастомную ошибку
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap оборачивает существующую ошибку в кастомную.
// Если err уже *Error, сохраняются его код и HTTP статус.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	status := 0
	var inner *Error
	if errors.As(err, &inner) {
		status = inner.Status
	}
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Cause:   err,
	}
}

// WithContext добавляет контекст действия, сохраняя код исходной ошибки
func WithContext(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, CodeOf(err), message)
}

// WithDetails добавляет детали к ошибке
func (e *Error) WithDetails(details string) *Error {
	if e == nil {
		return nil
	}
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Status:  e.Status,
		Cause:   e.Cause,
	}
}

// WithStatus добавляет HTTP статус к ошибке
func (e *Error) WithStatus(status int) *Error {
	if e == nil {
		return nil
	}
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Status:  status,
		Cause:   e.Cause,
	}
}

// CodeOf возвращает код ошибки; для чужих ошибок ErrInternal
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsCode проверяет код ошибки в цепочке
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// FromHTTPStatus переводит HTTP статус ответа в код ошибки
func FromHTTPStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrValidation
	case status >= 500:
		return ErrInternal
	default:
		return ErrUnexpected
	}
}

// HTTPStatus возвращает соответствующий HTTP статус для ошибки
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}
	if e.Status != 0 {
		return e.Status
	}

	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GetUserMessage возвращает пользовательское сообщение об ошибке
func (e *Error) GetUserMessage() string {
	if e == nil {
		return ""
	}

	switch e.Code {
	case ErrNotFound:
		return "Resource not found."
	case ErrValidation:
		return "Validation error."
	case ErrUnauthorized:
		return "Session expired. Please log in again."
	case ErrForbidden:
		return "You do not have permission to perform this action."
	case ErrConflict:
		return "Conflicting data (for example, a duplicate)."
	case ErrInternal:
		return "Internal server error. Try again later."
	case ErrConnection:
		return "Connection error. Check that the server is reachable."
	default:
		return "Unexpected error."
	}
}
