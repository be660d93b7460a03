// Package validation проверки значений конфигурации и пользовательского ввода.
package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// FieldError ошибка проверки конкретного поля
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Reason
}

func fieldError(field, format string, args ...interface{}) *FieldError {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validator проверки значений
type Validator struct{}

// NewValidator создает новый Validator
func NewValidator() *Validator {
	return &Validator{}
}

var machineNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateURL проверяет абсолютный URL с одной из схем allowedSchemes
func (v *Validator) ValidateURL(target string, allowedSchemes []string) error {
	if target == "" {
		return fieldError("url", "url is required")
	}
	if strings.ContainsAny(target, " \t\n\r") {
		return fieldError("url", "URL contains invalid whitespace characters")
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return fieldError("url", "invalid URL format: %v", err)
	}
	if len(allowedSchemes) > 0 && !slices.Contains(allowedSchemes, parsed.Scheme) {
		return fieldError("url", "URL must use one of allowed schemes %v, got: %s", allowedSchemes, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fieldError("url", "URL must have a valid host")
	}
	return nil
}

// ValidateEnum проверяет, что value одно из allowedValues
func (v *Validator) ValidateEnum(value string, allowedValues []string, fieldName string) error {
	if value == "" {
		return fieldError(fieldName, "%s is required", fieldName)
	}
	if !slices.Contains(allowedValues, value) {
		return fieldError(fieldName, "invalid %s: %s, allowed values: %v", fieldName, value, allowedValues)
	}
	return nil
}

// ValidateOptionalEnum как ValidateEnum, но пустое значение допустимо
func (v *Validator) ValidateOptionalEnum(value string, allowedValues []string, fieldName string) error {
	if value == "" {
		return nil
	}
	return v.ValidateEnum(value, allowedValues, fieldName)
}

// ValidateStringLength проверяет длину строки в символах
func (v *Validator) ValidateStringLength(value, fieldName string, min, max int) error {
	length := len([]rune(value))
	if length < min {
		return fieldError(fieldName, "%s must be at least %d characters, got: %d", fieldName, min, length)
	}
	if length > max {
		return fieldError(fieldName, "%s must not exceed %d characters, got: %d", fieldName, max, length)
	}
	return nil
}

// ValidateMachineName проверяет машинное имя: латиница в нижнем регистре, цифры и "_"
func (v *Validator) ValidateMachineName(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return fieldError(fieldName, "%s is required", fieldName)
	}
	if !machineNamePattern.MatchString(value) {
		return fieldError(fieldName, "invalid %s: %q, use lowercase letters, digits and underscores, starting with a letter", fieldName, value)
	}
	return nil
}

// ValidateEmail проверяет адрес вида user@domain
func (v *Validator) ValidateEmail(value, fieldName string) error {
	if value == "" {
		return fieldError(fieldName, "%s is required", fieldName)
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".") {
		return fieldError(fieldName, "invalid %s: %q", fieldName, value)
	}
	return nil
}

// ValidatePositive проверяет, что число больше нуля
func (v *Validator) ValidatePositive(value int, fieldName string) error {
	if value <= 0 {
		return fieldError(fieldName, "%s must be positive, got: %d", fieldName, value)
	}
	return nil
}

// ValidateRange проверяет min <= value <= max
func (v *Validator) ValidateRange(value, min, max int, fieldName string) error {
	if value < min || value > max {
		return fieldError(fieldName, "%s must be between %d and %d, got: %d", fieldName, min, max, value)
	}
	return nil
}
