package dynfield

import (
	"fmt"
	"strings"

	pkgerrors "ReqTrack/pkg/errors"
)

// Имена типов в формате бэкенда
const (
	TypeText     = "text"
	TypeNumber   = "number"
	TypeDate     = "date"
	TypeSelect   = "select"
	TypeTextarea = "textarea"
	TypeBoolean  = "boolean"
	TypeCheckbox = "checkbox"
)

// TypeNames перечисляет поддерживаемые типы полей
var TypeNames = []string{TypeText, TypeNumber, TypeDate, TypeSelect, TypeTextarea, TypeBoolean, TypeCheckbox}

// FieldType закрытый набор типов поля. Только SelectType несет варианты.
type FieldType interface {
	Name() string
	isFieldType()
}

type (
	TextType     struct{}
	NumberType   struct{}
	DateType     struct{}
	TextareaType struct{}
	BooleanType  struct{}
	CheckboxType struct{}

	// SelectType поле с выбором одного из Options
	SelectType struct {
		Options []string
	}

	// UnknownType тип, присланный сервером, но не известный клиенту.
	// Значения таких полей показываются без проверки.
	UnknownType struct {
		Raw string
	}
)

func (TextType) Name() string     { return TypeText }
func (NumberType) Name() string   { return TypeNumber }
func (DateType) Name() string     { return TypeDate }
func (TextareaType) Name() string { return TypeTextarea }
func (BooleanType) Name() string  { return TypeBoolean }
func (CheckboxType) Name() string { return TypeCheckbox }
func (SelectType) Name() string   { return TypeSelect }
func (t UnknownType) Name() string { return t.Raw }

func (TextType) isFieldType()     {}
func (NumberType) isFieldType()   {}
func (DateType) isFieldType()     {}
func (TextareaType) isFieldType() {}
func (BooleanType) isFieldType()  {}
func (CheckboxType) isFieldType() {}
func (SelectType) isFieldType()   {}
func (UnknownType) isFieldType()  {}

// Has проверяет, входит ли value в варианты
func (t SelectType) Has(value string) bool {
	for _, o := range t.Options {
		if o == value {
			return true
		}
	}
	return false
}

// NewSelectType создает SelectType, отбрасывая пустые варианты
func NewSelectType(options ...string) SelectType {
	cleaned := make([]string, 0, len(options))
	for _, o := range options {
		if o = strings.TrimSpace(o); o != "" {
			cleaned = append(cleaned, o)
		}
	}
	return SelectType{Options: cleaned}
}

// ParseFieldType строит тип из имени и списка вариантов.
// Варианты учитываются только для select.
func ParseFieldType(name string, options []string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case TypeText:
		return TextType{}, nil
	case TypeNumber:
		return NumberType{}, nil
	case TypeDate:
		return DateType{}, nil
	case TypeTextarea:
		return TextareaType{}, nil
	case TypeBoolean:
		return BooleanType{}, nil
	case TypeCheckbox:
		return CheckboxType{}, nil
	case TypeSelect:
		return NewSelectType(options...), nil
	default:
		return nil, pkgerrors.New(pkgerrors.ErrValidation,
			fmt.Sprintf("unknown field type %q, expected one of: %s", name, strings.Join(TypeNames, ", ")))
	}
}

// optionsOf возвращает варианты для wire формата
func optionsOf(t FieldType) []string {
	if s, ok := t.(SelectType); ok {
		return s.Options
	}
	return nil
}
