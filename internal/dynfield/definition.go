// Package dynfield описывает схему динамических полей и их администрирование.
package dynfield

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	pkgerrors "ReqTrack/pkg/errors"
	"ReqTrack/pkg/validation"
)

// Target сущность, к которой применяется поле
type Target string

const (
	TargetRequirement Target = "requirement"
	TargetProject     Target = "project"
	TargetUser        Target = "user"
)

// Targets перечисляет сущности в порядке отображения
var Targets = []Target{TargetRequirement, TargetProject, TargetUser}

func (t Target) rank() int {
	for i, target := range Targets {
		if t == target {
			return i
		}
	}
	return len(Targets)
}

// Valid проверяет, что цель известна
func (t Target) Valid() bool {
	return t.rank() < len(Targets)
}

// OrderIndex порядковый номер поля; бэкенд присылает число или строку
type OrderIndex struct {
	Value int
	Set   bool
}

// Order создает заданный OrderIndex
func Order(v int) OrderIndex {
	return OrderIndex{Value: v, Set: true}
}

// ParseOrderIndex разбирает номер из строки; пустая строка означает "не задан"
func ParseOrderIndex(s string) (OrderIndex, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return OrderIndex{}, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) {
			return OrderIndex{}, fmt.Errorf("order_index %q is not an integer", s)
		}
		v = int(f)
	}
	return Order(v), nil
}

// UnmarshalJSON принимает null, число или строку с числом.
// Нечисловая строка считается незаданным номером.
func (o *OrderIndex) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*o = OrderIndex{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseOrderIndex(s)
		if err != nil {
			*o = OrderIndex{}
			return nil
		}
		*o = parsed
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("order_index: %w", err)
	}
	*o = Order(int(f))
	return nil
}

// MarshalJSON пишет номер строкой, как ожидает бэкенд
func (o OrderIndex) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(strconv.Itoa(o.Value))
}

func (o OrderIndex) String() string {
	if !o.Set {
		return ""
	}
	return strconv.Itoa(o.Value)
}

// Definition определение динамического поля
type Definition struct {
	ID               string
	FieldName        string
	FieldLabel       string
	FieldDescription string
	Type             FieldType
	IsRequired       bool
	IsActive         bool
	AppliesTo        Target
	OrderIndex       OrderIndex
	// ValidationRules передаются бэкенду без интерпретации
	ValidationRules json.RawMessage
	CreatedAt       string
	UpdatedAt       string
}

// Label возвращает подпись поля или его имя
func (d Definition) Label() string {
	if d.FieldLabel != "" {
		return d.FieldLabel
	}
	return d.FieldName
}

// Options возвращает варианты select поля
func (d Definition) Options() []string {
	return optionsOf(d.Type)
}

type wireDefinition struct {
	ID               string          `json:"id,omitempty"`
	FieldName        string          `json:"field_name"`
	FieldType        string          `json:"field_type"`
	FieldLabel       string          `json:"field_label,omitempty"`
	FieldDescription string          `json:"field_description,omitempty"`
	Options          []string        `json:"options,omitempty"`
	IsRequired       bool            `json:"is_required"`
	IsActive         bool            `json:"is_active"`
	AppliesTo        Target          `json:"applies_to"`
	OrderIndex       OrderIndex      `json:"order_index"`
	ValidationRules  json.RawMessage `json:"validation_rules,omitempty"`
	CreatedAt        string          `json:"created_at,omitempty"`
	UpdatedAt        string          `json:"updated_at,omitempty"`
}

// MarshalJSON пишет определение в формате бэкенда (field_type + options)
func (d Definition) MarshalJSON() ([]byte, error) {
	w := wireDefinition{
		ID:               d.ID,
		FieldName:        d.FieldName,
		FieldLabel:       d.FieldLabel,
		FieldDescription: d.FieldDescription,
		IsRequired:       d.IsRequired,
		IsActive:         d.IsActive,
		AppliesTo:        d.AppliesTo,
		OrderIndex:       d.OrderIndex,
		ValidationRules:  d.ValidationRules,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if d.Type != nil {
		w.FieldType = d.Type.Name()
		w.Options = optionsOf(d.Type)
	}
	return json.Marshal(w)
}

// UnmarshalJSON читает определение; неизвестный тип сохраняется как UnknownType
func (d *Definition) UnmarshalJSON(data []byte) error {
	var w wireDefinition
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	fieldType, err := ParseFieldType(w.FieldType, w.Options)
	if err != nil {
		fieldType = UnknownType{Raw: w.FieldType}
	}

	rules := w.ValidationRules
	if bytes.Equal(bytes.TrimSpace(rules), []byte("null")) {
		rules = nil
	}

	*d = Definition{
		ID:               w.ID,
		FieldName:        w.FieldName,
		FieldLabel:       w.FieldLabel,
		FieldDescription: w.FieldDescription,
		Type:             fieldType,
		IsRequired:       w.IsRequired,
		IsActive:         w.IsActive,
		AppliesTo:        w.AppliesTo,
		OrderIndex:       w.OrderIndex,
		ValidationRules:  rules,
		CreatedAt:        w.CreatedAt,
		UpdatedAt:        w.UpdatedAt,
	}
	return nil
}

// fieldPayload тело создания и обновления. Бэкенд меняет только присланные
// ключи, поэтому изменяемые поля отправляются всегда, пустые как null.
type fieldPayload struct {
	FieldName        string          `json:"field_name"`
	FieldType        string          `json:"field_type"`
	FieldLabel       *string         `json:"field_label"`
	FieldDescription *string         `json:"field_description"`
	Options          []string        `json:"options"`
	IsRequired       bool            `json:"is_required"`
	IsActive         bool            `json:"is_active"`
	AppliesTo        Target          `json:"applies_to"`
	OrderIndex       OrderIndex      `json:"order_index"`
	ValidationRules  json.RawMessage `json:"validation_rules"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// payload возвращает изменяемые поля без идентификатора и отметок времени
func (d Definition) payload() fieldPayload {
	p := fieldPayload{
		FieldName:        d.FieldName,
		FieldLabel:       nullable(d.FieldLabel),
		FieldDescription: nullable(d.FieldDescription),
		IsRequired:       d.IsRequired,
		IsActive:         d.IsActive,
		AppliesTo:        d.AppliesTo,
		OrderIndex:       d.OrderIndex,
	}
	if d.Type != nil {
		p.FieldType = d.Type.Name()
		p.Options = optionsOf(d.Type)
	}
	if len(bytes.TrimSpace(d.ValidationRules)) > 0 {
		p.ValidationRules = d.ValidationRules
	}
	return p
}

var validator = validation.NewValidator()

// Validate проверяет определение перед отправкой на сервер
func (d Definition) Validate() error {
	if strings.TrimSpace(d.FieldName) == "" {
		return pkgerrors.New(pkgerrors.ErrValidation, "field name is required")
	}
	if err := validator.ValidateStringLength(d.FieldName, "field name", 1, 100); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrValidation, err.Error())
	}
	if err := validator.ValidateStringLength(d.FieldLabel, "field label", 0, 200); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrValidation, err.Error())
	}

	targets := make([]string, len(Targets))
	for i, t := range Targets {
		targets[i] = string(t)
	}
	if err := validator.ValidateEnum(string(d.AppliesTo), targets, "applies_to"); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrValidation, err.Error())
	}

	switch t := d.Type.(type) {
	case nil:
		return pkgerrors.New(pkgerrors.ErrValidation, "field type is required")
	case UnknownType:
		return pkgerrors.New(pkgerrors.ErrValidation, fmt.Sprintf("unknown field type %q", t.Raw))
	case SelectType:
		if len(NewSelectType(t.Options...).Options) == 0 {
			return pkgerrors.New(pkgerrors.ErrValidation, "select field requires at least one non-empty option")
		}
	}
	return nil
}
