package dynfield

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValueStatus отношение значения к текущей схеме
type ValueStatus string

const (
	// ValueActive значение активного поля сущности
	ValueActive ValueStatus = "active"
	// ValueInactive значение деактивированного поля: хранится и показывается, не проверяется
	ValueInactive ValueStatus = "inactive"
	// ValueOrphan значение без определения (поле удалено)
	ValueOrphan ValueStatus = "orphan"
)

// Value интерпретированное значение динамического поля
type Value struct {
	Name       string
	Label      string
	Raw        interface{}
	Status     ValueStatus
	Definition *Definition
	// Problem описывает несоответствие типу; пусто, если значение корректно
	Problem string
}

// Interpretation результат разбора dynamic_fields записи
type Interpretation struct {
	// Values в порядке схемы, затем значения без активного определения по имени
	Values []Value
	// Missing обязательные активные поля без значения
	Missing []Definition
}

// Valid сообщает, что все активные значения корректны и обязательные заполнены
func (in Interpretation) Valid() bool {
	if len(in.Missing) > 0 {
		return false
	}
	for _, v := range in.Values {
		if v.Problem != "" {
			return false
		}
	}
	return true
}

// Interpret сопоставляет значения записи с определениями сущности target.
// Ни одно значение не отбрасывается.
func Interpret(values map[string]interface{}, defs []Definition, target Target) Interpretation {
	byName := make(map[string]*Definition)
	ordered := Sorted(ForTarget(defs, target))
	for i := range ordered {
		d := &ordered[i]
		// Активное определение имеет приоритет над неактивным с тем же именем
		if existing, ok := byName[d.FieldName]; ok && existing.IsActive {
			continue
		}
		byName[d.FieldName] = d
	}

	var result Interpretation
	seen := make(map[string]bool, len(values))

	for i := range ordered {
		d := &ordered[i]
		if byName[d.FieldName] != d {
			continue
		}
		raw, ok := values[d.FieldName]
		present := ok && !isEmpty(raw)

		if !d.IsActive {
			if ok {
				seen[d.FieldName] = true
				result.Values = append(result.Values, Value{Name: d.FieldName, Label: d.Label(), Raw: raw, Status: ValueInactive, Definition: d})
			}
			continue
		}

		if !present {
			if d.IsRequired {
				result.Missing = append(result.Missing, *d)
			}
			if !ok {
				continue
			}
		}

		seen[d.FieldName] = true
		v := Value{Name: d.FieldName, Label: d.Label(), Raw: raw, Status: ValueActive, Definition: d}
		if present {
			v.Problem = CheckValue(d.Type, raw)
		}
		result.Values = append(result.Values, v)
	}

	var orphans []string
	for name := range values {
		if !seen[name] {
			orphans = append(orphans, name)
		}
	}
	sort.Strings(orphans)
	for _, name := range orphans {
		result.Values = append(result.Values, Value{Name: name, Label: name, Raw: values[name], Status: ValueOrphan})
	}

	return result
}

func isEmpty(raw interface{}) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	default:
		return false
	}
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05"}

// CheckValue проверяет значение на соответствие типу; возвращает описание проблемы
func CheckValue(t FieldType, raw interface{}) string {
	switch ft := t.(type) {
	case NumberType:
		switch v := raw.(type) {
		case float64, int, int64, json.Number:
			return ""
		case string:
			if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return ""
			}
		}
		return fmt.Sprintf("expected a number, got %v", raw)
	case DateType:
		if s, ok := raw.(string); ok {
			for _, layout := range dateLayouts {
				if _, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
					return ""
				}
			}
		}
		return fmt.Sprintf("expected a date (YYYY-MM-DD), got %v", raw)
	case BooleanType, CheckboxType:
		switch v := raw.(type) {
		case bool:
			return ""
		case string:
			if _, err := strconv.ParseBool(v); err == nil {
				return ""
			}
		}
		return fmt.Sprintf("expected true or false, got %v", raw)
	case SelectType:
		s, ok := raw.(string)
		if !ok || !ft.Has(s) {
			return fmt.Sprintf("%v is not one of: %s", raw, strings.Join(ft.Options, ", "))
		}
		return ""
	case TextType, TextareaType:
		if _, ok := raw.(string); !ok {
			return fmt.Sprintf("expected text, got %v", raw)
		}
		return ""
	default:
		return ""
	}
}

// FormatValue возвращает значение для вывода
func FormatValue(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
