package dynfield

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "ReqTrack/pkg/errors"
)

func TestSort_OrderIndexThenCreation(t *testing.T) {
	defs := []Definition{
		{ID: "a", AppliesTo: TargetRequirement, OrderIndex: Order(2), CreatedAt: "2024-01-01T09:00:01.000000"},
		{ID: "b", AppliesTo: TargetRequirement, OrderIndex: Order(1), CreatedAt: "2024-01-01T09:00:02.000000"},
		{ID: "c", AppliesTo: TargetRequirement, OrderIndex: Order(1), CreatedAt: "2024-01-01T09:00:03.000000"},
	}

	Sort(defs)

	assert.Equal(t, []string{"b", "c", "a"}, ids(defs))
}

func TestSort_UnsetOrderLastAndTargetsGrouped(t *testing.T) {
	defs := []Definition{
		{ID: "user", AppliesTo: TargetUser, OrderIndex: Order(0)},
		{ID: "unset", AppliesTo: TargetRequirement},
		{ID: "project", AppliesTo: TargetProject, OrderIndex: Order(1)},
		{ID: "req", AppliesTo: TargetRequirement, OrderIndex: Order(5)},
	}

	sorted := Sorted(defs)

	assert.Equal(t, []string{"req", "unset", "project", "user"}, ids(sorted))
	assert.Equal(t, "user", defs[0].ID, "Sorted must not modify the input")
}

func TestSort_StableForEqualElements(t *testing.T) {
	defs := []Definition{
		{ID: "first", AppliesTo: TargetProject},
		{ID: "second", AppliesTo: TargetProject},
		{ID: "third", AppliesTo: TargetProject},
	}
	Sort(defs)
	assert.Equal(t, []string{"first", "second", "third"}, ids(defs))
}

func TestOrderIndex_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  OrderIndex
	}{
		{"number", `3`, Order(3)},
		{"numeric string", `"7"`, Order(7)},
		{"padded string", `" 4 "`, Order(4)},
		{"float string", `"2.0"`, Order(2)},
		{"null", `null`, OrderIndex{}},
		{"empty string", `""`, OrderIndex{}},
		{"garbage string", `"first"`, OrderIndex{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got OrderIndex
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOrderIndex_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Order(12))
	require.NoError(t, err)
	assert.JSONEq(t, `"12"`, string(data))

	data, err = json.Marshal(OrderIndex{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestDefinition_WireFormat(t *testing.T) {
	input := `{
		"id": "f1",
		"field_name": "complexity",
		"field_type": "select",
		"field_label": "Complexity",
		"options": ["Low", "", "High"],
		"is_required": true,
		"is_active": true,
		"applies_to": "project",
		"order_index": "2",
		"validation_rules": {"max": 3},
		"created_at": "2024-01-01T09:00:00.000000"
	}`

	var def Definition
	require.NoError(t, json.Unmarshal([]byte(input), &def))

	assert.Equal(t, "f1", def.ID)
	assert.Equal(t, TargetProject, def.AppliesTo)
	assert.Equal(t, Order(2), def.OrderIndex)
	assert.Equal(t, SelectType{Options: []string{"Low", "High"}}, def.Type)
	assert.JSONEq(t, `{"max": 3}`, string(def.ValidationRules))

	data, err := json.Marshal(def.payload())
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "select", wire["field_type"])
	assert.Equal(t, []interface{}{"Low", "High"}, wire["options"])
	assert.Equal(t, "2", wire["order_index"])
	assert.NotContains(t, wire, "id")
	assert.NotContains(t, wire, "created_at")
}

func TestDefinition_PayloadSendsClearedFields(t *testing.T) {
	def := Definition{ID: "f1", FieldName: "level", Type: TextType{}, IsActive: true, AppliesTo: TargetRequirement}

	data, err := json.Marshal(def.payload())
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))
	for _, key := range []string{"field_label", "field_description", "options", "validation_rules", "order_index"} {
		require.Contains(t, wire, key)
		assert.Nil(t, wire[key], key)
	}
	assert.Equal(t, "text", wire["field_type"])
	assert.NotContains(t, wire, "id")
}

func TestDefinition_OptionsOnlyForSelect(t *testing.T) {
	def := Definition{FieldName: "notes", Type: TextType{}, AppliesTo: TargetRequirement}
	data, err := json.Marshal(def)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "options")

	var back Definition
	require.NoError(t, json.Unmarshal([]byte(`{"field_name":"x","field_type":"text","options":["a"]}`), &back))
	assert.Equal(t, TextType{}, back.Type)
	assert.Nil(t, back.Options())
}

func TestDefinition_UnknownTypeKept(t *testing.T) {
	var def Definition
	require.NoError(t, json.Unmarshal([]byte(`{"field_name":"x","field_type":"rating","applies_to":"requirement"}`), &def))

	assert.Equal(t, UnknownType{Raw: "rating"}, def.Type)
	assert.Equal(t, "rating", def.Type.Name())
	assert.True(t, pkgerrors.IsCode(def.Validate(), pkgerrors.ErrValidation))
}

func TestParseFieldType(t *testing.T) {
	for _, name := range TypeNames {
		ft, err := ParseFieldType(name, []string{"a"})
		require.NoError(t, err, name)
		assert.Equal(t, name, ft.Name())
	}

	_, err := ParseFieldType("radio", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation))
}

func TestDefinition_Validate(t *testing.T) {
	valid := Definition{FieldName: "source", Type: TextType{}, AppliesTo: TargetRequirement}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"empty name", func(d *Definition) { d.FieldName = "  " }},
		{"long name", func(d *Definition) { d.FieldName = strings.Repeat("x", 101) }},
		{"unknown target", func(d *Definition) { d.AppliesTo = "team" }},
		{"missing type", func(d *Definition) { d.Type = nil }},
		{"select without options", func(d *Definition) { d.Type = SelectType{Options: []string{" ", ""}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := valid
			tt.mutate(&def)
			err := def.Validate()
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation))
		})
	}
}

func TestInterpret(t *testing.T) {
	defs := []Definition{
		{FieldName: "estimate", Type: NumberType{}, IsActive: true, IsRequired: true, AppliesTo: TargetRequirement, OrderIndex: Order(1)},
		{FieldName: "level", Type: NewSelectType("Low", "High"), IsActive: true, AppliesTo: TargetRequirement, OrderIndex: Order(2)},
		{FieldName: "legacy", Type: TextType{}, IsActive: false, AppliesTo: TargetRequirement, OrderIndex: Order(3)},
		{FieldName: "due", Type: DateType{}, IsActive: true, IsRequired: true, AppliesTo: TargetRequirement, OrderIndex: Order(4)},
		{FieldName: "budget", Type: NumberType{}, IsActive: true, AppliesTo: TargetProject},
	}
	values := map[string]interface{}{
		"estimate": "13",
		"level":    "Medium",
		"legacy":   "kept",
		"removed":  true,
		"budget":   "n/a",
	}

	in := Interpret(values, defs, TargetRequirement)

	require.Len(t, in.Values, 5, "no value may be dropped")
	assert.Equal(t, Value{Name: "estimate", Label: "estimate", Raw: "13", Status: ValueActive, Definition: in.Values[0].Definition}, in.Values[0])
	assert.Equal(t, ValueActive, in.Values[1].Status)
	assert.NotEmpty(t, in.Values[1].Problem)
	assert.Equal(t, ValueInactive, in.Values[2].Status)
	assert.Empty(t, in.Values[2].Problem)

	// Поле другой сущности и удаленное поле считаются сиротами
	assert.Equal(t, "budget", in.Values[3].Name)
	assert.Equal(t, ValueOrphan, in.Values[3].Status)
	assert.Equal(t, "removed", in.Values[4].Name)
	assert.Equal(t, ValueOrphan, in.Values[4].Status)

	require.Len(t, in.Missing, 1)
	assert.Equal(t, "due", in.Missing[0].FieldName)
	assert.False(t, in.Valid())
}

func TestInterpret_ActiveWinsOverInactiveDuplicate(t *testing.T) {
	defs := []Definition{
		{ID: "old", FieldName: "owner", Type: NumberType{}, IsActive: false, AppliesTo: TargetProject, OrderIndex: Order(1)},
		{ID: "new", FieldName: "owner", Type: TextType{}, IsActive: true, AppliesTo: TargetProject, OrderIndex: Order(2)},
	}

	in := Interpret(map[string]interface{}{"owner": "alice"}, defs, TargetProject)

	require.Len(t, in.Values, 1)
	assert.Equal(t, "new", in.Values[0].Definition.ID)
	assert.True(t, in.Valid())
}

func TestCheckValue(t *testing.T) {
	tests := []struct {
		name string
		typ  FieldType
		raw  interface{}
		ok   bool
	}{
		{"number float", NumberType{}, 3.5, true},
		{"number string", NumberType{}, "42", true},
		{"number bad", NumberType{}, "many", false},
		{"date plain", DateType{}, "2024-05-01", true},
		{"date rfc3339", DateType{}, "2024-05-01T10:00:00Z", true},
		{"date bad", DateType{}, "01/05/2024", false},
		{"boolean", BooleanType{}, true, true},
		{"checkbox string", CheckboxType{}, "false", true},
		{"checkbox bad", CheckboxType{}, "yes please", false},
		{"select ok", NewSelectType("A", "B"), "B", true},
		{"select bad", NewSelectType("A", "B"), "C", false},
		{"text", TextType{}, "hello", true},
		{"textarea number", TextareaType{}, 1.0, false},
		{"unknown accepts anything", UnknownType{Raw: "rating"}, 5.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problem := CheckValue(tt.typ, tt.raw)
			if tt.ok {
				assert.Empty(t, problem)
			} else {
				assert.NotEmpty(t, problem)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "3", FormatValue(3.0))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, `["a","b"]`, FormatValue([]interface{}{"a", "b"}))
}

func ids(defs []Definition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.ID
	}
	return out
}
