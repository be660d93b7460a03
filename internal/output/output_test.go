package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID        string `json:"id"`
	FieldName string `json:"field_name"`
	Active    bool   `json:"is_active"`
}

func sampleTable() *TableData {
	td := NewTableData("ID", "NAME", "ACTIVE")
	td.AddRow("1", "source", "yes")
	td.AddRowWithStyle(StyleMuted, "2", "legacy\tfield", "no")
	return td
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]FormatType{"": FormatTable, "TABLE": FormatTable, "json": FormatJSON, " yaml ": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestTableData_String(t *testing.T) {
	out := sampleTable().String()
	lines := strings.Split(strings.TrimSpace(out), "\n")

	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "--"))
	assert.Contains(t, lines[3], "legacy field")
	assert.NotContains(t, out, "\033[")
}

func TestTableData_Empty(t *testing.T) {
	td := NewTableData("ID")
	assert.Equal(t, "No data found", td.String())
	td.Empty = "No fields defined"
	assert.Equal(t, "No fields defined", td.String())
}

func TestColorFormatter(t *testing.T) {
	out, err := GetFormatter(FormatTable, true).Format(sampleTable())
	require.NoError(t, err)
	assert.Contains(t, out, colorHeader+"ID")
	assert.Contains(t, out, styleCodes[StyleMuted]+"2")
}

func TestPrinter_JSONUsesData(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(FormatJSON, true, &buf)
	assert.False(t, p.Colors, "colors are off for non-terminals")

	items := []item{{ID: "1", FieldName: "source", Active: true}}
	require.NoError(t, p.Print(items, func() *TableData { t.Fatal("table must not be built"); return nil }))

	var decoded []item
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, items, decoded)
	assert.True(t, p.Structured())
}

func TestPrinter_YAMLKeepsJSONNames(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(FormatYAML, false, &buf)

	require.NoError(t, p.Print(item{ID: "1", FieldName: "source"}, nil))
	assert.Contains(t, buf.String(), "field_name: source")
	assert.Contains(t, buf.String(), "is_active: false")
}

func TestPrinter_Table(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(FormatTable, false, &buf)

	require.NoError(t, p.Print(nil, sampleTable))
	assert.Contains(t, buf.String(), "source")
	assert.False(t, p.Structured())
}

func TestKeyValueAndHelpers(t *testing.T) {
	out := KeyValue("Name", "source", "Type", "text").String()
	assert.Contains(t, out, "Name:")
	assert.Contains(t, out, "text")

	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdefgh", 5))
	assert.Equal(t, "yes", YesNo(true))
}
