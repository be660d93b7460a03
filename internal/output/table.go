package output

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// TableData представляет данные для табличного вывода
type TableData struct {
	Headers []string
	Rows    []*TableRow
	// Empty текст для пустой таблицы
	Empty string
}

// TableRow представляет строку таблицы
type TableRow struct {
	Cells []string
	Style RowStyle
}

// RowStyle определяет стиль строки
type RowStyle int

const (
	StyleDefault RowStyle = iota
	StyleSuccess
	StyleError
	StyleWarning
	StyleMuted
)

var styleCodes = map[RowStyle]string{
	StyleSuccess: "\033[32m",
	StyleError:   "\033[31m",
	StyleWarning: "\033[33m",
	StyleMuted:   "\033[90m",
}

const (
	colorHeader = "\033[1;34m"
	colorReset  = "\033[0m"
)

// NewTableData создает новые табличные данные
func NewTableData(headers ...string) *TableData {
	return &TableData{
		Headers: headers,
		Rows:    make([]*TableRow, 0),
		Empty:   "No data found",
	}
}

// AddRow добавляет строку
func (td *TableData) AddRow(cells ...string) {
	td.Rows = append(td.Rows, &TableRow{Cells: cells})
}

// AddRowWithStyle добавляет строку с указанием стиля
func (td *TableData) AddRowWithStyle(style RowStyle, cells ...string) {
	td.Rows = append(td.Rows, &TableRow{Cells: cells, Style: style})
}

// String возвращает строковое представление таблицы
func (td *TableData) String() string {
	return td.render(false)
}

func (td *TableData) render(colors bool) string {
	if len(td.Rows) == 0 {
		return td.Empty
	}

	var builder strings.Builder
	w := tabwriter.NewWriter(&builder, 0, 0, 2, ' ', 0)

	if len(td.Headers) > 0 {
		fmt.Fprintln(w, strings.Join(td.Headers, "\t"))
		separators := make([]string, len(td.Headers))
		for i, h := range td.Headers {
			separators[i] = strings.Repeat("-", len(h))
		}
		fmt.Fprintln(w, strings.Join(separators, "\t"))
	}
	for _, row := range td.Rows {
		fmt.Fprintln(w, strings.Join(sanitize(row.Cells), "\t"))
	}
	w.Flush()

	if !colors {
		return builder.String()
	}

	// Цвет добавляется после выравнивания, чтобы escape-коды не ломали ширину колонок
	lines := strings.Split(strings.TrimSuffix(builder.String(), "\n"), "\n")
	offset := 0
	if len(td.Headers) > 0 {
		lines[0] = colorHeader + lines[0] + colorReset
		offset = 2
	}
	for i, row := range td.Rows {
		if code, ok := styleCodes[row.Style]; ok && offset+i < len(lines) {
			lines[offset+i] = code + lines[offset+i] + colorReset
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

// sanitize убирает переводы строк и табуляции внутри ячеек
func sanitize(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(c)
	}
	return out
}

// KeyValue таблица "поле: значение" для вывода одного объекта
func KeyValue(pairs ...string) *TableData {
	td := NewTableData()
	for i := 0; i+1 < len(pairs); i += 2 {
		td.AddRow(pairs[i]+":", pairs[i+1])
	}
	return td
}

// Truncate обрезает строку до max символов
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// YesNo выводит булево значение
func YesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
