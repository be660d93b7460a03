// Package output форматирование вывода команд: таблица, JSON, YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v2"
)

// FormatType представляет тип форматирования вывода
type FormatType string

const (
	FormatTable FormatType = "table"
	FormatJSON  FormatType = "json"
	FormatYAML  FormatType = "yaml"
)

// ParseFormat разбирает имя формата
func ParseFormat(s string) (FormatType, error) {
	switch FormatType(strings.ToLower(strings.TrimSpace(s))) {
	case FormatTable, "":
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q, use table, json or yaml", s)
	}
}

// Formatter интерфейс для форматирования вывода
type Formatter interface {
	Format(data interface{}) (string, error)
}

// TableFormatter форматирует *TableData
type TableFormatter struct{}

func (f *TableFormatter) Format(data interface{}) (string, error) {
	switch v := data.(type) {
	case *TableData:
		return v.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// JSONFormatter форматирует данные в JSON
type JSONFormatter struct {
	Pretty bool
}

func (f *JSONFormatter) Format(data interface{}) (string, error) {
	var out []byte
	var err error
	if f.Pretty {
		out, err = json.MarshalIndent(data, "", "  ")
	} else {
		out, err = json.Marshal(data)
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(out), nil
}

// YAMLFormatter форматирует данные в YAML. Данные сначала проходят
// через JSON, чтобы имена полей совпадали с JSON выводом.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(data interface{}) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	var generic interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return string(out), nil
}

// ColorFormatter выделяет цветом заголовок таблицы и строки со стилем
type ColorFormatter struct {
	Formatter Formatter
}

func (f *ColorFormatter) Format(data interface{}) (string, error) {
	if table, ok := data.(*TableData); ok {
		return table.render(true), nil
	}
	return f.Formatter.Format(data)
}

// GetFormatter возвращает подходящий форматировщик
func GetFormatter(format FormatType, useColors bool) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Pretty: true}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		if useColors {
			return &ColorFormatter{Formatter: &TableFormatter{}}
		}
		return &TableFormatter{}
	}
}

// Printer выводит результат команды в выбранном формате
type Printer struct {
	Format FormatType
	Colors bool
	Out    io.Writer
}

// NewPrinter создает Printer. Цвета включаются только для терминала.
func NewPrinter(format FormatType, colors bool, out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{Format: format, Colors: colors && IsTerminal(out), Out: out}
}

// Print выводит data. Для табличного формата используется table,
// для json/yaml сами данные.
func (p *Printer) Print(data interface{}, table func() *TableData) error {
	var payload interface{} = data
	if p.Format == FormatTable || p.Format == "" {
		payload = table()
	}

	text, err := GetFormatter(p.Format, p.Colors).Format(payload)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err = io.WriteString(p.Out, text)
	return err
}

// Structured сообщает, что вывод предназначен для машин
func (p *Printer) Structured() bool {
	return p.Format == FormatJSON || p.Format == FormatYAML
}

// IsTerminal проверяет, что w терминал
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
