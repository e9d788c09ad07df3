// Package output renders command results as tables, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

// Supported output formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat maps a config value to a Format. Unknown values fall back to
// FormatTable.
func ParseFormat(s string) Format {
	switch Format(s) {
	case FormatJSON:
		return FormatJSON
	case FormatYAML:
		return FormatYAML
	default:
		return FormatTable
	}
}

// Renderer writes command output in one format.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	format Format
}

// NewRenderer creates a Renderer writing results to out and diagnostics to errOut.
func NewRenderer(out, errOut io.Writer, format Format) *Renderer {
	return &Renderer{out: out, errOut: errOut, format: format}
}

// Format returns the renderer's format.
func (r *Renderer) Format() Format {
	return r.format
}

// IsStructured reports whether output is JSON or YAML.
func (r *Renderer) IsStructured() bool {
	return r.format == FormatJSON || r.format == FormatYAML
}

// Println writes a line to the output.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted text to the output.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Warnf writes a diagnostic line to the error output.
func (r *Renderer) Warnf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.errOut, "Warning: "+format+"\n", a...)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAML writes v as YAML.
func (r *Renderer) YAML(v any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Render writes data in the structured formats and calls text otherwise.
func (r *Renderer) Render(data any, text func() error) error {
	switch r.format {
	case FormatJSON:
		return r.JSON(data)
	case FormatYAML:
		return r.YAML(data)
	default:
		return text()
	}
}

// Table renders rows under header. An empty table prints "(0 rows)".
func (r *Renderer) Table(header []string, rows [][]any) {
	if len(rows) == 0 {
		r.Println("(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)

	h := make(table.Row, len(header))
	for i, col := range header {
		h[i] = col
	}
	t.AppendHeader(h)
	for _, row := range rows {
		cells := make(table.Row, len(row))
		for i, v := range row {
			cells[i] = FormatValue(v)
		}
		t.AppendRow(cells)
	}
	t.Render()
}

// KeyValues renders an aligned two-column table with an optional title.
func (r *Renderer) KeyValues(title string, pairs [][2]any) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	for _, p := range pairs {
		t.AppendRow(table.Row{p[0], FormatValue(p[1])})
	}
	t.Render()
}
