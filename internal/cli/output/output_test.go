package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(format Format) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRenderer(out, errOut, format), out, errOut
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatYAML, ParseFormat("yaml"))
	assert.Equal(t, FormatTable, ParseFormat("table"))
	assert.Equal(t, FormatTable, ParseFormat(""))
}

func TestRender(t *testing.T) {
	data := map[string]any{"entity": "doc:42", "count": 3}

	tests := []struct {
		format Format
		want   []string
	}{
		{format: FormatJSON, want: []string{`"entity": "doc:42"`, `"count": 3`}},
		{format: FormatYAML, want: []string{"entity:", "doc:42", "count: 3"}},
		{format: FormatTable, want: []string{"text body"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			r, out, _ := newTestRenderer(tt.format)
			err := r.Render(data, func() error {
				r.Println("text body")
				return nil
			})
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, out.String(), want)
			}
		})
	}
}

func TestTable(t *testing.T) {
	r, out, _ := newTestRenderer(FormatTable)
	r.Table([]string{"ID", "TYPE"}, [][]any{{"v1", "FULL"}, {"v2", "DELTA"}})
	assert.Contains(t, out.String(), "ID")
	assert.Contains(t, out.String(), "DELTA")

	out.Reset()
	r.Table([]string{"ID"}, nil)
	assert.Equal(t, "(0 rows)\n", out.String())
}

func TestKeyValues(t *testing.T) {
	r, out, _ := newTestRenderer(FormatTable)
	r.KeyValues("Version", [][2]any{{"Number", 3}, {"Similarity", 0.5}})
	assert.Contains(t, out.String(), "Version")
	assert.Contains(t, out.String(), "0.500")
}

func TestWarnf(t *testing.T) {
	r, out, errOut := newTestRenderer(FormatTable)
	r.Warnf("depth %d capped", 100)
	assert.Empty(t, out.String())
	assert.Equal(t, "Warning: depth 100 capped\n", errOut.String())
}

func TestFormatHelpers(t *testing.T) {
	id := "0192f0c4-7a1b-7c3e-9d2f-1a2b3c4d5e6f"
	assert.Equal(t, "0192f0c4-7a1b…", Short(id))
	assert.Equal(t, "short", Short("short"))
	assert.Equal(t, "1.5 kB", Bytes(1500))
	assert.Equal(t, "0 B", Bytes(-1))
	assert.Equal(t, "12,345", Count(12345))
	assert.Equal(t, "a=1, b=2", Counts(map[string]int{"b": 2, "a": 1}))

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "1 hour ago", Ago(now.Add(-time.Hour), now))
	assert.Equal(t, "2024-01-01T12:00:00Z", FormatValue(now))
	assert.Equal(t, "x, y", FormatValue([]string{"x", "y"}))
}
