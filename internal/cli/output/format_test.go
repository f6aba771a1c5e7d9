package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "table", want: FormatTable},
		{input: "", want: FormatTable},
		{input: "json", want: FormatJSON},
		{input: "JSON", want: FormatJSON},
		{input: "yaml", want: FormatYAML},
		{input: "yml", want: FormatYAML},
		{input: "  table  ", want: FormatTable},
		{input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("input "+tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrinterFormats(t *testing.T) {
	type record struct {
		Principal string `json:"principal" yaml:"principal"`
		Host      string `json:"host" yaml:"host"`
	}
	data := record{Principal: "hdfs@EXAMPLE.COM", Host: "worker-1"}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatJSON, false).Print(data))

		var decoded record
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, data, decoded)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatYAML, false).Print(data))
		assert.Contains(t, buf.String(), "principal: hdfs@EXAMPLE.COM")
	})

	t.Run("table falls back to json for plain structs", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(data))
		assert.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
	})
}

func TestPrinterStatusLines(t *testing.T) {
	t.Run("without color", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPrinter(&buf, FormatTable, false)
		p.Success("stored")
		p.Error("broken")
		p.Warning("degraded")

		out := buf.String()
		assert.NotContains(t, out, "\033[")
		assert.Contains(t, out, "stored")
		assert.Contains(t, out, "broken")
		assert.Contains(t, out, "degraded")
	})

	t.Run("with color", func(t *testing.T) {
		var buf bytes.Buffer
		NewPrinter(&buf, FormatTable, true).Success("stored")
		assert.Contains(t, buf.String(), "\033[32m")
	})
}

func TestDefaultPrinter(t *testing.T) {
	assert.Equal(t, FormatTable, DefaultPrinter().Format())
}
