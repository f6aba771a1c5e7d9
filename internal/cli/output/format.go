// Package output renders CLI command results as tables, JSON, or YAML.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Format selects how command results are rendered.
type Format string

const (
	// FormatTable renders human-readable columns. The default.
	FormatTable Format = "table"
	// FormatJSON renders indented JSON.
	FormatJSON Format = "json"
	// FormatYAML renders YAML.
	FormatYAML Format = "yaml"
)

// ParseFormat maps a --output flag value to a Format. The empty string
// selects the table format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
}

func (f Format) String() string {
	return string(f)
}

// Printer renders values in a fixed format to a writer. Color applies only
// to the Success/Error/Warning status lines.
type Printer struct {
	out    io.Writer
	format Format
	color  bool
}

// NewPrinter returns a Printer rendering in the given format.
func NewPrinter(out io.Writer, format Format, color bool) *Printer {
	return &Printer{out: out, format: format, color: color}
}

// DefaultPrinter renders tables to stdout with color.
func DefaultPrinter() *Printer {
	return NewPrinter(os.Stdout, FormatTable, true)
}

// Format returns the configured format.
func (p *Printer) Format() Format {
	return p.format
}

// Print renders data in the configured format. In table format, data that
// does not implement TableRenderer falls back to JSON.
func (p *Printer) Print(data any) error {
	switch p.format {
	case FormatJSON:
		return PrintJSON(p.out, data)
	case FormatYAML:
		return PrintYAML(p.out, data)
	case FormatTable:
		if renderer, ok := data.(TableRenderer); ok {
			return PrintTable(p.out, renderer)
		}
		return PrintJSON(p.out, data)
	}
	return fmt.Errorf("unknown format: %s", p.format)
}

// Println writes a plain line to the printer's writer.
func (p *Printer) Println(args ...any) {
	_, _ = fmt.Fprintln(p.out, args...)
}

// Printf writes a formatted string to the printer's writer.
func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// Success writes a status line, green when color is enabled.
func (p *Printer) Success(msg string) {
	p.statusLine("32", msg)
}

// Error writes a status line, red when color is enabled.
func (p *Printer) Error(msg string) {
	p.statusLine("31", msg)
}

// Warning writes a status line, yellow when color is enabled.
func (p *Printer) Warning(msg string) {
	p.statusLine("33", msg)
}

func (p *Printer) statusLine(sgr, msg string) {
	if p.color {
		_, _ = fmt.Fprintf(p.out, "\033[%sm%s\033[0m\n", sgr, msg)
		return
	}
	_, _ = fmt.Fprintln(p.out, msg)
}
