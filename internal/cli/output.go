package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// Printer writes command results in the selected format
type Printer struct {
	out    io.Writer
	format string
}

// NewPrinter validates format and returns a printer writing to out
func NewPrinter(out io.Writer, format string) (*Printer, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "":
		format = OutputTable
	case OutputTable, OutputJSON, OutputYAML:
	default:
		return nil, fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
	return &Printer{out: out, format: format}, nil
}

// Structured reports whether results are printed as data rather than a table
func (p *Printer) Structured() bool {
	return p.format != OutputTable
}

// Data prints v as JSON or YAML. Field names follow the JSON tags in both
// formats, so v goes through a JSON round trip before YAML encoding.
func (p *Printer) Data(v any) error {
	switch p.format {
	case OutputJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputYAML:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		data, err := yaml.Marshal(generic)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		_, err = p.out.Write(data)
		return err
	default:
		return fmt.Errorf("output format %q does not print data", p.format)
	}
}

// Title prints a bold heading line
func (p *Printer) Title(format string, args ...any) {
	fmt.Fprintln(p.out, titleStyle.Render(fmt.Sprintf(format, args...)))
}

// Line prints a plain line
func (p *Printer) Line(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Table renders rows under headers
func (p *Printer) Table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(p.out, t.Render())
}
