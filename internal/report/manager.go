package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Format is a report output format.
type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatSARIF Format = "sarif"
	FormatAll   Format = "all"
)

// Writer renders a result to its underlying stream.
type Writer interface {
	Write(result *Result) error
}

// Manager picks writers and output destinations for a run.
type Manager struct {
	format    Format
	outputDir string
	filename  string
	timestamp bool
	pretty    bool
	details   bool
	stdout    io.Writer
	now       func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithFormat sets the report format.
func WithFormat(format Format) ManagerOption {
	return func(m *Manager) {
		m.format = format
	}
}

// WithOutputDir writes report files into dir.
func WithOutputDir(dir string) ManagerOption {
	return func(m *Manager) {
		m.outputDir = dir
	}
}

// WithTimestamp appends a timestamp to generated file names.
func WithTimestamp() ManagerOption {
	return func(m *Manager) {
		m.timestamp = true
	}
}

// WithFilename sets the output file name. Ignored for FormatAll.
func WithFilename(filename string) ManagerOption {
	return func(m *Manager) {
		m.filename = filename
	}
}

// WithPretty indents JSON and SARIF output.
func WithPretty(pretty bool) ManagerOption {
	return func(m *Manager) {
		m.pretty = pretty
	}
}

// WithDetails makes the text report verbose.
func WithDetails(details bool) ManagerOption {
	return func(m *Manager) {
		m.details = details
	}
}

// WithStdout sets the stream used when no output file is configured.
func WithStdout(w io.Writer) ManagerOption {
	return func(m *Manager) {
		m.stdout = w
	}
}

// NewManager creates a manager. Without WithOutputDir or WithFilename a
// single-format report goes to stdout.
func NewManager(options ...ManagerOption) *Manager {
	m := &Manager{
		format: FormatText,
		pretty: true,
		stdout: os.Stdout,
		now:    time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// CreateWriter returns the writer for format on w.
func (m *Manager) CreateWriter(format Format, w io.Writer) (Writer, error) {
	switch format {
	case FormatJSON:
		return NewJSONWriter(w, WithPrettyJSON(m.pretty)), nil
	case FormatText:
		if m.details {
			return NewTextWriter(w, WithVerbose()), nil
		}
		return NewTextWriter(w), nil
	case FormatSARIF:
		return NewSARIFWriter(w, WithPrettySARIF(m.pretty)), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Generate writes the report and returns the files it created. A
// single-format report with no output destination is written to stdout
// and no file names are returned.
func (m *Manager) Generate(result *Result) ([]string, error) {
	result.Sort()

	switch m.format {
	case FormatAll:
		var files []string
		for _, format := range []Format{FormatJSON, FormatText, FormatSARIF} {
			path, err := m.generateFile(result, format, m.generateFilename(format))
			if err != nil {
				return files, err
			}
			files = append(files, path)
		}
		return files, nil
	case FormatJSON, FormatText, FormatSARIF:
		if m.outputDir == "" && m.filename == "" {
			return nil, m.WriteTo(m.stdout, result, m.format)
		}
		name := m.filename
		if name == "" {
			name = m.generateFilename(m.format)
		}
		path, err := m.generateFile(result, m.format, name)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", m.format)
	}
}

// WriteTo renders result in format to w.
func (m *Manager) WriteTo(w io.Writer, result *Result, format Format) error {
	writer, err := m.CreateWriter(format, w)
	if err != nil {
		return err
	}
	if err := writer.Write(result); err != nil {
		return fmt.Errorf("failed to write %s report: %w", format, err)
	}
	return nil
}

func (m *Manager) generateFile(result *Result, format Format, name string) (string, error) {
	dir := m.outputDir
	if dir == "" {
		dir = "."
	}
	path := name
	if !filepath.IsAbs(name) {
		path = filepath.Join(dir, name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	if err := m.WriteTo(f, result, format); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func (m *Manager) generateFilename(format Format) string {
	base := ToolName + "_report"
	if m.timestamp {
		return fmt.Sprintf("%s_%s.%s", base, m.now().Format("20060102_150405"), format)
	}
	return fmt.Sprintf("%s.%s", base, format)
}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "text", "":
		return FormatText, nil
	case "sarif":
		return FormatSARIF, nil
	case "all":
		return FormatAll, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// SupportedFormats lists the accepted format names.
func SupportedFormats() []Format {
	return []Format{FormatJSON, FormatText, FormatSARIF, FormatAll}
}

// FormatDescription returns a one-line description of format.
func FormatDescription(format Format) string {
	switch format {
	case FormatJSON:
		return "JSON format - Machine-readable output"
	case FormatText:
		return "Text format - Human-readable console output"
	case FormatSARIF:
		return "SARIF format - Static Analysis Results Interchange Format"
	case FormatAll:
		return "All formats - Write JSON, text and SARIF files"
	default:
		return "Unknown format"
	}
}
