package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"hybridlint/internal/core"
)

// TextWriter writes the human-readable console report.
type TextWriter struct {
	writer    io.Writer
	verbose   bool
	showStats bool
}

// TextOption configures a TextWriter.
type TextOption func(*TextWriter)

// WithVerbose adds suggestions, strategy and diagnostics to the output.
func WithVerbose() TextOption {
	return func(w *TextWriter) {
		w.verbose = true
	}
}

// WithoutStats drops the summary block.
func WithoutStats() TextOption {
	return func(w *TextWriter) {
		w.showStats = false
	}
}

// NewTextWriter creates a text writer on w.
func NewTextWriter(writer io.Writer, options ...TextOption) *TextWriter {
	w := &TextWriter{writer: writer, showStats: true}
	for _, opt := range options {
		opt(w)
	}
	return w
}

// Write renders result grouped by severity, then by file.
func (w *TextWriter) Write(result *Result) error {
	if len(result.Violations) == 0 {
		w.writeNoViolations(result)
	} else {
		w.writeHeader(result)
		if w.showStats {
			w.writeStatistics(result)
		}
		if err := w.writeViolations(result); err != nil {
			return err
		}
	}
	if w.verbose {
		w.writeDiagnostics(result)
	}
	return nil
}

func (w *TextWriter) writeHeader(result *Result) {
	fmt.Fprintf(w.writer, "\nhybridlint results (engine: %s)\n", result.Engine)
	fmt.Fprintf(w.writer, "%s\n", strings.Repeat("=", 40))
	fmt.Fprintf(w.writer, "Scanned %s files (%s) in %s\n\n",
		humanize.Comma(int64(result.FilesScanned)),
		humanize.Bytes(uint64(result.BytesScanned)),
		result.Duration.Round(time.Millisecond))
}

func (w *TextWriter) writeNoViolations(result *Result) {
	fmt.Fprintf(w.writer, "\nNo violations found.\n\n")
	fmt.Fprintf(w.writer, "  Files scanned: %s (%s)\n",
		humanize.Comma(int64(result.FilesScanned)),
		humanize.Bytes(uint64(result.BytesScanned)))
	fmt.Fprintf(w.writer, "  Duration: %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(w.writer, "  Rules used: %d\n\n", len(result.Rules))
}

func (w *TextWriter) writeStatistics(result *Result) {
	counts := result.CountBySeverity()

	fmt.Fprintf(w.writer, "Summary:\n")
	fmt.Fprintf(w.writer, "--------\n")
	fmt.Fprintf(w.writer, "Total violations: %s\n", humanize.Comma(int64(len(result.Violations))))
	fmt.Fprintf(w.writer, "  Error: %d\n", counts[core.SeverityError])
	fmt.Fprintf(w.writer, "  Warning: %d\n", counts[core.SeverityWarning])
	fmt.Fprintf(w.writer, "  Info: %d\n\n", counts[core.SeverityInfo])

	if w.verbose {
		byRule := make(map[string]int)
		for _, v := range result.Violations {
			byRule[v.RuleID]++
		}
		ids := make([]string, 0, len(byRule))
		for id := range byRule {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Fprintf(w.writer, "By rule:\n")
		for _, id := range ids {
			fmt.Fprintf(w.writer, "  %s: %d\n", id, byRule[id])
		}
		fmt.Fprintf(w.writer, "\n")
	}

	files := make(map[string]struct{})
	for _, v := range result.Violations {
		files[v.File] = struct{}{}
	}
	fmt.Fprintf(w.writer, "Files with issues: %d\n\n", len(files))
}

func (w *TextWriter) writeViolations(result *Result) error {
	groups := make(map[core.Severity][]core.Violation)
	for _, v := range result.Violations {
		groups[v.Severity] = append(groups[v.Severity], v)
	}

	for _, severity := range []core.Severity{core.SeverityError, core.SeverityWarning, core.SeverityInfo} {
		vs := groups[severity]
		if len(vs) == 0 {
			continue
		}

		fmt.Fprintf(w.writer, "%s (%d):\n", strings.ToUpper(string(severity)), len(vs))
		fmt.Fprintf(w.writer, "%s\n", strings.Repeat("=", 50))

		byFile := make(map[string][]core.Violation)
		var files []string
		for _, v := range vs {
			if _, ok := byFile[v.File]; !ok {
				files = append(files, v.File)
			}
			byFile[v.File] = append(byFile[v.File], v)
		}
		sort.Strings(files)

		for _, file := range files {
			fmt.Fprintf(w.writer, "\nFile: %s\n", file)
			fmt.Fprintf(w.writer, "%s\n", strings.Repeat("-", 50))

			tw := tabwriter.NewWriter(w.writer, 0, 8, 2, ' ', 0)
			for _, v := range byFile[file] {
				fmt.Fprintf(tw, "  %d:%d\t%s\t%s\n", v.Line, v.Column, v.RuleID, v.Message)
				if w.verbose {
					fmt.Fprintf(tw, "  \t\tstrategy: %s\n", v.StrategyUsed)
					if v.Suggestion != "" {
						fmt.Fprintf(tw, "  \t\tsuggestion: %s\n", v.Suggestion)
					}
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
		fmt.Fprintf(w.writer, "\n")
	}
	return nil
}

func (w *TextWriter) writeDiagnostics(result *Result) {
	if len(result.Diagnostics) == 0 {
		return
	}
	fmt.Fprintf(w.writer, "Diagnostics (%d):\n", len(result.Diagnostics))
	for _, d := range result.Diagnostics {
		fmt.Fprintf(w.writer, "  - %s\n", d)
	}
	fmt.Fprintf(w.writer, "\n")
}
