package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"hybridlint/internal/core"
)

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://json.schemastore.org/sarif-2.1.0.json"

	fingerprintKey = "hybridlint/v1"
)

// SARIFWriter writes SARIF 2.1.0 logs.
type SARIFWriter struct {
	writer io.Writer
	pretty bool
}

// SARIFOption configures a SARIFWriter.
type SARIFOption func(*SARIFWriter)

// WithPrettySARIF toggles indentation.
func WithPrettySARIF(pretty bool) SARIFOption {
	return func(w *SARIFWriter) {
		w.pretty = pretty
	}
}

// NewSARIFWriter creates a SARIF writer on w.
func NewSARIFWriter(writer io.Writer, options ...SARIFOption) *SARIFWriter {
	w := &SARIFWriter{writer: writer}
	for _, opt := range options {
		opt(w)
	}
	return w
}

// Write renders result as a SARIF log with a single run.
func (w *SARIFWriter) Write(result *Result) error {
	enc := json.NewEncoder(w.writer)
	if w.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(w.generateSARIFReport(result)); err != nil {
		return fmt.Errorf("failed to marshal SARIF report: %w", err)
	}
	return nil
}

func (w *SARIFWriter) generateSARIFReport(result *Result) *SARIF {
	rules, index := sarifRules(result)

	run := SARIFRun{
		Tool: Tool{
			Driver: Driver{
				Name:    ToolName,
				Version: ToolVersion,
				Rules:   rules,
			},
		},
		Results: make([]SARIFResult, 0, len(result.Violations)),
	}
	if result.RunID != "" {
		run.AutomationDetails = &AutomationDetails{ID: ToolName + "/" + result.RunID}
	}

	for _, v := range result.Violations {
		run.Results = append(run.Results, SARIFResult{
			RuleID:    v.RuleID,
			RuleIndex: index[v.RuleID],
			Level:     sarifLevel(v.Severity),
			Message:   Message{Text: v.Message},
			Locations: []Location{{
				PhysicalLocation: PhysicalLocation{
					ArtifactLocation: ArtifactLocation{URI: v.File},
					Region: Region{
						StartLine:   v.Line,
						StartColumn: v.Column,
					},
				},
			}},
			PartialFingerprints: map[string]string{fingerprintKey: Fingerprint(v)},
			Properties: map[string]any{
				"category":     v.Category,
				"strategyUsed": v.StrategyUsed,
			},
		})
	}

	return &SARIF{
		Version: sarifVersion,
		Schema:  sarifSchema,
		Runs:    []SARIFRun{run},
	}
}

// sarifRules merges the rules of the run with any rule that only appears
// in a violation, sorted by ID, and returns each rule's index.
func sarifRules(result *Result) ([]Rule, map[string]int) {
	byID := make(map[string]RuleInfo, len(result.Rules))
	for _, r := range result.Rules {
		byID[r.ID] = r
	}
	for _, v := range result.Violations {
		if _, ok := byID[v.RuleID]; !ok {
			byID[v.RuleID] = RuleInfo{ID: v.RuleID, Category: v.Category, Severity: v.Severity, Message: v.Message}
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rules := make([]Rule, 0, len(ids))
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		r := byID[id]
		name := r.Name
		if name == "" {
			name = id
		}
		rule := Rule{
			ID:               id,
			Name:             name,
			ShortDescription: Description{Text: name},
			DefaultConfiguration: &RuleConfiguration{
				Level: sarifLevel(r.Severity),
			},
			Properties: map[string]any{"category": r.Category},
		}
		if r.Message != "" {
			rule.FullDescription = &Description{Text: r.Message}
		}
		if r.Suggestion != "" {
			rule.Help = &Description{Text: r.Suggestion}
		}
		rules = append(rules, rule)
		index[id] = i
	}
	return rules, index
}

func sarifLevel(s core.Severity) string {
	switch s {
	case core.SeverityError:
		return "error"
	case core.SeverityInfo:
		return "note"
	default:
		return "warning"
	}
}

// SARIF is the top-level SARIF log.
type SARIF struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []SARIFRun `json:"runs"`
}

type SARIFRun struct {
	Tool              Tool               `json:"tool"`
	AutomationDetails *AutomationDetails `json:"automationDetails,omitempty"`
	Results           []SARIFResult      `json:"results"`
}

type AutomationDetails struct {
	ID string `json:"id"`
}

type Tool struct {
	Driver Driver `json:"driver"`
}

type Driver struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	InformationURI string `json:"informationUri,omitempty"`
	Rules          []Rule `json:"rules,omitempty"`
}

type Rule struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	ShortDescription     Description        `json:"shortDescription"`
	FullDescription      *Description       `json:"fullDescription,omitempty"`
	Help                 *Description       `json:"help,omitempty"`
	DefaultConfiguration *RuleConfiguration `json:"defaultConfiguration,omitempty"`
	Properties           map[string]any     `json:"properties,omitempty"`
}

type RuleConfiguration struct {
	Level string `json:"level"`
}

type Description struct {
	Text string `json:"text"`
}

type SARIFResult struct {
	RuleID              string            `json:"ruleId"`
	RuleIndex           int               `json:"ruleIndex"`
	Level               string            `json:"level"`
	Message             Message           `json:"message"`
	Locations           []Location        `json:"locations,omitempty"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
	Properties          map[string]any    `json:"properties,omitempty"`
}

type Message struct {
	Text string `json:"text"`
}

type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           Region           `json:"region"`
}

type ArtifactLocation struct {
	URI string `json:"uri"`
}

type Region struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
}
