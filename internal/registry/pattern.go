package registry

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"hybridlint/internal/core"
)

type patternPack struct {
	Patterns []patternEntry `yaml:"patterns"`
}

type patternEntry struct {
	Regex      string `yaml:"regex"`
	Unless     string `yaml:"unless"`     // optional, matched against the hit
	Message    string `yaml:"message"`    // falls back to the rule message
	Suggestion string `yaml:"suggestion"` // optional
}

type compiledPattern struct {
	entry    patternEntry
	reMatch  *regexp.Regexp
	reUnless *regexp.Regexp
}

// PatternStrategy is a regex-based fallback strategy loaded from
// pattern.yaml.
type PatternStrategy struct {
	core.BaseStrategy
	patterns []compiledPattern
}

// ParsePatterns compiles a pattern.yaml document.
func ParsePatterns(name string, data []byte) (*PatternStrategy, error) {
	var pack patternPack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(pack.Patterns) == 0 {
		return nil, errors.New("no patterns")
	}

	s := &PatternStrategy{BaseStrategy: core.NewBaseStrategy(name)}
	for i, p := range pack.Patterns {
		if p.Regex == "" {
			return nil, fmt.Errorf("pattern %d: missing regex", i)
		}
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("pattern %d regex: %w", i, err)
		}
		cp := compiledPattern{entry: p, reMatch: re}
		if p.Unless != "" {
			un, err := regexp.Compile(p.Unless)
			if err != nil {
				return nil, fmt.Errorf("pattern %d unless: %w", i, err)
			}
			cp.reUnless = un
		}
		s.patterns = append(s.patterns, cp)
	}
	return s, nil
}

// Analyze scans the raw text of each file. Semantic data is not required;
// the parsed unit's source is reused when the index has it.
func (s *PatternStrategy) Analyze(actx *core.AnalysisContext, files []string, _ core.Language, _ core.Options) ([]core.Violation, error) {
	var out []core.Violation
	for _, file := range files {
		src, err := actx.ReadSource(file)
		if err != nil {
			return nil, err
		}
		lines := newLineIndex(src)
		for _, p := range s.patterns {
			for _, loc := range p.reMatch.FindAllIndex(src, -1) {
				hit := src[loc[0]:loc[1]]
				if p.reUnless != nil && p.reUnless.Match(hit) {
					continue
				}
				line, col := lines.position(loc[0])
				v := s.CreateViolation(file, line, col, p.entry.Message)
				v.Suggestion = p.entry.Suggestion
				out = append(out, v)
			}
		}
	}
	return out, nil
}

// lineIndex maps byte offsets to 1-based line and column.
type lineIndex struct {
	starts []int
}

func newLineIndex(src []byte) lineIndex {
	starts := []int{0}
	for i := 0; ; {
		j := bytes.IndexByte(src[i:], '\n')
		if j < 0 {
			break
		}
		i += j + 1
		starts = append(starts, i)
	}
	return lineIndex{starts: starts}
}

func (li lineIndex) position(offset int) (line, column int) {
	lo, hi := 0, len(li.starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if li.starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1, offset - li.starts[lo] + 1
}

// String describes the strategy for diagnostics.
func (s *PatternStrategy) String() string {
	res := make([]string, 0, len(s.patterns))
	for _, p := range s.patterns {
		res = append(res, p.entry.Regex)
	}
	return "pattern(" + strings.Join(res, " | ") + ")"
}
