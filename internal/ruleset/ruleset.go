// Package ruleset loads rule definition files and imports them into the
// store.
//
// A file is YAML (or JSON, or CUE) with a top-level "rules" list and an
// optional "seasons" list. It is checked against an embedded CUE schema,
// which also supplies defaults, and then against the predicate types the
// engine knows.
//
//	rules:
//	  - name: long-message
//	    event_type: MESSAGE_CREATE
//	    cooldown_seconds: 60
//	    predicates:
//	      - type: AUTHOR_NOT_BOT
//	      - type: MIN_CONTENT_LENGTH
//	        params: {threshold: 100}
//	    outcomes:
//	      - type: CURRENCY
//	        p_currency: 5
package ruleset

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/franklinacm/synapse/internal/activity"
	"github.com/franklinacm/synapse/internal/rules"
)

//go:embed schema.cue
var schemaSource string

// File is a decoded rule definition file.
type File struct {
	Rules   []RuleSpec   `json:"rules"`
	Seasons []SeasonSpec `json:"seasons,omitempty"`
}

// RuleSpec is one rule as written in a file.
type RuleSpec struct {
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	EventType       string          `json:"event_type"`
	Enabled         bool            `json:"enabled"`
	AppliesLive     bool            `json:"applies_live"`
	AppliesHistoric bool            `json:"applies_historic"`
	CooldownSeconds int             `json:"cooldown_seconds"`
	Predicates      []PredicateSpec `json:"predicates"`
	Outcomes        []OutcomeSpec   `json:"outcomes"`
}

// PredicateSpec is one predicate of a rule.
type PredicateSpec struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// OutcomeSpec is one outcome of a rule.
type OutcomeSpec struct {
	Type      string          `json:"type"`
	PCurrency *int64          `json:"p_currency,omitempty"`
	SCurrency *int64          `json:"s_currency,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// SeasonSpec is a season window. Times are RFC 3339 or "2006-01-02 15:04:05".
type SeasonSpec struct {
	Name     string `json:"name"`
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at,omitempty"`
}

// ValidationError lists every problem found in a file.
type ValidationError struct {
	File     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d problem(s):\n  %s", e.File, len(e.Problems), strings.Join(e.Problems, "\n  "))
}

// Load reads and validates the file at path. The format follows the
// extension: .cue is CUE, anything else is YAML (which includes JSON).
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(path, data)
}

// Parse validates data as a rule file. name is used in error messages and
// to pick the format.
func Parse(name string, data []byte) (*File, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile rule schema: %w", err)
	}

	var doc cue.Value
	if filepath.Ext(name) == ".cue" {
		doc = ctx.CompileBytes(data, cue.Filename(name))
	} else {
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &ValidationError{File: name, Problems: []string{err.Error()}}
		}
		if raw == nil {
			raw = map[string]any{}
		}
		doc = ctx.Encode(raw)
	}
	if err := doc.Err(); err != nil {
		return nil, &ValidationError{File: name, Problems: cueProblems(err)}
	}

	v := schema.LookupPath(cue.ParsePath("#File")).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &ValidationError{File: name, Problems: cueProblems(err)}
	}

	var f File
	if err := v.Decode(&f); err != nil {
		return nil, &ValidationError{File: name, Problems: cueProblems(err)}
	}
	if problems := f.check(); len(problems) > 0 {
		return nil, &ValidationError{File: name, Problems: problems}
	}
	return &f, nil
}

func cueProblems(err error) []string {
	var out []string
	for _, e := range cueerrors.Errors(err) {
		out = append(out, strings.TrimSpace(cueerrors.Details(e, nil)))
	}
	if len(out) == 0 {
		out = append(out, err.Error())
	}
	return out
}

// check applies the rules the schema cannot express.
func (f *File) check() []string {
	var problems []string
	known := rules.PredicateTypes()
	seen := map[string]bool{}

	for i, r := range f.Rules {
		where := fmt.Sprintf("rules[%d] %q", i, r.Name)
		if seen[r.Name] {
			problems = append(problems, fmt.Sprintf("%s: duplicate rule name", where))
		}
		seen[r.Name] = true

		if !r.AppliesLive && !r.AppliesHistoric {
			problems = append(problems, fmt.Sprintf("%s: applies to neither live nor historic events", where))
		}
		for j, p := range r.Predicates {
			if !slices.Contains(known, p.Type) {
				problems = append(problems, fmt.Sprintf("%s: predicates[%d]: unknown predicate type %s", where, j, p.Type))
			}
		}
	}

	seasons := map[string]bool{}
	for i, s := range f.Seasons {
		where := fmt.Sprintf("seasons[%d] %q", i, s.Name)
		if seasons[s.Name] {
			problems = append(problems, fmt.Sprintf("%s: duplicate season name", where))
		}
		seasons[s.Name] = true

		start, err := activity.ParseTime(s.StartsAt)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: starts_at: %v", where, err))
			continue
		}
		if s.EndsAt == "" {
			continue
		}
		end, err := activity.ParseTime(s.EndsAt)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: ends_at: %v", where, err))
			continue
		}
		if !end.After(start) {
			problems = append(problems, fmt.Sprintf("%s: ends_at is not after starts_at", where))
		}
	}
	return problems
}

// Definitions converts the file's rules into store definitions, in file order.
func (f *File) Definitions() []activity.RuleDefinition {
	defs := make([]activity.RuleDefinition, 0, len(f.Rules))
	for _, r := range f.Rules {
		def := activity.RuleDefinition{
			Rule: activity.Rule{
				Name:            r.Name,
				Description:     r.Description,
				EventType:       activity.EventType(r.EventType),
				Enabled:         r.Enabled,
				AppliesLive:     r.AppliesLive,
				AppliesHistoric: r.AppliesHistoric,
				CooldownSeconds: r.CooldownSeconds,
			},
		}
		for i, p := range r.Predicates {
			def.Predicates = append(def.Predicates, activity.RulePredicate{
				Type:      p.Type,
				Params:    p.Params,
				SortOrder: i + 1,
			})
		}
		for _, o := range r.Outcomes {
			def.Outcomes = append(def.Outcomes, activity.RuleOutcome{
				Type:      activity.OutcomeType(o.Type),
				PCurrency: o.PCurrency,
				SCurrency: o.SCurrency,
				Params:    o.Params,
			})
		}
		defs = append(defs, def)
	}
	return defs
}

// SeasonDefinitions converts the file's seasons. Parse has already checked
// the timestamps.
func (f *File) SeasonDefinitions() []activity.Season {
	out := make([]activity.Season, 0, len(f.Seasons))
	for _, s := range f.Seasons {
		start, _ := activity.ParseTime(s.StartsAt)
		season := activity.Season{Name: s.Name, StartsAt: start}
		if s.EndsAt != "" {
			end, _ := activity.ParseTime(s.EndsAt)
			season.EndsAt = &end
		}
		out = append(out, season)
	}
	return out
}
