package cli

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/franklinacm/synapse/internal/activity"
	"github.com/franklinacm/synapse/internal/rules"
	"github.com/franklinacm/synapse/internal/ruleset"
)

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage rule definitions",
	}
	cmd.AddCommand(newRulesValidateCommand(rootOpts))
	cmd.AddCommand(newRulesImportCommand(rootOpts))
	cmd.AddCommand(newRulesListCommand(rootOpts))
	cmd.AddCommand(newRulesPredicatesCommand(rootOpts))
	cmd.AddCommand(newRulesToggleCommand(rootOpts, "enable", true))
	cmd.AddCommand(newRulesToggleCommand(rootOpts, "disable", false))
	return cmd
}

// RulesValidation is the output of rules validate.
type RulesValidation struct {
	Valid    bool     `json:"valid"`
	Rules    int      `json:"rules"`
	Seasons  int      `json:"seasons"`
	Problems []string `json:"problems,omitempty"`
}

func (v RulesValidation) String() string {
	return fmt.Sprintf("✓ %d rule(s) and %d season(s) valid", v.Rules, v.Seasons)
}

func newRulesValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a rules file without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout())
			file, err := ruleset.Load(args[0])
			if err != nil {
				return rulesFileError(f, err)
			}
			return f.Success(RulesValidation{Valid: true, Rules: len(file.Rules), Seasons: len(file.Seasons)})
		},
	}
}

// rulesFileError reports a file that failed to load or validate.
func rulesFileError(f *OutputFormatter, err error) error {
	var verr *ruleset.ValidationError
	if !errors.As(err, &verr) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "read rules file", err, nil)
	}
	if f.Format != "json" {
		fmt.Fprintln(f.Writer, "✗ Validation failed")
		for _, p := range verr.Problems {
			fmt.Fprintf(f.Writer, "  %s\n", p)
		}
	}
	return f.Fail(ExitFailure, ErrCodeRules,
		fmt.Sprintf("%s: %d problem(s)", verr.File, len(verr.Problems)), nil,
		RulesValidation{Valid: false, Problems: verr.Problems})
}

// ImportResult is the output of rules import.
type ImportResult struct {
	Rules   map[string]int64 `json:"rules"`
	Seasons map[string]int64 `json:"seasons,omitempty"`
}

func (r ImportResult) String() string {
	names := make([]string, 0, len(r.Rules))
	for name := range r.Rules {
		names = append(names, name)
	}
	slices.Sort(names)
	return fmt.Sprintf("Imported %d rule(s) and %d season(s): %s",
		len(r.Rules), len(r.Seasons), strings.Join(names, ", "))
}

func newRulesImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Validate a rules file and write it to the database",
		Long: `Validate a rules file and write it to the database. Rules are matched by
name: an existing rule is updated in place and keeps its firing history, so
dedup and cooldown still apply to it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout())
			file, err := ruleset.Load(args[0])
			if err != nil {
				return rulesFileError(f, err)
			}

			st, err := openStore(f, opts.Config.DBPath)
			if err != nil {
				return err
			}
			defer closeStore(st)

			rep, err := ruleset.Import(cmd.Context(), st, file)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, "import rules", err, nil)
			}
			return f.Success(ImportResult{Rules: rep.Rules, Seasons: rep.Seasons})
		},
	}
}

// RuleSummary is one row of rules list.
type RuleSummary struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	EventType       string `json:"event_type"`
	Enabled         bool   `json:"enabled"`
	AppliesLive     bool   `json:"applies_live"`
	AppliesHistoric bool   `json:"applies_historic"`
	CooldownSeconds int    `json:"cooldown_seconds"`
	Predicates      int    `json:"predicates"`
	Outcomes        int    `json:"outcomes"`
}

// RuleList is the output of rules list.
type RuleList []RuleSummary

func (l RuleList) String() string {
	if len(l) == 0 {
		return "No rules defined"
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEVENT\tENABLED\tPATHS\tCOOLDOWN\tPREDICATES\tOUTCOMES")
	for _, r := range l {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\t%ds\t%d\t%d\n",
			r.ID, r.Name, r.EventType, r.Enabled, paths(r), r.CooldownSeconds, r.Predicates, r.Outcomes)
	}
	_ = tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func paths(r RuleSummary) string {
	var p []string
	if r.AppliesLive {
		p = append(p, string(rules.PathLive))
	}
	if r.AppliesHistoric {
		p = append(p, string(rules.PathHistoric))
	}
	if len(p) == 0 {
		return "-"
	}
	return strings.Join(p, ",")
}

func newRulesListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout())
			st, err := openStore(f, opts.Config.DBPath)
			if err != nil {
				return err
			}
			defer closeStore(st)

			ctx := cmd.Context()
			stored, err := st.Rules(ctx)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, "read rules", err, nil)
			}

			list := make(RuleList, 0, len(stored))
			for _, r := range stored {
				preds, err := st.RulePredicates(ctx, r.ID)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeStore, "read predicates", err, nil)
				}
				outs, err := st.RuleOutcomes(ctx, r.ID)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeStore, "read outcomes", err, nil)
				}
				list = append(list, summarize(r, len(preds), len(outs)))
			}
			return f.Success(list)
		},
	}
}

func summarize(r activity.Rule, predicates, outcomes int) RuleSummary {
	return RuleSummary{
		ID:              r.ID,
		Name:            r.Name,
		EventType:       string(r.EventType),
		Enabled:         r.Enabled,
		AppliesLive:     r.AppliesLive,
		AppliesHistoric: r.AppliesHistoric,
		CooldownSeconds: r.CooldownSeconds,
		Predicates:      predicates,
		Outcomes:        outcomes,
	}
}

// PredicateList is the output of rules predicates.
type PredicateList []string

func (l PredicateList) String() string { return strings.Join(l, "\n") }

func newRulesPredicatesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "predicates",
		Short: "List the predicate types rules may use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newFormatter(opts, cmd.OutOrStdout()).Success(PredicateList(rules.PredicateTypes()))
		},
	}
}

// ToggleResult is the output of rules enable and disable.
type ToggleResult struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

func (r ToggleResult) String() string {
	state := "disabled"
	if r.Enabled {
		state = "enabled"
	}
	return fmt.Sprintf("Rule %s %s", r.Name, state)
}

func newRulesToggleCommand(opts *RootOptions, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <name>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a stored rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout())
			st, err := openStore(f, opts.Config.DBPath)
			if err != nil {
				return err
			}
			defer closeStore(st)

			found, err := st.SetRuleEnabled(cmd.Context(), args[0], enabled)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, "update rule", err, nil)
			}
			if !found {
				return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("rule %q not found", args[0]), nil, nil)
			}
			return f.Success(ToggleResult{Name: args[0], Enabled: enabled})
		},
	}
}
