package ruleset

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/franklinacm/synapse/internal/activity"
)

// Saver is the part of the store Import writes through.
type Saver interface {
	SaveRuleDefinition(ctx context.Context, def activity.RuleDefinition) (int64, error)
	UpsertSeason(ctx context.Context, season activity.Season) (int64, error)
}

// ImportReport maps imported names to their store ids.
type ImportReport struct {
	Rules   map[string]int64
	Seasons map[string]int64
}

// Import saves every season and rule in f. Seasons go first so rules that
// name them by id can be written in the same run. A rule that already
// exists is updated in place and keeps its firing history.
//
// Import stops at the first failure; entries saved before it stay saved.
func Import(ctx context.Context, s Saver, f *File) (ImportReport, error) {
	report := ImportReport{
		Rules:   make(map[string]int64, len(f.Rules)),
		Seasons: make(map[string]int64, len(f.Seasons)),
	}

	for _, season := range f.SeasonDefinitions() {
		id, err := s.UpsertSeason(ctx, season)
		if err != nil {
			return report, fmt.Errorf("import season %s: %w", season.Name, err)
		}
		report.Seasons[season.Name] = id
		slog.Debug("season imported", "name", season.Name, "id", id)
	}

	for _, def := range f.Definitions() {
		id, err := s.SaveRuleDefinition(ctx, def)
		if err != nil {
			return report, fmt.Errorf("import rule %s: %w", def.Rule.Name, err)
		}
		report.Rules[def.Rule.Name] = id
		slog.Debug("rule imported", "name", def.Rule.Name, "id", id,
			"predicates", len(def.Predicates), "outcomes", len(def.Outcomes))
	}

	slog.Info("rules imported", "rules", len(report.Rules), "seasons", len(report.Seasons))
	return report, nil
}
