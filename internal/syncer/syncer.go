// Package syncer coordinates combination sources and merges their output
// into the shared store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanzolab/colorsync/internal/palette"
	"github.com/sanzolab/colorsync/internal/store"
	"github.com/sanzolab/colorsync/internal/telemetry"
)

// SourceAll selects every registered source.
const SourceAll = "all"

// ErrUnknownSource signals a selector that names no registered source.
var ErrUnknownSource = errors.New("unknown sync source")

// Source is a combination producer: the repository client or the scrape
// pipeline.
type Source interface {
	Name() string
	Fetch(ctx context.Context, force bool) ([]palette.Combination, error)
}

// SourceReport is the per-source outcome inside a sync report.
type SourceReport struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// Report is the combined outcome of one sync run. Success is true when at
// least one selected source produced data; a failing source never aborts
// the run.
type Report struct {
	Success  bool                    `json:"success"`
	Total    int                     `json:"total"`
	Sources  map[string]SourceReport `json:"sources"`
	SyncedAt time.Time               `json:"syncedAt"`
}

// Orchestrator fans a sync request out to the selected sources,
// deduplicates the combined combinations by (source, id) and upserts them.
type Orchestrator struct {
	sources []Source
	store   store.Provider
	clock   palette.Clock
	logger  *zap.Logger
}

// New wires an Orchestrator over the given sources.
func New(provider store.Provider, clock palette.Clock, logger *zap.Logger, sources ...Source) *Orchestrator {
	return &Orchestrator{
		sources: sources,
		store:   provider,
		clock:   clock,
		logger:  logger,
	}
}

// ValidSource reports whether selector names a registered source or "all".
func (o *Orchestrator) ValidSource(selector string) bool {
	if selector == SourceAll {
		return true
	}
	for _, src := range o.sources {
		if src.Name() == selector {
			return true
		}
	}
	return false
}

// Sync fetches from the selected source(s) and merges the results. Partial
// failure of one source still stores the successfully synced subset.
func (o *Orchestrator) Sync(ctx context.Context, selector string, force bool) (Report, error) {
	if selector == "" {
		selector = SourceAll
	}
	if !o.ValidSource(selector) {
		return Report{}, fmt.Errorf("%w %q", ErrUnknownSource, selector)
	}

	report := Report{
		Sources:  make(map[string]SourceReport),
		SyncedAt: o.clock.Now(),
	}

	seen := make(map[string]struct{})
	var merged []palette.Combination
	for _, src := range o.sources {
		if selector != SourceAll && src.Name() != selector {
			continue
		}
		combos, err := src.Fetch(ctx, force)
		if err != nil {
			o.logger.Warn("sync source failed",
				zap.String("source", src.Name()),
				zap.Error(err),
			)
			telemetry.ObserveSyncRun(src.Name(), false)
			report.Sources[src.Name()] = SourceReport{Error: err.Error()}
			continue
		}
		count := 0
		for _, combo := range combos {
			key := string(combo.Source) + ":" + combo.ID
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, combo)
			count++
		}
		telemetry.ObserveSyncRun(src.Name(), true)
		report.Sources[src.Name()] = SourceReport{Success: true, Count: count}
		report.Success = true
	}

	if len(merged) > 0 {
		if err := o.store.UpsertCombinations(ctx, merged); err != nil {
			return Report{}, fmt.Errorf("store synced combinations: %w", err)
		}
	}
	report.Total = len(merged)

	if stored, err := o.store.CombinationCount(ctx); err == nil {
		telemetry.SetCombinationsStored(stored)
	}
	o.logger.Info("sync finished",
		zap.String("source", selector),
		zap.Bool("force", force),
		zap.Int("total", report.Total),
		zap.Bool("success", report.Success),
	)
	return report, nil
}
