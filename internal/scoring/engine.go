package scoring

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/giswater/assetmanage/internal/config"
	"github.com/giswater/assetmanage/pkg/types"
)

// ErrEmptyScope is returned when a SELECTION-scoped request carries no
// feature ids. Checked before any asset is loaded.
var ErrEmptyScope = errors.New("scoring: selection scope with no features")

// AssetSource supplies the asset rows a computation considers.
type AssetSource interface {
	Assets(ctx context.Context, f types.Filters) ([]types.Asset, error)
}

// Engine scores all assets in a request's scope in batches, checking for
// cancellation once per batch and reporting progress at a bounded cadence.
//
// The engine itself persists nothing; the task layer decides what to do with
// the returned records, so a cancelled run can be discarded wholesale.
type Engine struct {
	source   AssetSource
	registry *Registry
	now      func() time.Time // injectable for deterministic tests

	mu  sync.RWMutex
	cfg config.EngineConfig
}

// NewEngine returns an Engine reading assets from source.
func NewEngine(source AssetSource, registry *Registry, cfg config.EngineConfig) *Engine {
	return &Engine{source: source, registry: registry, cfg: cfg, now: time.Now}
}

// Registry returns the engine's criterion registry.
func (e *Engine) Registry() *Registry { return e.registry }

// UpdateConfig replaces the engine's batching and progress cadence settings.
// Applied by the config hot-reload; a run already in flight keeps the
// settings it started with.
func (e *Engine) UpdateConfig(cfg config.EngineConfig) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

func (e *Engine) config() config.EngineConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Run scores every asset in the request's scope and returns the emitted
// score records. report, if non-nil, receives processed/total counts at
// batch boundaries, rate-limited so large asset sets do not saturate the
// channel. Cancelling ctx stops the run at the next batch boundary and
// returns ctx's error.
func (e *Engine) Run(ctx context.Context, req *types.ComputationRequest, report func(done, total int)) ([]types.ScoreRecord, error) {
	if req.Scope == types.ScopeSelection && len(req.FeatureIDs) == 0 {
		return nil, ErrEmptyScope
	}
	cfg := e.config()

	assets, err := e.source.Assets(ctx, req.Filters)
	if err != nil {
		return nil, err
	}
	if req.Scope == types.ScopeSelection {
		selected := make(map[string]struct{}, len(req.FeatureIDs))
		for _, id := range req.FeatureIDs {
			selected[id] = struct{}{}
		}
		kept := assets[:0]
		for _, a := range assets {
			if _, ok := selected[a.ArcID]; ok {
				kept = append(kept, a)
			}
		}
		assets = kept
	}

	total := len(assets)
	records := make([]types.ScoreRecord, 0, total)
	excluded := 0
	notify := e.notifier(cfg, report, total)

	for start := 0; start < total; start += cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + cfg.BatchSize
		if end > total {
			end = total
		}
		for _, a := range assets[start:end] {
			rec, ok := Score(a, &req.Snapshot, e.registry)
			if !ok {
				excluded++
				continue
			}
			records = append(records, rec)
		}
		notify(end)
	}
	notify(total)

	slog.Info("scoring: run finished",
		"scope", req.Scope,
		"assets", total,
		"scored", len(records),
		"excluded", excluded,
	)
	return records, nil
}

// notifier wraps report with the engine's cadence limits: a notification is
// delivered when the fraction advanced by at least ProgressMinDelta, when
// ProgressMinInterval elapsed since the last one, or when the run completed.
func (e *Engine) notifier(cfg config.EngineConfig, report func(done, total int), total int) func(done int) {
	if report == nil {
		return func(int) {}
	}
	if total == 0 {
		return func(done int) { report(done, total) }
	}

	lastFraction := -1.0
	var lastTime time.Time
	return func(done int) {
		fraction := float64(done) / float64(total)
		now := e.now()
		if done < total &&
			fraction-lastFraction < cfg.ProgressMinDelta &&
			now.Sub(lastTime) < cfg.ProgressMinInterval {
			return
		}
		if fraction == lastFraction {
			return
		}
		lastFraction = fraction
		lastTime = now
		report(done, total)
	}
}
