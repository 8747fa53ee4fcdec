package store

import (
	"context"
	"fmt"
	"math"

	"gorm.io/gorm"

	"github.com/giswater/assetmanage/pkg/types"
)

// EntryError reports a malformed configuration entry rejected by a save.
type EntryError struct {
	Dimension string // "diameter" | "material" | "engine"
	Key       string
	Detail    string
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("store: %s config entry %q: %s", e.Dimension, e.Key, e.Detail)
}

// Diameters returns the diameter configuration table ordered by key.
func (s *Store) Diameters(ctx context.Context) ([]types.DiameterClass, error) {
	var out []types.DiameterClass
	if err := s.db.WithContext(ctx).Order("dnom").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: load diameters: %w", err)
	}
	return out, nil
}

// Materials returns the material configuration table ordered by key.
func (s *Store) Materials(ctx context.Context) ([]types.MaterialClass, error) {
	var out []types.MaterialClass
	if err := s.db.WithContext(ctx).Order("material").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: load materials: %w", err)
	}
	return out, nil
}

// EngineParams returns the engine parameter table ordered by key.
func (s *Store) EngineParams(ctx context.Context) ([]types.EngineParam, error) {
	var out []types.EngineParam
	if err := s.db.WithContext(ctx).Order("parameter").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: load engine params: %w", err)
	}
	return out, nil
}

// SaveDiameters replaces the diameter table atomically. Duplicate keys or
// missing required numeric fields fail with *EntryError and nothing is
// written.
func (s *Store) SaveDiameters(ctx context.Context, entries []types.DiameterClass) error {
	seen := make(map[float64]struct{}, len(entries))
	for _, d := range entries {
		key := fmt.Sprintf("%g", d.DNom)
		if d.DNom <= 0 {
			return &EntryError{Dimension: "diameter", Key: key, Detail: "dnom must be positive"}
		}
		if _, dup := seen[d.DNom]; dup {
			return &EntryError{Dimension: "diameter", Key: key, Detail: "duplicate key"}
		}
		seen[d.DNom] = struct{}{}
		if err := checkNumeric("diameter", key, "cost_constr", d.CostConstr); err != nil {
			return err
		}
		if err := checkNumeric("diameter", key, "cost_repmain", d.CostRepMain); err != nil {
			return err
		}
		if err := checkNumeric("diameter", key, "compliance", d.Compliance); err != nil {
			return err
		}
	}
	return replaceTable(ctx, s.db, entries)
}

// SaveMaterials replaces the material table atomically.
func (s *Store) SaveMaterials(ctx context.Context, entries []types.MaterialClass) error {
	seen := make(map[string]struct{}, len(entries))
	for _, m := range entries {
		if m.Material == "" {
			return &EntryError{Dimension: "material", Key: m.Material, Detail: "material code is required"}
		}
		if _, dup := seen[m.Material]; dup {
			return &EntryError{Dimension: "material", Key: m.Material, Detail: "duplicate key"}
		}
		seen[m.Material] = struct{}{}
		if err := checkNumeric("material", m.Material, "compliance", m.Compliance); err != nil {
			return err
		}
	}
	return replaceTable(ctx, s.db, entries)
}

// SaveEngineParams replaces the engine parameter table atomically.
func (s *Store) SaveEngineParams(ctx context.Context, entries []types.EngineParam) error {
	seen := make(map[string]struct{}, len(entries))
	for _, p := range entries {
		if p.Name == "" {
			return &EntryError{Dimension: "engine", Key: p.Name, Detail: "parameter name is required"}
		}
		if _, dup := seen[p.Name]; dup {
			return &EntryError{Dimension: "engine", Key: p.Name, Detail: "duplicate key"}
		}
		seen[p.Name] = struct{}{}
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return &EntryError{Dimension: "engine", Key: p.Name, Detail: "value is not a number"}
		}
	}
	return replaceTable(ctx, s.db, entries)
}

// replaceTable swaps the full contents of one configuration table in a
// single transaction. An empty entries slice empties the table.
func replaceTable[T any](ctx context.Context, db *gorm.DB, entries []T) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var zero T
		if err := tx.Where("1 = 1").Delete(&zero).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		return fmt.Errorf("store: replace config table: %w", err)
	}
	return nil
}

// Snapshot copies the three configuration tables into an immutable snapshot,
// taken at validation time so concurrent edits cannot affect a running
// computation.
func (s *Store) Snapshot(ctx context.Context) (*types.Snapshot, error) {
	diameters, err := s.Diameters(ctx)
	if err != nil {
		return nil, err
	}
	materials, err := s.Materials(ctx)
	if err != nil {
		return nil, err
	}
	engine, err := s.EngineParams(ctx)
	if err != nil {
		return nil, err
	}
	return &types.Snapshot{Diameters: diameters, Materials: materials, Engine: engine}, nil
}

// checkNumeric rejects nil, NaN and infinite numeric fields.
func checkNumeric(dimension, key, field string, v *float64) error {
	if v == nil {
		return &EntryError{Dimension: dimension, Key: key, Detail: field + " is required"}
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return &EntryError{Dimension: dimension, Key: key, Detail: field + " is not a number"}
	}
	return nil
}
