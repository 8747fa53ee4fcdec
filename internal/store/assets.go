package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/giswater/assetmanage/pkg/types"
)

// Assets returns the asset rows matching the given filters, ordered by arc
// id. Zero-valued filters are ignored; set filters intersect.
func (s *Store) Assets(ctx context.Context, f types.Filters) ([]types.Asset, error) {
	q := s.db.WithContext(ctx).Model(&types.Asset{})
	if f.ExplID != "" {
		q = q.Where("expl_id = ?", f.ExplID)
	}
	if f.PresszoneID != "" {
		q = q.Where("presszone_id = ?", f.PresszoneID)
	}
	if f.DNom != nil {
		q = q.Where("dnom = ?", *f.DNom)
	}
	if f.Material != "" {
		q = q.Where("matcat_id = ?", f.Material)
	}

	var out []types.Asset
	if err := q.Order("arc_id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: load assets: %w", err)
	}
	return out, nil
}

// ImportAssets replaces the asset source table atomically. The scoring path
// never mutates assets; this is the host application's sync entry point.
func (s *Store) ImportAssets(ctx context.Context, assets []types.Asset) error {
	return replaceTable(ctx, s.db, assets)
}

// ImportLeaks replaces the recorded breakage table atomically.
func (s *Store) ImportLeaks(ctx context.Context, leaks []types.Leak) error {
	return replaceTable(ctx, s.db, leaks)
}

// InvalidDiameters counts the assets whose diameter is NULL, non-positive or
// above the maximum configured diameter, and returns the distinct offending
// values rendered for display ("NULL" for missing values).
func (s *Store) InvalidDiameters(ctx context.Context) (int64, []string, error) {
	maxDNom := s.db.Model(&types.DiameterClass{}).Select("max(dnom)")
	where := "dnom IS NULL OR dnom <= 0 OR dnom > (?)"

	var count int64
	if err := s.db.WithContext(ctx).Model(&types.Asset{}).
		Where(where, maxDNom).Count(&count).Error; err != nil {
		return 0, nil, fmt.Errorf("store: count invalid diameters: %w", err)
	}
	if count == 0 {
		return 0, nil, nil
	}

	var values []*float64
	if err := s.db.WithContext(ctx).Model(&types.Asset{}).
		Where(where, maxDNom).Distinct("dnom").Order("dnom").
		Pluck("dnom", &values).Error; err != nil {
		return 0, nil, fmt.Errorf("store: list invalid diameters: %w", err)
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == nil {
			out = append(out, "NULL")
			continue
		}
		out = append(out, strconv.FormatFloat(*v, 'f', -1, 64))
	}
	return count, out, nil
}

// UnknownMaterials counts the assets whose material code is absent from the
// material configuration table and returns the distinct offending codes
// ("NULL" for missing values).
func (s *Store) UnknownMaterials(ctx context.Context) (int64, []string, error) {
	known := s.db.Model(&types.MaterialClass{}).Select("material")
	where := "matcat_id IS NULL OR matcat_id NOT IN (?)"

	var count int64
	if err := s.db.WithContext(ctx).Model(&types.Asset{}).
		Where(where, known).Count(&count).Error; err != nil {
		return 0, nil, fmt.Errorf("store: count unknown materials: %w", err)
	}
	if count == 0 {
		return 0, nil, nil
	}

	var values []*string
	if err := s.db.WithContext(ctx).Model(&types.Asset{}).
		Where(where, known).Distinct("matcat_id").Order("matcat_id").
		Pluck("matcat_id", &values).Error; err != nil {
		return 0, nil, fmt.Errorf("store: list unknown materials: %w", err)
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == nil {
			out = append(out, "NULL")
			continue
		}
		out = append(out, *v)
	}
	return count, out, nil
}

// Leaks returns the recorded breakages dated on or after since.
func (s *Store) Leaks(ctx context.Context, since time.Time) ([]types.Leak, error) {
	var out []types.Leak
	if err := s.db.WithContext(ctx).
		Where("leak_date >= ?", since).Order("leak_date").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: load leaks: %w", err)
	}
	return out, nil
}

// SaveBreakageRates replaces the per-arc breakage rate table atomically.
func (s *Store) SaveBreakageRates(ctx context.Context, rates map[string]float64) error {
	rows := make([]breakageRow, 0, len(rates))
	for arc, rate := range rates {
		rows = append(rows, breakageRow{ArcID: arc, Rate: rate})
	}
	return replaceTable(ctx, s.db, rows)
}
