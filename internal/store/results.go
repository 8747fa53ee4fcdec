package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/giswater/assetmanage/pkg/types"
)

// Errors returned by the result catalog.
var (
	// ErrNameConflict is returned when a result name is already taken.
	ErrNameConflict = errors.New("store: result name already exists")

	// ErrResultNotFound is returned when a result id is unknown.
	ErrResultNotFound = errors.New("store: result not found")
)

// scoreBatchSize bounds the number of score rows inserted per statement.
const scoreBatchSize = 500

// ResultNameExists reports whether a result with the given name is already
// in the catalog.
func (s *Store) ResultNameExists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&resultRow{}).
		Where("result_name = ?", name).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("store: check result name: %w", err)
	}
	return count > 0, nil
}

// CreateResult persists a result header and all of its score records in one
// transaction. The unique-name check is repeated inside the transaction to
// close the race between validation time and write time; on conflict nothing
// is written and ErrNameConflict is returned.
func (s *Store) CreateResult(ctx context.Context, res *types.Result) error {
	if res.CreatedAt.IsZero() {
		res.CreatedAt = s.now()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&resultRow{}).
			Where("result_name = ?", res.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrNameConflict
		}

		header := resultRow{
			ID:          res.ID,
			Name:        res.Name,
			Description: res.Description,
			CreatedBy:   res.CreatedBy,
			CreatedAt:   res.CreatedAt,
			Scope:       string(res.Scope),
		}
		if err := tx.Create(&header).Error; err != nil {
			return err
		}

		if len(res.Records) == 0 {
			return nil
		}
		rows := make([]scoreRow, 0, len(res.Records))
		for _, rec := range res.Records {
			criteria := make(datatypes.JSONMap, len(rec.Criteria))
			for k, v := range rec.Criteria {
				criteria[k] = v
			}
			rows = append(rows, scoreRow{
				ResultID:       res.ID,
				ArcID:          rec.ArcID,
				Score:          rec.Score,
				DiamCompliance: rec.DiamCompliance,
				MatCompliance:  rec.MatCompliance,
				Criteria:       criteria,
			})
		}
		return tx.CreateInBatches(&rows, scoreBatchSize).Error
	})
	if err != nil {
		if errors.Is(err, ErrNameConflict) {
			return ErrNameConflict
		}
		return fmt.Errorf("store: create result: %w", err)
	}
	return nil
}

// Results returns all result headers (no score records), newest first.
func (s *Store) Results(ctx context.Context) ([]types.Result, error) {
	var rows []resultRow
	err := s.db.WithContext(ctx).Order("created_at desc").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: list results: %w", err)
	}

	out := make([]types.Result, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.Result{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			CreatedBy:   r.CreatedBy,
			CreatedAt:   r.CreatedAt,
			Scope:       types.Scope(r.Scope),
		})
	}
	return out, nil
}

// Result returns one result header together with its score records.
func (s *Store) Result(ctx context.Context, id string) (*types.Result, error) {
	var row resultRow
	err := s.db.WithContext(ctx).Where("result_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load result: %w", err)
	}

	var scores []scoreRow
	if err := s.db.WithContext(ctx).
		Where("result_id = ?", id).Order("arc_id").Find(&scores).Error; err != nil {
		return nil, fmt.Errorf("store: load result scores: %w", err)
	}

	res := &types.Result{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		CreatedBy:   row.CreatedBy,
		CreatedAt:   row.CreatedAt,
		Scope:       types.Scope(row.Scope),
		Records:     make([]types.ScoreRecord, 0, len(scores)),
	}
	for _, sc := range scores {
		criteria := make(map[string]float64, len(sc.Criteria))
		for k, v := range sc.Criteria {
			if f, ok := v.(float64); ok {
				criteria[k] = f
			}
		}
		res.Records = append(res.Records, types.ScoreRecord{
			ArcID:          sc.ArcID,
			Score:          sc.Score,
			DiamCompliance: sc.DiamCompliance,
			MatCompliance:  sc.MatCompliance,
			Criteria:       criteria,
		})
	}
	return res, nil
}

// DeleteResult removes a result, its score records and any per-user
// selectors pointing at it, in one transaction.
func (s *Store) DeleteResult(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("result_id = ?", id).Delete(&resultRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrResultNotFound
		}
		if err := tx.Where("result_id = ?", id).Delete(&scoreRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("result_id = ?", id).Delete(&mainSelectorRow{}).Error; err != nil {
			return err
		}
		return tx.Where("result_id = ?", id).Delete(&compareSelectorRow{}).Error
	})
	if err != nil {
		if errors.Is(err, ErrResultNotFound) {
			return ErrResultNotFound
		}
		return fmt.Errorf("store: delete result: %w", err)
	}
	return nil
}

// SelectMain records userID's "main" result pointer (upsert — one pointer
// per user).
func (s *Store) SelectMain(ctx context.Context, userID, resultID string) error {
	if err := s.ensureResult(ctx, resultID); err != nil {
		return err
	}
	row := mainSelectorRow{UserID: userID, ResultID: resultID}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cur_user"}},
		DoUpdates: clause.AssignmentColumns([]string{"result_id"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store: select main result: %w", err)
	}
	return nil
}

// SelectComparison records userID's "comparison" result pointer (upsert —
// one pointer per user).
func (s *Store) SelectComparison(ctx context.Context, userID, resultID string) error {
	if err := s.ensureResult(ctx, resultID); err != nil {
		return err
	}
	row := compareSelectorRow{UserID: userID, ResultID: resultID}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cur_user"}},
		DoUpdates: clause.AssignmentColumns([]string{"result_id"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store: select comparison result: %w", err)
	}
	return nil
}

// Selections returns userID's current main and comparison result ids.
// Either may be empty when no pointer has been recorded.
func (s *Store) Selections(ctx context.Context, userID string) (main, comparison string, err error) {
	var m mainSelectorRow
	err = s.db.WithContext(ctx).Where("cur_user = ?", userID).First(&m).Error
	switch {
	case err == nil:
		main = m.ResultID
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no main selection yet
	default:
		return "", "", fmt.Errorf("store: load main selection: %w", err)
	}

	var c compareSelectorRow
	err = s.db.WithContext(ctx).Where("cur_user = ?", userID).First(&c).Error
	switch {
	case err == nil:
		comparison = c.ResultID
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no comparison selection yet
	default:
		return "", "", fmt.Errorf("store: load comparison selection: %w", err)
	}

	return main, comparison, nil
}

func (s *Store) ensureResult(ctx context.Context, id string) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&resultRow{}).
		Where("result_id = ?", id).Count(&count).Error
	if err != nil {
		return fmt.Errorf("store: check result: %w", err)
	}
	if count == 0 {
		return ErrResultNotFound
	}
	return nil
}
