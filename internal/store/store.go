package store

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/giswater/assetmanage/internal/config"
	"github.com/giswater/assetmanage/pkg/types"
)

// Store wraps the relational backend holding the configuration tables, the
// asset source table, the result catalog and the per-user result selectors.
//
// All exported methods are safe for concurrent use; the underlying database
// serializes writes itself. The store adds no locking beyond "snapshot at
// request time" (see Snapshot) and the unique-name check inside CreateResult.
type Store struct {
	db  *gorm.DB
	now func() time.Time // injectable for deterministic tests
}

// Open connects to the configured backend and migrates the schema.
func Open(cfg config.StorageConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Backend {
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.Backend, err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// resultRow is the result catalog row (table cat_result).
type resultRow struct {
	ID          string    `gorm:"primaryKey;column:result_id"`
	Name        string    `gorm:"uniqueIndex;column:result_name"`
	Description string    `gorm:"column:descript"`
	CreatedBy   string    `gorm:"column:cur_user"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	Scope       string    `gorm:"column:scope"`
}

func (resultRow) TableName() string { return "cat_result" }

// scoreRow is one per-asset score record (table result_score).
type scoreRow struct {
	ID             uint              `gorm:"primaryKey;autoIncrement"`
	ResultID       string            `gorm:"index;column:result_id"`
	ArcID          string            `gorm:"column:arc_id"`
	Score          float64           `gorm:"column:score"`
	DiamCompliance float64           `gorm:"column:diam_compliance"`
	MatCompliance  float64           `gorm:"column:mat_compliance"`
	Criteria       datatypes.JSONMap `gorm:"column:criteria"`
}

func (scoreRow) TableName() string { return "result_score" }

// mainSelectorRow records one user's "main" result pointer.
type mainSelectorRow struct {
	UserID   string `gorm:"primaryKey;column:cur_user"`
	ResultID string `gorm:"column:result_id"`
}

func (mainSelectorRow) TableName() string { return "selector_result_main" }

// compareSelectorRow records one user's "comparison" result pointer.
type compareSelectorRow struct {
	UserID   string `gorm:"primaryKey;column:cur_user"`
	ResultID string `gorm:"column:result_id"`
}

func (compareSelectorRow) TableName() string { return "selector_result_compare" }

// breakageRow is one per-arc breakage rate index (table arc_breakage_rate),
// written by the assignation job.
type breakageRow struct {
	ArcID string  `gorm:"primaryKey;column:arc_id"`
	Rate  float64 `gorm:"column:rate"`
}

func (breakageRow) TableName() string { return "arc_breakage_rate" }

func (s *Store) migrate() error {
	err := s.db.AutoMigrate(
		&types.DiameterClass{},
		&types.MaterialClass{},
		&types.EngineParam{},
		&types.Asset{},
		&types.Leak{},
		&resultRow{},
		&scoreRow{},
		&mainSelectorRow{},
		&compareSelectorRow{},
		&breakageRow{},
	)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}
