package types

import (
	"sort"
	"time"
)

// Scope selects which assets a computation covers.
type Scope string

const (
	// ScopeGlobal covers every asset in the source table.
	ScopeGlobal Scope = "GLOBAL"

	// ScopeSelection covers only the caller-supplied feature set.
	ScopeSelection Scope = "SELECTION"
)

// DiameterClass is one row of the diameter configuration table, keyed by
// nominal diameter. Cost and compliance fields are pointers so that an
// unfilled table cell is distinguishable from zero.
type DiameterClass struct {
	DNom        float64  `gorm:"primaryKey;column:dnom" json:"dnom" yaml:"dnom"`
	CostConstr  *float64 `gorm:"column:cost_constr" json:"cost_constr" yaml:"cost_constr"`
	CostRepMain *float64 `gorm:"column:cost_repmain" json:"cost_repmain" yaml:"cost_repmain"`
	Compliance  *float64 `gorm:"column:compliance" json:"compliance" yaml:"compliance"`
}

// TableName implements gorm's table naming for DiameterClass.
func (DiameterClass) TableName() string { return "config_diameter" }

// MaterialClass is one row of the material configuration table, keyed by
// material code. The key set defines the valid materials for scoring.
type MaterialClass struct {
	Material    string   `gorm:"primaryKey;column:material" json:"material" yaml:"material"`
	Compliance  *float64 `gorm:"column:compliance" json:"compliance" yaml:"compliance"`
	CostConstr  *float64 `gorm:"column:cost_constr" json:"cost_constr" yaml:"cost_constr"`
	CostRepMain *float64 `gorm:"column:cost_repmain" json:"cost_repmain" yaml:"cost_repmain"`
	Description string   `gorm:"column:descript" json:"description" yaml:"description"`
}

// TableName implements gorm's table naming for MaterialClass.
func (MaterialClass) TableName() string { return "config_material" }

// EngineParam is one named numeric input to the scoring formula. Parameters
// flagged IsWeight form the weight-normalization group, whose values must
// sum to 1 before a computation may start. The scorer iterates the parameter
// set generically, so adding a parameter is a data change, not a code change.
type EngineParam struct {
	Name     string  `gorm:"primaryKey;column:parameter" json:"name" yaml:"name"`
	Value    float64 `gorm:"column:value" json:"value" yaml:"value"`
	Label    string  `gorm:"column:label" json:"label" yaml:"label"`
	Group    string  `gorm:"column:grouping" json:"group" yaml:"group"`
	IsWeight bool    `gorm:"column:is_weight" json:"is_weight" yaml:"is_weight"`
}

// TableName implements gorm's table naming for EngineParam.
func (EngineParam) TableName() string { return "config_engine" }

// Asset is one network element (pipe) of the asset source table.
// The service only reads assets; the table is owned by the host application.
type Asset struct {
	ArcID       string   `gorm:"primaryKey;column:arc_id" json:"arc_id"`
	DNom        *float64 `gorm:"column:dnom" json:"dnom"`
	Material    *string  `gorm:"column:matcat_id" json:"material"`
	ExplID      string   `gorm:"column:expl_id" json:"expl_id"`
	PresszoneID string   `gorm:"column:presszone_id" json:"presszone_id"`
}

// TableName implements gorm's table naming for Asset.
func (Asset) TableName() string { return "arc_asset" }

// Leak is one recorded pipe breakage, pre-matched by the GIS layer to its
// nearest arc. Used by the assignation job.
type Leak struct {
	LeakID    string    `gorm:"primaryKey;column:leak_id" json:"leak_id"`
	ArcID     string    `gorm:"column:arc_id" json:"arc_id"`
	DistanceM float64   `gorm:"column:distance_m" json:"distance_m"`
	Date      time.Time `gorm:"column:leak_date" json:"date"`
}

// TableName implements gorm's table naming for Leak.
func (Leak) TableName() string { return "leaks" }

// Filters narrows the asset set a computation considers. Zero values mean
// "no restriction"; all set filters intersect.
type Filters struct {
	ExplID      string   `json:"expl_id,omitempty"`
	PresszoneID string   `json:"presszone_id,omitempty"`
	DNom        *float64 `json:"dnom,omitempty"`
	Material    string   `json:"material,omitempty"`
}

// Snapshot is an immutable copy of the three configuration tables taken when
// a request is validated, so concurrent edits cannot affect an in-flight
// computation.
type Snapshot struct {
	Diameters []DiameterClass `json:"diameters"`
	Materials []MaterialClass `json:"materials"`
	Engine    []EngineParam   `json:"engine"`
}

// MaxDNom returns the largest configured nominal diameter. ok is false when
// the diameter table is empty.
func (s *Snapshot) MaxDNom() (max float64, ok bool) {
	for _, d := range s.Diameters {
		if !ok || d.DNom > max {
			max, ok = d.DNom, true
		}
	}
	return max, ok
}

// DiameterClassFor resolves an asset diameter to its configuration row: the
// smallest configured class whose nominal diameter is >= dnom. ok is false
// when dnom exceeds every configured class.
func (s *Snapshot) DiameterClassFor(dnom float64) (DiameterClass, bool) {
	var best DiameterClass
	found := false
	for _, d := range s.Diameters {
		if d.DNom < dnom {
			continue
		}
		if !found || d.DNom < best.DNom {
			best, found = d, true
		}
	}
	return best, found
}

// MaterialClassFor looks up a material code in the snapshot.
func (s *Snapshot) MaterialClassFor(code string) (MaterialClass, bool) {
	for _, m := range s.Materials {
		if m.Material == code {
			return m, true
		}
	}
	return MaterialClass{}, false
}

// Weights returns the weight-flagged engine parameters sorted by name, so
// iteration order (and therefore floating-point summation order) is stable.
func (s *Snapshot) Weights() []EngineParam {
	out := make([]EngineParam, 0, len(s.Engine))
	for _, p := range s.Engine {
		if p.IsWeight {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// WeightSum returns the sum of all weight-flagged parameter values.
func (s *Snapshot) WeightSum() float64 {
	var sum float64
	for _, p := range s.Weights() {
		sum += p.Value
	}
	return sum
}

// MaxCostRepMain returns the largest repair/maintenance cost across the
// diameter table, used to normalize the cost criterion.
func (s *Snapshot) MaxCostRepMain() float64 {
	var max float64
	for _, d := range s.Diameters {
		if d.CostRepMain != nil && *d.CostRepMain > max {
			max = *d.CostRepMain
		}
	}
	return max
}

// ComputationRequest is one scoring run as submitted by the caller.
// Snapshot is stamped by the validator; once a request is approved it is
// immutable and consumed exactly once by the engine.
type ComputationRequest struct {
	Scope       Scope    `json:"scope"`
	FeatureIDs  []string `json:"feature_ids,omitempty"`
	Filters     Filters  `json:"filters"`
	ResultName  string   `json:"result_name"`
	Description string   `json:"description"`
	CreatedBy   string   `json:"created_by"`
	Confirmed   bool     `json:"confirmed"`
	Snapshot    Snapshot `json:"-"`
}

// ScoreRecord is the per-asset output of one scoring run: the composite
// priority score plus the per-criterion compliance values that produced it.
type ScoreRecord struct {
	ArcID          string             `json:"arc_id"`
	Score          float64            `json:"score"`
	DiamCompliance float64            `json:"diam_compliance"`
	MatCompliance  float64            `json:"mat_compliance"`
	Criteria       map[string]float64 `json:"criteria"`
}

// Result is a named, persisted output of one scoring run. Results are never
// mutated after creation except by deletion; "main" and "comparison" are
// per-user pointers in the store, not attributes of the result.
type Result struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	CreatedBy   string        `json:"created_by"`
	CreatedAt   time.Time     `json:"created_at"`
	Scope       Scope         `json:"scope"`
	Records     []ScoreRecord `json:"records,omitempty"`
}
