package scoring

import (
	"github.com/giswater/assetmanage/pkg/types"
)

// MaxCompliance is the upper end of the compliance scale. It is also the
// value substituted for materials missing from the configuration table
// ("assume compliant" policy).
const MaxCompliance = 10.0

// Built-in criterion names. Weight-flagged engine parameters are matched to
// criteria by name; the parameter table can therefore re-balance the formula
// without a code change, while a brand-new criterion is one Register call.
const (
	WeightDiameter = "w_diam"
	WeightMaterial = "w_mat"
	WeightCost     = "w_cost"
)

// Criterion computes one compliance value (0–10 scale) for an asset against
// the configuration snapshot. ok=false excludes the asset from the output
// entirely (currently only the diameter criterion does this).
type Criterion func(a types.Asset, snap *types.Snapshot) (value float64, ok bool)

// Registry maps weight parameter names to their criterion functions.
// The zero value is not usable; call NewRegistry.
type Registry struct {
	criteria map[string]Criterion
}

// NewRegistry returns a Registry with the built-in criteria registered.
func NewRegistry() *Registry {
	r := &Registry{criteria: make(map[string]Criterion)}
	r.Register(WeightDiameter, diameterCriterion)
	r.Register(WeightMaterial, materialCriterion)
	r.Register(WeightCost, costCriterion)
	return r
}

// Register adds or replaces a criterion under the given weight name.
func (r *Registry) Register(name string, fn Criterion) {
	r.criteria[name] = fn
}

// Has reports whether a criterion is registered under name. The validator
// uses this to reject weight parameters that name no known criterion.
func (r *Registry) Has(name string) bool {
	_, ok := r.criteria[name]
	return ok
}

// Score computes the composite priority score for one asset:
//
//	score = Σ weight_i * criterion_i
//
// iterating the snapshot's weight-flagged engine parameters (Σ weight_i = 1
// is guaranteed by validation). ok=false means the asset is excluded from
// the output — no score record is emitted — which happens when its diameter
// is missing, non-positive or above the maximum configured class.
func Score(a types.Asset, snap *types.Snapshot, reg *Registry) (types.ScoreRecord, bool) {
	rec := types.ScoreRecord{
		ArcID:    a.ArcID,
		Criteria: make(map[string]float64),
	}

	for _, w := range snap.Weights() {
		fn, known := reg.criteria[w.Name]
		if !known {
			// Validation rejects unknown criteria before a run starts; a
			// request that bypassed validation must not mis-score silently.
			return types.ScoreRecord{}, false
		}
		value, ok := fn(a, snap)
		if !ok {
			return types.ScoreRecord{}, false
		}
		rec.Criteria[w.Name] = value
		rec.Score += w.Value * value

		switch w.Name {
		case WeightDiameter:
			rec.DiamCompliance = value
		case WeightMaterial:
			rec.MatCompliance = value
		}
	}

	return rec, true
}

// diameterCriterion resolves the asset's diameter compliance. Assets whose
// diameter is missing, non-positive or above the maximum configured class
// are excluded (ok=false); diameters between two classes resolve to the
// next class up.
func diameterCriterion(a types.Asset, snap *types.Snapshot) (float64, bool) {
	if a.DNom == nil || *a.DNom <= 0 {
		return 0, false
	}
	if max, ok := snap.MaxDNom(); !ok || *a.DNom > max {
		return 0, false
	}
	class, ok := snap.DiameterClassFor(*a.DNom)
	if !ok || class.Compliance == nil {
		return 0, false
	}
	return *class.Compliance, true
}

// materialCriterion resolves the asset's material compliance. Materials
// absent from the configuration default to MaxCompliance rather than
// excluding the asset — this may understate the asset's priority, which is
// why validation surfaces unknown materials as a confirmable warning.
func materialCriterion(a types.Asset, snap *types.Snapshot) (float64, bool) {
	if a.Material == nil {
		return MaxCompliance, true
	}
	class, ok := snap.MaterialClassFor(*a.Material)
	if !ok || class.Compliance == nil {
		return MaxCompliance, true
	}
	return *class.Compliance, true
}

// costCriterion maps the asset diameter class's repair/maintenance cost onto
// the compliance scale: the most expensive class in the snapshot scores 0,
// a free one scores 10. Assets with no resolvable diameter class are
// excluded, consistent with the diameter criterion.
func costCriterion(a types.Asset, snap *types.Snapshot) (float64, bool) {
	if a.DNom == nil || *a.DNom <= 0 {
		return 0, false
	}
	class, ok := snap.DiameterClassFor(*a.DNom)
	if !ok || class.CostRepMain == nil {
		return 0, false
	}
	maxCost := snap.MaxCostRepMain()
	if maxCost <= 0 {
		return MaxCompliance, true
	}
	return MaxCompliance * (1 - *class.CostRepMain/maxCost), true
}
