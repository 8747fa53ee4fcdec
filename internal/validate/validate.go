package validate

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/giswater/assetmanage/pkg/types"
)

// WeightTolerance is the allowed deviation of the weight sum from 1.
const WeightTolerance = 1e-5

// Rule names carried by ValidationError, in checking order.
const (
	RuleResultName    = "result_name"
	RuleDescription   = "description"
	RuleDiameterTable = "diameter_table"
	RuleMaterialTable = "material_table"
	RuleWeightSum     = "weight_sum"
	RuleEngineParam   = "engine_param"
	RuleCriterion     = "criterion"
	RuleEmptyScope    = "empty_scope"
)

// Warning codes.
const (
	WarnDiameterCompliance = "diameter_compliance_range"
	WarnInvalidDiameters   = "invalid_diameters"
	WarnUnknownMaterials   = "unknown_materials"
)

// ValidationError is a hard stop: the named rule must be satisfied before
// any computation may start.
type ValidationError struct {
	Rule   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate: %s: %s", e.Rule, e.Detail)
}

// Warning is a soft validation outcome. The run may proceed, but only after
// the caller explicitly confirms; declining abandons the request without
// error.
type Warning struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Count   int64    `json:"count,omitempty"`
	Values  []string `json:"values,omitempty"`
}

// Outcome is an approved request plus zero or more confirmable warnings.
// The validator never blocks on confirmation itself; the caller inspects
// NeedsConfirmation and re-submits with the request's Confirmed flag set.
type Outcome struct {
	Request  *types.ComputationRequest
	Warnings []Warning
}

// NeedsConfirmation reports whether any warnings require an explicit
// confirm-to-proceed.
func (o *Outcome) NeedsConfirmation() bool { return len(o.Warnings) > 0 }

// DataSource supplies the reads validation needs: the result catalog's name
// check, the configuration snapshot, and the asset cross-check queries.
type DataSource interface {
	ResultNameExists(ctx context.Context, name string) (bool, error)
	Snapshot(ctx context.Context) (*types.Snapshot, error)
	InvalidDiameters(ctx context.Context) (int64, []string, error)
	UnknownMaterials(ctx context.Context) (int64, []string, error)
}

// CriterionSet reports which criterion names the scoring engine knows.
type CriterionSet interface {
	Has(name string) bool
}

// Validator gates computation start. Validate either approves a request —
// stamping it with the configuration snapshot taken at that moment — or
// rejects it with a *ValidationError naming the failed rule.
type Validator struct {
	source   DataSource
	criteria CriterionSet
}

// New returns a Validator reading from source and checking weight names
// against criteria.
func New(source DataSource, criteria CriterionSet) *Validator {
	return &Validator{source: source, criteria: criteria}
}

// Validate runs all rules, in order, against req. Hard failures return a
// *ValidationError (any other error kind is an infrastructure failure).
// On success the returned outcome carries the approved request and the soft
// warnings, if any; the snapshot is copied into the request so concurrent
// configuration edits cannot affect the run.
func (v *Validator) Validate(ctx context.Context, req *types.ComputationRequest) (*Outcome, error) {
	// 1. Result identity.
	if strings.TrimSpace(req.ResultName) == "" {
		return nil, &ValidationError{Rule: RuleResultName, Detail: "result name is required"}
	}
	exists, err := v.source.ResultNameExists(ctx, req.ResultName)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &ValidationError{
			Rule:   RuleResultName,
			Detail: fmt.Sprintf("%q already exists, choose another result name", req.ResultName),
		}
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, &ValidationError{Rule: RuleDescription, Detail: "result description is required"}
	}

	// 2. Scope shape.
	switch req.Scope {
	case types.ScopeGlobal:
	case types.ScopeSelection:
		if len(req.FeatureIDs) == 0 {
			return nil, &ValidationError{Rule: RuleEmptyScope, Detail: "selection scope with no features"}
		}
	default:
		return nil, &ValidationError{Rule: RuleEmptyScope, Detail: fmt.Sprintf("unknown scope %q", req.Scope)}
	}

	snap, err := v.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Request: req}

	// 3. Diameter table completeness. Missing keys or costs are hard stops;
	// out-of-range compliance is only a warning — the diameter/material
	// asymmetry here is deliberate.
	var outOfRange []string
	for _, d := range snap.Diameters {
		key := strconv.FormatFloat(d.DNom, 'f', -1, 64)
		if d.DNom <= 0 {
			return nil, &ValidationError{Rule: RuleDiameterTable, Detail: "entry with undefined diameter"}
		}
		if d.CostConstr == nil {
			return nil, &ValidationError{Rule: RuleDiameterTable, Detail: fmt.Sprintf("diameter %s: construction cost is required", key)}
		}
		if d.CostRepMain == nil {
			return nil, &ValidationError{Rule: RuleDiameterTable, Detail: fmt.Sprintf("diameter %s: repair cost is required", key)}
		}
		if d.Compliance == nil {
			return nil, &ValidationError{Rule: RuleDiameterTable, Detail: fmt.Sprintf("diameter %s: compliance is required", key)}
		}
		if *d.Compliance < 0 || *d.Compliance > 10 {
			outOfRange = append(outOfRange, key)
		}
	}
	if len(outOfRange) > 0 {
		outcome.Warnings = append(outcome.Warnings, Warning{
			Code:    WarnDiameterCompliance,
			Message: "Diameter compliance values outside 0–10. The computation may proceed, but scores for these classes will leave the normal scale.",
			Count:   int64(len(outOfRange)),
			Values:  outOfRange,
		})
	}

	// 4. Material table completeness — out-of-range compliance is a hard
	// stop here, unlike the diameter table.
	for _, m := range snap.Materials {
		if m.Compliance == nil {
			return nil, &ValidationError{Rule: RuleMaterialTable, Detail: fmt.Sprintf("material %s: compliance is required", m.Material)}
		}
		if *m.Compliance < 0 || *m.Compliance > 10 {
			return nil, &ValidationError{Rule: RuleMaterialTable, Detail: fmt.Sprintf("material %s: compliance %g outside 0–10", m.Material, *m.Compliance)}
		}
	}

	// 5. Weight group first, then parameter values.
	weights := snap.Weights()
	if len(weights) == 0 {
		return nil, &ValidationError{Rule: RuleWeightSum, Detail: "no weight parameters configured"}
	}
	if sum := snap.WeightSum(); math.Abs(sum-1) > WeightTolerance {
		return nil, &ValidationError{Rule: RuleWeightSum, Detail: fmt.Sprintf("weights sum to %g, must sum to 1", sum)}
	}
	for _, p := range snap.Engine {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return nil, &ValidationError{Rule: RuleEngineParam, Detail: fmt.Sprintf("parameter %q is not a number", p.Name)}
		}
	}
	for _, w := range weights {
		if !v.criteria.Has(w.Name) {
			return nil, &ValidationError{Rule: RuleCriterion, Detail: fmt.Sprintf("weight %q names no known criterion", w.Name)}
		}
	}

	// 6. Asset cross-checks — soft, confirm-to-proceed.
	count, values, err := v.source.InvalidDiameters(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		outcome.Warnings = append(outcome.Warnings, Warning{
			Code: WarnInvalidDiameters,
			Message: fmt.Sprintf(
				"Pipes with invalid diameters: %d. Invalid diameters: %s. "+
					"A diameter value is invalid if it is zero, negative, NULL, "+
					"or is greater than the maximum diameter in the configuration table. "+
					"These pipes WILL NOT be assigned a priority value.",
				count, strings.Join(values, ", ")),
			Count:  count,
			Values: values,
		})
	}

	count, values, err = v.source.UnknownMaterials(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		outcome.Warnings = append(outcome.Warnings, Warning{
			Code: WarnUnknownMaterials,
			Message: fmt.Sprintf(
				"Pipes with invalid material: %d. Invalid materials: %s. "+
					"A material value is invalid if it is not in the material configuration table. "+
					"These pipes will be assigned as compliant by default, "+
					"which may result in a lower priority value.",
				count, strings.Join(values, ", ")),
			Count:  count,
			Values: values,
		})
	}

	req.Snapshot = *snap
	return outcome, nil
}
