package api

import (
	"github.com/giswater/assetmanage/internal/validate"
	"github.com/giswater/assetmanage/pkg/types"
)

// ComputationBody is the payload for POST /api/v1/computations.
type ComputationBody struct {
	Scope       string        `json:"scope"`
	FeatureIDs  []string      `json:"feature_ids,omitempty"`
	Filters     types.Filters `json:"filters"`
	ResultName  string        `json:"result_name"`
	Description string        `json:"description"`
	CreatedBy   string        `json:"created_by"`

	// Confirm acknowledges previously returned soft warnings; without it a
	// request with warnings is not scheduled.
	Confirm bool `json:"confirm"`
}

// toRequest materializes the body into a domain request.
func (b ComputationBody) toRequest() *types.ComputationRequest {
	return &types.ComputationRequest{
		Scope:       types.Scope(b.Scope),
		FeatureIDs:  b.FeatureIDs,
		Filters:     b.Filters,
		ResultName:  b.ResultName,
		Description: b.Description,
		CreatedBy:   b.CreatedBy,
		Confirmed:   b.Confirm,
	}
}

// AssignationBody is the payload for POST /api/v1/assignations.
type AssignationBody struct {
	Method  string  `json:"method"`
	BufferM float64 `json:"buffer_m"`
	Years   int     `json:"years"`
}

// ScheduledResponse acknowledges an accepted background run.
type ScheduledResponse struct {
	TaskID   string             `json:"task_id"`
	Warnings []validate.Warning `json:"warnings,omitempty"`
}

// ConfirmRequiredResponse asks the caller to confirm soft warnings and
// re-submit.
type ConfirmRequiredResponse struct {
	Error    string             `json:"error"`
	Warnings []validate.Warning `json:"warnings"`
}

// TaskResponse is the payload for GET /api/v1/computations/{id}.
type TaskResponse struct {
	TaskID    string `json:"task_id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

// SelectionBody is the payload for PUT /api/v1/selection.
type SelectionBody struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"` // "main" | "compare"
	ResultID string `json:"result_id"`
}

// SelectionResponse is the payload for GET /api/v1/selection.
type SelectionResponse struct {
	Main       string `json:"main,omitempty"`
	Comparison string `json:"comparison,omitempty"`
}

// ErrorResponse is the common error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Rule  string `json:"rule,omitempty"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"`
	ActiveTask string `json:"active_task,omitempty"`
	Results    int    `json:"results"`
}
