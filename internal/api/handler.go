package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/giswater/assetmanage/internal/assign"
	"github.com/giswater/assetmanage/internal/scoring"
	"github.com/giswater/assetmanage/internal/store"
	"github.com/giswater/assetmanage/internal/task"
	"github.com/giswater/assetmanage/internal/validate"
	"github.com/giswater/assetmanage/pkg/types"
)

// Handler is the HTTP handler for all /api/v1/* endpoints. It wires the
// configuration tables, the validator, the scoring engine and the task
// runner together; progress streaming lives on the WebSocket hub, not here.
type Handler struct {
	store     *store.Store
	validator *validate.Validator
	engine    *scoring.Engine
	runner    *task.Runner
	mux       *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(st *store.Store, v *validate.Validator, engine *scoring.Engine, runner *task.Runner) http.Handler {
	h := &Handler{store: st, validator: v, engine: engine, runner: runner, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/config/", h.configTable) // subtree — extracts {dimension}
	h.mux.HandleFunc("/api/v1/computations", h.submitComputation)
	h.mux.HandleFunc("/api/v1/computations/", h.computation) // subtree — {id} and {id}/cancel
	h.mux.HandleFunc("/api/v1/assignations", h.submitAssignation)
	h.mux.HandleFunc("/api/v1/results", h.listResults)
	h.mux.HandleFunc("/api/v1/results/", h.result) // subtree — extracts {id}
	h.mux.HandleFunc("/api/v1/selection", h.selection)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — store reachability and the active task.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	results, err := h.store.Results(r.Context())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := HealthResponse{Status: "ok", Results: len(results)}
	if t, ok := h.runner.Active(); ok {
		resp.ActiveTask = t.ID
	}
	jsonResp(w, http.StatusOK, resp)
}

// configTable serves GET and PUT /api/v1/config/{diameter|material|engine}.
// PUT replaces the whole table atomically.
func (h *Handler) configTable(w http.ResponseWriter, r *http.Request) {
	dimension := strings.TrimPrefix(r.URL.Path, "/api/v1/config/")
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		switch dimension {
		case "diameter":
			entries, err := h.store.Diameters(ctx)
			h.respondTable(w, entries, err)
		case "material":
			entries, err := h.store.Materials(ctx)
			h.respondTable(w, entries, err)
		case "engine":
			entries, err := h.store.EngineParams(ctx)
			h.respondTable(w, entries, err)
		default:
			jsonErr(w, http.StatusNotFound, "unknown config dimension")
		}

	case http.MethodPut:
		var err error
		switch dimension {
		case "diameter":
			var entries []types.DiameterClass
			if !decode(w, r, &entries) {
				return
			}
			err = h.store.SaveDiameters(ctx, entries)
		case "material":
			var entries []types.MaterialClass
			if !decode(w, r, &entries) {
				return
			}
			err = h.store.SaveMaterials(ctx, entries)
		case "engine":
			var entries []types.EngineParam
			if !decode(w, r, &entries) {
				return
			}
			err = h.store.SaveEngineParams(ctx, entries)
		default:
			jsonErr(w, http.StatusNotFound, "unknown config dimension")
			return
		}

		var entryErr *store.EntryError
		switch {
		case errors.As(err, &entryErr):
			jsonErr(w, http.StatusUnprocessableEntity, entryErr.Error())
		case err != nil:
			jsonErr(w, http.StatusInternalServerError, err.Error())
		default:
			w.WriteHeader(http.StatusNoContent)
		}

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) respondTable(w http.ResponseWriter, entries any, err error) {
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, entries)
}

// submitComputation serves POST /api/v1/computations.
//
// Responses: 422 with the failed rule on a hard validation stop, 409 with
// warnings when confirmation is required (re-submit with confirm=true),
// 409 when another task is already running, 202 with the task id once
// scheduled.
func (h *Handler) submitComputation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body ComputationBody
	if !decode(w, r, &body) {
		return
	}
	req := body.toRequest()

	outcome, err := h.validator.Validate(r.Context(), req)
	if err != nil {
		var verr *validate.ValidationError
		if errors.As(err, &verr) {
			jsonResp(w, http.StatusUnprocessableEntity, ErrorResponse{Error: verr.Detail, Rule: verr.Rule})
			return
		}
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	if outcome.NeedsConfirmation() && !req.Confirmed {
		jsonResp(w, http.StatusConflict, ConfirmRequiredResponse{
			Error:    "confirmation required",
			Warnings: outcome.Warnings,
		})
		return
	}

	job := scoring.NewPriorityJob(outcome.Request, h.engine, h.store)
	t, err := h.runner.Submit(job)
	if errors.Is(err, task.ErrBusy) {
		jsonErr(w, http.StatusConflict, "a task is already running")
		return
	}
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("api: computation scheduled",
		"task", t.ID, "result_name", req.ResultName, "scope", req.Scope)
	jsonResp(w, http.StatusAccepted, ScheduledResponse{TaskID: t.ID, Warnings: outcome.Warnings})
}

// computation serves GET /api/v1/computations/{id} and
// POST /api/v1/computations/{id}/cancel.
func (h *Handler) computation(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/computations/")

	if id, ok := strings.CutSuffix(rest, "/cancel"); ok {
		if r.Method != http.MethodPost {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := h.runner.Cancel(id); err != nil {
			jsonErr(w, http.StatusNotFound, "task not found")
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	t, ok := h.runner.Get(rest)
	if !ok {
		jsonErr(w, http.StatusNotFound, "task not found")
		return
	}

	resp := TaskResponse{
		TaskID:    t.ID,
		Name:      t.Name,
		State:     string(t.State()),
		ElapsedMS: t.Elapsed(time.Now()).Milliseconds(),
	}
	if err := t.Err(); err != nil {
		resp.Error = err.Error()
	}
	jsonResp(w, http.StatusOK, resp)
}

// submitAssignation serves POST /api/v1/assignations.
func (h *Handler) submitAssignation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body AssignationBody
	if !decode(w, r, &body) {
		return
	}

	job := assign.NewJob(assign.Method(body.Method), body.BufferM, body.Years, h.store, h.store)
	if err := job.Validate(); err != nil {
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	t, err := h.runner.Submit(job)
	if errors.Is(err, task.ErrBusy) {
		jsonErr(w, http.StatusConflict, "a task is already running")
		return
	}
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("api: assignation scheduled", "task", t.ID, "method", body.Method)
	jsonResp(w, http.StatusAccepted, ScheduledResponse{TaskID: t.ID})
}

// listResults serves GET /api/v1/results — all result headers.
func (h *Handler) listResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	results, err := h.store.Results(r.Context())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, results)
}

// result serves GET and DELETE /api/v1/results/{id}.
func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/results/")
	if id == "" {
		h.listResults(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		res, err := h.store.Result(r.Context(), id)
		if errors.Is(err, store.ErrResultNotFound) {
			jsonErr(w, http.StatusNotFound, "result not found")
			return
		}
		if err != nil {
			jsonErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		jsonResp(w, http.StatusOK, res)

	case http.MethodDelete:
		err := h.store.DeleteResult(r.Context(), id)
		if errors.Is(err, store.ErrResultNotFound) {
			jsonErr(w, http.StatusNotFound, "result not found")
			return
		}
		if err != nil {
			jsonErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// selection serves GET /api/v1/selection?user_id= and PUT /api/v1/selection.
func (h *Handler) selection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			jsonErr(w, http.StatusBadRequest, "user_id is required")
			return
		}
		main, comparison, err := h.store.Selections(ctx, userID)
		if err != nil {
			jsonErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		jsonResp(w, http.StatusOK, SelectionResponse{Main: main, Comparison: comparison})

	case http.MethodPut:
		var body SelectionBody
		if !decode(w, r, &body) {
			return
		}
		if body.UserID == "" {
			jsonErr(w, http.StatusBadRequest, "user_id is required")
			return
		}

		var err error
		switch body.Role {
		case "main":
			err = h.store.SelectMain(ctx, body.UserID, body.ResultID)
		case "compare":
			err = h.store.SelectComparison(ctx, body.UserID, body.ResultID)
		default:
			jsonErr(w, http.StatusBadRequest, "role must be main or compare")
			return
		}

		if errors.Is(err, store.ErrResultNotFound) {
			jsonErr(w, http.StatusNotFound, "result not found")
			return
		}
		if err != nil {
			jsonErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// --- helpers ----------------------------------------------------------------

func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func jsonResp(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("api: encode response", "err", err)
	}
}

func jsonErr(w http.ResponseWriter, status int, msg string) {
	jsonResp(w, status, ErrorResponse{Error: msg})
}
