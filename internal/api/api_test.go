package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/giswater/assetmanage/internal/config"
	"github.com/giswater/assetmanage/internal/scoring"
	"github.com/giswater/assetmanage/internal/store"
	"github.com/giswater/assetmanage/internal/task"
	"github.com/giswater/assetmanage/internal/validate"
	"github.com/giswater/assetmanage/pkg/types"
)

func fp(v float64) *float64 { return &v }
func sp(v string) *string   { return &v }

// newTestServer wires a Handler over an in-memory store, the way main does.
func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.Open(config.StorageConfig{Backend: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	registry := scoring.NewRegistry()
	engine := scoring.NewEngine(st, registry, config.EngineConfig{
		BatchSize:           500,
		ProgressMinDelta:    0.01,
		ProgressMinInterval: 100 * time.Millisecond,
	})
	validator := validate.New(st, registry)
	runner := task.NewRunner(time.Hour)

	srv := httptest.NewServer(New(st, validator, engine, runner))
	t.Cleanup(srv.Close)
	return srv, st
}

func seed(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	err := st.SaveDiameters(ctx, []types.DiameterClass{
		{DNom: 100, CostConstr: fp(500), CostRepMain: fp(50), Compliance: fp(8)},
		{DNom: 200, CostConstr: fp(900), CostRepMain: fp(90), Compliance: fp(6)},
	})
	if err != nil {
		t.Fatalf("SaveDiameters: %v", err)
	}
	err = st.SaveMaterials(ctx, []types.MaterialClass{
		{Material: "PVC", Compliance: fp(9)},
	})
	if err != nil {
		t.Fatalf("SaveMaterials: %v", err)
	}
	err = st.SaveEngineParams(ctx, []types.EngineParam{
		{Name: "w_diam", Value: 0.5, IsWeight: true},
		{Name: "w_mat", Value: 0.5, IsWeight: true},
	})
	if err != nil {
		t.Fatalf("SaveEngineParams: %v", err)
	}
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func readJSON(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// waitResults polls the catalog until it holds want results.
func waitResults(t *testing.T, st *store.Store, want int) []types.Result {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		results, err := st.Results(context.Background())
		if err != nil {
			t.Fatalf("Results: %v", err)
		}
		if len(results) == want {
			return results
		}
		select {
		case <-deadline:
			t.Fatalf("results: got %d, want %d", len(results), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status %d", resp.StatusCode)
	}
	var body HealthResponse
	readJSON(t, resp, &body)
	if body.Status != "ok" {
		t.Errorf("health: status %q, want ok", body.Status)
	}
}

func TestConfigTable_PutAndGet(t *testing.T) {
	srv, _ := newTestServer(t)

	entries := []types.MaterialClass{
		{Material: "FC", Compliance: fp(2)},
		{Material: "PVC", Compliance: fp(9)},
	}
	resp := doJSON(t, http.MethodPut, srv.URL+"/api/v1/config/material", entries)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("put material: status %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/config/material", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get material: status %d", resp.StatusCode)
	}
	var got []types.MaterialClass
	readJSON(t, resp, &got)
	if len(got) != 2 || got[0].Material != "FC" {
		t.Fatalf("get material: %+v", got)
	}
}

func TestConfigTable_RejectsBadEntries(t *testing.T) {
	srv, _ := newTestServer(t)

	entries := []types.DiameterClass{
		{DNom: 100, CostRepMain: fp(1), Compliance: fp(1)}, // missing cost_constr
	}
	resp := doJSON(t, http.MethodPut, srv.URL+"/api/v1/config/diameter", entries)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("put diameter: status %d, want 422", resp.StatusCode)
	}
	var body ErrorResponse
	readJSON(t, resp, &body)
	if body.Error == "" {
		t.Error("put diameter: empty error message")
	}
}

func TestConfigTable_UnknownDimension(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/config/pressure", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestComputation_ValidationFailure(t *testing.T) {
	srv, st := newTestServer(t)
	seed(t, st)

	body := ComputationBody{Scope: "GLOBAL", Description: "missing name"}
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/computations", body)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", resp.StatusCode)
	}
	var errResp ErrorResponse
	readJSON(t, resp, &errResp)
	if errResp.Rule != "result_name" {
		t.Errorf("rule: got %q, want result_name", errResp.Rule)
	}
}

func TestComputation_FullFlow(t *testing.T) {
	srv, st := newTestServer(t)
	seed(t, st)

	assets := []types.Asset{
		{ArcID: "a1", DNom: fp(100), Material: sp("PVC")},
		{ArcID: "a2", DNom: fp(200), Material: sp("PVC")},
	}
	if err := st.ImportAssets(context.Background(), assets); err != nil {
		t.Fatalf("ImportAssets: %v", err)
	}

	body := ComputationBody{
		Scope:       "GLOBAL",
		ResultName:  "north-2026",
		Description: "annual review",
		CreatedBy:   "alice",
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/computations", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d, want 202", resp.StatusCode)
	}
	var scheduled ScheduledResponse
	readJSON(t, resp, &scheduled)
	if scheduled.TaskID == "" {
		t.Fatal("scheduled: missing task id")
	}

	results := waitResults(t, st, 1)
	if results[0].Name != "north-2026" {
		t.Fatalf("result: %+v", results[0])
	}

	// Task status is queryable after completion.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/computations/"+scheduled.TaskID, nil)
	var tk TaskResponse
	readJSON(t, resp, &tk)
	if tk.State != string(task.StateCompleted) {
		t.Errorf("task state: got %s, want completed", tk.State)
	}

	// Full result detail via the catalog endpoints.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/results/"+results[0].ID, nil)
	var res types.Result
	readJSON(t, resp, &res)
	if len(res.Records) != 2 {
		t.Fatalf("result records: got %d, want 2", len(res.Records))
	}
	if res.Records[0].ArcID != "a1" || res.Records[0].Score != 8.5 {
		t.Errorf("record: %+v", res.Records[0])
	}
}

func TestComputation_ConfirmFlow(t *testing.T) {
	srv, st := newTestServer(t)
	seed(t, st)

	// One asset with an unknown material triggers a soft warning.
	assets := []types.Asset{
		{ArcID: "a1", DNom: fp(100), Material: sp("HDPE")},
	}
	if err := st.ImportAssets(context.Background(), assets); err != nil {
		t.Fatalf("ImportAssets: %v", err)
	}

	body := ComputationBody{
		Scope:       "GLOBAL",
		ResultName:  "warned",
		Description: "needs confirmation",
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/computations", body)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status %d, want 409", resp.StatusCode)
	}
	var confirm ConfirmRequiredResponse
	readJSON(t, resp, &confirm)
	if len(confirm.Warnings) == 0 {
		t.Fatal("confirm: no warnings returned")
	}
	if confirm.Warnings[0].Code != validate.WarnUnknownMaterials {
		t.Errorf("warning code: got %s, want %s", confirm.Warnings[0].Code, validate.WarnUnknownMaterials)
	}

	// Nothing scheduled, nothing persisted.
	results, err := st.Results(context.Background())
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results: %d after declined run, want 0", len(results))
	}

	// Re-submit with the confirm flag.
	body.Confirm = true
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/computations", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("confirmed status %d, want 202", resp.StatusCode)
	}
	var scheduled ScheduledResponse
	readJSON(t, resp, &scheduled)
	if len(scheduled.Warnings) == 0 {
		t.Error("scheduled: warnings should be echoed back")
	}

	results = waitResults(t, st, 1)
	full, err := st.Result(context.Background(), results[0].ID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	// Unknown material scores as fully compliant: 0.5*8 + 0.5*10.
	if len(full.Records) != 1 || full.Records[0].Score != 9 {
		t.Fatalf("records: %+v", full.Records)
	}
}

func TestResults_DeleteAndSelection(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	res := &types.Result{
		ID: "res-1", Name: "one", Description: "d", CreatedBy: "alice",
		Scope:   types.ScopeGlobal,
		Records: []types.ScoreRecord{{ArcID: "a1", Score: 5}},
	}
	if err := st.CreateResult(ctx, res); err != nil {
		t.Fatalf("CreateResult: %v", err)
	}

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/v1/selection", SelectionBody{
		UserID: "alice", Role: "main", ResultID: "res-1",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("put selection: status %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/selection?user_id=alice", nil)
	var sel SelectionResponse
	readJSON(t, resp, &sel)
	if sel.Main != "res-1" {
		t.Errorf("selection main: got %q, want res-1", sel.Main)
	}

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/v1/selection", SelectionBody{
		UserID: "alice", Role: "compare", ResultID: "missing",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("put selection (missing result): status %d, want 404", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/results/res-1", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete result: status %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/results/res-1", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted result: status %d, want 404", resp.StatusCode)
	}
}

func TestAssignation_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/assignations", AssignationBody{
		Method: "quadratic", BufferM: 10, Years: 10,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", resp.StatusCode)
	}
}

func TestAssignation_Runs(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/assignations", AssignationBody{
		Method: "linear", BufferM: 10, Years: 10,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d, want 202", resp.StatusCode)
	}
	var scheduled ScheduledResponse
	readJSON(t, resp, &scheduled)

	deadline := time.After(5 * time.Second)
	for {
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/computations/"+scheduled.TaskID, nil)
		var tk TaskResponse
		readJSON(t, resp, &tk)
		if task.State(tk.State).Terminal() {
			if tk.State != string(task.StateCompleted) {
				t.Fatalf("task state: %s (%s)", tk.State, tk.Error)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("assignation never finished")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestBadJSONBody(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/computations", bytes.NewBufferString("{nope"))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}
