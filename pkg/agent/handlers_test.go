package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/mscrnt/scramsim/pkg/db"
	"github.com/mscrnt/scramsim/pkg/hostinfo"
	"github.com/mscrnt/scramsim/pkg/lfsr"
	"github.com/mscrnt/scramsim/pkg/scrambler"
)

func newTestServer(t *testing.T, database *db.DB) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxTrials = 50
	server, err := NewServer(cfg, database, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return server
}

func TestSysinfoHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/sysinfo", nil)
	rr := httptest.NewRecorder()
	http.HandlerFunc(sysinfoHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("handler returned wrong content type: got %v", ct)
	}

	var info hostinfo.Info
	if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if info.Timestamp.IsZero() {
		t.Error("timestamp is zero")
	}
	if info.Host.Architecture == "" {
		t.Error("architecture is empty")
	}
}

func TestHandlerMethods(t *testing.T) {
	server := newTestServer(t, nil)
	handler := server.Handler()

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed},
		{http.MethodGet, "/standards", http.StatusOK},
		{http.MethodDelete, "/standards", http.StatusMethodNotAllowed},
		{http.MethodGet, "/scramblers", http.StatusOK},
		{http.MethodPut, "/sysinfo", http.StatusMethodNotAllowed},
		{http.MethodGet, "/simulate", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			if rr.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestStandardsAndScramblers(t *testing.T) {
	handler := newTestServer(t, nil).Handler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/standards", nil))
	var standards []lfsr.Standard
	if err := json.Unmarshal(rr.Body.Bytes(), &standards); err != nil {
		t.Fatalf("failed to parse standards: %v", err)
	}
	if len(standards) != len(lfsr.Standards()) {
		t.Errorf("got %d standards, want %d", len(standards), len(lfsr.Standards()))
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/scramblers", nil))
	var infos []scrambler.Info
	if err := json.Unmarshal(rr.Body.Bytes(), &infos); err != nil {
		t.Fatalf("failed to parse scramblers: %v", err)
	}
	if len(infos) != 2 {
		t.Errorf("got %d scramblers, want 2", len(infos))
	}
}

func postSimulate(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/simulate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rr, req)
	return rr
}

func TestSimulateHandler(t *testing.T) {
	handler := newTestServer(t, nil).Handler()

	rr := postSimulate(t, handler, `{"standard":"ble","scrambler":"multiplicative","trials":4,"seed":5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rr.Code, rr.Body.String())
	}

	var resp SimulateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Standard != "BLE" || resp.Scrambler != "multiplicative" {
		t.Errorf("got %s/%s, want BLE/multiplicative", resp.Standard, resp.Scrambler)
	}
	if resp.Seed != 5 {
		t.Errorf("Seed = %d, want 5", resp.Seed)
	}
	if resp.Summary.Trials != 4 {
		t.Errorf("Trials = %d, want 4", resp.Summary.Trials)
	}
	if resp.RunID != 0 {
		t.Errorf("RunID = %d, want 0 without a database", resp.RunID)
	}

	// Same seed, same answer
	again := postSimulate(t, handler, `{"standard":"ble","scrambler":"multiplicative","trials":4,"seed":5}`)
	var resp2 SimulateResponse
	if err := json.Unmarshal(again.Body.Bytes(), &resp2); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp2.Summary != resp.Summary {
		t.Errorf("summaries differ for the same seed: %+v vs %+v", resp.Summary, resp2.Summary)
	}
}

func TestSimulateHandlerNoiseless(t *testing.T) {
	handler := newTestServer(t, nil).Handler()

	body := `{"standard":"DVB","trials":3,"seed":9,"flip_probability":0,"base_error_rate":0}`
	rr := postSimulate(t, handler, body)
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rr.Code, rr.Body.String())
	}

	var resp SimulateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Summary.ErrorsScrambled != 0 || resp.Summary.ErrorsUnscrambled != 0 {
		t.Errorf("noiseless channel produced errors: %+v", resp.Summary)
	}
}

func TestSimulateHandlerBadRequests(t *testing.T) {
	handler := newTestServer(t, nil).Handler()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"standard":`},
		{"unknown field", `{"standrd":"DVB"}`},
		{"unknown standard", `{"standard":"WIFI"}`},
		{"unknown scrambler", `{"scrambler":"rot13"}`},
		{"bad probability", `{"flip_probability":2}`},
		{"too many trials", `{"trials":51}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postSimulate(t, handler, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("got status %d, want 400: %s", rr.Code, rr.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Errorf("expected a JSON error body, got %q", rr.Body.String())
			}
		})
	}
}

func TestSimulateHandlerMalformedPayload(t *testing.T) {
	handler := newTestServer(t, nil).Handler()

	rr := postSimulate(t, handler, `{"standard":"DVB","trials":2,"seed":8,"payload":"01x1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rr.Code, rr.Body.String())
	}

	var resp SimulateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Warnings) != 1 || !strings.Contains(resp.Warnings[0], "malformed payload") {
		t.Errorf("Warnings = %q, want one malformed payload warning", resp.Warnings)
	}

	// Generated data replaces the payload, so the run matches one without it
	plain := postSimulate(t, handler, `{"standard":"DVB","trials":2,"seed":8}`)
	var want SimulateResponse
	if err := json.Unmarshal(plain.Body.Bytes(), &want); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Summary != want.Summary {
		t.Errorf("summary %+v, want %+v", resp.Summary, want.Summary)
	}
	if len(want.Warnings) != 0 {
		t.Errorf("unexpected warnings %q", want.Warnings)
	}
}

func TestSimulateHandlerStoresRun(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	handler := newTestServer(t, database).Handler()
	rr := postSimulate(t, handler, `{"standard":"V34","trials":2,"seed":3,"workers":2}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rr.Code, rr.Body.String())
	}

	var resp SimulateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.RunID == 0 {
		t.Fatal("expected a stored run id")
	}

	run, err := database.GetRun(resp.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Standard != "V34" || run.Trials != 2 || !run.Success {
		t.Errorf("unexpected stored run: %+v", run)
	}
	if run.Params["source"] != "agent" {
		t.Errorf("params = %v, want source=agent", run.Params)
	}
}

func TestClientAgainstServer(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, nil).Handler())
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultClientConfig()
	cfg.Host = u.Hostname()
	cfg.Port = port
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx := context.Background()
	if err := client.CheckHealth(ctx); err != nil {
		t.Errorf("CheckHealth() error = %v", err)
	}

	data, err := client.Get(ctx, "/standards")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Contains(data, []byte(`"DVB"`)) {
		t.Errorf("standards response missing DVB: %s", data)
	}

	resp, err := client.Simulate(ctx, SimulateRequest{Standard: "TEST", Trials: 2, Seed: 1})
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if resp.Summary.Trials != 2 {
		t.Errorf("Trials = %d, want 2", resp.Summary.Trials)
	}

	if _, err := client.Simulate(ctx, SimulateRequest{Standard: "nope"}); err == nil {
		t.Error("expected an error for an unknown standard")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad port", func(c *Config) { c.Port = 70000 }, true},
		{"no max trials", func(c *Config) { c.MaxTrials = 0 }, true},
		{"cert without key", func(c *Config) { c.CertFile = "server.pem" }, true},
		{"ca without cert", func(c *Config) { c.CAFile = "ca.pem" }, true},
		{"missing files", func(c *Config) { c.CertFile, c.KeyFile = "/nonexistent/a", "/nonexistent/b" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
