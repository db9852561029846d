package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mscrnt/scramsim/pkg/bits"
	"github.com/mscrnt/scramsim/pkg/db"
	"github.com/mscrnt/scramsim/pkg/hostinfo"
	"github.com/mscrnt/scramsim/pkg/lfsr"
	"github.com/mscrnt/scramsim/pkg/scrambler"
	"github.com/mscrnt/scramsim/pkg/sim"
)

// SimulateRequest is the body of POST /simulate. Omitted noise fields keep
// their defaults.
type SimulateRequest struct {
	Standard        string   `json:"standard"`
	Scrambler       string   `json:"scrambler"`
	Trials          int      `json:"trials"`
	Seed            uint64   `json:"seed"`
	Workers         int      `json:"workers"`
	MaxRun          *int     `json:"max_run,omitempty"`
	FlipProbability *float64 `json:"flip_probability,omitempty"`
	BaseErrorRate   *float64 `json:"base_error_rate,omitempty"`
	Payload         string   `json:"payload,omitempty"`
}

// SimulateResponse is the reply to POST /simulate
type SimulateResponse struct {
	RunID       int64       `json:"run_id,omitempty"`
	Standard    string      `json:"standard"`
	Scrambler   string      `json:"scrambler"`
	Seed        uint64      `json:"seed"`
	Summary     sim.Summary `json:"summary"`
	Improvement float64     `json:"improvement"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// Config builds the simulation configuration the request describes. A
// malformed payload is dropped in favour of generated data and reported in
// the returned warnings.
func (r SimulateRequest) Config() (sim.Config, []string, error) {
	var warnings []string
	cfg := sim.DefaultConfig()

	if r.Standard != "" {
		std, err := lfsr.LookupStandard(r.Standard)
		if err != nil {
			return cfg, nil, err
		}
		cfg.Standard = std
	}
	if r.Scrambler != "" {
		cfg.Scrambler = r.Scrambler
	}
	cfg.Seed = r.Seed

	if r.MaxRun != nil {
		cfg.Noise.MaxRun = *r.MaxRun
	}
	if r.FlipProbability != nil {
		cfg.Noise.FlipProbability = *r.FlipProbability
	}
	if r.BaseErrorRate != nil {
		cfg.Noise.BaseErrorRate = *r.BaseErrorRate
	}

	if r.Payload != "" {
		payload, err := bits.Parse(r.Payload)
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("ignoring malformed payload, using generated data: %v", err))
		case len(payload) == 0:
			warnings = append(warnings, "payload is empty, using generated data")
		default:
			cfg.Payload = payload
		}
	}

	return cfg, warnings, cfg.Validate()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// healthHandler returns server health status
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK\n")
}

func standardsHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, lfsr.Standards())
}

func scramblersHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, scrambler.Infos())
}

// sysinfoHandler returns host information as JSON
func sysinfoHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, hostinfo.Collect(r.Context()))
}

func (s *Server) simulateHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req SimulateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if req.Trials <= 0 {
		req.Trials = 1
	}
	if req.Trials > s.config.MaxTrials {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("trials %d exceeds the limit of %d", req.Trials, s.config.MaxTrials))
		return
	}

	cfg, warnings, err := req.Config()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	for _, warning := range warnings {
		s.logger.Warn(warning, "remote", r.RemoteAddr)
	}

	simulator, err := sim.New(cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp := SimulateResponse{
		Standard:  cfg.Standard.Name,
		Scrambler: cfg.Scrambler,
		Seed:      simulator.Seed(),
		Warnings:  warnings,
	}

	if s.database != nil {
		params := db.JSONData{"source": "agent", "remote": r.RemoteAddr}
		var run *db.Run
		run, resp.Summary, err = s.database.RecordSimulation(r.Context(), simulator, req.Trials, req.Workers, params, nil)
		if run != nil {
			resp.RunID = run.ID
		}
	} else {
		resp.Summary, err = simulator.Run(r.Context(), req.Trials, req.Workers, nil)
	}

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, r.Context().Err()) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("simulation failed", "error", err)
		writeError(w, status, err)
		return
	}

	resp.Improvement = resp.Summary.Improvement()
	writeJSON(w, http.StatusOK, resp)
}
