package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dife-bioinformatics/mekewe/params"
	"github.com/dife-bioinformatics/mekewe/state"
	"github.com/dife-bioinformatics/mekewe/types"
)

// tracebackLimit caps how much of a failed run's traceback is echoed in
// the /result error body.
const tracebackLimit = 2000

func (s *Server) parseTicket(w http.ResponseWriter, r *http.Request) (types.Ticket, bool) {
	ticket, err := types.ParseTicketHex(chi.URLParam(r, "ticket"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: malformed ticket id", state.ErrRecordNotFound))
		return types.Ticket{}, false
	}
	return ticket, true
}

func (s *Server) handleListAnalysisMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, params.Methods())
}

func (s *Server) handleMethodParams(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "method")
	if params.FindMethod(name) == nil {
		writeError(w, fmt.Errorf("%w: unknown analysis method %q", state.ErrRecordNotFound, name))
		return
	}
	writeJSON(w, http.StatusOK, params.DescriptorSet{
		GlobalParams:         params.GlobalDescriptors(),
		MethodSpecificParams: params.MethodDescriptors(name),
	})
}

// decodeParams accepts either the structured {global_params, method_specific_params}
// shape or a flat object, which is treated as global parameters. An
// empty body yields empty parameter sets.
func decodeParams(r *http.Request) (types.PipelineParams, error) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return types.PipelineParams{
				GlobalParams:         map[string]any{},
				MethodSpecificParams: map[string]any{},
			}, nil
		}
		return types.PipelineParams{}, fmt.Errorf("%w: invalid JSON body: %v", state.ErrBadParameter, err)
	}

	p := types.PipelineParams{
		GlobalParams:         map[string]any{},
		MethodSpecificParams: map[string]any{},
	}
	globals, hasGlobals := raw["global_params"].(map[string]any)
	methodParams, hasMethod := raw["method_specific_params"].(map[string]any)
	if hasGlobals || hasMethod {
		if hasGlobals {
			p.GlobalParams = globals
		}
		if hasMethod {
			p.MethodSpecificParams = methodParams
		}
		return p, nil
	}
	// Flat shape: route each key by where its descriptor lives.
	for name, val := range raw {
		if params.IsGlobal(name) {
			p.GlobalParams[name] = val
		} else {
			p.MethodSpecificParams[name] = val
		}
	}
	return p, nil
}

func (s *Server) handleCreatePipeline(w http.ResponseWriter, r *http.Request) {
	patch, err := decodeParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ticket, err := s.mgr.InitNewPipelineRun(r.Context(), types.PipelineParams{})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(patch.GlobalParams) > 0 || len(patch.MethodSpecificParams) > 0 {
		if _, err := s.mgr.UpdatePipelineRunParams(r.Context(), ticket, patch); err != nil {
			// Roll the record back so rejected creations leave no trace.
			_ = s.mgr.DeletePipelineStatus(r.Context(), ticket)
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": ticket.Hex()})
}

func (s *Server) handlePatchPipeline(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.parseTicket(w, r)
	if !ok {
		return
	}
	patch, err := decodeParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	run, err := s.mgr.UpdatePipelineRunParams(r.Context(), ticket, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleDeletePipeline(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.parseTicket(w, r)
	if !ok {
		return
	}
	run, err := s.mgr.GetPipelineRunDefinition(r.Context(), ticket)
	if err != nil {
		writeError(w, err)
		return
	}
	if run.State == types.StateQueued || run.State == types.StateRunning {
		writeError(w, fmt.Errorf("%w: run is %s", state.ErrBadState, run.State))
		return
	}
	if _, err := s.mgr.WipePipelineRun(r.Context(), ticket); err != nil {
		writeError(w, err)
		return
	}
	if err := s.mgr.DeletePipelineStatus(r.Context(), ticket); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.parseTicket(w, r)
	if !ok {
		return
	}
	paramName := chi.URLParam(r, "param")

	if s.cfg.MaxFileSizeUploadLimitBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSizeUploadLimitBytes)
	}
	part, err := firstFilePart(r)
	if err != nil {
		writeError(w, uploadError(err))
		return
	}
	defer part.Close()

	run, err := s.mgr.AttachPipelineRunInputFile(r.Context(), ticket, paramName, part.FileName(), part)
	if err != nil {
		writeError(w, uploadError(err))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// firstFilePart streams to the first file part of the multipart body,
// without buffering the whole upload in memory.
func firstFilePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: expected multipart body: %v", state.ErrBadParameter, err)
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: no file in multipart body", state.ErrBadParameter)
			}
			return nil, err
		}
		if part.FileName() != "" {
			return part, nil
		}
	}
}

// uploadError rewrites a body-cap overrun into the upload-too-large
// kind; MaxBytesReader surfaces mid-copy and would otherwise classify
// as a filesystem error.
func uploadError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w: upload exceeds the per-request limit", state.ErrUploadTooLarge)
	}
	return err
}

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.parseTicket(w, r)
	if !ok {
		return
	}
	run, err := s.mgr.RemovePipelineRunInputFile(r.Context(), ticket,
		chi.URLParam(r, "param"), chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCommitPipeline(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.parseTicket(w, r)
	if !ok {
		return
	}
	run, err := s.mgr.SetPipelineRunAsQueued(r.Context(), ticket, chi.URLParam(r, "method"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.parseTicket(w, r)
	if !ok {
		return
	}
	run, err := s.mgr.GetPipelineRunDefinition(r.Context(), ticket)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.parseTicket(w, r)
	if !ok {
		return
	}
	run, err := s.mgr.GetPipelineRunDefinition(r.Context(), ticket)
	if err != nil {
		writeError(w, err)
		return
	}
	switch run.State {
	case types.StateExpired:
		writeError(w, fmt.Errorf("%w", state.ErrGone))
		return
	case types.StateFailed:
		detail := "pipeline-run failed"
		if run.Error != nil {
			detail = *run.Error
		}
		if run.ErrorTraceback != nil && *run.ErrorTraceback != "" {
			tb := *run.ErrorTraceback
			if len(tb) > tracebackLimit {
				tb = tb[:tracebackLimit]
			}
			detail = detail + "\n" + tb
		}
		writeJSON(w, http.StatusFailedDependency, errorBody{Detail: detail})
		return
	case types.StateSuccess:
	default:
		writeError(w, fmt.Errorf("%w: run is %s", state.ErrNotReady, run.State))
		return
	}

	zipPath := run.OutputZipFilePath(s.mgr.CacheDir())
	if zipPath == "" {
		writeJSON(w, http.StatusNotFound, errorBody{Detail: "result file not found"})
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", *run.PipelineOutputZipFileName))
	w.Header().Set("Content-Type", "application/zip")
	http.ServeFile(w, r, zipPath)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	daysLimit := queryInt(r, "days_limit", 0)
	daysOffset := queryInt(r, "days_offset", 0)
	stats, err := s.mgr.CalculateStatistics(r.Context(), daysLimit, daysOffset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	cacheHealthy := s.mgr.Store().Ping(ctx) == nil
	workerHealthy := s.worker != nil && s.worker.Healthy()

	health := types.HealthState{
		Healthy: cacheHealthy && workerHealthy,
		Dependencies: []types.ModuleHealthState{
			{Name: "cache_db", Healthy: cacheHealthy},
			{Name: "background_worker", Healthy: workerHealthy},
		},
	}
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleClientConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ClientConfig{
		ContactEmail:                optional(s.cfg.ClientContactEmail),
		BugReportEmail:              optional(s.cfg.ClientBugReportEmail),
		TermsAndConditions:          optional(s.cfg.ClientTermsAndConditions),
		EntryText:                   optional(s.cfg.ClientEntryText),
		PipelineTicketExpireTimeSec: int(s.cfg.ExpiredAfter().Seconds()),
	})
}

func (s *Server) handleInfoLinks(w http.ResponseWriter, r *http.Request) {
	links := make([]types.ClientLink, 0, len(s.cfg.ClientLinks))
	for _, l := range s.cfg.ClientLinks {
		links = append(links, types.ClientLink{Title: l.Title, Link: l.Link})
	}
	writeJSON(w, http.StatusOK, links)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
