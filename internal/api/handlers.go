package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
)

const maxBodyBytes = 1 << 20

// AnswerRequest is the body of POST /answer.
type AnswerRequest struct {
	Question string `json:"question"`
	TopK     *int   `json:"top_k,omitempty"`
}

// RetrieveRequest is the body of POST /retrieve. Omitted fields use the
// engine defaults.
type RetrieveRequest struct {
	Query         string   `json:"query"`
	TopK          *int     `json:"top_k,omitempty"`
	MinScore      *float64 `json:"min_score,omitempty"`
	CandidatePool *int     `json:"candidate_pool,omitempty"`
}

// ReadyResponse is the body of GET /readyz.
type ReadyResponse struct {
	Ready                bool    `json:"ready"`
	Error                string  `json:"error,omitempty"`
	ChunksPath           string  `json:"chunks_path"`
	IndexPath            string  `json:"index_path"`
	MetaPath             string  `json:"meta_path"`
	RetrievalTopK        int     `json:"retrieval_top_k"`
	RetrievalMinScore    float64 `json:"retrieval_min_score"`
	RetrievalMode        string  `json:"retrieval_mode,omitempty"`
	HybridEnabled        bool    `json:"hybrid_enabled"`
	HybridDisabledReason string  `json:"hybrid_disabled_reason,omitempty"`
	LexicalBackend       string  `json:"lexical_backend,omitempty"`
	OllamaURL            string  `json:"ollama_url"`
	OllamaModel          string  `json:"ollama_model"`
	OllamaStatus         string  `json:"ollama_status"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports 200 only when an engine is loaded and the generation
// model is usable (or generation is disabled).
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg
	resp := ReadyResponse{
		ChunksPath:        cfg.Paths.Chunks,
		IndexPath:         cfg.Paths.Index,
		MetaPath:          cfg.Paths.Meta,
		RetrievalTopK:     cfg.Retrieval.TopK,
		RetrievalMinScore: cfg.Retrieval.MinScore,
		OllamaURL:         cfg.Generation.URL,
		OllamaModel:       cfg.Generation.Model,
	}

	ret := s.holder.Current()
	if ret == nil {
		resp.Error = "retrieval engine is not loaded"
		if err := s.holder.LoadError(); err != nil {
			resp.Error = err.Error()
		}
		resp.OllamaStatus = "unknown"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	engineCfg := ret.Config()
	dense := ret.Dense()
	resp.RetrievalTopK = engineCfg.TopK
	resp.RetrievalMinScore = engineCfg.MinScore
	resp.RetrievalMode = string(search.ModeOf(true, dense.Available()))
	resp.HybridEnabled = dense.Available()
	resp.HybridDisabledReason = string(dense.Reason)
	resp.LexicalBackend = ret.LexicalStats().Backend

	modelOK, detail := true, "generation_disabled"
	if s.models != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		modelOK, detail = s.models.ModelReady(ctx)
		cancel()
	}
	resp.OllamaStatus = detail
	resp.Ready = modelOK

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest,
			amanerrors.New(amanerrors.ErrCodeQueryEmpty, "question must not be empty", nil))
		return
	}
	topK := 0
	if req.TopK != nil {
		if *req.TopK <= 0 {
			writeError(w, http.StatusBadRequest, amanerrors.ValidationError("top_k must be positive"))
			return
		}
		topK = *req.TopK
	}

	result, err := s.answerer.Answer(r.Context(), req.Question, topK)
	if err != nil {
		s.logFailure(r, err)
		writeError(w, statusFor(err), err)
		return
	}
	s.metrics.RecordAnswer(result.Retrieval.Mode, result.Retrieval.ShouldAnswer)
	writeJSON(w, http.StatusOK, result)
}

// RetrieveResponse is the body of a successful POST /retrieve.
type RetrieveResponse struct {
	search.Result
	TopK int `json:"top_k"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var body RetrieveRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req := s.holder.Config().NewRequest(body.Query)
	if body.TopK != nil {
		req.TopK = *body.TopK
		if body.CandidatePool == nil && req.CandidatePool != 0 && req.CandidatePool < req.TopK {
			req.CandidatePool = req.TopK
		}
	}
	if body.MinScore != nil {
		req.MinScore = *body.MinScore
	}
	if body.CandidatePool != nil {
		req.CandidatePool = *body.CandidatePool
	}

	result, err := s.holder.Retrieve(r.Context(), req)
	if err != nil {
		s.logFailure(r, err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, RetrieveResponse{Result: result, TopK: req.TopK})
}

func (s *Server) logFailure(r *http.Request, err error) {
	slog.Warn("request_failed",
		slog.String("request_id", RequestIDFrom(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("code", amanerrors.GetCode(err)),
		slog.String("error", err.Error()))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return amanerrors.ValidationError("request body is required")
		}
		return amanerrors.New(amanerrors.ErrCodeInvalidRequest, "malformed JSON body", err)
	}
	return nil
}

// statusFor maps error codes to HTTP statuses.
func statusFor(err error) int {
	switch amanerrors.GetCode(err) {
	case amanerrors.ErrCodeInvalidRequest, amanerrors.ErrCodeQueryEmpty:
		return http.StatusBadRequest
	case amanerrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case amanerrors.ErrCodeEngineNotReady:
		return http.StatusServiceUnavailable
	case amanerrors.ErrCodeGenerationFailed, amanerrors.ErrCodeGenerationUnavailable:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response_encode_failed", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]amanerrors.JSONError{"error": amanerrors.ToJSON(err)})
}
