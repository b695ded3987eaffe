package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanrag/internal/answer"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/telemetry"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// ServerName is the implementation name advertised to clients.
const ServerName = "amanrag"

// Server exposes retrieval and answering as MCP tools.
type Server struct {
	mcp      *mcp.Server
	holder   *search.Holder
	answerer *answer.Answerer
	logger   *slog.Logger

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.Metrics

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "retrieve",
		Description: "Hybrid BM25 and dense retrieval over the indexed corpus. Returns ranked chunks with fused scores and a confidence verdict (should_answer, reason). Use it to gather evidence before answering.",
	},
	{
		Name:        "answer",
		Description: "Answer a question from the corpus with numbered citations. Declines with a fixed message when the retrieved evidence is too weak.",
	},
	{
		Name:        "engine_status",
		Description: "Report whether the retrieval engine is loaded, which retrieval mode is available, and why dense retrieval is disabled if it is.",
	},
}

// NewServer creates a new MCP server. A nil answerer answers with
// generation disabled.
func NewServer(holder *search.Holder, answerer *answer.Answerer) (*Server, error) {
	if holder == nil {
		return nil, errors.New("retrieval engine holder is required")
	}
	if answerer == nil {
		answerer = answer.NewAnswerer(holder, nil, answer.Config{})
	}

	s := &Server{
		holder:   holder,
		answerer: answerer,
		logger:   slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: ServerName, Version: version.Version},
		nil, // capabilities are inferred from registered tools/resources
	)
	s.registerTools()
	return s, nil
}

// SetMetrics sets the telemetry collector. When set, a metrics resource is
// registered.
func (s *Server) SetMetrics(m *telemetry.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpRetrieveHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpAnswerHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpStatusHandler)
	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

// mcpRetrieveHandler is the MCP SDK handler for the retrieve tool.
func (s *Server) mcpRetrieveHandler(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveInput) (
	*mcp.CallToolResult,
	RetrieveOutput,
	error,
) {
	start := time.Now()
	requestID := uuid.NewString()

	if strings.TrimSpace(input.Query) == "" {
		return nil, RetrieveOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	req := s.holder.Config().NewRequest(input.Query)
	if input.TopK > 0 {
		req.TopK = clampLimit(input.TopK, req.TopK, 1, 50)
		if req.CandidatePool != 0 && req.CandidatePool < req.TopK {
			req.CandidatePool = req.TopK
		}
	}
	if input.MinScore != nil {
		req.MinScore = *input.MinScore
	}

	res, err := s.holder.Retrieve(ctx, req)
	if err != nil {
		s.logger.Error("retrieve failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, RetrieveOutput{}, MapError(err)
	}

	s.logger.Info("retrieve completed",
		slog.String("request_id", requestID),
		slog.String("mode", string(res.Mode)),
		slog.String("reason", res.Reason),
		slog.Int("hits", len(res.Hits)),
		slog.Duration("duration", time.Since(start)))

	out := RetrieveOutput{
		Mode:         string(res.Mode),
		ShouldAnswer: res.ShouldAnswer,
		Reason:       res.Reason,
		Hits:         toHitOutputs(res.Hits),
	}
	return textResult(FormatRetrieval(input.Query, res)), out, nil
}

// mcpAnswerHandler is the MCP SDK handler for the answer tool.
func (s *Server) mcpAnswerHandler(ctx context.Context, _ *mcp.CallToolRequest, input AnswerInput) (
	*mcp.CallToolResult,
	AnswerOutput,
	error,
) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, AnswerOutput{}, NewInvalidParamsError("question cannot be empty or whitespace only")
	}
	topK := 0
	if input.TopK > 0 {
		topK = clampLimit(input.TopK, 0, 1, 50)
	}

	res, err := s.answerer.Answer(ctx, input.Question, topK)
	if err != nil {
		s.logger.Error("answer failed", slog.String("error", err.Error()))
		return nil, AnswerOutput{}, MapError(err)
	}

	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()
	if metrics != nil {
		metrics.RecordAnswer(res.Retrieval.Mode, res.Retrieval.ShouldAnswer)
	}

	out := AnswerOutput{
		Answer:       res.Answer,
		Citations:    res.Citations,
		Mode:         string(res.Retrieval.Mode),
		ShouldAnswer: res.Retrieval.ShouldAnswer,
		Reason:       res.Retrieval.Reason,
		TotalSeconds: res.Timing.TotalSeconds,
	}
	return textResult(FormatAnswer(res)), out, nil
}

// mcpStatusHandler is the MCP SDK handler for the engine_status tool.
func (s *Server) mcpStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	out := s.status()
	return nil, out, nil
}

func (s *Server) status() StatusOutput {
	cfg := s.holder.Config()
	out := StatusOutput{TopK: cfg.TopK, MinScore: cfg.MinScore}

	ret := s.holder.Current()
	if ret == nil {
		out.Error = search.ErrNotReady.Error()
		if err := s.holder.LoadError(); err != nil {
			out.Error = err.Error()
		}
		return out
	}

	dense := ret.Dense()
	out.Ready = true
	out.Chunks = ret.Corpus().Len()
	out.RetrievalMode = string(search.ModeOf(true, dense.Available()))
	out.HybridDisabledReason = string(dense.Reason)
	out.LexicalBackend = ret.LexicalStats().Backend
	if emb := ret.Embedder(); emb != nil {
		out.Embedder = emb.ModelName()
	}
	return out
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
