package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MetricsURI identifies the telemetry resource.
const MetricsURI = "amanrag://metrics"

// registerMetricsResource registers the metrics resource.
func (s *Server) registerMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "metrics",
			URI:         MetricsURI,
			Description: "Retrieval telemetry: modes, gate reasons, latency, top terms and no-candidate queries",
			MIMEType:    "application/json",
		},
		s.handleMetricsResource,
	)
}

func (s *Server) handleMetricsResource(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()

	if metrics == nil {
		return nil, NewInvalidParamsError("metrics not available")
	}

	content, err := json.MarshalIndent(metrics.Snapshot(), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      MetricsURI,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}
