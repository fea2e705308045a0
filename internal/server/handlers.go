package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ironsheep/sheet-scale-mcp/internal/diagnostics"
	"github.com/ironsheep/sheet-scale-mcp/internal/imaging"
	"github.com/ironsheep/sheet-scale-mcp/internal/runs"
	"github.com/ironsheep/sheet-scale-mcp/internal/scale"
	"github.com/ironsheep/sheet-scale-mcp/internal/store"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "scale_estimate").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
// A page that cannot be calibrated is not an execution error: it comes back
// as a regular result with valid=false.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("Tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"content": []map[string]any{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (any, error) {
	switch name {
	case "page_info":
		return s.handlePageInfo(args)
	case "scale_estimate":
		return s.handleScaleEstimate(args)
	case "scale_histograms":
		return s.handleScaleHistograms(args)
	case "scale_plot":
		return s.handleScalePlot(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments and checks the common ones.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return errors.New("missing arguments")
	}
	return json.Unmarshal(args, v)
}

type pageArgs struct {
	Path      string `json:"path"`
	Threshold int    `json:"threshold"`
}

// page loads the run table of the page named in a.
func (s *Server) page(a pageArgs) (runs.Source, uint8, error) {
	if strings.TrimSpace(a.Path) == "" {
		return nil, 0, errors.New("path is required")
	}
	level := s.opts.Level
	if a.Threshold != 0 {
		if a.Threshold < 1 || a.Threshold > 255 {
			return nil, 0, fmt.Errorf("threshold must be between 1 and 255, got %d", a.Threshold)
		}
		level = uint8(a.Threshold)
	}
	table, err := s.cache.Runs(a.Path, level)
	if err != nil {
		return nil, 0, err
	}
	return table, level, nil
}

// === Page Information ===

func (s *Server) handlePageInfo(args json.RawMessage) (any, error) {
	var a pageArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Path) == "" {
		return nil, errors.New("path is required")
	}
	return imaging.LoadPageInfo(s.cache, a.Path)
}

// === Scale Estimation ===

type scaleEstimateArgs struct {
	pageArgs
	scale.Pinned
}

// EstimateResult is the outcome of scale_estimate.
type EstimateResult struct {
	Page        string             `json:"page"`
	Valid       bool               `json:"valid"`
	Cached      bool               `json:"cached,omitempty"`
	Summary     string             `json:"summary,omitempty"`
	Calibration *scale.Calibration `json:"calibration,omitempty"`
	Error       map[string]any     `json:"error,omitempty"`
}

func (s *Server) handleScaleEstimate(args json.RawMessage) (any, error) {
	var a scaleEstimateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	table, level, err := s.page(a.pageArgs)
	if err != nil {
		return nil, err
	}

	pageID := filepath.Base(a.Path)
	result := &EstimateResult{Page: pageID}
	ctx := context.Background()

	var pageHash, paramsHash string
	if s.opts.Store != nil {
		paramsHash = store.ParamsHash(int(level), s.est.Config(), a.Pinned)
		if pageHash, err = store.Fingerprint(a.Path); err != nil {
			return nil, err
		}
		if cal, ok, err := s.opts.Store.Get(ctx, pageHash, paramsHash); err != nil {
			s.logger.Warn("Cache lookup failed, estimating", "page", pageID, "error", err)
		} else if ok {
			result.Valid = true
			result.Cached = true
			result.Calibration = cal
			result.Summary = cal.String()
			return result, nil
		}
	}

	cal, err := s.est.Estimate(scale.Page{ID: pageID, Runs: table, Pinned: a.Pinned})
	if err != nil {
		var se *scale.Error
		if !errors.As(err, &se) {
			return nil, err
		}
		result.Error = se.ToMap()
		return result, nil
	}

	result.Valid = true
	result.Calibration = cal
	result.Summary = cal.String()

	if s.opts.Store != nil {
		if _, err := s.opts.Store.Put(ctx, store.Entry{
			PageHash:    pageHash,
			ParamsHash:  paramsHash,
			RunID:       s.sessionID,
			Page:        pageID,
			Calibration: cal,
		}); err != nil {
			s.logger.Warn("Failed to cache calibration", "page", pageID, "error", err)
		}
	}

	return result, nil
}

// === Diagnostics ===

func (s *Server) inspect(a pageArgs) (*scale.Snapshot, error) {
	table, _, err := s.page(a)
	if err != nil {
		return nil, err
	}
	snap, err := s.est.Inspect(scale.Page{ID: filepath.Base(a.Path), Runs: table})
	if err != nil {
		var se *scale.Error
		if !errors.As(err, &se) {
			return nil, err
		}
	}
	return snap, nil
}

func (s *Server) handleScaleHistograms(args json.RawMessage) (any, error) {
	var a pageArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return s.inspect(a)
}

type scalePlotArgs struct {
	pageArgs
	MaxWidth int `json:"max_width"`
}

// PlotResult is the outcome of scale_plot.
type PlotResult struct {
	*imaging.EncodedImage
	State   string `json:"state"`
	Summary string `json:"summary"`
}

func (s *Server) handleScalePlot(args json.RawMessage) (any, error) {
	var a scalePlotArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	snap, err := s.inspect(a.pageArgs)
	if err != nil {
		return nil, err
	}

	chart, err := diagnostics.Render(snap, diagnostics.DefaultOptions())
	if err != nil {
		return nil, err
	}
	encoded, err := imaging.EncodePNG(chart, a.MaxWidth)
	if err != nil {
		return nil, err
	}

	var summary strings.Builder
	diagnostics.WriteSummary(&summary, snap)

	return &PlotResult{
		EncodedImage: encoded,
		State:        snap.State.String(),
		Summary:      summary.String(),
	}, nil
}
