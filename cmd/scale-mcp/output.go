package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/sheet-scale-mcp/internal/batch"
	"github.com/ironsheep/sheet-scale-mcp/internal/scale"
)

type pageOutput struct {
	Path        string             `json:"path" yaml:"path"`
	Valid       bool               `json:"valid" yaml:"valid"`
	Cached      bool               `json:"cached,omitempty" yaml:"cached,omitempty"`
	Calibration *scale.Calibration `json:"calibration,omitempty" yaml:"calibration,omitempty"`
	Error       map[string]any     `json:"error,omitempty" yaml:"error,omitempty"`
}

type reportOutput struct {
	RunID string       `json:"run_id" yaml:"run_id"`
	Pages []pageOutput `json:"pages" yaml:"pages"`
}

func toOutput(report *batch.Report) reportOutput {
	out := reportOutput{RunID: report.RunID, Pages: make([]pageOutput, 0, len(report.Results))}
	for _, res := range report.Results {
		p := pageOutput{
			Path:        res.Path,
			Valid:       res.Valid(),
			Cached:      res.Cached,
			Calibration: res.Calibration,
		}
		if res.Err != nil {
			var se *scale.Error
			if errors.As(res.Err, &se) {
				p.Error = se.ToMap()
			} else {
				p.Error = map[string]any{"message": res.Err.Error()}
			}
		}
		out.Pages = append(out.Pages, p)
	}
	return out
}

// writeReport prints a batch report as json, yaml or text.
func writeReport(w io.Writer, report *batch.Report, format string) error {
	out := toOutput(report)

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		data, err := yaml.Marshal(out)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "text":
		for _, p := range out.Pages {
			switch {
			case p.Valid && p.Cached:
				fmt.Fprintf(w, "%s: %s (cached)\n", p.Path, p.Calibration)
			case p.Valid:
				fmt.Fprintf(w, "%s: %s\n", p.Path, p.Calibration)
			default:
				code, _ := p.Error["error_code"].(string)
				if code == "" {
					code = "ERROR"
				}
				fmt.Fprintf(w, "%s: INVALID %s %v\n", p.Path, code, p.Error["message"])
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (json, yaml or text)", format)
	}
}
