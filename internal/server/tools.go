package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func pathProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Absolute path to the scanned page image",
	}
}

func thresholdProperty() map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": "Gray level separating ink from paper (1-255). Defaults to the server setting, normally 140",
		"minimum":     1,
		"maximum":     255,
	}
}

func pinnedProperty(what string) map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": "Force the " + what + ", in pixels, instead of measuring it",
		"minimum":     1,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "page_info",
			Description: "Load a page image and return its dimensions, format and whether it is already black and white.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name: "scale_estimate",
			Description: "Measure the global scale of a music page: staff line thickness, interline (distance between staff lines), " +
				"beam thickness, and the smaller interline of a second staff size when present. " +
				"Pages that cannot be calibrated come back with valid=false and an error code.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":            pathProperty(),
					"threshold":       thresholdProperty(),
					"interline":       pinnedProperty("interline"),
					"line":            pinnedProperty("staff line thickness"),
					"beam":            pinnedProperty("beam thickness"),
					"small_interline": pinnedProperty("small staff interline"),
					"stem":            pinnedProperty("stem thickness"),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "scale_histograms",
			Description: "Return the run-length histograms behind a scale estimation, with their peaks, derivative threshold and beam quorum, even when the estimation fails.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":      pathProperty(),
					"threshold": thresholdProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "scale_plot",
			Description: "Render the black and combo run-length histograms of a page as a base64 PNG chart, with a text summary of every peak.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":      pathProperty(),
					"threshold": thresholdProperty(),
					"max_width": map[string]any{
						"type":        "integer",
						"description": "Downscale the chart to at most this width. Default keeps the native 900 pixels",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}
