package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/vaigai-ai/vaigai/pkg/classifier"
	"github.com/vaigai-ai/vaigai/pkg/models"
)

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"vaigai_classify":     handleClassify,
	"vaigai_categories":   handleCategories,
	"vaigai_report_issue": handleReportIssue,
	"vaigai_cache_stats":  handleCacheStats,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "vaigai_classify",
		Description: "Classify a waste item into Biodegradable, Recyclable, Hazardous, Biomedical or E-Waste and return disposal guidance. Give a description, an image path, or both.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"description": map[string]any{
					"type":        "string",
					"description": "What the item is, e.g. \"banana peel\"",
				},
				"image_path": map[string]any{
					"type":        "string",
					"description": "Path to a JPG or PNG photo of the item (optional)",
				},
			},
		},
	},
	{
		Name:        "vaigai_categories",
		Description: "List the waste categories a classification can return.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "vaigai_report_issue",
		Description: "Report an environmental issue such as an overflowing bin or illegal dumping.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"location", "issue_type"},
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "Where the issue is",
				},
				"issue_type": map[string]any{
					"type": "string",
					"enum": []string{"overflowing_bin", "illegal_dumping", "hazardous_spill", "missed_collection", "other"},
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Extra detail (optional)",
				},
			},
		},
	},
	{
		Name:        "vaigai_cache_stats",
		Description: "Show offline asset cache statistics (versions, entries, hits, misses).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

type classifyArgs struct {
	Description string `json:"description"`
	ImagePath   string `json:"image_path"`
}

func handleClassify(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Classifier == nil {
		return textResult("Classification is not configured.")
	}
	var args classifyArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}

	req := classifier.Request{Text: args.Description}
	if path := strings.TrimSpace(args.ImagePath); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return errorResult("Error opening image: " + err.Error())
		}
		req.Image, err = classifier.ReadImage(f)
		_ = f.Close()
		if err != nil {
			return errorResult(err.Error())
		}
	}

	apiKey, err := s.apiKey(ctx)
	if err != nil {
		return errorResult("Error loading API key: " + err.Error())
	}
	req.APIKey = apiKey

	result, err := s.deps.Classifier.Classify(ctx, req)
	if err != nil {
		var apiErr *classifier.APIError
		if errors.As(err, &apiErr) {
			return errorResult("Gemini API error: " + apiErr.Message)
		}
		return errorResult(err.Error())
	}
	return textResult(formatClassification(result))
}

func (s *Server) apiKey(ctx context.Context) (string, error) {
	if s.deps.APIKey != "" {
		return s.deps.APIKey, nil
	}
	if s.deps.Keys == nil {
		return "", nil
	}
	return s.deps.Keys.LoadAPIKey(ctx)
}

func handleCategories(_ context.Context, _ *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatCategories(models.Categories))
}

func handleReportIssue(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Reports == nil {
		return textResult("Issue reporting is not configured.")
	}
	var args models.IssueReport
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	receipt, err := s.deps.Reports.Submit(ctx, args)
	if err != nil {
		return errorResult("Error submitting report: " + err.Error())
	}
	return textResult("Report submitted successfully! Reference: " + receipt.ID)
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Cache == nil {
		return textResult("Asset cache is not configured.")
	}
	stats, err := s.deps.Cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}
