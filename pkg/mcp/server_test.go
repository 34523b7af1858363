package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaigai-ai/vaigai/pkg/classifier"
	"github.com/vaigai-ai/vaigai/pkg/models"
)

type fakeClassifier struct {
	got    classifier.Request
	result models.Classification
	err    error
}

func (f *fakeClassifier) Classify(_ context.Context, req classifier.Request) (models.Classification, error) {
	f.got = req
	return f.result, f.err
}

type fakeKeys struct{ key string }

func (f fakeKeys) LoadAPIKey(context.Context) (string, error) { return f.key, nil }

type fakeReporter struct{ got models.IssueReport }

func (f *fakeReporter) Submit(_ context.Context, r models.IssueReport) (models.ReportReceipt, error) {
	f.got = r
	return models.ReportReceipt{ID: "rep-1"}, nil
}

// fakeCache implements CacheStatter for testing.
type fakeCache struct {
	stats models.CacheStats
}

func (f *fakeCache) Stats(context.Context) (models.CacheStats, error) { return f.stats, nil }

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	require.NoError(t, err)
	line = append(line, '\n')

	var out bytes.Buffer
	require.NoError(t, srv.Run(context.Background(), bytes.NewReader(line), &out))

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp), "raw: %s", out.String())
	return resp
}

func callTool(t *testing.T, srv *Server, name string, args any) ToolCallResult {
	t.Helper()
	rawArgs, err := json.Marshal(args)
	require.NoError(t, err)
	params, err := json.Marshal(ToolCallParams{Name: name, Arguments: rawArgs})
	require.NoError(t, err)

	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`7`),
		Method:  "tools/call",
		Params:  params,
	})
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result ToolCallResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.NotEmpty(t, result.Content)
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(Deps{}, "test", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})
	require.Nil(t, resp.Error)

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, "vaigai", result.ServerInfo.Name)
	assert.Equal(t, "test", result.ServerInfo.Version)
}

func TestToolsList(t *testing.T) {
	srv := New(Deps{}, "test", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})
	require.Nil(t, resp.Error)

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	require.NoError(t, json.Unmarshal(data, &result))

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		_, ok := toolHandlers[tool.Name]
		assert.True(t, ok, "no handler for %s", tool.Name)
	}
	assert.ElementsMatch(t, []string{"vaigai_classify", "vaigai_categories", "vaigai_report_issue", "vaigai_cache_stats"}, names)
}

func TestNotificationGetsNoResponse(t *testing.T) {
	srv := New(Deps{}, "test", nil)
	var out bytes.Buffer
	in := `{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n"
	require.NoError(t, srv.Run(context.Background(), strings.NewReader(in), &out))
	assert.Empty(t, out.String())
}

func TestUnknownMethod(t *testing.T) {
	srv := New(Deps{}, "test", nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`3`),
		Method:  "resources/list",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestParseError(t *testing.T) {
	srv := New(Deps{}, "test", nil)
	var out bytes.Buffer
	require.NoError(t, srv.Run(context.Background(), strings.NewReader("not json\n"), &out))

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
}

func TestClassifyTool(t *testing.T) {
	fc := &fakeClassifier{result: models.Classification{
		ItemName:         "Syringe",
		Category:         "Biomedical Waste",
		DisposalGuidance: "Use a sharps container",
		Risks:            "Needle-stick injury",
	}}
	srv := New(Deps{Classifier: fc, Keys: fakeKeys{key: "AIza-saved"}}, "test", nil)

	result := callTool(t, srv, "vaigai_classify", classifyArgs{Description: "used syringe"})
	assert.False(t, result.IsError)
	text := result.Content[0].Text
	assert.Contains(t, text, "Syringe")
	assert.Contains(t, text, "Biomedical Waste (Biomedical)")
	assert.Contains(t, text, "Needle-stick injury")

	assert.Equal(t, "used syringe", fc.got.Text)
	assert.Equal(t, "AIza-saved", fc.got.APIKey)
}

func TestClassifyToolImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "item.png")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	require.NoError(t, os.WriteFile(path, png, 0o600))

	fc := &fakeClassifier{result: models.Classification{ItemName: "Bottle", Category: models.CategoryRecyclable}}
	srv := New(Deps{Classifier: fc, APIKey: "AIza-config", Keys: fakeKeys{key: "AIza-saved"}}, "test", nil)

	result := callTool(t, srv, "vaigai_classify", classifyArgs{ImagePath: path})
	assert.False(t, result.IsError)
	require.NotNil(t, fc.got.Image)
	assert.Equal(t, "image/png", fc.got.Image.MIMEType)
	assert.Equal(t, "AIza-config", fc.got.APIKey)
}

func TestClassifyToolAPIError(t *testing.T) {
	fc := &fakeClassifier{err: &classifier.APIError{StatusCode: 400, Message: "bad key"}}
	srv := New(Deps{Classifier: fc, APIKey: "bad"}, "test", nil)

	result := callTool(t, srv, "vaigai_classify", classifyArgs{Description: "banana peel"})
	assert.True(t, result.IsError)
	assert.Equal(t, "Gemini API error: bad key", result.Content[0].Text)
}

func TestReportIssueTool(t *testing.T) {
	fr := &fakeReporter{}
	srv := New(Deps{Reports: fr}, "test", nil)

	result := callTool(t, srv, "vaigai_report_issue", map[string]string{
		"location":   "Goripalayam",
		"issue_type": "illegal_dumping",
	})
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "rep-1")
	assert.Equal(t, "Goripalayam", fr.got.Location)
	assert.Equal(t, "illegal_dumping", fr.got.IssueType)
}

func TestCacheStatsTool(t *testing.T) {
	srv := New(Deps{Cache: &fakeCache{stats: models.CacheStats{
		Versions: []string{"vaigai-ai-v1"},
		Entries:  5,
		Hits:     3,
		Misses:   1,
	}}}, "test", nil)

	result := callTool(t, srv, "vaigai_cache_stats", struct{}{})
	text := result.Content[0].Text
	assert.Contains(t, text, "vaigai-ai-v1")
	assert.Contains(t, text, "Entries:  5")
	assert.Contains(t, text, "75.0%")
}

func TestUnconfiguredTools(t *testing.T) {
	srv := New(Deps{}, "test", nil)
	for _, name := range []string{"vaigai_classify", "vaigai_report_issue", "vaigai_cache_stats"} {
		result := callTool(t, srv, name, struct{}{})
		assert.Contains(t, result.Content[0].Text, "not configured", name)
	}

	result := callTool(t, srv, "vaigai_nope", struct{}{})
	assert.True(t, result.IsError)
}

func TestCategoriesTool(t *testing.T) {
	srv := New(Deps{}, "test", nil)
	result := callTool(t, srv, "vaigai_categories", struct{}{})
	for _, c := range models.Categories {
		assert.Contains(t, result.Content[0].Text, string(c))
	}
}
