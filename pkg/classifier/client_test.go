package classifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vaigai-ai/vaigai/pkg/models"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func successBody(t *testing.T, text string) []byte {
	t.Helper()
	envelope := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": text}},
				},
				"finishReason": "STOP",
			},
		},
	}
	b, err := json.Marshal(envelope)
	require.NoError(t, err)
	return b
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func TestClient_Classify(t *testing.T) {
	const bananaJSON = `{"itemName":"Banana peel","category":"Biodegradable","disposalGuidance":"Compost","risks":""}`

	tests := []struct {
		name              string
		request           Request
		mockServerHandler func(t *testing.T, w http.ResponseWriter, r *http.Request)

		wantResponse    models.Classification
		wantCalls       int32
		wantErrorIs     error
		wantAPIStatus   int
		wantErrorString string
	}{
		{
			name:    "text only",
			request: Request{Text: "banana peel", APIKey: "AIza-test"},
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
				assert.Equal(t, "AIza-test", r.URL.Query().Get("key"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var body generateContentRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				require.Len(t, body.Contents, 1)
				parts := body.Contents[0].Parts
				require.Len(t, parts, 2)
				assert.Equal(t, Prompt, parts[0].Text)
				assert.Contains(t, parts[1].Text, "banana peel")
				assert.Nil(t, parts[1].InlineData)
				assert.Equal(t, "application/json", body.GenerationConfig.ResponseMimeType)

				writeJSON(w, http.StatusOK, successBody(t, bananaJSON))
			},
			wantResponse: models.Classification{
				ItemName:         "Banana peel",
				Category:         models.CategoryBiodegradable,
				DisposalGuidance: "Compost",
				Risks:            "",
			},
			wantCalls: 1,
		},
		{
			name:    "image only",
			request: Request{Image: &Image{MIMEType: "image/png", Data: pngHeader}, APIKey: "AIza-test"},
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				var body generateContentRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				parts := body.Contents[0].Parts
				require.Len(t, parts, 2)
				assert.Equal(t, Prompt, parts[0].Text)
				require.NotNil(t, parts[1].InlineData)
				assert.Equal(t, "image/png", parts[1].InlineData.MimeType)
				assert.Equal(t, base64.StdEncoding.EncodeToString(pngHeader), parts[1].InlineData.Data)

				writeJSON(w, http.StatusOK, successBody(t,
					`{"itemName":"Battery","category":"Hazardous","disposalGuidance":"Take to a collection point","risks":"Leaks heavy metals"}`))
			},
			wantResponse: models.Classification{
				ItemName:         "Battery",
				Category:         models.CategoryHazardous,
				DisposalGuidance: "Take to a collection point",
				Risks:            "Leaks heavy metals",
			},
			wantCalls: 1,
		},
		{
			name:    "text and image",
			request: Request{Text: "old phone", Image: &Image{MIMEType: "image/png", Data: pngHeader}, APIKey: "AIza-test"},
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				var body generateContentRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				parts := body.Contents[0].Parts
				require.Len(t, parts, 3)
				assert.Equal(t, "User Description: old phone", parts[1].Text)
				assert.NotNil(t, parts[2].InlineData)

				writeJSON(w, http.StatusOK, successBody(t,
					`{"itemName":"Mobile phone","category":"E-Waste","disposalGuidance":"Authorised e-waste recycler","risks":""}`))
			},
			wantResponse: models.Classification{
				ItemName:         "Mobile phone",
				Category:         models.CategoryEWaste,
				DisposalGuidance: "Authorised e-waste recycler",
			},
			wantCalls: 1,
		},
		{
			name:    "server error message is surfaced",
			request: Request{Text: "banana peel", APIKey: "bad"},
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, []byte(`{"error":{"message":"bad key"}}`))
			},
			wantCalls:       1,
			wantAPIStatus:   http.StatusBadRequest,
			wantErrorString: "bad key",
		},
		{
			name:    "status text when body has no message",
			request: Request{Text: "banana peel", APIKey: "AIza-test"},
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("<html>down</html>"))
			},
			wantCalls:       1,
			wantAPIStatus:   http.StatusServiceUnavailable,
			wantErrorString: "Service Unavailable",
		},
		{
			name:    "inner text is not JSON",
			request: Request{Text: "banana peel", APIKey: "AIza-test"},
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, successBody(t, "I think it is compost"))
			},
			wantCalls:   1,
			wantErrorIs: ErrMalformedResponse,
		},
		{
			name:    "missing field",
			request: Request{Text: "banana peel", APIKey: "AIza-test"},
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, successBody(t, `{"itemName":"Banana peel","category":"Biodegradable","disposalGuidance":"Compost"}`))
			},
			wantCalls:       1,
			wantErrorIs:     ErrMalformedResponse,
			wantErrorString: "risks",
		},
		{
			name:    "envelope is not JSON",
			request: Request{Text: "banana peel", APIKey: "AIza-test"},
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, []byte(`{"candidates":`))
			},
			wantCalls:   1,
			wantErrorIs: ErrMalformedResponse,
		},
		{
			name:    "no candidates",
			request: Request{Text: "banana peel", APIKey: "AIza-test"},
			mockServerHandler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, []byte(`{"candidates":[]}`))
			},
			wantCalls:   1,
			wantErrorIs: ErrMalformedResponse,
		},
		{
			name:        "missing input is rejected before sending",
			request:     Request{Text: "   ", APIKey: "AIza-test"},
			wantErrorIs: ErrMissingInput,
		},
		{
			name:        "missing credential is rejected before sending",
			request:     Request{Text: "banana peel"},
			wantErrorIs: ErrMissingCredential,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				if tt.mockServerHandler == nil {
					t.Error("unexpected request")
					return
				}
				tt.mockServerHandler(t, w, r)
			}))
			defer server.Close()

			client := NewClient(server.URL, "gemini-1.5-flash", zap.NewNop())
			defer func() { _ = client.Close() }()

			got, err := client.Classify(context.Background(), tt.request)
			assert.Equal(t, tt.wantCalls, calls.Load())

			if tt.wantErrorIs != nil || tt.wantAPIStatus != 0 {
				require.Error(t, err)
				if tt.wantErrorIs != nil {
					assert.ErrorIs(t, err, tt.wantErrorIs)
				}
				if tt.wantAPIStatus != 0 {
					var apiErr *APIError
					require.True(t, errors.As(err, &apiErr))
					assert.Equal(t, tt.wantAPIStatus, apiErr.StatusCode)
					assert.Equal(t, tt.wantErrorString, apiErr.Message)
				}
				if tt.wantErrorString != "" {
					assert.Contains(t, err.Error(), tt.wantErrorString)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantResponse, got)
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient("", "", nil)
	defer func() { _ = client.Close() }()
	assert.Equal(t, DefaultModel, client.Model())
}

func TestClassifyHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(server.URL, "", nil)
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Classify(ctx, Request{Text: "banana peel", APIKey: "AIza-test"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
