package classifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"resty.dev/v3"

	"github.com/vaigai-ai/vaigai/pkg/models"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-1.5-flash"
)

var (
	// ErrMissingInput means neither text nor an image was supplied.
	ErrMissingInput = errors.New("type a description or upload an image to classify")
	// ErrMissingCredential means no API key was supplied.
	ErrMissingCredential = errors.New("enter and save your Google Gemini API key to use AI classification")
	// ErrMalformedResponse wraps any failure to extract a classification from
	// a successful response.
	ErrMalformedResponse = errors.New("malformed classification response")
)

// APIError is a non-success answer from the generative-content endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Request is everything one classification needs. It is built per call and
// never shared.
type Request struct {
	Text   string
	Image  *Image
	APIKey string
}

// Client classifies waste items through the Gemini generateContent API.
type Client struct {
	httpClient *resty.Client
	model      string
	logger     *zap.Logger
}

// NewClient creates a Client for baseURL and model. Empty values fall back
// to the public endpoint and DefaultModel.
func NewClient(baseURL, model string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetHeader("Content-Type", "application/json")

	return &Client{
		httpClient: client,
		model:      model,
		logger:     logger.Named("classifier"),
	}
}

// Close releases idle connections.
func (client *Client) Close() error {
	return client.httpClient.Close()
}

// Model returns the model name requests are sent to.
func (client *Client) Model() string {
	return client.model
}

// Classify sends one generateContent request and parses the structured
// answer. There is no retry; the caller's context is the only deadline.
func (client *Client) Classify(ctx context.Context, req Request) (models.Classification, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && req.Image == nil {
		return models.Classification{}, ErrMissingInput
	}
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		return models.Classification{}, ErrMissingCredential
	}

	body := buildRequestBody(text, req.Image)

	response, err := client.httpClient.R().
		SetContext(ctx).
		SetQueryParam("key", apiKey).
		SetBody(body).
		SetResult(&generateContentResponse{}).
		Post("/models/" + client.model + ":generateContent")
	if err != nil {
		if response != nil && response.IsSuccess() {
			// The envelope itself did not decode.
			return models.Classification{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return models.Classification{}, fmt.Errorf("httpClient.Post > %w", err)
	}
	if response.IsError() {
		apiErr := newAPIError(response.StatusCode(), response.String())
		client.logger.Warn("classification request failed",
			zap.Int("status", apiErr.StatusCode),
			zap.String("message", apiErr.Message))
		return models.Classification{}, apiErr
	}

	envelope, _ := response.Result().(*generateContentResponse)
	result, err := parseClassification(envelope)
	if err != nil {
		client.logger.Warn("unparseable classification", zap.Error(err))
		return models.Classification{}, err
	}

	client.logger.Debug("classified",
		zap.String("item", result.ItemName),
		zap.String("category", string(result.Category)))
	return result, nil
}

// newAPIError prefers the server's error.message and falls back to the
// HTTP status text.
func newAPIError(status int, body string) *APIError {
	var payload errorResponse
	if err := json.Unmarshal([]byte(body), &payload); err == nil && payload.Error.Message != "" {
		return &APIError{StatusCode: status, Message: payload.Error.Message}
	}
	msg := http.StatusText(status)
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}
	return &APIError{StatusCode: status, Message: msg}
}

func buildRequestBody(text string, image *Image) generateContentRequest {
	parts := []part{{Text: Prompt}}
	if text != "" {
		parts = append(parts, part{Text: "User Description: " + text})
	}
	if image != nil {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: image.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(image.Data),
		}})
	}
	return generateContentRequest{
		Contents: []content{{Parts: parts}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
		},
	}
}

func parseClassification(envelope *generateContentResponse) (models.Classification, error) {
	if envelope == nil || len(envelope.Candidates) == 0 {
		return models.Classification{}, fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}
	parts := envelope.Candidates[0].Content.Parts
	if len(parts) == 0 || parts[0].Text == "" {
		return models.Classification{}, fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}

	var fields struct {
		ItemName         *string `json:"itemName"`
		Category         *string `json:"category"`
		DisposalGuidance *string `json:"disposalGuidance"`
		Risks            *string `json:"risks"`
	}
	if err := json.Unmarshal([]byte(parts[0].Text), &fields); err != nil {
		return models.Classification{}, fmt.Errorf("%w: json.Unmarshal(%s) > %v", ErrMalformedResponse, parts[0].Text, err)
	}

	var missing []string
	if fields.ItemName == nil {
		missing = append(missing, "itemName")
	}
	if fields.Category == nil {
		missing = append(missing, "category")
	}
	if fields.DisposalGuidance == nil {
		missing = append(missing, "disposalGuidance")
	}
	if fields.Risks == nil {
		missing = append(missing, "risks")
	}
	if len(missing) > 0 {
		return models.Classification{}, fmt.Errorf("%w: missing %s", ErrMalformedResponse, strings.Join(missing, ", "))
	}

	return models.Classification{
		ItemName:         *fields.ItemName,
		Category:         models.Category(*fields.Category),
		DisposalGuidance: *fields.DisposalGuidance,
		Risks:            *fields.Risks,
	}, nil
}
