package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mesh-intelligence/metalens/pkg/types"
)

// Gemini defaults.
const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-2.5-flash"
	DefaultTimeout  = 60 * time.Second
)

// maxResponseBytes bounds how much of a reply body is read.
const maxResponseBytes = 4 << 20

// ErrNoAPIKey is returned when no API key has been configured.
var ErrNoAPIKey = fmt.Errorf("%w: no API key configured", ErrFailed)

// responseSchema constrains the model reply to the AnalysisResult shape.
var responseSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"summary": map[string]any{
			"type":        "STRING",
			"description": "A concise summary of the file content (visual description for images, text summary for documents).",
		},
		"keywords": map[string]any{
			"type":        "ARRAY",
			"items":       map[string]any{"type": "STRING"},
			"description": "List of 5-7 relevant keywords or tags describing the content.",
		},
		"suggestedFilename": map[string]any{
			"type":        "STRING",
			"description": "A clean, SEO-friendly, professional filename suggestion (including extension).",
		},
		"detectedMimeType": map[string]any{
			"type":        "STRING",
			"description": "The detected specific MIME type of the content.",
		},
		"technicalDetails": map[string]any{
			"type":        "OBJECT",
			"description": "Provenance hints perceivable from the content.",
			"properties": map[string]any{
				"resolution": map[string]any{"type": "STRING"},
				"duration":   map[string]any{"type": "STRING"},
				"author":     map[string]any{"type": "STRING"},
				"language":   map[string]any{"type": "STRING"},
				"pageCount":  map[string]any{"type": "INTEGER"},
			},
		},
	},
	"required": []string{"summary", "keywords", "suggestedFilename", "detectedMimeType"},
}

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	Endpoint   string
	Model      string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client // optional; overrides Timeout
}

// Gemini implements Analyzer against the generateContent API.
type Gemini struct {
	httpClient *http.Client
	endpoint   string
	model      string
	apiKey     string
	logger     *slog.Logger
}

// NewGemini creates a Gemini client. Empty fields take the package
// defaults.
func NewGemini(cfg GeminiConfig, logger *slog.Logger) *Gemini {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Gemini{
		httpClient: httpClient,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		logger:     logger.With(slog.String("component", "gemini")),
	}
}

type geminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// wireResult mirrors AnalysisResult with pointers so missing required keys
// can be told apart from empty values.
type wireResult struct {
	Summary           *string        `json:"summary"`
	Keywords          *[]string      `json:"keywords"`
	SuggestedFilename *string        `json:"suggestedFilename"`
	DetectedMimeType  *string        `json:"detectedMimeType"`
	TechnicalDetails  map[string]any `json:"technicalDetails"`
}

// Analyze sends one generateContent request and decodes the JSON reply.
func (g *Gemini) Analyze(ctx context.Context, req Request) (types.AnalysisResult, error) {
	if g.apiKey == "" {
		return types.AnalysisResult{}, ErrNoAPIKey
	}

	body, err := json.Marshal(g.buildRequest(req))
	if err != nil {
		return types.AnalysisResult{}, fmt.Errorf("%w: marshaling request: %w", ErrFailed, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url(), bytes.NewReader(body))
	if err != nil {
		return types.AnalysisResult{}, fmt.Errorf("%w: creating request: %w", ErrFailed, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("x-goog-api-key", g.apiKey)

	g.logger.Debug("sending analysis request",
		slog.String("model", g.model),
		slog.String("mime_type", req.MimeType),
		slog.Int64("raw_size", req.RawSize),
	)

	httpResponse, err := g.httpClient.Do(httpRequest)
	if err != nil {
		return types.AnalysisResult{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return types.AnalysisResult{}, readServiceError(httpResponse)
	}

	var wire geminiResponse
	if err := json.NewDecoder(io.LimitReader(httpResponse.Body, maxResponseBytes)).Decode(&wire); err != nil {
		return types.AnalysisResult{}, fmt.Errorf("%w: decoding envelope: %w", ErrMalformedResponse, err)
	}

	text := wire.text()
	if text == "" {
		if wire.PromptFeedback != nil && wire.PromptFeedback.BlockReason != "" {
			return types.AnalysisResult{}, fmt.Errorf("%w: blocked: %s", ErrEmptyResponse, wire.PromptFeedback.BlockReason)
		}
		return types.AnalysisResult{}, ErrEmptyResponse
	}

	return DecodeResult(text)
}

func (g *Gemini) url() string {
	return fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, g.model)
}

func (g *Gemini) buildRequest(req Request) geminiRequest {
	wire := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiBlob{MimeType: req.MimeType, Data: req.Data}},
				{Text: req.Prompt},
			},
		}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   responseSchema,
		},
	}
	if req.SystemInstruction != "" {
		wire.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemInstruction}}}
	}
	return wire
}

// text concatenates the text parts of the first candidate.
func (r geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String())
}

// DecodeResult parses the model's JSON text into an AnalysisResult. A
// surrounding markdown code fence is tolerated. Missing required keys are
// reported as ErrMalformedResponse.
func DecodeResult(text string) (types.AnalysisResult, error) {
	text = stripFence(text)

	var wire wireResult
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return types.AnalysisResult{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	var missing []string
	if wire.Summary == nil {
		missing = append(missing, "summary")
	}
	if wire.Keywords == nil {
		missing = append(missing, "keywords")
	}
	if wire.SuggestedFilename == nil {
		missing = append(missing, "suggestedFilename")
	}
	if wire.DetectedMimeType == nil {
		missing = append(missing, "detectedMimeType")
	}
	if len(missing) > 0 {
		return types.AnalysisResult{}, fmt.Errorf("%w: missing %s", ErrMalformedResponse, strings.Join(missing, ", "))
	}

	return types.AnalysisResult{
		Summary:           *wire.Summary,
		Keywords:          *wire.Keywords,
		SuggestedFilename: *wire.SuggestedFilename,
		DetectedMimeType:  *wire.DetectedMimeType,
		TechnicalDetails:  wire.TechnicalDetails,
	}, nil
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

// readServiceError parses {"error":{"code":..,"message":..,"status":..}}.
func readServiceError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ServiceError{
			StatusCode: httpResponse.StatusCode,
			Status:     wireError.Error.Status,
			Message:    wireError.Error.Message,
		}
	}
	return &ServiceError{
		StatusCode: httpResponse.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}

// IsServiceError reports whether err carries an HTTP error from the service.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}
