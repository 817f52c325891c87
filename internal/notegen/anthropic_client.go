package notegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/moonlight-recovery/note-builder/internal/config"
	"github.com/moonlight-recovery/note-builder/internal/note"
	"github.com/moonlight-recovery/note-builder/internal/observability"
)

const anthropicVersion = "2023-06-01"

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessageRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type anthropicMessageResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      *anthropicUsage         `json:"usage"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// AnthropicClient implements Generator using Anthropic's messages API.
type AnthropicClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
}

// NewAnthropicClient creates a new Anthropic note-generation client
func NewAnthropicClient(cfg *config.Config) *AnthropicClient {
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: time.Duration(cfg.AnthropicTimeout) * time.Second},
		baseURL:    strings.TrimSuffix(cfg.AnthropicBaseURL, "/"),
		apiKey:     cfg.AnthropicAPIKey,
		model:      cfg.AnthropicModel,
		maxTokens:  cfg.AnthropicMaxTokens,
	}
}

// Generate drafts a SOAP note from a transcript. API errors surface to the
// caller unmodified; there is no local retry policy.
func (c *AnthropicClient) Generate(ctx context.Context, transcript string, sctx SessionContext) (*note.Record, error) {
	request := anthropicMessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    soapSystemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: buildUserPrompt(transcript, sctx)},
		},
	}

	start := time.Now()
	response, err := c.createMessage(ctx, request)
	observability.RecordGeneration(start, err)
	if err != nil {
		return nil, err
	}

	text := ""
	for _, block := range response.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("anthropic response contained no text content")
	}

	logger := observability.GetLogger()
	event := logger.Info().
		Str("model", response.Model).
		Str("stop_reason", response.StopReason).
		Dur("elapsed", time.Since(start))
	if response.Usage != nil {
		event = event.
			Int64("input_tokens", response.Usage.InputTokens).
			Int64("output_tokens", response.Usage.OutputTokens)
	}
	event.Msg("Note generation complete")

	rec := parseNoteResponse(text)
	return &rec, nil
}

func (c *AnthropicClient) createMessage(ctx context.Context, request anthropicMessageRequest) (*anthropicMessageResponse, error) {
	requestBits, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal anthropic request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/messages",
		bytes.NewReader(requestBits),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build anthropic request: %w", err)
	}

	httpRequest.Header.Set("content-type", "application/json")
	httpRequest.Header.Set("x-api-key", c.apiKey)
	httpRequest.Header.Set("anthropic-version", anthropicVersion)

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer httpResponse.Body.Close()

	responseBits, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read anthropic response: %w", err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		apiErr := anthropicErrorResponse{}
		message := strings.TrimSpace(string(responseBits))
		if unmarshalErr := json.Unmarshal(responseBits, &apiErr); unmarshalErr == nil {
			if candidate := strings.TrimSpace(apiErr.Error.Message); candidate != "" {
				message = candidate
			}
		}
		if message == "" {
			message = "unknown anthropic error"
		}
		return nil, fmt.Errorf("anthropic API error (%d): %s", httpResponse.StatusCode, message)
	}

	response := anthropicMessageResponse{}
	if err := json.Unmarshal(responseBits, &response); err != nil {
		return nil, fmt.Errorf("failed to decode anthropic response: %w", err)
	}
	return &response, nil
}
