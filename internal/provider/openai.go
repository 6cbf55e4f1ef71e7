// Package provider bridges the bot to an OpenAI-compatible
// chat-completion API.
package provider

import (
	"context"
	"log/slog"
	"time"

	"faqbot/internal/domain"
	"faqbot/internal/metrics"

	"github.com/go-resty/resty/v2"
)

// Fallback is the reply substituted when the completion call fails in
// any way. The bridge never surfaces an error to its caller.
const Fallback = "I'm speechless"

// OpenAI implements domain.Completer against an OpenAI-compatible API.
type OpenAI struct {
	http         *resty.Client
	apiKey       string
	organization string
	apiBase      string
	model        string
	maxTokens    int
	logger       *slog.Logger
}

type OpenAIConfig struct {
	APIKey       string
	Organization string
	APIBase      string
	Model        string
	MaxTokens    int
	Logger       *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		http:         resty.New().SetTimeout(60 * time.Second),
		apiKey:       cfg.APIKey,
		organization: cfg.Organization,
		apiBase:      cfg.APIBase,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		logger:       cfg.Logger,
	}
}

// Deterministic sampling: the bot answers FAQ-style questions, so the
// same question should get the same answer.
type oaiRequest struct {
	Model            string               `json:"model"`
	Messages         []domain.ChatMessage `json:"messages"`
	Temperature      float64              `json:"temperature"`
	TopP             float64              `json:"top_p"`
	FrequencyPenalty float64              `json:"frequency_penalty"`
	PresencePenalty  float64              `json:"presence_penalty"`
	MaxTokens        int                  `json:"max_tokens"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Error   *oaiError   `json:"error"`
}

type oaiChoice struct {
	Message      domain.ChatMessage `json:"message"`
	FinishReason string             `json:"finish_reason"`
}

type oaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Complete issues one completion request for the given messages (the
// Guide Set followed by one user message) and returns the first
// choice's text. Any failure yields Fallback. The bridge keeps no
// history between calls.
func (o *OpenAI) Complete(ctx context.Context, messages []domain.ChatMessage) string {
	body := oaiRequest{
		Model:            o.model,
		Messages:         messages,
		Temperature:      0,
		TopP:             1,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
		MaxTokens:        o.maxTokens,
	}

	var out oaiResponse
	req := o.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+o.apiKey).
		SetBody(body).
		SetResult(&out).
		SetError(&out)
	if o.organization != "" {
		req.SetHeader("OpenAI-Organization", o.organization)
	}

	resp, err := req.Post(o.apiBase + "/chat/completions")
	if err != nil {
		o.logger.Error("completion request failed", "err", err)
		metrics.CompletionFallback()
		return Fallback
	}
	if resp.IsError() {
		if out.Error != nil {
			o.logger.Error("completion rejected", "status", resp.StatusCode(), "type", out.Error.Type, "message", out.Error.Message)
		} else {
			o.logger.Error("completion rejected", "status", resp.StatusCode())
		}
		metrics.CompletionFallback()
		return Fallback
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		o.logger.Warn("completion returned no choices")
		metrics.CompletionFallback()
		return Fallback
	}

	return out.Choices[0].Message.Content
}
