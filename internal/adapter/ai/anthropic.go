package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"pressroom/internal/model"
	"pressroom/pkg/config"
	"pressroom/pkg/metrics"
)

const defaultModel = "claude-sonnet-4-5-20250929"

const systemPrompt = `You are the content desk of a regional news site. You receive
press releases by email and decide whether they are worth turning into a post.
Classify the email and, when it is relevant, draft the post.

Respond with a single JSON object, no prose, no code fences:
{
  "category": "news|culture|gastronomy|tourism|economy|events|other",
  "confidence": 0.0-1.0,
  "is_relevant": true|false,
  "topics": ["..."],
  "draft": {
    "title": "SEO title, max 60 chars",
    "body": "full post body",
    "category": "same as above",
    "tags": ["3-5 tags"],
    "meta_description": "max 155 chars"
  }
}
Omit "draft" entirely when is_relevant is false.`

// Client generates the analysis payload for the workflow engine's analyze
// action.
type Client struct {
	client anthropic.Client
	model  string
	logger *zap.Logger
}

func NewClient(cfg config.AIConfig, logger *zap.Logger) *Client {
	m := cfg.Model
	if m == "" {
		m = defaultModel
	}
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  m,
		logger: logger,
	}
}

type analysisResponse struct {
	Category   string                `json:"category"`
	Confidence float64               `json:"confidence"`
	IsRelevant bool                  `json:"is_relevant"`
	Topics     []string              `json:"topics"`
	Draft      *model.GeneratedDraft `json:"draft"`
}

func (c *Client) AnalyzeEmail(ctx context.Context, sender, subject, body string) (*model.AIAnalysis, error) {
	userPrompt := fmt.Sprintf("From: %s\nSubject: %s\n\n%s", sender, subject, truncate(body, 6000))

	start := time.Now()
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		metrics.RecordAdapterCallLatency("ai", "error", time.Since(start))
		return nil, fmt.Errorf("anthropic call failed: %w", err)
	}
	metrics.RecordAdapterCallLatency("ai", "success", time.Since(start))

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in model response")
	}

	var parsed analysisResponse
	if err := json.Unmarshal([]byte(stripFences(text)), &parsed); err != nil {
		c.logger.Error("Unparseable analysis response", zap.String("response", truncate(text, 500)), zap.Error(err))
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}
	if parsed.Category == "" {
		parsed.Category = "other"
	}

	return &model.AIAnalysis{
		Category:   parsed.Category,
		Confidence: parsed.Confidence,
		IsRelevant: parsed.IsRelevant,
		Topics:     parsed.Topics,
		Draft:      parsed.Draft,
		AnalyzedAt: time.Now().UTC(),
	}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
