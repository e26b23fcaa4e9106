package entities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/DeafMist/market-news-radar/internal/models"
)

const (
	defaultModel   = "claude-haiku-4-5"
	maxPromptChars = 500
)

const systemPrompt = `You extract financial entities from news articles.
Return ONLY a JSON object, no other text, in this exact format:
{
  "companies": ["Company Name"],
  "sectors": ["Sector"],
  "regulators": ["Regulator"],
  "people": ["Person Name"],
  "events": ["Event"]
}
Companies are listed firms (HDFC Bank, Infosys). Sectors are industries (Banking, IT, Auto).
Regulators are regulatory bodies (RBI, SEBI). People are executives or officials.
Events are significant happenings (dividend, merger, rate hike).`

// MessageClient is the slice of the Anthropic SDK used here.
type MessageClient interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// LLMExtractor asks a Claude model for entities.
type LLMExtractor struct {
	messages MessageClient
	model    anthropic.Model
}

// NewLLMExtractor returns nil when apiKey is empty so callers can pass the
// result straight into NewFallbackExtractor.
func NewLLMExtractor(apiKey, model string) *LLMExtractor {
	if apiKey == "" {
		return nil
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return NewLLMExtractorWithClient(&client.Messages, model)
}

// NewLLMExtractorWithClient builds an extractor over an existing message client.
func NewLLMExtractorWithClient(messages MessageClient, model string) *LLMExtractor {
	if model == "" {
		model = defaultModel
	}
	return &LLMExtractor{messages: messages, model: anthropic.Model(model)}
}

// Extract implements Extractor.
func (l *LLMExtractor) Extract(ctx context.Context, title, content string) Result {
	if l == nil || l.messages == nil {
		return Result{Err: ErrUnavailable}
	}

	if runes := []rune(content); len(runes) > maxPromptChars {
		content = string(runes[:maxPromptChars])
	}
	prompt := fmt.Sprintf("Article Title: %s\nArticle Content: %s", title, content)

	resp, err := l.messages.New(ctx, anthropic.MessageNewParams{
		Model:     l.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Result{Err: fmt.Errorf("anthropic API error: %w", err)}
	}
	if resp == nil || len(resp.Content) == 0 {
		return Result{Err: errors.New("no response from anthropic")}
	}

	entities, err := parseEntities(resp.Content[0].Text)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Entities: entities}
}

type extraction struct {
	Companies  []string `json:"companies"`
	Sectors    []string `json:"sectors"`
	Regulators []string `json:"regulators"`
	People     []string `json:"people"`
	Events     []string `json:"events"`
}

func parseEntities(raw string) ([]models.Entity, error) {
	content := cleanJSONResponse(raw)

	var parsed extraction
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	var out []models.Entity
	add := func(names []string, typ models.EntityType, context string) {
		for _, n := range names {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			out = append(out, models.Entity{Name: n, Type: typ, Mentions: 1, Context: context})
		}
	}
	add(parsed.Companies, models.EntityCompany, "Company mention")
	add(parsed.Sectors, models.EntitySector, "Sector/Industry")
	add(parsed.Regulators, models.EntityRegulator, "Regulatory body")
	add(parsed.People, models.EntityPerson, "Person mentioned")
	add(parsed.Events, models.EntityEvent, "Significant event")
	return out, nil
}

func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
