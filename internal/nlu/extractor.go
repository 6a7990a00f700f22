// Package nlu extracts structured intent from a raw user message with a
// chat model. The contract with the model is strict: a single JSON object
// with exactly the three expected string fields, nothing else.
package nlu

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"orgfinder/internal/llm"
	ofmodel "orgfinder/internal/model"
)

const extractSystemPrompt = `You extract search intent from a user message about local organizations and their services.

Respond with ONLY a JSON object with exactly these three string fields:
{"time_keywords": "", "service_keywords": "", "location_keywords": ""}

- time_keywords: words about days or hours ("Sunday", "after 5pm", "tonight"). Empty string if none.
- service_keywords: words about what the user wants ("free wifi", "meals", "job help"). Keep pronouns like "they" or "those" if the user refers back to earlier results. Empty string if none.
- location_keywords: words about where ("near City Hall", "19121", "walking distance from Rittenhouse"). Never put times of day here. Empty string if none.

Copy the user's own words into the fields. Do not add fields, comments, or markdown.`

// Extractor runs the intent-extraction call and validates the response
// shape.
type Extractor struct {
	chatModel model.BaseChatModel
	template  prompt.ChatTemplate
	log       zerolog.Logger
}

func NewExtractor(chatModel model.BaseChatModel, log zerolog.Logger) *Extractor {
	template := prompt.FromMessages(schema.FString,
		schema.SystemMessage(extractSystemPrompt),
		schema.UserMessage("{query}"),
	)
	return &Extractor{chatModel: chatModel, template: template, log: log}
}

// Extract returns the intent for the user's message plus the token usage of
// the call. A malformed model response yields an empty Intent and
// ErrIntentParse; callers degrade rather than retry.
func (e *Extractor) Extract(ctx context.Context, query string) (ofmodel.Intent, ofmodel.TokenUsage, error) {
	messages, err := e.template.Format(ctx, map[string]any{"query": query})
	if err != nil {
		return ofmodel.Intent{}, ofmodel.TokenUsage{}, fmt.Errorf("format extraction prompt: %w", err)
	}

	resp, err := e.chatModel.Generate(ctx, messages)
	if err != nil {
		return ofmodel.Intent{}, ofmodel.TokenUsage{}, fmt.Errorf("intent extraction call: %w", err)
	}
	usage := llm.UsageFromMessage(resp)

	intent, err := parseIntent(resp.Content)
	if err != nil {
		e.log.Warn().Err(err).Str("content", resp.Content).Msg("intent response rejected")
		return ofmodel.Intent{}, usage, err
	}
	return intent, usage, nil
}

// parseIntent enforces the three-key contract. Unknown keys, missing keys,
// or non-string values all reject the response.
func parseIntent(content string) (ofmodel.Intent, error) {
	cleaned := stripFences(content)

	var raw map[string]any
	if err := sonic.Unmarshal([]byte(cleaned), &raw); err != nil {
		return ofmodel.Intent{}, fmt.Errorf("%w: %v", ofmodel.ErrIntentParse, err)
	}
	if len(raw) != 3 {
		return ofmodel.Intent{}, fmt.Errorf("%w: got %d fields", ofmodel.ErrIntentParse, len(raw))
	}

	var intent ofmodel.Intent
	for _, key := range []string{"time_keywords", "service_keywords", "location_keywords"} {
		value, ok := raw[key]
		if !ok {
			return ofmodel.Intent{}, fmt.Errorf("%w: missing field %q", ofmodel.ErrIntentParse, key)
		}
		text, ok := value.(string)
		if !ok {
			return ofmodel.Intent{}, fmt.Errorf("%w: field %q is not a string", ofmodel.ErrIntentParse, key)
		}
		switch key {
		case "time_keywords":
			intent.TimeKeywords = strings.TrimSpace(text)
		case "service_keywords":
			intent.ServiceKeywords = strings.TrimSpace(text)
		case "location_keywords":
			intent.LocationKeywords = strings.TrimSpace(text)
		}
	}
	return intent, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON
// in one despite instructions.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
