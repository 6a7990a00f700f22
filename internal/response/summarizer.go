package response

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

const summarizeSystemPrompt = `You answer a user's question about local organizations using ONLY the data provided below. The data has a "short" view and an "expanded" view of the same organizations.

Rules:
- Use only facts present in the data. Never invent names, addresses, phone numbers, hours, or services.
- Never describe a service from the paid list as free.
- If nothing exactly matches what was asked, point out the closest alternative that is in the data.
- Prefer the short view; pull hours or full service lists from the expanded view only when the question asks about them.
- If the data does not answer the question, say so plainly.
- Answer in 1-4 conversational sentences. No markdown, no database or technical vocabulary.

Data:
{data}`

// Summarizer turns the tiered views into a conversational answer.
type Summarizer struct {
	chatModel model.BaseChatModel
	template  prompt.ChatTemplate
	log       zerolog.Logger
}

func NewSummarizer(chatModel model.BaseChatModel, log zerolog.Logger) *Summarizer {
	template := prompt.FromMessages(schema.FString,
		schema.SystemMessage(summarizeSystemPrompt),
		schema.UserMessage("{question}"),
	)
	return &Summarizer{chatModel: chatModel, template: template, log: log}
}

// Summarize answers the (pronoun-rewritten) question from the tiers. On any
// failure it returns ErrSummarization together with the plain fallback
// listing, so the caller always has something to show.
func (s *Summarizer) Summarize(ctx context.Context, question string, tiers Tiers) (string, ofmodel.TokenUsage, error) {
	data, err := sonic.MarshalString(tiers)
	if err != nil {
		return FallbackListing(tiers), ofmodel.TokenUsage{}, fmt.Errorf("%w: %v", ofmodel.ErrSummarization, err)
	}

	messages, err := s.template.Format(ctx, map[string]any{
		"data":     data,
		"question": question,
	})
	if err != nil {
		return FallbackListing(tiers), ofmodel.TokenUsage{}, fmt.Errorf("%w: %v", ofmodel.ErrSummarization, err)
	}

	resp, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		s.log.Warn().Err(err).Msg("summarization call failed, using fallback listing")
		return FallbackListing(tiers), ofmodel.TokenUsage{}, fmt.Errorf("%w: %v", ofmodel.ErrSummarization, err)
	}
	usage := llm.UsageFromMessage(resp)

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return FallbackListing(tiers), usage, fmt.Errorf("%w: empty response", ofmodel.ErrSummarization)
	}
	return answer, usage, nil
}
