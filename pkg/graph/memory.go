package graph

import (
	"context"
	"log/slog"

	"github.com/parleyhq/parley/pkg/llm"
)

// DefaultSystemPrompt is the platform prompt prepended to every run.
const DefaultSystemPrompt = "You are a helpful assistant."

// DefaultMaxContextUnits is the context budget for history trimming.
// Counting is deliberately cheap: one unit per message.
const DefaultMaxContextUnits = 4000

const summarizeInstruction = "Distill the above chat messages into a single concise summary message. " +
	"Include key facts and any decisions that were made. Be concise."

// memoryLoaderNode builds the fresh message list for the model:
// system prompt, optionally a summary of dropped history, the trimmed
// history tail, and finally the processed user input.
//
// Summarization failure is non-fatal; the trimmed history is used as is.
func (g *Graph) memoryLoaderNode(ctx context.Context, s *State) (*Update, error) {
	base := []llm.Message{
		{Role: llm.RoleSystem, Content: g.cfg.SystemPrompt},
	}

	if len(s.History) > 0 {
		trimmed := trimMessages(s.History, g.cfg.MaxContextUnits)

		if dropped := len(s.History) - len(trimmed); dropped > 0 && g.cfg.SummaryModel != nil {
			slog.Info("Summarizing old messages",
				"thread_id", s.ThreadID,
				"dropped", dropped)
			summary, err := g.summarize(ctx, s.History[:dropped])
			if err != nil {
				slog.Error("Summarization failed, using trimmed history only",
					"thread_id", s.ThreadID,
					"error", err)
			} else {
				base = append(base, llm.Message{
					Role:    llm.RoleSystem,
					Content: "Summary of earlier conversation:\n" + summary,
				})
			}
		}

		base = append(base, trimmed...)
	}

	base = append(base, llm.Message{Role: llm.RoleUser, Content: s.ProcessedInput})

	return &Update{Messages: base}, nil
}

// trimMessages keeps the longest suffix within the unit budget that starts
// on a user turn. Partial messages are never kept; if no suffix within the
// budget starts on a user turn, everything is dropped.
func trimMessages(messages []llm.Message, maxUnits int) []llm.Message {
	if maxUnits <= 0 {
		return nil
	}
	start := 0
	if len(messages) > maxUnits {
		start = len(messages) - maxUnits
	}
	for start < len(messages) && messages[start].Role != llm.RoleUser {
		start++
	}
	return messages[start:]
}

// summarize condenses dropped history through the cheap summary model.
func (g *Graph) summarize(ctx context.Context, dropped []llm.Message) (string, error) {
	if g.cfg.SummaryModel == nil {
		return "", errNoSummaryModel
	}
	prompt := make([]llm.Message, 0, len(dropped)+1)
	prompt = append(prompt, dropped...)
	prompt = append(prompt, llm.Message{Role: llm.RoleUser, Content: summarizeInstruction})

	resp, err := g.cfg.SummaryModel.Invoke(ctx, prompt)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}
