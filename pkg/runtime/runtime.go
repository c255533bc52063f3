package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/pkg/graph"
	"github.com/parleyhq/parley/pkg/llm"
	"github.com/parleyhq/parley/pkg/models"
	"github.com/parleyhq/parley/pkg/secrets"
)

// openaiIntegration is the secret-store integration name for model
// credentials.
const openaiIntegration = "openai"

// MessageStore is the slice of the data layer the runtime consumes.
type MessageStore interface {
	GetHistory(ctx context.Context, threadID uuid.UUID) ([]*models.Message, error)
	CreateMessage(ctx context.Context, req models.CreateMessageRequest) (*models.Message, error)
}

// ModelFactory builds a chat model for the given credential. Injected in
// tests; the default constructs an OpenAI-backed model.
type ModelFactory func(apiKey, model string) llm.ChatModel

// Config holds the model and pipeline settings shared across tenants.
type Config struct {
	// Model is the main conversation model name.
	Model string

	// SummaryModel condenses trimmed history. Empty disables summaries.
	SummaryModel string

	// BaseURL overrides the provider endpoint (OpenAI-compatible APIs).
	BaseURL string

	Temperature     float32
	SystemPrompt    string
	MaxContextUnits int

	Tools []llm.Tool

	// ModelFactory overrides model construction; nil uses the OpenAI
	// client.
	ModelFactory ModelFactory
}

// Service executes agent pipelines.
type Service struct {
	cfg         Config
	store       MessageStore
	secrets     secrets.SecretsManager
	checkpoints graph.CheckpointStore
	newModel    ModelFactory
}

// NewService creates a runtime service. The secrets manager and
// checkpoint store are optional.
func NewService(cfg Config, store MessageStore, sm secrets.SecretsManager, checkpoints graph.CheckpointStore) *Service {
	svc := &Service{
		cfg:         cfg,
		store:       store,
		secrets:     sm,
		checkpoints: checkpoints,
		newModel:    cfg.ModelFactory,
	}
	if svc.newModel == nil {
		svc.newModel = func(apiKey, model string) llm.ChatModel {
			return llm.NewOpenAIModel(llm.OpenAIConfig{
				APIKey:      apiKey,
				BaseURL:     cfg.BaseURL,
				Model:       model,
				Temperature: cfg.Temperature,
			})
		}
	}
	return svc
}

// Process runs the pipeline once and returns the final state.
func (s *Service) Process(ctx context.Context, threadID, tenantID uuid.UUID, userMessages []string) (*graph.State, error) {
	g, initial, err := s.prepare(ctx, threadID, tenantID, userMessages)
	if err != nil {
		return nil, err
	}
	return g.Invoke(ctx, initial)
}

// Stream runs the pipeline and maps node completions to external events:
// a rejection emits guardrail_reject and terminates; the model's final
// text emits a chunk; a completed run emits done with the run metadata.
func (s *Service) Stream(ctx context.Context, threadID, tenantID uuid.UUID, userMessages []string) (<-chan Event, <-chan error) {
	out := make(chan Event)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		g, initial, err := s.prepare(ctx, threadID, tenantID, userMessages)
		if err != nil {
			errCh <- err
			return
		}

		events, runErr := g.Stream(ctx, initial)

		var final *graph.State
		rejected := false
		for ev := range events {
			state := ev.State
			final = &state

			switch ev.Node {
			case graph.NodeReject:
				rejected = true
				s.emit(ctx, out, Event{Type: EventGuardrailReject, Reason: state.FinalContent})
			case graph.NodeLLMAgent:
				if state.FinalContent != "" {
					s.emit(ctx, out, Event{Type: EventChunk, Content: state.FinalContent})
				}
			}
		}

		if err := <-runErr; err != nil {
			errCh <- err
			return
		}

		if !rejected && final != nil {
			meta := graph.BuildMessageMetadata(final)
			s.emit(ctx, out, Event{Type: EventDone, Metadata: &meta})
		}
	}()

	return out, errCh
}

// ProcessAndSave runs the pipeline and persists the assistant reply
// attributed to the tenant's system agent.
func (s *Service) ProcessAndSave(ctx context.Context, threadID, tenantID, systemAgentID uuid.UUID, userMessages []string) (*models.Message, error) {
	final, err := s.Process(ctx, threadID, tenantID, userMessages)
	if err != nil {
		return nil, err
	}

	content := final.FinalContent
	if content == "" {
		content = "(no response)"
	}

	meta := graph.BuildMessageMetadata(final)
	msg, err := s.store.CreateMessage(ctx, models.CreateMessageRequest{
		ThreadID: threadID,
		AgentID:  systemAgentID,
		Role:     models.MessageRoleAssistant,
		Content:  content,
		Metadata: meta.AsMap(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}
	return msg, nil
}

func (s *Service) emit(ctx context.Context, out chan<- Event, ev Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

// prepare loads history, resolves credentials and compiles the graph for
// one run.
func (s *Service) prepare(ctx context.Context, threadID, tenantID uuid.UUID, userMessages []string) (*graph.Graph, graph.State, error) {
	history, err := s.store.GetHistory(ctx, threadID)
	if err != nil {
		return nil, graph.State{}, fmt.Errorf("failed to load history: %w", err)
	}

	apiKey := s.resolveAPIKey(ctx, tenantID)

	cfg := graph.Config{
		Model:           s.newModel(apiKey, s.cfg.Model),
		Tools:           s.cfg.Tools,
		SystemPrompt:    s.cfg.SystemPrompt,
		MaxContextUnits: s.cfg.MaxContextUnits,
		Checkpoints:     s.checkpoints,
	}
	if s.cfg.SummaryModel != "" {
		cfg.SummaryModel = s.newModel(apiKey, s.cfg.SummaryModel)
	}

	g, err := graph.New(cfg)
	if err != nil {
		return nil, graph.State{}, err
	}

	initial := graph.State{
		ThreadID:        threadID,
		TenantID:        tenantID,
		RawUserMessages: userMessages,
		History:         toConversation(history),
	}
	return g, initial, nil
}

// resolveAPIKey looks up the model credential: tenant secret first, then
// the platform secret, then the environment. An empty result leaves the
// provider to its default credential resolution.
func (s *Service) resolveAPIKey(ctx context.Context, tenantID uuid.UUID) string {
	if s.secrets != nil {
		for _, scope := range []string{tenantID.String(), secrets.PlatformScope} {
			creds, err := s.secrets.Get(ctx, scope, openaiIntegration)
			if err == nil {
				if key := creds["api_key"]; key != "" {
					return key
				}
				continue
			}
			if !errors.Is(err, secrets.ErrSecretNotFound) {
				slog.Warn("Secret lookup failed",
					"scope", scope,
					"integration", openaiIntegration,
					"error", err)
			}
		}
	}
	return os.Getenv("OPENAI_API_KEY")
}

// toConversation converts persisted messages into conversation turns.
func toConversation(history []*models.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		role := llm.RoleUser
		if msg.Role == models.MessageRoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: msg.Content})
	}
	return out
}
