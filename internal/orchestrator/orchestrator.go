// Package orchestrator drives the streaming tool-augmented conversation
// loop: it opens an LLM stream, forwards deltas to the caller, detects
// assembled tool calls, invokes them through the integration registry, and
// feeds results back into further LLM rounds until the model stops or the
// round budget is exhausted.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lumenai/conduit/internal/chatstore"
	"github.com/lumenai/conduit/internal/contentfilter"
	"github.com/lumenai/conduit/internal/errkind"
	"github.com/lumenai/conduit/internal/llmclient"
	"github.com/lumenai/conduit/internal/mcpclient"
	"github.com/lumenai/conduit/internal/mcpregistry"
	"github.com/lumenai/conduit/pkg/models"
)

// MaxRounds bounds the number of LLM-stream/tool-invocation rounds within
// a single turn.
const MaxRounds = 8

// Orchestrator drives StreamAssistantTurn.
type Orchestrator struct {
	store    chatstore.Store
	llm      *llmclient.Client
	registry *mcpregistry.Registry
	filter   contentfilter.Filter
	logger   *slog.Logger
}

// New returns an Orchestrator wired to its collaborators.
func New(store chatstore.Store, llm *llmclient.Client, registry *mcpregistry.Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		llm:      llm,
		registry: registry,
		filter:   contentfilter.New(contentfilter.DefaultMaxLength),
		logger:   logger.With("component", "orchestrator"),
	}
}

// Chunk is one unit of output from StreamAssistantTurn: either a raw text
// fragment forwarded live from the LLM, or a terminal error.
type Chunk struct {
	Text  string
	Error string
}

// StreamAssistantTurn runs one conversation turn for chatID and emits
// chunks to emit until the turn completes. It never returns an error for
// in-band failures (transport errors, empty-after-filter, round overrun)
// — those are reported as a Chunk.Error and the function then returns nil.
// A non-nil return indicates a collaborator failure that occurred before
// any streaming began (e.g. failing to load history).
func (o *Orchestrator) StreamAssistantTurn(ctx context.Context, chatID, model string, sel mcpregistry.ToolSelection, emit func(Chunk)) error {
	history, err := o.store.GetMessages(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading chat history: %w", err)
	}

	tools := sel.Filter(o.registry.Current())
	toolSpecs := toLLMToolSpecs(tools)
	messages := toLLMMessages(history)

	var rawAccumulated string

	for round := 0; ; round++ {
		if round >= MaxRounds {
			emit(Chunk{Error: "maximum tool-call rounds exceeded"})
			return nil
		}

		assembledToolCalls, finishReason, streamErr := o.runOneStream(ctx, model, messages, toolSpecs, &rawAccumulated, emit)
		if streamErr != nil {
			emit(Chunk{Error: streamErr.Error()})
			return nil
		}

		if finishReason == "tool_calls" && len(assembledToolCalls) > 0 {
			messages = o.runToolRound(ctx, messages, assembledToolCalls, emit)
			continue
		}

		// finishReason == "stop" (or stream ended without further tool calls).
		return o.finalizeTurn(ctx, chatID, rawAccumulated, emit)
	}
}

// runOneStream opens one LLM stream, forwards content deltas to emit
// unfiltered, accumulates raw text, and assembles tool calls by index.
func (o *Orchestrator) runOneStream(ctx context.Context, model string, messages []llmclient.Message, tools []llmclient.ToolSpec, rawAccumulated *string, emit func(Chunk)) ([]llmclient.ToolCall, string, error) {
	var assembled []llmclient.ToolCall
	var finishReason string

	err := o.llm.CompleteStream(ctx, model, messages, tools, func(d llmclient.Delta) {
		if d.ContentDelta != "" {
			*rawAccumulated += d.ContentDelta
			emit(Chunk{Text: d.ContentDelta})
		}
		if len(d.ToolCalls) > 0 {
			assembled = d.ToolCalls
		}
		if d.FinishReason != "" {
			finishReason = d.FinishReason
		}
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", errkind.ErrTransport, err)
	}
	return assembled, finishReason, nil
}

// runToolRound emits status chunks, invokes each tool call sequentially,
// and returns the extended message list for the next LLM round.
func (o *Orchestrator) runToolRound(ctx context.Context, messages []llmclient.Message, calls []llmclient.ToolCall, emit func(Chunk)) []llmclient.Message {
	assistantMsg := llmclient.Message{Role: "assistant", ToolCalls: calls}
	messages = append(messages, assistantMsg)

	for _, call := range calls {
		emit(Chunk{Text: fmt.Sprintf("[Calling tool: %s]", call.Name)})

		result, err := o.registry.ExecuteToolCall(ctx, call.Name, json.RawMessage(call.Arguments))
		var resultText string
		if err != nil {
			resultText = err.Error()
			emit(Chunk{Text: fmt.Sprintf("[Tool execution failed: %s]", resultText)})
		} else if result.IsError {
			resultText = result.Content
			emit(Chunk{Text: "[Tool execution failed: " + resultText + "]"})
		} else {
			resultText = result.Content
			emit(Chunk{Text: "[Tool result]"})
		}

		messages = append(messages, llmclient.Message{
			Role:       "tool",
			Content:    resultText,
			ToolCallID: call.ID,
		})
	}

	return messages
}

// finalizeTurn applies the content filter to the accumulated raw text and
// either persists the result or reports an error, per the invariants in
// §3 of the data model.
func (o *Orchestrator) finalizeTurn(ctx context.Context, chatID, rawAccumulated string, emit func(Chunk)) error {
	if rawAccumulated == "" {
		// Nothing was ever produced; nothing to persist or error about.
		return nil
	}

	filtered, err := o.filter.FilterForPersistence(rawAccumulated)
	if err != nil {
		emit(Chunk{Error: err.Error()})
		return nil
	}

	if filtered == "" {
		emit(Chunk{Error: "AI response was empty after filtering tool-related content."})
		return nil
	}

	msg := models.ChatMessage{
		Role:        models.RoleAssistant,
		ContentType: models.ContentTypeText,
		Content:     filtered,
	}
	if filtered != rawAccumulated {
		msg.RawContent = rawAccumulated
	}

	if _, err := o.store.Append(ctx, chatID, msg); err != nil {
		emit(Chunk{Error: fmt.Sprintf("failed to persist assistant message: %s", err)})
		return nil
	}
	return nil
}

func toLLMMessages(history []models.ChatMessage) []llmclient.Message {
	out := make([]llmclient.Message, 0, len(history))
	for _, m := range history {
		msg := llmclient.Message{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, llmclient.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: string(tc.Arguments)})
		}
		out = append(out, msg)
	}
	return out
}

func toLLMToolSpecs(tools []mcpclient.ToolDescriptor) []llmclient.ToolSpec {
	out := make([]llmclient.ToolSpec, 0, len(tools))
	for _, t := range tools {
		out = append(out, llmclient.ToolSpec{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}
	return out
}
