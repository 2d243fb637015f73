// Package llmclient sends chat-completion requests, streaming and
// non-streaming, to an OpenAI-compatible endpoint.
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lumenai/conduit/internal/errkind"
)

// Message is the wire shape sent to the LLM: role and content only, never
// rawContent.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is an LLM-issued or LLM-directed tool invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolSpec describes a callable tool in OpenAI function-schema form.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Delta is one increment of a streaming completion.
type Delta struct {
	ContentDelta string
	ToolCalls    []ToolCall // only non-empty entries for this chunk's index
	FinishReason string
}

// Client wraps an OpenAI-compatible chat completions endpoint.
type Client struct {
	client *openai.Client
}

// New returns a Client pointed at baseURL (empty means api.openai.com).
func New(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{client: openai.NewClientWithConfig(cfg)}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, oaiMsg)
	}
	return out
}

func toOpenAITools(tools []ToolSpec) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// Complete sends a non-streaming chat completion request.
func (c *Client) Complete(ctx context.Context, model string, messages []Message, tools []ToolSpec) (Message, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}
	if specs := toOpenAITools(tools); specs != nil {
		req.Tools = specs
		req.ToolChoice = "auto"
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s", errkind.ErrTransport, err)
	}
	if len(resp.Choices) == 0 {
		return Message{}, fmt.Errorf("%w: completion returned no choices", errkind.ErrProtocol)
	}

	choice := resp.Choices[0].Message
	out := Message{Role: choice.Role, Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return out, nil
}

// CompleteStream opens a streaming chat completion and invokes onDelta for
// every delta until the stream ends. It returns once the stream is
// exhausted or ctx is cancelled.
func (c *Client) CompleteStream(ctx context.Context, model string, messages []Message, tools []ToolSpec, onDelta func(Delta)) error {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	}
	if specs := toOpenAITools(tools); specs != nil {
		req.Tools = specs
		req.ToolChoice = "auto"
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %s", errkind.ErrTransport, err)
	}
	defer stream.Close()

	// Tool-call argument fragments accumulate by index until the stream
	// reports finishReason=="tool_calls".
	accum := make(map[int]*ToolCall)
	order := []int{}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %s", errkind.ErrTransport, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		delta := Delta{ContentDelta: choice.Delta.Content, FinishReason: string(choice.FinishReason)}

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if _, ok := accum[idx]; !ok {
				accum[idx] = &ToolCall{}
				order = append(order, idx)
			}
			if tc.ID != "" {
				accum[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				accum[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				accum[idx].Arguments += tc.Function.Arguments
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			for _, idx := range order {
				delta.ToolCalls = append(delta.ToolCalls, *accum[idx])
			}
			accum = make(map[int]*ToolCall)
			order = nil
		}

		onDelta(delta)

		if choice.FinishReason != "" {
			return nil
		}
	}
}
