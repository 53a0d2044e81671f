package xai

import (
	"encoding/json"
	"fmt"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/internal/utils"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/transport"
)

/*
	CHAT COMPLETIONS API - INPUT
*/

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Stream           bool          `json:"stream,omitempty"`
	Temperature      *float64      `json:"temperature,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	MaxTokens        *int          `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
	Tools            []chatTool    `json:"tools,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content,omitempty"` // string or []contentPart
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type contentPart struct {
	Type     string            `json:"type"` // text, image_url
	Text     string            `json:"text,omitempty"`
	ImageURL *contentPartImage `json:"image_url,omitempty"`
}

type contentPartImage struct {
	URL string `json:"url"`
}

type chatTool struct {
	Type     string       `json:"type"` // "function"
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // "function"
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"` // JSON string
	} `json:"function"`
}

/*
	CHAT COMPLETIONS API - OUTPUT
*/

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"` // "chat.completion"
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int                 `json:"index"`
	Message      chatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"` // stop, length, tool_calls, content_filter
}

type chatResponseMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

/*
	CONVERSIONS
*/

// translateBody maps the unified request onto the chat-completions body.
func translateBody(req ai.ChatRequest, caps *ai.Capabilities) (chatRequest, error) {
	body := chatRequest{
		Model:            ai.ModelName(req.Model),
		Stream:           req.Stream,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	}
	if req.Temperature != nil && (caps == nil || caps.Temperature) {
		body.Temperature = req.Temperature
	}

	for _, msg := range req.Messages {
		wire, err := messageToWire(msg)
		if err != nil {
			return chatRequest{}, err
		}
		body.Messages = append(body.Messages, wire...)
	}

	for _, def := range req.Tools {
		body.Tools = append(body.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema,
			},
		})
	}
	return body, nil
}

// messageToWire converts one message. Tool results expand into one role=tool
// message per result; tool uses ride the assistant message's tool_calls.
func messageToWire(msg ai.Message) ([]chatMessage, error) {
	wire := chatMessage{Role: string(msg.Role)}
	var extra []chatMessage
	var parts []contentPart

	for _, part := range msg.Content {
		switch p := part.(type) {
		case ai.TextPart:
			parts = append(parts, contentPart{Type: "text", Text: p.Text})
		case ai.CodePart:
			parts = append(parts, contentPart{Type: "text", Text: p.Text})
		case ai.ImagePart:
			parts = append(parts, contentPart{
				Type:     "image_url",
				ImageURL: &contentPartImage{URL: fmt.Sprintf("data:%s;base64,%s", p.MIMEType, p.Data)},
			})
		case ai.DocumentPart:
			parts = append(parts, contentPart{
				Type: "text",
				Text: fmt.Sprintf("[document %s (%s)]", p.Name, p.MIMEType),
			})
		case ai.ToolUsePart:
			args, err := json.Marshal(p.Input)
			if err != nil {
				return nil, errdefs.Wrap(errdefs.KindValidation, "encoding tool call arguments", err)
			}
			call := chatToolCall{ID: p.ID, Type: "function"}
			call.Function.Name = p.Name
			call.Function.Arguments = string(args)
			wire.ToolCalls = append(wire.ToolCalls, call)
		case ai.ToolResultPart:
			extra = append(extra, chatMessage{
				Role:       "tool",
				ToolCallID: p.CallID,
				Content:    toolResultContent(p),
			})
		}
	}

	switch {
	case len(parts) == 1 && parts[0].Type == "text":
		wire.Content = parts[0].Text
	case len(parts) > 0:
		wire.Content = parts
	}

	var out []chatMessage
	if wire.Content != nil || len(wire.ToolCalls) > 0 {
		out = append(out, wire)
	}
	out = append(out, extra...)
	if len(out) == 0 {
		return nil, errdefs.Newf(errdefs.KindValidation, "message with role %q has no translatable content", msg.Role)
	}
	return out, nil
}

func toolResultContent(p ai.ToolResultPart) string {
	if !p.Success && p.Error != nil {
		return p.Error.Message
	}
	if s, ok := p.Output.(string); ok {
		return s
	}
	return utils.ToString(p.Output)
}

// ParseResponse decodes a buffered chat-completions response.
func (p *Plugin) ParseResponse(resp *transport.Response) (*ai.ChatResponse, error) {
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, p.NormalizeError(resp, nil)
	}

	var wire chatResponse
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, errdefs.Wrap(errdefs.KindProvider, "decoding response body", err).
			WithProvider(PluginID, PluginVersion)
	}
	if len(wire.Choices) == 0 {
		return nil, errdefs.New(errdefs.KindProvider, "response contains no choices").
			WithProvider(PluginID, PluginVersion)
	}
	return responseToGeneric(wire), nil
}

// responseToGeneric converts the first choice into the unified shape.
// Malformed tool-call arguments are preserved raw under MetaToolCalls for the
// client's lenient extraction path.
func responseToGeneric(wire chatResponse) *ai.ChatResponse {
	choice := wire.Choices[0]
	out := &ai.ChatResponse{
		ID:           wire.ID,
		Model:        wire.Model,
		FinishReason: choice.FinishReason,
		Message:      ai.Message{Role: ai.RoleAssistant},
	}

	if choice.Message.Content != "" {
		out.Message.Content = append(out.Message.Content, ai.TextPart{Text: choice.Message.Content})
	}

	var rawCalls []any
	for _, call := range choice.Message.ToolCalls {
		var input map[string]any
		if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
			rawCalls = append(rawCalls, map[string]any{
				"id": call.ID,
				"function": map[string]any{
					"name":      call.Function.Name,
					"arguments": call.Function.Arguments,
				},
			})
			continue
		}
		out.Message.Content = append(out.Message.Content, ai.ToolUsePart{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: input,
		})
	}

	if wire.Usage != nil {
		out.Usage = &ai.Usage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		}
	}

	out.Message.Metadata = map[string]any{ai.MetaFinishReason: choice.FinishReason}
	if len(rawCalls) > 0 {
		out.Message.Metadata[ai.MetaToolCalls] = rawCalls
	}
	out.Metadata = map[string]any{ai.MetaFinishReason: choice.FinishReason}
	return out
}
