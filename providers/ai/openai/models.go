package openai

import (
	"encoding/json"
	"fmt"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/transport"
)

/*
	RESPONSES API - INPUT
*/

type createRequest struct {
	Model           string         `json:"model"`
	Input           []inputItem    `json:"input"`
	Stream          bool           `json:"stream"`
	Temperature     *float64       `json:"temperature,omitempty"`
	TopP            *float64       `json:"top_p,omitempty"`
	MaxOutputTokens *int           `json:"max_output_tokens,omitempty"`
	Tools           []functionTool `json:"tools,omitempty"`
}

// inputItem is one element of the input array: a message, a prior function
// call echoed back, or a function call output.
type inputItem struct {
	Type string `json:"type"`

	// type == "message"
	Role    string `json:"role,omitempty"`
	Content any    `json:"content,omitempty"` // string or []contentItem

	// type == "function_call" / "function_call_output"
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

type contentItem struct {
	Type     string `json:"type"` // input_text, input_image
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type functionTool struct {
	Type     string       `json:"type"` // "function"
	Function functionSpec `json:"function"`
}

type functionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

/*
	RESPONSES API - OUTPUT
*/

type createResponse struct {
	ID                string        `json:"id"`
	Object            string        `json:"object"`
	Model             string        `json:"model"`
	Status            string        `json:"status"` // completed, in_progress, incomplete, failed, cancelled
	Output            []outputItem  `json:"output"`
	Usage             *usageDetails `json:"usage,omitempty"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details,omitempty"`
	Error *wireError `json:"error,omitempty"`
}

type outputItem struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"` // message, function_call, reasoning
	Role    string          `json:"role,omitempty"`
	Content []contentOutput `json:"content,omitempty"`

	// function_call fields
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type contentOutput struct {
	Type string `json:"type"` // output_text
	Text string `json:"text,omitempty"`
}

type usageDetails struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type wireError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

/*
	CONVERSIONS
*/

// translateBody maps the unified request onto the Responses API body. The
// model name is sent without its provider prefix.
func translateBody(req ai.ChatRequest, caps *ai.Capabilities) (createRequest, error) {
	body := createRequest{
		Model:  ai.ModelName(req.Model),
		Stream: req.Stream,
	}

	for _, msg := range req.Messages {
		items, err := messageToItems(msg)
		if err != nil {
			return createRequest{}, err
		}
		body.Input = append(body.Input, items...)
	}

	if req.Temperature != nil && (caps == nil || caps.Temperature) {
		body.Temperature = req.Temperature
	}
	body.TopP = req.TopP
	body.MaxOutputTokens = req.MaxTokens
	// Frequency and presence penalties are not supported by the Responses API.

	for _, def := range req.Tools {
		body.Tools = append(body.Tools, functionTool{
			Type: "function",
			Function: functionSpec{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema,
			},
		})
	}
	return body, nil
}

// messageToItems splits one message into input items: text and image parts
// become a message item, tool uses and tool results become their own items.
func messageToItems(msg ai.Message) ([]inputItem, error) {
	var items []inputItem
	var content []contentItem

	flushMessage := func() {
		if len(content) == 0 {
			return
		}
		item := inputItem{Type: "message", Role: string(msg.Role)}
		if len(content) == 1 && content[0].Type == "input_text" {
			item.Content = content[0].Text
		} else {
			item.Content = content
		}
		items = append(items, item)
		content = nil
	}

	for _, part := range msg.Content {
		switch p := part.(type) {
		case ai.TextPart:
			content = append(content, contentItem{Type: "input_text", Text: p.Text})
		case ai.CodePart:
			content = append(content, contentItem{Type: "input_text", Text: p.Text})
		case ai.ImagePart:
			content = append(content, contentItem{
				Type:     "input_image",
				ImageURL: fmt.Sprintf("data:%s;base64,%s", p.MIMEType, p.Data),
			})
		case ai.DocumentPart:
			// The Responses API has no document part; inline as text marker.
			content = append(content, contentItem{
				Type: "input_text",
				Text: fmt.Sprintf("[document %s (%s)]", p.Name, p.MIMEType),
			})
		case ai.ToolUsePart:
			flushMessage()
			args, err := json.Marshal(p.Input)
			if err != nil {
				return nil, errdefs.Wrap(errdefs.KindValidation, "encoding tool call arguments", err)
			}
			items = append(items, inputItem{
				Type:      "function_call",
				CallID:    p.ID,
				Name:      p.Name,
				Arguments: string(args),
			})
		case ai.ToolResultPart:
			flushMessage()
			output, err := json.Marshal(ai.ToolOutcome{
				CallID:  p.CallID,
				Success: p.Success,
				Output:  p.Output,
				Error:   p.Error,
			})
			if err != nil {
				return nil, errdefs.Wrap(errdefs.KindValidation, "encoding tool result", err)
			}
			items = append(items, inputItem{
				Type:   "function_call_output",
				CallID: p.CallID,
				Output: string(output),
			})
		}
	}
	flushMessage()
	return items, nil
}

// ParseResponse decodes a buffered Responses API response.
func (p *Plugin) ParseResponse(resp *transport.Response) (*ai.ChatResponse, error) {
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, p.NormalizeError(resp, nil)
	}

	var wire createResponse
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, errdefs.Wrap(errdefs.KindProvider, "decoding response body", err).
			WithProvider(PluginID, PluginVersion)
	}
	if wire.Error != nil {
		return nil, ai.NormalizeHTTPError(PluginID, PluginVersion, resp, wire.Error.Code, wire.Error.Message)
	}
	return responseToGeneric(wire), nil
}

// responseToGeneric converts the vendor response into the unified shape.
// Malformed function-call arguments are preserved raw under MetaToolCalls so
// the client's lenient extraction path can recover or skip them.
func responseToGeneric(wire createResponse) *ai.ChatResponse {
	out := &ai.ChatResponse{
		ID:      wire.ID,
		Model:   wire.Model,
		Message: ai.Message{Role: ai.RoleAssistant},
	}

	var rawCalls []any
	for _, item := range wire.Output {
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.Message.Content = append(out.Message.Content, ai.TextPart{Text: c.Text})
				}
			}
		case "function_call":
			var input map[string]any
			if err := json.Unmarshal([]byte(item.Arguments), &input); err != nil {
				rawCalls = append(rawCalls, map[string]any{
					"id": item.CallID,
					"function": map[string]any{
						"name":      item.Name,
						"arguments": item.Arguments,
					},
				})
				continue
			}
			out.Message.Content = append(out.Message.Content, ai.ToolUsePart{
				ID:    item.CallID,
				Name:  item.Name,
				Input: input,
			})
		case "reasoning":
			// No unified equivalent; dropped.
		}
	}

	out.FinishReason = finishReasonFor(wire, len(out.Message.ToolUses())+len(rawCalls) > 0)
	if wire.Usage != nil {
		out.Usage = &ai.Usage{
			PromptTokens:     wire.Usage.InputTokens,
			CompletionTokens: wire.Usage.OutputTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		}
	}

	out.Message.Metadata = map[string]any{ai.MetaFinishReason: out.FinishReason}
	if len(rawCalls) > 0 {
		out.Message.Metadata[ai.MetaToolCalls] = rawCalls
	}
	out.Metadata = map[string]any{ai.MetaFinishReason: out.FinishReason}
	return out
}

// finishReasonFor derives the finish reason from the response status.
func finishReasonFor(wire createResponse, hasToolCalls bool) string {
	switch wire.Status {
	case "completed":
		if hasToolCalls {
			return "tool_calls"
		}
		return "stop"
	case "incomplete":
		if wire.IncompleteDetails != nil && wire.IncompleteDetails.Reason == "max_output_tokens" {
			return "max_output_tokens"
		}
		return "length"
	case "failed":
		return "error"
	case "cancelled":
		return "cancelled"
	default:
		return wire.Status
	}
}
