package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/internal/utils"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/transport"
)

/*
	MESSAGES API - INPUT
*/

type createRequest struct {
	Model         string        `json:"model"`
	MaxTokens     int           `json:"max_tokens"`
	Messages      []wireMessage `json:"messages"`
	System        string        `json:"system,omitempty"`
	Stream        bool          `json:"stream,omitempty"`
	Temperature   *float64      `json:"temperature,omitempty"`
	TopP          *float64      `json:"top_p,omitempty"`
	Tools         []wireTool    `json:"tools,omitempty"`
	StopSequences []string      `json:"stop_sequences,omitempty"`
}

type wireMessage struct {
	Role    string      `json:"role"` // user or assistant
	Content []wireBlock `json:"content"`
}

// wireBlock is one content block: text, image, tool_use or tool_result.
type wireBlock struct {
	Type string `json:"type"`

	// type == "text"
	Text string `json:"text,omitempty"`

	// type == "image"
	Source *imageSource `json:"source,omitempty"`

	// type == "tool_use"
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// type == "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   any    `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type wireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

/*
	MESSAGES API - OUTPUT
*/

type createResponse struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"` // "message"
	Role         string        `json:"role"`
	Model        string        `json:"model"`
	Content      []wireBlock   `json:"content"`
	StopReason   string        `json:"stop_reason"`
	StopSequence string        `json:"stop_sequence,omitempty"`
	Usage        *usageDetails `json:"usage,omitempty"`
}

type usageDetails struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

/*
	CONVERSIONS
*/

// translateBody maps the unified request onto the Messages API body. System
// messages are lifted into the system field; consecutive same-role turns are
// kept as-is since the API tolerates them.
func translateBody(req ai.ChatRequest, caps *ai.Capabilities) (createRequest, error) {
	body := createRequest{
		Model:     ai.ModelName(req.Model),
		MaxTokens: utils.ValueOr(req.MaxTokens, defaultMaxTokens),
		Stream:    req.Stream,
		TopP:      req.TopP,
	}
	if req.Temperature != nil && (caps == nil || caps.Temperature) {
		body.Temperature = req.Temperature
	}

	for _, msg := range req.Messages {
		if msg.Role == ai.RoleSystem {
			if body.System != "" {
				body.System += "\n\n"
			}
			body.System += msg.Text()
			continue
		}
		wm, err := messageToWire(msg)
		if err != nil {
			return createRequest{}, err
		}
		body.Messages = append(body.Messages, wm)
	}

	for _, def := range req.Tools {
		body.Tools = append(body.Tools, wireTool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}
	return body, nil
}

// messageToWire converts one message to a Messages API message. Tool results
// ride in user-role turns; tool uses stay on the assistant turn.
func messageToWire(msg ai.Message) (wireMessage, error) {
	role := string(msg.Role)
	if msg.Role == ai.RoleTool {
		role = "user"
	}
	wm := wireMessage{Role: role}

	for _, part := range msg.Content {
		switch p := part.(type) {
		case ai.TextPart:
			wm.Content = append(wm.Content, wireBlock{Type: "text", Text: p.Text})
		case ai.CodePart:
			wm.Content = append(wm.Content, wireBlock{Type: "text", Text: p.Text})
		case ai.ImagePart:
			wm.Content = append(wm.Content, wireBlock{
				Type: "image",
				Source: &imageSource{
					Type:      "base64",
					MediaType: p.MIMEType,
					Data:      p.Data,
				},
			})
		case ai.DocumentPart:
			wm.Content = append(wm.Content, wireBlock{
				Type: "text",
				Text: fmt.Sprintf("[document %s (%s)]", p.Name, p.MIMEType),
			})
		case ai.ToolUsePart:
			wm.Content = append(wm.Content, wireBlock{
				Type:  "tool_use",
				ID:    p.ID,
				Name:  p.Name,
				Input: p.Input,
			})
		case ai.ToolResultPart:
			wm.Content = append(wm.Content, wireBlock{
				Type:      "tool_result",
				ToolUseID: p.CallID,
				Content:   toolResultContent(p),
				IsError:   !p.Success,
			})
		}
	}

	if len(wm.Content) == 0 {
		return wireMessage{}, errdefs.Newf(errdefs.KindValidation, "message with role %q has no translatable content", msg.Role)
	}
	return wm, nil
}

// toolResultContent renders a tool outcome as the string content the
// tool_result block expects. Failed calls surface the error message.
func toolResultContent(p ai.ToolResultPart) string {
	if !p.Success && p.Error != nil {
		return p.Error.Message
	}
	if s, ok := p.Output.(string); ok {
		return s
	}
	return utils.ToString(p.Output)
}

// ParseResponse decodes a buffered Messages API response.
func (p *Plugin) ParseResponse(resp *transport.Response) (*ai.ChatResponse, error) {
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, p.NormalizeError(resp, nil)
	}

	var wire createResponse
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, errdefs.Wrap(errdefs.KindProvider, "decoding response body", err).
			WithProvider(PluginID, PluginVersion)
	}
	if wire.Type == "error" {
		return nil, p.NormalizeError(resp, nil)
	}
	return responseToGeneric(wire), nil
}

// responseToGeneric converts the vendor response into the unified shape.
func responseToGeneric(wire createResponse) *ai.ChatResponse {
	out := &ai.ChatResponse{
		ID:           wire.ID,
		Model:        wire.Model,
		FinishReason: wire.StopReason,
		Message:      ai.Message{Role: ai.RoleAssistant},
	}

	for _, block := range wire.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				out.Message.Content = append(out.Message.Content, ai.TextPart{Text: block.Text})
			}
		case "tool_use":
			out.Message.Content = append(out.Message.Content, ai.ToolUsePart{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}

	if wire.Usage != nil {
		out.Usage = &ai.Usage{
			PromptTokens:     wire.Usage.InputTokens,
			CompletionTokens: wire.Usage.OutputTokens,
			TotalTokens:      wire.Usage.InputTokens + wire.Usage.OutputTokens,
		}
	}

	out.Message.Metadata = map[string]any{ai.MetaFinishReason: wire.StopReason}
	out.Metadata = map[string]any{ai.MetaFinishReason: wire.StopReason}
	if wire.StopSequence != "" {
		out.Metadata[ai.MetaStopSequence] = wire.StopSequence
	}
	return out
}
