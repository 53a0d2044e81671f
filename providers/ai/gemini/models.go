package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/transport"
)

/*
	GENERATECONTENT API - INPUT
*/

type generateRequest struct {
	Contents          []wireContent     `json:"contents"`
	SystemInstruction *wireContent      `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []wireToolGroup   `json:"tools,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"` // user or model
	Parts []wirePart `json:"parts"`
}

// wirePart is one content part: text, inline data, a function call or a
// function response.
type wirePart struct {
	Text             string            `json:"text,omitempty"`
	InlineData       *inlineData       `json:"inlineData,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type functionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type functionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type wireToolGroup struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

/*
	GENERATECONTENT API - OUTPUT
*/

type generateResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
	Error         *wireError     `json:"error,omitempty"`
}

type candidate struct {
	Content       *wireContent   `json:"content,omitempty"`
	FinishReason  string         `json:"finishReason,omitempty"` // STOP, MAX_TOKENS, SAFETY, RECITATION, OTHER
	SafetyRatings []safetyRating `json:"safetyRatings,omitempty"`
}

type safetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

/*
	CONVERSIONS
*/

// translateBody maps the unified request onto the generateContent body.
// System messages are lifted into systemInstruction; assistant turns become
// role "model"; tool results become functionResponse parts.
func translateBody(req ai.ChatRequest, caps *ai.Capabilities) (generateRequest, error) {
	var body generateRequest

	toolNames := map[string]string{} // call id -> function name
	for _, msg := range req.Messages {
		if msg.Role == ai.RoleSystem {
			if body.SystemInstruction == nil {
				body.SystemInstruction = &wireContent{}
			}
			body.SystemInstruction.Parts = append(body.SystemInstruction.Parts, wirePart{Text: msg.Text()})
			continue
		}
		content, err := messageToContent(msg, toolNames)
		if err != nil {
			return generateRequest{}, err
		}
		body.Contents = append(body.Contents, content)
	}

	cfg := &generationConfig{
		TopP:            req.TopP,
		MaxOutputTokens: req.MaxTokens,
	}
	if req.Temperature != nil && (caps == nil || caps.Temperature) {
		cfg.Temperature = req.Temperature
	}
	if cfg.Temperature != nil || cfg.TopP != nil || cfg.MaxOutputTokens != nil {
		body.GenerationConfig = cfg
	}

	if len(req.Tools) > 0 {
		group := wireToolGroup{}
		for _, def := range req.Tools {
			group.FunctionDeclarations = append(group.FunctionDeclarations, functionDeclaration{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema,
			})
		}
		body.Tools = []wireToolGroup{group}
	}
	return body, nil
}

// messageToContent converts one message to a generateContent turn. The API
// correlates tool results by function name rather than call id, so call ids
// seen on tool uses are remembered to resolve the names of later results.
func messageToContent(msg ai.Message, toolNames map[string]string) (wireContent, error) {
	role := "user"
	if msg.Role == ai.RoleAssistant {
		role = "model"
	}
	content := wireContent{Role: role}

	for _, part := range msg.Content {
		switch p := part.(type) {
		case ai.TextPart:
			content.Parts = append(content.Parts, wirePart{Text: p.Text})
		case ai.CodePart:
			content.Parts = append(content.Parts, wirePart{Text: p.Text})
		case ai.ImagePart:
			content.Parts = append(content.Parts, wirePart{
				InlineData: &inlineData{MIMEType: p.MIMEType, Data: p.Data},
			})
		case ai.DocumentPart:
			content.Parts = append(content.Parts, wirePart{
				Text: fmt.Sprintf("[document %s (%s)]", p.Name, p.MIMEType),
			})
		case ai.ToolUsePart:
			toolNames[p.ID] = p.Name
			content.Parts = append(content.Parts, wirePart{
				FunctionCall: &functionCall{Name: p.Name, Args: p.Input},
			})
		case ai.ToolResultPart:
			name := toolNames[p.CallID]
			if name == "" {
				return wireContent{}, errdefs.Newf(errdefs.KindValidation,
					"tool result %q has no matching tool use in the conversation", p.CallID)
			}
			content.Parts = append(content.Parts, wirePart{
				FunctionResponse: &functionResponse{
					Name:     name,
					Response: toolResultResponse(p),
				},
			})
		}
	}

	if len(content.Parts) == 0 {
		return wireContent{}, errdefs.Newf(errdefs.KindValidation, "message with role %q has no translatable content", msg.Role)
	}
	return content, nil
}

// toolResultResponse wraps a tool outcome in the object shape functionResponse
// requires.
func toolResultResponse(p ai.ToolResultPart) map[string]any {
	if !p.Success {
		response := map[string]any{"error": "tool execution failed"}
		if p.Error != nil {
			response["error"] = p.Error.Message
		}
		return response
	}
	if m, ok := p.Output.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": p.Output}
}

// ParseResponse decodes a buffered generateContent response.
func (p *Plugin) ParseResponse(resp *transport.Response) (*ai.ChatResponse, error) {
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, p.NormalizeError(resp, nil)
	}

	var wire generateResponse
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, errdefs.Wrap(errdefs.KindProvider, "decoding response body", err).
			WithProvider(PluginID, PluginVersion)
	}
	if wire.Error != nil {
		return nil, p.NormalizeError(resp, nil)
	}
	if len(wire.Candidates) == 0 {
		return nil, errdefs.New(errdefs.KindProvider, "response contains no candidates").
			WithProvider(PluginID, PluginVersion)
	}
	return responseToGeneric(wire), nil
}

// responseToGeneric converts the first candidate into the unified shape. The
// API does not assign call ids to function calls, so ids are synthesized.
func responseToGeneric(wire generateResponse) *ai.ChatResponse {
	first := wire.Candidates[0]
	out := &ai.ChatResponse{
		ID:           ai.NewStreamID(),
		Model:        wire.ModelVersion,
		FinishReason: first.FinishReason,
		Message:      ai.Message{Role: ai.RoleAssistant},
	}

	if first.Content != nil {
		for _, part := range first.Content.Parts {
			appendGenericPart(&out.Message, part)
		}
	}

	if wire.UsageMetadata != nil {
		out.Usage = &ai.Usage{
			PromptTokens:     wire.UsageMetadata.PromptTokenCount,
			CompletionTokens: wire.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      wire.UsageMetadata.TotalTokenCount,
		}
	}

	out.Message.Metadata = map[string]any{ai.MetaFinishReason: first.FinishReason}
	out.Metadata = map[string]any{ai.MetaFinishReason: first.FinishReason}
	if len(first.SafetyRatings) > 0 {
		ratings := make([]any, 0, len(first.SafetyRatings))
		for _, r := range first.SafetyRatings {
			ratings = append(ratings, map[string]any{"category": r.Category, "probability": r.Probability})
		}
		out.Metadata[ai.MetaSafetyRatings] = ratings
	}
	return out
}

// appendGenericPart converts one wire part into unified content.
func appendGenericPart(msg *ai.Message, part wirePart) {
	switch {
	case part.Text != "":
		msg.Content = append(msg.Content, ai.TextPart{Text: part.Text})
	case part.FunctionCall != nil:
		input := part.FunctionCall.Args
		if input == nil {
			input = map[string]any{}
		}
		msg.Content = append(msg.Content, ai.ToolUsePart{
			ID:    "call-" + uuid.NewString()[:8],
			Name:  part.FunctionCall.Name,
			Input: input,
		})
	}
}
