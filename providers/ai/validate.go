package ai

import (
	"github.com/llmbridge/bridge/core/errdefs"
)

// ValidateMessage checks a message's role, that it has content, and that
// every content part satisfies its structural invariants.
func ValidateMessage(msg Message) error {
	if !knownRoles[msg.Role] {
		return errdefs.Newf(errdefs.KindValidation, "unknown message role %q", msg.Role)
	}
	if len(msg.Content) == 0 {
		return errdefs.Newf(errdefs.KindValidation, "%s message has no content parts", msg.Role)
	}
	for i, part := range msg.Content {
		if part == nil {
			return errdefs.Newf(errdefs.KindValidation, "content part %d is nil", i)
		}
		if err := part.Validate(); err != nil {
			return errdefs.Wrap(errdefs.KindValidation, "invalid content part", err).
				WithContext("partIndex", i).
				WithContext("partType", string(part.Type()))
		}
	}
	return nil
}

// ValidateChatRequest checks the request shape before routing: a qualified
// model id, at least one valid message, sampling parameters in range, and
// well-formed tool definitions.
func ValidateChatRequest(req ChatRequest) error {
	if _, _, err := SplitModelID(req.Model); err != nil {
		return err
	}
	if len(req.Messages) == 0 {
		return errdefs.New(errdefs.KindValidation, "request has no messages")
	}
	for i, msg := range req.Messages {
		if err := ValidateMessage(msg); err != nil {
			return errdefs.Wrap(errdefs.KindValidation, "invalid message", err).
				WithContext("messageIndex", i)
		}
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return errdefs.Newf(errdefs.KindValidation, "temperature %v outside [0, 2]", *req.Temperature)
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		return errdefs.Newf(errdefs.KindValidation, "topP %v outside [0, 1]", *req.TopP)
	}
	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return errdefs.Newf(errdefs.KindValidation, "maxTokens must be positive, got %d", *req.MaxTokens)
	}
	if req.FrequencyPenalty != nil && (*req.FrequencyPenalty < -2 || *req.FrequencyPenalty > 2) {
		return errdefs.Newf(errdefs.KindValidation, "frequencyPenalty %v outside [-2, 2]", *req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil && (*req.PresencePenalty < -2 || *req.PresencePenalty > 2) {
		return errdefs.Newf(errdefs.KindValidation, "presencePenalty %v outside [-2, 2]", *req.PresencePenalty)
	}
	for _, tool := range req.Tools {
		if err := ValidateToolDefinition(tool); err != nil {
			return err
		}
	}
	if req.MultiTurn != nil {
		if err := validateMultiTurnOptions(*req.MultiTurn); err != nil {
			return err
		}
	}
	return nil
}

// ValidateToolDefinition checks a tool definition advertised in a request.
func ValidateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return errdefs.New(errdefs.KindValidation, "tool definition has an empty name")
	}
	if def.InputSchema == nil {
		return errdefs.Newf(errdefs.KindValidation, "tool %q has no input schema", def.Name)
	}
	return nil
}

func validateMultiTurnOptions(opts MultiTurnOptions) error {
	if opts.MaxIterations < 0 || opts.MaxIterations > 1000 {
		return errdefs.Newf(errdefs.KindValidation, "maxIterations %d outside [1, 1000]", opts.MaxIterations)
	}
	const dayMs = 24 * 60 * 60 * 1000
	if opts.TimeoutMs < 0 || opts.TimeoutMs > dayMs {
		return errdefs.Newf(errdefs.KindValidation, "multi-turn timeoutMs %d outside [0, 24h]", opts.TimeoutMs)
	}
	if opts.IterationTimeoutMs < 0 {
		return errdefs.Newf(errdefs.KindValidation, "iterationTimeoutMs must be >= 0, got %d", opts.IterationTimeoutMs)
	}
	if opts.TimeoutMs > 0 && opts.IterationTimeoutMs >= opts.TimeoutMs {
		return errdefs.Newf(errdefs.KindValidation,
			"iterationTimeoutMs %d must be below timeoutMs %d", opts.IterationTimeoutMs, opts.TimeoutMs)
	}
	return nil
}
