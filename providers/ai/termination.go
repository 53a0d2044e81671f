package ai

import "fmt"

// TerminationReason is the unified, cross-provider classification of why a
// response (or conversation) stopped.
type TerminationReason string

const (
	TerminationNaturalCompletion TerminationReason = "natural_completion"
	TerminationTokenLimit        TerminationReason = "token_limit_reached"
	TerminationContentFiltered   TerminationReason = "content_filtered"
	TerminationToolUse           TerminationReason = "tool_use_required"
	TerminationCancelled         TerminationReason = "cancelled"
	TerminationMaxIterations     TerminationReason = "max_iterations"
	TerminationTimeout           TerminationReason = "timeout"
	TerminationError             TerminationReason = "error"
	TerminationUnknown           TerminationReason = "unknown"
)

// Confidence grades how certain a termination classification is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Termination signal sources.
const (
	// SourceFinishReason means the classification came from a vendor
	// finish-reason value.
	SourceFinishReason = "finishReason"
	// SourceFinished means no finish reason was available and the
	// classification fell back to the finished flag.
	SourceFinished = "finished"
)

// TerminationSignal is the normalized outcome of termination detection. Every
// plugin maps its native finish-reason vocabulary onto the same reason set so
// the agent loop and the client never branch on vendor strings.
type TerminationSignal struct {
	ShouldTerminate bool              `json:"shouldTerminate"`
	Source          string            `json:"source"`
	RawValue        string            `json:"rawValue,omitempty"`
	Reason          TerminationReason `json:"reason"`
	Confidence      Confidence        `json:"confidence"`
	Message         string            `json:"message,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
}

// ClassifyTermination maps a vendor finish reason onto the unified reason set
// using the plugin's vocabulary. It implements the shared fallback rules:
//
//   - vocabulary hit: high confidence, terminate;
//   - empty reason with finished=true: unknown, low confidence, terminate;
//   - unknown reason with finished=true: unknown, medium confidence, terminate;
//   - empty or unknown reason with finished=false: unknown, low confidence,
//     do not terminate.
func ClassifyTermination(vocabulary map[string]TerminationReason, finishReason string, finished bool) TerminationSignal {
	if reason, ok := vocabulary[finishReason]; ok && finishReason != "" {
		return TerminationSignal{
			ShouldTerminate: true,
			Source:          SourceFinishReason,
			RawValue:        finishReason,
			Reason:          reason,
			Confidence:      ConfidenceHigh,
			Message:         fmt.Sprintf("finish reason %q maps to %s", finishReason, reason),
		}
	}

	if finishReason == "" {
		return TerminationSignal{
			ShouldTerminate: finished,
			Source:          SourceFinished,
			Reason:          TerminationUnknown,
			Confidence:      ConfidenceLow,
			Message:         "no finish reason reported",
		}
	}

	return TerminationSignal{
		ShouldTerminate: finished,
		Source:          SourceFinishReason,
		RawValue:        finishReason,
		Reason:          TerminationUnknown,
		Confidence:      confidenceFor(finished),
		Message:         fmt.Sprintf("unrecognized finish reason %q", finishReason),
	}
}

func confidenceFor(finished bool) Confidence {
	if finished {
		return ConfidenceMedium
	}
	return ConfidenceLow
}
