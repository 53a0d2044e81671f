package observability

// Semantic conventions for observability attributes.
// These constants define standard attribute names to ensure consistency
// across different components of the system.

// --- LLM Provider Attributes ---

const (
	// AttrLLMProvider is the identifier of the LLM provider plugin (e.g. "openai", "anthropic")
	AttrLLMProvider = "llm.provider"

	// AttrLLMProviderVersion is the plugin version handling the request
	AttrLLMProviderVersion = "llm.provider.version"

	// AttrLLMModel is the model identifier (e.g. "gpt-4o", "claude-sonnet-4-5")
	AttrLLMModel = "llm.model"

	// AttrLLMEndpoint is the API endpoint URL
	AttrLLMEndpoint = "llm.endpoint"

	// AttrLLMResponseID is the unique response identifier from the provider
	AttrLLMResponseID = "llm.response.id"

	// AttrLLMFinishReason is the raw vendor stop reason
	AttrLLMFinishReason = "llm.finish_reason"

	// AttrLLMTermination is the normalized termination reason
	AttrLLMTermination = "llm.termination.reason"

	// AttrLLMTemperature is the sampling temperature used
	AttrLLMTemperature = "llm.temperature"

	// AttrLLMMaxTokens is the maximum tokens allowed
	AttrLLMMaxTokens = "llm.max_tokens" // #nosec G101 -- Not a credential, token refers to LLM tokens
)

// --- Token Usage Attributes ---

const (
	// AttrLLMTokensPrompt is the number of prompt tokens
	AttrLLMTokensPrompt = "llm.tokens.prompt" // #nosec G101 -- Not a credential, token refers to LLM tokens

	// AttrLLMTokensCompletion is the number of completion tokens
	AttrLLMTokensCompletion = "llm.tokens.completion" // #nosec G101 -- Not a credential, token refers to LLM tokens

	// AttrLLMTokensTotal is the total number of tokens
	AttrLLMTokensTotal = "llm.tokens.total" // #nosec G101 -- Not a credential, token refers to LLM tokens
)

// --- Tool Execution Attributes ---

const (
	// AttrToolName is the name of the tool being executed
	AttrToolName = "tool.name"

	// AttrToolCallID is the provider-assigned identifier of the tool call
	AttrToolCallID = "tool.call.id"

	// AttrToolInput is the tool input (serialized)
	AttrToolInput = "tool.input"

	// AttrToolOutput is the tool output (serialized)
	AttrToolOutput = "tool.output"

	// AttrToolDuration is the execution duration
	AttrToolDuration = "tool.duration"

	// AttrToolStatus is the terminal status of the tool execution
	AttrToolStatus = "tool.status"
)

// --- Retry Attributes ---

const (
	// AttrRetryAttempt is the zero-based index of the attempt being retried
	AttrRetryAttempt = "retry.attempt"

	// AttrRetryDelay is the delay before the next attempt
	AttrRetryDelay = "retry.delay"

	// AttrRetryReason is what made the attempt retryable (status code or error kind)
	AttrRetryReason = "retry.reason"
)

// --- Agent Loop Attributes ---

const (
	// AttrAgentIteration is the one-based iteration currently running
	AttrAgentIteration = "agent.iteration"

	// AttrAgentIterations is the total number of iterations the loop performed
	AttrAgentIterations = "agent.iterations"

	// AttrAgentTermination is the reason the loop stopped
	AttrAgentTermination = "agent.termination"
)

// --- Request/Response Attributes ---

const (
	// AttrRequestMessagesCount is the number of messages in the request
	AttrRequestMessagesCount = "request.messages_count"

	// AttrRequestToolsCount is the number of tools in the request
	AttrRequestToolsCount = "request.tools_count"

	// AttrResponseContent is the response content from the LLM
	AttrResponseContent = "response.content"
)

// --- HTTP Attributes ---

const (
	// AttrHTTPMethod is the HTTP method (GET, POST, etc.)
	AttrHTTPMethod = "http.method"

	// AttrHTTPStatusCode is the HTTP response status code
	AttrHTTPStatusCode = "http.status_code"

	// AttrHTTPURL is the full request URL
	AttrHTTPURL = "http.url"

	// AttrHTTPRequestBodySize is the request body size in bytes
	AttrHTTPRequestBodySize = "http.request.body.size"

	// AttrHTTPResponseBodySize is the response body size in bytes
	AttrHTTPResponseBodySize = "http.response.body.size"
)

// --- Client Attributes ---

const (
	// AttrClientToolCalls is the number of tool calls in a response
	AttrClientToolCalls = "client.tool_calls"

	// AttrClientStreaming indicates whether the call used the streaming path
	AttrClientStreaming = "client.streaming"
)

// --- General Attributes ---

const (
	// AttrError is the error message
	AttrError = "error"

	// AttrErrorKind is the normalized error classification
	AttrErrorKind = "error.kind"

	// AttrDuration is the operation duration
	AttrDuration = "duration"

	// AttrStatus is the operation status
	AttrStatus = "status"

	// AttrStatusDescription is the status description
	AttrStatusDescription = "status_description"
)

// --- Span Names ---

const (
	// SpanClientChat is the span name for synchronous chat calls
	SpanClientChat = "client.chat"

	// SpanClientStream is the span name for streaming chat calls
	SpanClientStream = "client.stream"

	// SpanProviderRequest is the span name for provider HTTP round-trips
	SpanProviderRequest = "provider.request"

	// SpanToolExecution is the span name for tool executions
	SpanToolExecution = "tool.execution"

	// SpanAgentLoop is the span name for a full agent loop run
	SpanAgentLoop = "agent.loop"
)

// --- Event Names ---

const (
	// EventLLMRequestStart marks the start of an LLM request
	EventLLMRequestStart = "llm.request.start"

	// EventLLMRequestEnd marks the end of an LLM request
	EventLLMRequestEnd = "llm.request.end"

	// EventStreamFirstToken marks the arrival of the first streamed token
	EventStreamFirstToken = "llm.stream.first_token" // #nosec G101 -- Not a credential, token refers to LLM tokens

	// EventToolExecutionStart marks the start of tool execution
	EventToolExecutionStart = "tool.execution.start"

	// EventToolExecutionEnd marks the end of tool execution
	EventToolExecutionEnd = "tool.execution.end"

	// EventRetryScheduled marks a retry being scheduled after a failed attempt
	EventRetryScheduled = "retry.scheduled"

	// EventAgentIterationStart marks the start of an agent loop iteration
	EventAgentIterationStart = "agent.iteration.start"

	// EventAgentIterationEnd marks the end of an agent loop iteration
	EventAgentIterationEnd = "agent.iteration.end"
)

// --- Metric Names ---

const (
	// MetricClientRequestCount is the counter for client requests
	MetricClientRequestCount = "bridge.client.request.count"

	// MetricClientRequestDuration is the histogram for request duration
	MetricClientRequestDuration = "bridge.client.request.duration"

	// MetricClientTokensTotal is the counter for total tokens
	MetricClientTokensTotal = "bridge.client.tokens.total"

	// MetricClientTokensPrompt is the counter for prompt tokens
	MetricClientTokensPrompt = "bridge.client.tokens.prompt"

	// MetricClientTokensCompletion is the counter for completion tokens
	MetricClientTokensCompletion = "bridge.client.tokens.completion"

	// MetricToolExecutionCount is the counter for tool executions
	MetricToolExecutionCount = "bridge.tool.execution.count"

	// MetricToolExecutionDuration is the histogram for tool execution duration
	MetricToolExecutionDuration = "bridge.tool.execution.duration"

	// MetricRetryCount is the counter for retried attempts
	MetricRetryCount = "bridge.transport.retry.count"

	// MetricAgentIterations is the histogram for iterations per agent run
	MetricAgentIterations = "bridge.agent.iterations"
)
