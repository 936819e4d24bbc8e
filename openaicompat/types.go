package openaicompat

// chatCompletionRequest represents an OpenAI-style chat completion request.
type chatCompletionRequest struct {
	Model         string         `json:"model"`
	Messages      []message      `json:"messages"`
	Temperature   *float64       `json:"temperature,omitempty"`
	MaxTokens     *int           `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

// streamOptions asks the upstream to attach usage to the final chunk.
type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// message represents a chat message on the wire.
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionResponse represents a chat completion response.
type chatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   *usage   `json:"usage"`
}

// choice represents a completion choice.
type choice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// responseMessage represents the assistant's reply message.
type responseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest represents a legacy completion request; the suffix
// field gives fill-in-the-middle behavior on models that support it.
type completionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Suffix      string   `json:"suffix,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// completionResponse represents a legacy completion response.
type completionResponse struct {
	Choices []completionChoice `json:"choices"`
	Usage   *usage             `json:"usage"`
}

// completionChoice carries the completed text.
type completionChoice struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// usage represents token usage information.
type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// errorResponse represents an API error response.
type errorResponse struct {
	Error apiError `json:"error"`
}

// apiError represents the error details.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// streamChunk represents a streaming chunk.
type streamChunk struct {
	ID      string         `json:"id"`
	Choices []streamChoice `json:"choices"`
	Usage   *usage         `json:"usage,omitempty"`
}

// streamChoice represents a choice in a streaming chunk.
type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// streamDelta represents the delta content in a streaming chunk.
type streamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}
