package anthropic

// messagesRequest represents an Anthropic Messages API request.
type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// message represents a single conversation message.
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse represents a Messages API response.
type messagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usageInfo      `json:"usage"`
}

// contentBlock is one block of response content.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// usageInfo carries Anthropic's token accounting. The API reports input
// and output separately; totals are computed on our side.
type usageInfo struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// errorResponse represents an API error response.
type errorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Streaming event types.

// streamEvent is one SSE event from a messages stream.
type streamEvent struct {
	Type    string        `json:"type"`
	Message *eventMessage `json:"message,omitempty"`
	Delta   *eventDelta   `json:"delta,omitempty"`
	Usage   *usageInfo    `json:"usage,omitempty"`
}

// eventMessage appears on message_start and carries prompt-side usage.
type eventMessage struct {
	Usage usageInfo `json:"usage"`
}

// eventDelta carries incremental text or the stop reason.
type eventDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}
