package provider

// Request represents a provider-agnostic chat request. It carries no
// model name: the client serving it is already bound to one.
type Request struct {
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
}

// FIMRequest represents a fill-in-the-middle completion request.
// Prompt is the code before the cursor, Suffix the code after it.
type FIMRequest struct {
	Prompt      string
	Suffix      string
	Temperature *float64
	MaxTokens   *int
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role represents the message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Response contains a provider's completed reply.
type Response struct {
	Content      string
	FinishReason FinishReason
	Usage        Usage
}

// FinishReason indicates why the model stopped generating.
type FinishReason string

const (
	FinishReasonStop   FinishReason = "stop"
	FinishReasonLength FinishReason = "length"
)

// Usage contains token usage statistics for one request.
// TotalTokens always equals PromptTokens + CompletionTokens when the
// provider supplies both components.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// IsZero reports whether the provider supplied no usage metadata.
func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}

// Validate checks the request for caller errors before any network I/O.
func (r *Request) Validate(providerName string) error {
	if len(r.Messages) == 0 {
		return invalidRequest(providerName, "messages must not be empty")
	}
	for _, msg := range r.Messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return invalidRequest(providerName, "unknown message role %q", msg.Role)
		}
	}
	return nil
}

// Validate checks the FIM request for caller errors before any network I/O.
func (r *FIMRequest) Validate(providerName string) error {
	if r.Prompt == "" && r.Suffix == "" {
		return invalidRequest(providerName, "prompt and suffix must not both be empty")
	}
	return nil
}
