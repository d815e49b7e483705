// Package llm is the outbound client for OpenAI-compatible chat-completion
// endpoints (DeepSeek, SiliconFlow). Wire types reuse go-openai for tools,
// tool calls and usage; the message type is local because reasoning models
// require reasoning_content on assistant tool-call messages.
package llm

import "github.com/sashabaranov/go-openai"

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
	RoleTool      = openai.ChatMessageRoleTool
)

// Message is one entry of the conversation history sent every round.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// ReasoningContent is serialized whenever non-nil, including "".
	ReasoningContent *string           `json:"reasoning_content,omitempty"`
	ToolCalls        []openai.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID       string            `json:"tool_call_id,omitempty"`
	Name             string            `json:"name,omitempty"`
}

// ChatRequest is the body of POST /chat/completions.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Tools       []openai.Tool `json:"tools,omitempty"`
	// EnableThinking is a SiliconFlow extension switching on reasoning output.
	EnableThinking *bool `json:"enable_thinking,omitempty"`
}

// ChatResponse is the non-streaming completion payload.
type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []Choice     `json:"choices"`
	Usage   openai.Usage `json:"usage"`
}

type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type ResponseMessage struct {
	Role             string            `json:"role"`
	Content          string            `json:"content"`
	ReasoningContent string            `json:"reasoning_content"`
	ToolCalls        []openai.ToolCall `json:"tool_calls"`
}

// StringPtr is a helper for optional string fields.
func StringPtr(s string) *string { return &s }
