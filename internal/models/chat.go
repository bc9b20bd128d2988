package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of the chatbot conversation. The JSON shape is
// shared with the browser widget's local history.
type ChatMessage struct {
	ID   string `json:"id"`
	Role string `json:"role"` // user or assistant
	Text string `json:"text"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}
