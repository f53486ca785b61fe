package webhooks

// WebhookEvent is the top-level Instagram webhook payload
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry represents one account entry in the webhook
type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []Messaging `json:"messaging,omitempty"`
	Changes   []Change    `json:"changes,omitempty"`
}

// Messaging is one direct message event
type Messaging struct {
	Sender    User     `json:"sender"`
	Recipient User     `json:"recipient"`
	Timestamp int64    `json:"timestamp"`
	Message   *Message `json:"message,omitempty"`
}

// User identifies the sender or recipient of a message
type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// Message carries the DM content
type Message struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text"`
	IsEcho      bool         `json:"is_echo,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment
type Attachment struct {
	Type    string  `json:"type"`
	Payload Payload `json:"payload"`
}

// Payload represents attachment payload
type Payload struct {
	URL string `json:"url"`
}

// Change represents a comment change event
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue is the comment body of a change event
type ChangeValue struct {
	ID    string        `json:"id"` // comment id
	From  *CommentUser  `json:"from,omitempty"`
	Text  string        `json:"text"`
	Media *CommentMedia `json:"media,omitempty"`
}

// CommentUser identifies the comment author
type CommentUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// CommentMedia identifies the post the comment belongs to
type CommentMedia struct {
	ID string `json:"id"`
}
