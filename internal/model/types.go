package model

const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// SystemUserID marks messages generated by the server rather than a person.
const SystemUserID = "system"

const ApologyText = "Sorry, there was an issue sending your message. Please try again later."

// Author describes who wrote a message on the provider side.
type Author struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Message is the flat transcript entry exchanged with the widget.
type Message struct {
	ID        string  `json:"id"`
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp int64   `json:"timestamp,omitempty"`
	UserID    string  `json:"userId"`
	Author    *Author `json:"author,omitempty"`
}
