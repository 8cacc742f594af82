package intercom

import "encoding/json"

// Author is the actor attached to a conversation source or part. Type is one
// of "user", "lead", "admin", "bot" or "team".
type Author struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type Contact struct {
	Type      string `json:"type,omitempty"`
	ID        string `json:"id"`
	Role      string `json:"role,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
}

type ContactList struct {
	Type       string    `json:"type,omitempty"`
	Data       []Contact `json:"data"`
	TotalCount int       `json:"total_count,omitempty"`
}

type CreateContactRequest struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Source is the message that opened a conversation.
type Source struct {
	Type        string  `json:"type,omitempty"`
	ID          string  `json:"id,omitempty"`
	DeliveredAs string  `json:"delivered_as,omitempty"`
	Subject     string  `json:"subject,omitempty"`
	Body        string  `json:"body,omitempty"`
	Author      *Author `json:"author,omitempty"`
}

// Part is a single reply, note or event appended to a conversation.
type Part struct {
	Type      string  `json:"type,omitempty"`
	ID        string  `json:"id"`
	PartType  string  `json:"part_type,omitempty"`
	Body      string  `json:"body,omitempty"`
	CreatedAt int64   `json:"created_at,omitempty"`
	UpdatedAt int64   `json:"updated_at,omitempty"`
	Author    *Author `json:"author,omitempty"`
}

type PartList struct {
	Type              string `json:"type,omitempty"`
	ConversationParts []Part `json:"conversation_parts"`
	TotalCount        int    `json:"total_count,omitempty"`
}

type Conversation struct {
	Type              string    `json:"type,omitempty"`
	ID                string    `json:"id"`
	CreatedAt         int64     `json:"created_at,omitempty"`
	UpdatedAt         int64     `json:"updated_at,omitempty"`
	State             string    `json:"state,omitempty"`
	Source            *Source   `json:"source,omitempty"`
	ConversationParts *PartList `json:"conversation_parts,omitempty"`

	// ConversationID is only set when the create endpoint answers with a
	// message receipt; ID then holds the message id, not the conversation's.
	ConversationID string `json:"conversation_id,omitempty"`

	// Raw holds the document exactly as the provider returned it.
	Raw json.RawMessage `json:"-"`
}

// Parts returns the reply parts in provider order.
func (c *Conversation) Parts() []Part {
	if c == nil || c.ConversationParts == nil {
		return nil
	}
	return c.ConversationParts.ConversationParts
}

// Document returns the provider's original JSON when available, falling back
// to the decoded struct.
func (c *Conversation) Document() any {
	if c == nil {
		return nil
	}
	if len(c.Raw) > 0 {
		return c.Raw
	}
	return c
}

type createConversationRequest struct {
	From conversationFrom `json:"from"`
	Body string           `json:"body"`
}

type conversationFrom struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type replyRequest struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Body   string `json:"body"`
}
