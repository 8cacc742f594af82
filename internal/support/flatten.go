package support

import (
	"sort"

	"support-widget/internal/intercom"
	"support-widget/internal/model"
)

// Flatten turns a provider conversation into a transcript ordered by
// timestamp. Entries without a body are skipped; equal timestamps keep the
// provider's order. Any author type other than "user" maps to the bot role.
func Flatten(conv *intercom.Conversation) []model.Message {
	if conv == nil {
		return []model.Message{}
	}
	parts := conv.Parts()
	messages := make([]model.Message, 0, len(parts)+1)

	if src := conv.Source; src != nil && src.Body != "" {
		id := src.ID
		if id == "" {
			id = conv.ID
		}
		messages = append(messages, newMessage(id, src.Body, conv.CreatedAt, src.Author))
	}

	for _, part := range parts {
		if part.Body == "" {
			continue
		}
		messages = append(messages, newMessage(part.ID, part.Body, part.CreatedAt, part.Author))
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp < messages[j].Timestamp
	})
	return messages
}

func newMessage(id, body string, ts int64, author *intercom.Author) model.Message {
	msg := model.Message{
		ID:        id,
		Role:      roleOf(author),
		Content:   body,
		Timestamp: ts,
	}
	if author != nil {
		msg.UserID = author.Email
		msg.Author = &model.Author{Type: author.Type, ID: author.ID, Name: author.Name, Email: author.Email}
	}
	return msg
}

func roleOf(author *intercom.Author) string {
	if author != nil && author.Type == "user" {
		return model.RoleUser
	}
	return model.RoleBot
}
