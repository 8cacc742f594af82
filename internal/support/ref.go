package support

type refKind int

const (
	refNew refKind = iota
	refExisting
)

// ConversationRef is either a conversation still to be created or an
// existing provider conversation. The zero value is New.
type ConversationRef struct {
	kind refKind
	id   string
}

func NewConversation() ConversationRef {
	return ConversationRef{kind: refNew}
}

func ExistingConversation(id string) ConversationRef {
	return ConversationRef{kind: refExisting, id: id}
}

// RefFromID maps an optional client-held id onto a reference.
func RefFromID(id string) ConversationRef {
	if id == "" {
		return NewConversation()
	}
	return ExistingConversation(id)
}

// ID returns the conversation id; ok is false for a New reference.
func (r ConversationRef) ID() (id string, ok bool) {
	return r.id, r.kind == refExisting
}

func (r ConversationRef) String() string {
	if r.kind == refExisting {
		return "existing:" + r.id
	}
	return "new"
}
