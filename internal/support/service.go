package support

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"support-widget/internal/intercom"
)

// ErrInvalidRequest marks structurally invalid caller input.
var ErrInvalidRequest = errors.New("invalid request")

// Provider is the subset of the Intercom API the service relies on.
type Provider interface {
	FindContactByEmail(ctx context.Context, email string) (*intercom.Contact, error)
	CreateContact(ctx context.Context, req intercom.CreateContactRequest) (*intercom.Contact, error)
	CreateConversation(ctx context.Context, contactID, body string) (*intercom.Conversation, error)
	ReplyToConversation(ctx context.Context, conversationID, contactID, body string) error
	GetConversation(ctx context.Context, conversationID string) (*intercom.Conversation, error)
}

// Service resolves users and reads or writes conversations on the provider.
// It keeps no conversation state; every read goes to the provider.
type Service struct {
	provider Provider
	logger   *slog.Logger
}

func NewService(provider Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{provider: provider, logger: logger}
}

// EnsureUser returns the contact for email, creating it when the provider has
// none. Concurrent first calls may both try to create; a conflict answer is
// resolved by looking the contact up again.
func (s *Service) EnsureUser(ctx context.Context, email string) (*intercom.Contact, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}

	contact, err := s.provider.FindContactByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if contact != nil {
		return contact, nil
	}

	s.logger.Info("creating contact", "email", email)
	contact, err = s.provider.CreateContact(ctx, intercom.CreateContactRequest{
		Role:  "user",
		Email: email,
		Name:  DisplayName(email),
	})
	if err == nil {
		return contact, nil
	}

	upErr, ok := intercom.AsUpstream(err)
	if !ok || upErr.Status != http.StatusConflict {
		return nil, err
	}
	s.logger.Warn("contact already exists, looking it up again", "email", email)
	existing, lookupErr := s.provider.FindContactByEmail(ctx, email)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if existing == nil {
		return nil, err
	}
	return existing, nil
}

// DisplayName derives a contact name from the local part of an email.
func DisplayName(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

func (s *Service) CreateConversation(ctx context.Context, email, body string) (*intercom.Conversation, error) {
	contact, err := s.EnsureUser(ctx, email)
	if err != nil {
		return nil, err
	}
	conv, err := s.provider.CreateConversation(ctx, contact.ID, body)
	if err != nil {
		return nil, err
	}
	s.logger.Info("created conversation", "conversation_id", conv.ID, "contact_id", contact.ID)
	return conv, nil
}

// ReplyToConversation appends a comment by the user. The provider's answer is
// not used; read the conversation again to observe the new part.
func (s *Service) ReplyToConversation(ctx context.Context, conversationID, email, body string) error {
	if conversationID == "" {
		return fmt.Errorf("%w: conversation id is required", ErrInvalidRequest)
	}
	contact, err := s.EnsureUser(ctx, email)
	if err != nil {
		return err
	}
	if err := s.provider.ReplyToConversation(ctx, conversationID, contact.ID, body); err != nil {
		return err
	}
	s.logger.Info("replied to conversation", "conversation_id", conversationID, "contact_id", contact.ID)
	return nil
}

func (s *Service) GetConversation(ctx context.Context, conversationID string) (*intercom.Conversation, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrInvalidRequest)
	}
	return s.provider.GetConversation(ctx, conversationID)
}

// Send delivers body from email. A new reference opens a conversation; an
// existing one gets a reply followed by a fresh read, since the reply call
// does not return the updated document.
func (s *Service) Send(ctx context.Context, ref ConversationRef, email, body string) (*intercom.Conversation, error) {
	if email == "" || body == "" {
		return nil, fmt.Errorf("%w: message must have content and userId", ErrInvalidRequest)
	}
	id, existing := ref.ID()
	if !existing {
		return s.CreateConversation(ctx, email, body)
	}
	if err := s.ReplyToConversation(ctx, id, email, body); err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, id)
}
