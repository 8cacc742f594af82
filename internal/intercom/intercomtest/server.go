// Package intercomtest provides an in-memory Intercom API for tests.
package intercomtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"support-widget/internal/intercom"
)

// Server is a minimal stand-in for the Intercom REST API backed by maps.
type Server struct {
	*httptest.Server

	Token string

	mu            sync.Mutex
	contacts      map[string]intercom.Contact
	conversations map[string]*intercom.Conversation
	failures      map[string]int
	calls         []string
	clock         int64
	nextID        int
	receipt       bool
}

func NewServer(token string) *Server {
	s := &Server{
		Token:         token,
		contacts:      make(map[string]intercom.Contact),
		conversations: make(map[string]*intercom.Conversation),
		failures:      make(map[string]int),
		clock:         1700000000,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /contacts", s.listContacts)
	mux.HandleFunc("POST /contacts", s.createContact)
	mux.HandleFunc("POST /conversations", s.createConversation)
	mux.HandleFunc("GET /conversations/{id}", s.getConversation)
	mux.HandleFunc("POST /conversations/{id}/parts", s.reply)
	s.Server = httptest.NewServer(s.intercept(mux))
	return s
}

// Fail makes every request matching route (e.g. "POST /contacts") answer
// with status until cleared with a zero status.
func (s *Server) Fail(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = status
}

// Calls returns every request seen as "METHOD /path".
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Count returns how many requests matched the method and path prefix.
func (s *Server) Count(method, pathPrefix string) int {
	n := 0
	for _, call := range s.Calls() {
		if strings.HasPrefix(call, method+" "+pathPrefix) {
			n++
		}
	}
	return n
}

func (s *Server) AddContact(c intercom.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.Email] = c
}

// AdminReply appends a part authored by a support agent.
func (s *Server) AdminReply(conversationID, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conversations[conversationID]
	if conv == nil {
		return
	}
	conv.ConversationParts.ConversationParts = append(conv.ConversationParts.ConversationParts, intercom.Part{
		Type:      "conversation_part",
		ID:        s.id("part"),
		PartType:  "comment",
		Body:      body,
		CreatedAt: s.tick(),
		Author:    &intercom.Author{Type: "admin", ID: "admin-1", Name: "Support"},
	})
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, r.Method+" "+r.URL.Path)
		status := s.failures[r.Method+" "+routeOf(r.URL.Path)]
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeErrors(w, http.StatusUnauthorized, "unauthorized", "Access Token Invalid")
			return
		}
		if status != 0 {
			writeErrors(w, status, "server_error", "simulated failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func routeOf(path string) string {
	switch {
	case path == "/contacts" || path == "/conversations":
		return path
	case strings.HasSuffix(path, "/parts"):
		return "/conversations/{id}/parts"
	case strings.HasPrefix(path, "/conversations/"):
		return "/conversations/{id}"
	}
	return path
}

func (s *Server) listContacts(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	s.mu.Lock()
	defer s.mu.Unlock()
	list := intercom.ContactList{Type: "list", Data: []intercom.Contact{}}
	if c, ok := s.contacts[email]; ok {
		list.Data = append(list.Data, c)
	}
	list.TotalCount = len(list.Data)
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createContact(w http.ResponseWriter, r *http.Request) {
	var req intercom.CreateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "parameter_invalid", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.contacts[req.Email]; ok {
		writeErrors(w, http.StatusConflict, "conflict", "A contact matching those details already exists with id="+existing.ID)
		return
	}
	now := s.tick()
	c := intercom.Contact{Type: "contact", ID: s.id("contact"), Role: req.Role, Email: req.Email, Name: req.Name, CreatedAt: now, UpdatedAt: now}
	s.contacts[req.Email] = c
	writeJSON(w, http.StatusOK, c)
}

// ReceiptOnCreate makes POST /conversations answer with a message receipt
// instead of the conversation document, as the live API does.
func (s *Server) ReceiptOnCreate(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipt = on
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"from"`
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "parameter_invalid", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	author, ok := s.authorLocked(req.From.ID)
	if !ok {
		writeErrors(w, http.StatusNotFound, "not_found", "User Not Found")
		return
	}
	now := s.tick()
	conv := &intercom.Conversation{
		Type:      "conversation",
		ID:        s.id("conv"),
		CreatedAt: now,
		UpdatedAt: now,
		State:     "open",
		Source: &intercom.Source{
			Type:        "conversation",
			ID:          s.id("source"),
			DeliveredAs: "customer_initiated",
			Body:        req.Body,
			Author:      author,
		},
		ConversationParts: &intercom.PartList{Type: "conversation_part.list", ConversationParts: []intercom.Part{}},
	}
	s.conversations[conv.ID] = conv
	if s.receipt {
		writeJSON(w, http.StatusOK, map[string]string{
			"type":            "user_message",
			"id":              s.id("msg"),
			"conversation_id": conv.ID,
		})
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[r.PathValue("id")]
	if !ok {
		writeErrors(w, http.StatusNotFound, "not_found", "Resource Not Found")
		return
	}
	conv.ConversationParts.TotalCount = len(conv.ConversationParts.ConversationParts)
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type   string `json:"type"`
		UserID string `json:"user_id"`
		Body   string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "parameter_invalid", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[r.PathValue("id")]
	if !ok {
		writeErrors(w, http.StatusNotFound, "not_found", "Resource Not Found")
		return
	}
	author, ok := s.authorLocked(req.UserID)
	if !ok {
		writeErrors(w, http.StatusNotFound, "not_found", "User Not Found")
		return
	}
	now := s.tick()
	conv.UpdatedAt = now
	conv.ConversationParts.ConversationParts = append(conv.ConversationParts.ConversationParts, intercom.Part{
		Type:      "conversation_part",
		ID:        s.id("part"),
		PartType:  req.Type,
		Body:      req.Body,
		CreatedAt: now,
		Author:    author,
	})
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) authorLocked(contactID string) (*intercom.Author, bool) {
	for _, c := range s.contacts {
		if c.ID == contactID {
			return &intercom.Author{Type: "user", ID: c.ID, Name: c.Name, Email: c.Email}, true
		}
	}
	return nil, false
}

func (s *Server) tick() int64 {
	s.clock++
	return s.clock
}

func (s *Server) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrors(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"type":   "error.list",
		"errors": []map[string]string{{"code": code, "message": message}},
	})
}
