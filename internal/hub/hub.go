package hub

import "sync"

type Writer interface {
	Write(message []byte) error
	Close() error
}

// Connection is one watcher subscribed to a conversation.
type Connection struct {
	ConversationID string
	Writer         Writer
}

// Hub fans updates out to every connection watching a conversation.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[string]map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[conn.ConversationID] == nil {
		h.connections[conn.ConversationID] = make(map[*Connection]struct{})
	}
	h.connections[conn.ConversationID][conn] = struct{}{}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.connections[conn.ConversationID]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.connections, conn.ConversationID)
	}
}

// Watchers returns the number of connections for a conversation.
func (h *Hub) Watchers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[conversationID])
}

// Broadcast writes message to every watcher of the conversation, dropping
// connections whose write fails.
func (h *Hub) Broadcast(conversationID string, message []byte) {
	h.mu.RLock()
	set := h.connections[conversationID]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}
