package game

import (
	"context"
	"sync"
)

// Registry owns at most one Client per user and counts the connections that
// use it, so the last disconnect can be told apart from a page reload.
type Registry struct {
	uc  *GameUseCase
	ctx context.Context

	mu      sync.Mutex
	clients map[string]*Client
	conns   map[string]int
}

func NewRegistry(ctx context.Context, uc *GameUseCase) *Registry {
	return &Registry{
		uc:      uc,
		ctx:     ctx,
		clients: make(map[string]*Client),
		conns:   make(map[string]int),
	}
}

// Client returns the user's client, creating it on first use.
func (r *Registry) Client(userID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clientLocked(userID)
}

func (r *Registry) clientLocked(userID string) *Client {
	c, ok := r.clients[userID]
	if !ok {
		c = NewClient(r.ctx, userID, r.uc)
		r.clients[userID] = c
	}
	return c
}

// Connect registers one live connection of the user and reports whether it
// is the first.
func (r *Registry) Connect(userID string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.clientLocked(userID)
	r.conns[userID]++
	return c, r.conns[userID] == 1
}

// Disconnect drops one connection and reports whether it was the last. After
// the last one an idle client is closed and forgotten; a client still
// attached to a game stays so that its timers keep running.
func (r *Registry) Disconnect(userID string) bool {
	r.mu.Lock()
	if r.conns[userID] > 1 {
		r.conns[userID]--
		r.mu.Unlock()
		return false
	}
	delete(r.conns, userID)

	c, ok := r.clients[userID]
	if ok {
		if _, attached := c.Game(); attached {
			ok = false
		} else {
			delete(r.clients, userID)
		}
	}
	r.mu.Unlock()

	if ok {
		c.Close()
	}
	return true
}

// Len reports how many clients are held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Remove closes and forgets the user's client, e.g. on logout.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	c, ok := r.clients[userID]
	delete(r.clients, userID)
	delete(r.conns, userID)
	r.mu.Unlock()

	if ok {
		c.Close()
	}
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.conns = make(map[string]int)
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
