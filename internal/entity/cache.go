package entity

import "sync"

// Cache is the process-local view of remote state, keyed by ID. The gateway
// read loop is the writer; any goroutine may read. Values are stored by copy
// so readers never observe partial mutations.
type Cache struct {
	mu       sync.RWMutex
	users    map[string]User
	channels map[string]Channel
	servers  map[string]Server
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		users:    make(map[string]User),
		channels: make(map[string]Channel),
		servers:  make(map[string]Server),
	}
}

// PutUser stores or replaces a user.
func (c *Cache) PutUser(u User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.ID] = u
}

// User returns the cached user, if present.
func (c *Cache) User(id string) (User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[id]
	return u, ok
}

// PutChannel stores or replaces a channel.
func (c *Cache) PutChannel(ch Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[ch.ID] = ch
}

// Channel returns the cached channel, if present.
func (c *Cache) Channel(id string) (Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[id]
	return ch, ok
}

// RemoveChannel drops a channel from the cache.
func (c *Cache) RemoveChannel(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, id)
}

// Channels returns all cached channels.
func (c *Cache) Channels() []Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

// PutServer stores or replaces a server.
func (c *Cache) PutServer(s Server) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[s.ID] = s
}

// Server returns the cached server, if present.
func (c *Cache) Server(id string) (Server, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.servers[id]
	return s, ok
}
