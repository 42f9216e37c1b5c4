package chatclient

import (
	"encoding/json"
	"log"
	"os"
	"sort"
	"sync"

	"supportchat/backend/internal/models"
)

// LocalMessage is one entry of the widget's local conversation view. A
// provisional entry was sent by this tab but not yet acknowledged; it carries
// only a client key until the ack brings the server-assigned ID.
type LocalMessage struct {
	models.EnrichedMessage
	Provisional bool `json:"provisional,omitempty"`
}

// Store persists the local cache between widget opens, the moral equivalent
// of the browser widget's localStorage slot.
type Store interface {
	Load() ([]LocalMessage, error)
	Save([]LocalMessage) error
}

// FileStore keeps the cache in a JSON file.
type FileStore struct {
	Path string
}

func (f *FileStore) Load() ([]LocalMessage, error) {
	raw, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var messages []LocalMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (f *FileStore) Save(messages []LocalMessage) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, raw, 0o600)
}

// Cache is the bounded recent-message cache: instant rehydration on reopen,
// reconciled against a fresh history fetch by message ID.
type Cache struct {
	mu       sync.Mutex
	limit    int
	messages []LocalMessage
	store    Store
}

// NewCache builds a cache bounded to limit messages, rehydrated from store
// when one is given. A store that fails to load starts the cache empty.
func NewCache(limit int, store Store) *Cache {
	c := &Cache{limit: limit, store: store}
	if store != nil {
		messages, err := store.Load()
		if err != nil {
			log.Printf("WARNING: Failed to load message cache: %v", err)
		} else {
			c.messages = messages
			c.sortAndTrimLocked()
		}
	}
	return c
}

// Add inserts or replaces a message. Collisions resolve last writer wins: by
// server ID when the message has one, otherwise by client key against a
// provisional entry.
func (c *Cache) Add(msg LocalMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsertLocked(msg)
	c.sortAndTrimLocked()
	c.persistLocked()
}

// Ack reconciles a server message_sent echo against the provisional entry
// carrying the same client key, replacing the optimistic local version with
// the persisted representation (server ID and timestamp included). An ack
// with no matching provisional is added like any other message.
func (c *Cache) Ack(msg models.EnrichedMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	replaced := false
	if msg.ClientKey != "" {
		for i := range c.messages {
			if c.messages[i].Provisional && c.messages[i].ClientKey == msg.ClientKey {
				c.messages[i] = LocalMessage{EnrichedMessage: msg}
				replaced = true
				break
			}
		}
	}
	if !replaced {
		c.upsertLocked(LocalMessage{EnrichedMessage: msg})
	}
	c.sortAndTrimLocked()
	c.persistLocked()
}

// MergeHistory reconciles a fresh history fetch into the cache: history wins
// on ID collision, provisional entries survive, everything is re-sorted by
// creation time and trimmed to the newest entries.
func (c *Cache) MergeHistory(history []models.EnrichedMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byID := make(map[uint]int, len(c.messages))
	for i, msg := range c.messages {
		if msg.ID != 0 {
			byID[msg.ID] = i
		}
	}
	for _, msg := range history {
		if i, ok := byID[msg.ID]; ok {
			c.messages[i] = LocalMessage{EnrichedMessage: msg}
		} else {
			c.messages = append(c.messages, LocalMessage{EnrichedMessage: msg})
			byID[msg.ID] = len(c.messages) - 1
		}
	}
	c.sortAndTrimLocked()
	c.persistLocked()
}

// Messages returns a copy of the cached conversation, ascending by time.
func (c *Cache) Messages() []LocalMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LocalMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *Cache) upsertLocked(msg LocalMessage) {
	if msg.ID != 0 {
		for i := range c.messages {
			if c.messages[i].ID == msg.ID {
				c.messages[i] = msg
				return
			}
		}
	}
	c.messages = append(c.messages, msg)
}

func (c *Cache) sortAndTrimLocked() {
	sort.SliceStable(c.messages, func(i, j int) bool {
		if c.messages[i].CreatedAt.Equal(c.messages[j].CreatedAt) {
			return c.messages[i].ID < c.messages[j].ID
		}
		return c.messages[i].CreatedAt.Before(c.messages[j].CreatedAt)
	})
	if c.limit > 0 && len(c.messages) > c.limit {
		c.messages = c.messages[len(c.messages)-c.limit:]
	}
}

func (c *Cache) persistLocked() {
	if c.store == nil {
		return
	}
	if err := c.store.Save(c.messages); err != nil {
		log.Printf("WARNING: Failed to persist message cache: %v", err)
	}
}
