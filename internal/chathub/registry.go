package chathub

import (
	"sync"

	"supportchat/backend/internal/models"
)

type presenceEntry struct {
	client Client
	role   models.Role
}

// PresenceRegistry is the process-local, authoritative mapping from identity
// to its live connection. At most one connection is tracked per identity; a
// new registration overwrites the previous handle (last writer wins, which is
// what makes tab refreshes and reconnects safe).
//
// Every Put bumps a per-identity generation counter that survives Remove.
// Debounced offline timers capture the generation at schedule time and act
// only if it is unchanged at fire time, so a disconnect-register-disconnect
// burst inside one debounce window cannot confirm a stale offline.
type PresenceRegistry struct {
	mu          sync.RWMutex
	entries     map[string]presenceEntry
	generations map[string]uint64
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		entries:     make(map[string]presenceEntry),
		generations: make(map[string]uint64),
	}
}

// Put upserts the connection handle for an identity and returns the new
// generation. There are no error conditions.
func (r *PresenceRegistry) Put(identityID string, c Client, role models.Role) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[identityID] = presenceEntry{client: c, role: role}
	r.generations[identityID]++
	return r.generations[identityID]
}

// Remove drops the identity's entry if present; no-op otherwise.
func (r *PresenceRegistry) Remove(identityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, identityID)
}

// RemoveClient drops the identity's entry only if it still points at the
// given client. A disconnect of an already-replaced connection (the old tab
// of a refresh) must not unregister the new one. It reports the role and
// generation at removal time for the debounce timer.
func (r *PresenceRegistry) RemoveClient(identityID string, c Client) (models.Role, uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[identityID]
	if !ok || entry.client != c {
		return "", 0, false
	}
	delete(r.entries, identityID)
	return entry.role, r.generations[identityID], true
}

// Lookup returns the live connection for an identity, if any.
func (r *PresenceRegistry) Lookup(identityID string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[identityID]
	return entry.client, ok
}

// Generation returns the identity's current registration generation.
func (r *PresenceRegistry) Generation(identityID string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generations[identityID]
}

// ListByRole snapshots the connections registered under a role, used to
// broadcast presence deltas to all admins or all end users without a full
// fan-out.
func (r *PresenceRegistry) ListByRole(role models.Role) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var clients []Client
	for _, entry := range r.entries {
		if entry.role == role {
			clients = append(clients, entry.client)
		}
	}
	return clients
}

// All snapshots every live connection.
func (r *PresenceRegistry) All() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]Client, 0, len(r.entries))
	for _, entry := range r.entries {
		clients = append(clients, entry.client)
	}
	return clients
}

// OnlineIDs snapshots the identity IDs currently registered.
func (r *PresenceRegistry) OnlineIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// OnlineIDsByRole snapshots the identity IDs registered under a role.
func (r *PresenceRegistry) OnlineIDsByRole(role models.Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, entry := range r.entries {
		if entry.role == role {
			ids = append(ids, id)
		}
	}
	return ids
}
