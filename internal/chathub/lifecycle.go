package chathub

import (
	"log"
	"time"

	"supportchat/backend/internal/config"
	"supportchat/backend/internal/models"
	"supportchat/backend/internal/storage"
)

// LifecycleService drives the per-identity presence state machine:
// Unregistered -> Online -> (debounce window) -> Offline. Re-registration
// while Online cancels any pending offline confirmation by bumping the
// registry generation.
type LifecycleService struct {
	Registry *PresenceRegistry
	Storage  storage.Storage

	// Debounce is how long a disconnect must stay unanswered before the
	// offline transition is confirmed. Page reloads produce disconnect plus
	// reconnect pairs within milliseconds; without this window presence
	// would flicker.
	Debounce time.Duration
}

func NewLifecycleService(registry *PresenceRegistry, s storage.Storage) *LifecycleService {
	return &LifecycleService{
		Registry: registry,
		Storage:  s,
		Debounce: config.OfflineDebounce,
	}
}

// Register puts the connection into the registry, persists the online flag
// asynchronously, and notifies the other side of the presence delta. A fresh
// admin connection additionally receives a one-shot snapshot of end-user
// presence; a fresh end-user connection receives the status of every admin
// currently online, so neither UI starts blank.
func (l *LifecycleService) Register(c Client) {
	id := c.GetIdentityID()
	role := c.GetRole()
	l.Registry.Put(id, c, role)
	log.Printf("Registered %s: %s", role, id)

	kind := models.KindForRole(role)
	go l.persistOnline(kind, id)

	if role == models.RoleAdmin {
		l.broadcastToRole(models.RoleEndUser, models.EventAdminStatus,
			models.AdminStatusPayload{AdminID: id, IsOnline: true})

		users, err := l.Storage.ListChatUserPresence()
		if err != nil {
			log.Printf("WARNING: presence snapshot for admin %s failed: %v", id, err)
		} else {
			push(c, models.EventInitialSnapshot, models.SnapshotPayload{Users: users})
		}
		return
	}

	l.broadcastToRole(models.RoleAdmin, models.EventPresenceChange,
		models.PresenceChangePayload{
			TargetType: string(models.KindEndUser),
			TargetID:   id,
			IsOnline:   true,
		})

	for _, adminID := range l.Registry.OnlineIDsByRole(models.RoleAdmin) {
		push(c, models.EventAdminStatus, models.AdminStatusPayload{AdminID: adminID, IsOnline: true})
	}
}

// Disconnect removes the connection from the registry immediately, so new
// sends stop targeting a dead handle, but defers the offline transition by
// the debounce window. The timer captures the registration generation; a
// re-register before it fires bumps the generation and turns the fire into a
// no-op.
func (l *LifecycleService) Disconnect(c Client) {
	id := c.GetIdentityID()
	role, gen, removed := l.Registry.RemoveClient(id, c)
	if !removed {
		// Already replaced by a newer connection for the same identity.
		return
	}

	time.AfterFunc(l.Debounce, func() {
		l.confirmOffline(id, role, gen)
	})
}

func (l *LifecycleService) confirmOffline(id string, role models.Role, gen uint64) {
	if l.Registry.Generation(id) != gen {
		return // re-registered inside the window
	}

	kind := models.KindForRole(role)
	if err := l.Storage.SetOffline(kind, id); err != nil {
		// Best-effort: the registry stays authoritative for routing, the
		// broadcast still goes out.
		log.Printf("WARNING: Failed to persist offline for %s %s: %v", kind, id, err)
	}

	now := time.Now()
	l.broadcastOffline(role, id, &now)
	log.Printf("%s %s confirmed offline", role, id)
}

// Heartbeat re-asserts the registry entry without re-broadcasting presence,
// avoiding redundant UI churn. The generation bump also cancels any offline
// confirmation still in flight for this identity.
func (l *LifecycleService) Heartbeat(c Client) {
	l.Registry.Put(c.GetIdentityID(), c, c.GetRole())
}

// Logout is the unambiguous path: the user clicked "logout", so the offline
// transition is immediate, not debounced.
func (l *LifecycleService) Logout(adminID string) {
	l.Registry.Remove(adminID)
	if err := l.Storage.SetOffline(models.KindStaffUser, adminID); err != nil {
		log.Printf("WARNING: Failed to persist logout for admin %s: %v", adminID, err)
	}
	l.broadcastOffline(models.RoleAdmin, adminID, nil)
	log.Printf("Admin logged out: %s", adminID)
}

// AdminStatusToggle handles the manual visibility switch in the console. The
// broadcast always goes out; switching to offline also drops the registry
// entry and persists the flag.
func (l *LifecycleService) AdminStatusToggle(adminID string, isOnline bool) {
	l.broadcastToRole(models.RoleEndUser, models.EventAdminStatus,
		models.AdminStatusPayload{AdminID: adminID, IsOnline: isOnline})

	if !isOnline && adminID != "" {
		if err := l.Storage.SetOffline(models.KindStaffUser, adminID); err != nil {
			log.Printf("WARNING: Failed to persist manual offline for %s: %v", adminID, err)
		}
		l.Registry.Remove(adminID)
	}
}

// CheckOnlineStatus is the explicit resync primitive for a client that
// suspects its presence view is stale: it receives the registry's online set
// plus a per-admin status read back from the persisted flag.
func (l *LifecycleService) CheckOnlineStatus(c Client) {
	push(c, models.EventOnlineUsers, l.Registry.OnlineIDs())

	for _, adminID := range l.Registry.OnlineIDsByRole(models.RoleAdmin) {
		admin, err := l.Storage.FindStaffUser(adminID)
		if err != nil {
			log.Printf("WARNING: admin status lookup for %s failed: %v", adminID, err)
			continue
		}
		isOnline := admin != nil && admin.IsOnline
		push(c, models.EventAdminStatus, models.AdminStatusPayload{AdminID: adminID, IsOnline: isOnline})
	}
}

// ForceAdminStatusRefresh re-emits admin_status for every staff row in the
// store, used when the widget modal reopens.
func (l *LifecycleService) ForceAdminStatusRefresh(c Client) {
	staff, err := l.Storage.ListStaffUsers()
	if err != nil {
		log.Printf("WARNING: staff list for status refresh failed: %v", err)
		return
	}
	for _, admin := range staff {
		push(c, models.EventAdminStatus, models.AdminStatusPayload{AdminID: admin.ID, IsOnline: admin.IsOnline})
	}
}

// BroadcastPing emits the application-level heartbeat to every connection.
// Clients answer with pong_alive; transports with no live peer simply never
// reply and the transport's own disconnect detection takes over.
func (l *LifecycleService) BroadcastPing() {
	for _, c := range l.Registry.All() {
		push(c, models.EventPingCheck, nil)
	}
}

func (l *LifecycleService) persistOnline(kind models.ParticipantKind, id string) {
	if err := l.Storage.SetOnline(kind, id); err != nil {
		log.Printf("WARNING: Failed to persist online for %s %s: %v", kind, id, err)
	}
	if err := l.Storage.PublishEvent(models.EventPresenceChange, models.PresenceChangePayload{
		TargetType: string(kind),
		TargetID:   id,
		IsOnline:   true,
	}); err != nil {
		log.Printf("WARNING: Failed to mirror presence event for %s: %v", id, err)
	}
}

func (l *LifecycleService) broadcastOffline(role models.Role, id string, lastActive *time.Time) {
	if role == models.RoleAdmin {
		l.broadcastToRole(models.RoleEndUser, models.EventAdminStatus,
			models.AdminStatusPayload{AdminID: id, IsOnline: false})
	} else {
		l.broadcastToRole(models.RoleAdmin, models.EventPresenceChange,
			models.PresenceChangePayload{
				TargetType: string(models.KindEndUser),
				TargetID:   id,
				IsOnline:   false,
				LastActive: lastActive,
			})
	}

	if err := l.Storage.PublishEvent(models.EventPresenceChange, models.PresenceChangePayload{
		TargetType: string(models.KindForRole(role)),
		TargetID:   id,
		IsOnline:   false,
		LastActive: lastActive,
	}); err != nil {
		log.Printf("WARNING: Failed to mirror presence event for %s: %v", id, err)
	}
}

func (l *LifecycleService) broadcastToRole(role models.Role, event string, payload any) {
	for _, c := range l.Registry.ListByRole(role) {
		push(c, event, payload)
	}
}
