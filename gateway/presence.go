package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vyre-gateway/directory"
	"vyre-gateway/domain/event"
	"vyre-gateway/repositories"
)

type broadcaster interface {
	BroadcastAll(ctx context.Context, e event.Outbound)
}

// Debouncer converts raw connect/disconnect edges into stable presence
// transitions. Connection churn (page reload, flaky network) produces rapid
// disconnect+reconnect pairs; without debouncing every churn event would
// cause a spurious presence flip visible to all peers.
//
// Delays are asymmetric: a short one for the online transition (fast
// positive feedback) and a longer one for the offline transition (tolerate
// brief drops without flicker).
type Debouncer struct {
	mu           sync.Mutex
	timers       map[string]*time.Timer
	state        map[string]bool // last committed presence per user
	users        repositories.IUserRepository
	directory    *directory.Cache
	broadcaster  broadcaster
	onlineDelay  time.Duration
	offlineDelay time.Duration
	log          *slog.Logger
}

func NewDebouncer(log *slog.Logger, users repositories.IUserRepository,
	dir *directory.Cache, b broadcaster, onlineDelay, offlineDelay time.Duration) *Debouncer {
	return &Debouncer{
		timers:       make(map[string]*time.Timer),
		state:        make(map[string]bool),
		users:        users,
		directory:    dir,
		broadcaster:  b,
		onlineDelay:  onlineDelay,
		offlineDelay: offlineDelay,
		log:          log,
	}
}

func (d *Debouncer) ScheduleOnline(userID string) {
	d.schedule(userID, true, d.onlineDelay)
}

func (d *Debouncer) ScheduleOffline(userID string) {
	d.schedule(userID, false, d.offlineDelay)
}

// schedule replaces any pending transition for the user. Only a timer that
// fires uninterrupted commits its transition; a new edge for the same user
// cancels the prior pending one.
func (d *Debouncer) schedule(userID string, online bool, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.timers[userID]; ok {
		timer.Stop()
	}
	d.timers[userID] = time.AfterFunc(delay, func() {
		d.fire(userID, online)
	})
}

// fire persists the presence flag, then broadcasts the transition to all
// live connections. A store write failure is logged and the broadcast still
// happens: presence is best-effort, not authoritative, and the in-memory
// flip is not rolled back.
func (d *Debouncer) fire(userID string, online bool) {
	d.mu.Lock()
	delete(d.timers, userID)
	if d.state[userID] == online {
		// Churn collapsed back into the committed state: a reconnect
		// within the offline window must not flip presence at all.
		d.mu.Unlock()
		d.log.Debug("Presence transition suppressed", "user_id", userID, "online", online)
		return
	}
	if online {
		d.state[userID] = true
	} else {
		// An absent entry already reads as offline, so the map only ever
		// tracks currently-online users.
		delete(d.state, userID)
	}
	d.mu.Unlock()

	if err := d.users.SetOnline(userID, online, time.Now().UTC()); err != nil {
		d.log.Error("Presence write failed", "user_id", userID, "online", online, "error", err)
	}

	username := "Unknown user"
	if entry, err := d.directory.Resolve(userID); err == nil {
		username = entry.Username
	}

	d.log.Info(fmt.Sprintf("User %s is now %s", userID, statusLabel(online)))
	d.broadcaster.BroadcastAll(context.Background(), event.UserStatusChanged{
		UserID:   userID,
		Username: username,
		IsOnline: online,
	})
}

// Stop cancels every pending transition. Called on gateway shutdown; no
// transition committed after Stop returns.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for userID, timer := range d.timers {
		timer.Stop()
		delete(d.timers, userID)
	}
}

// Pending reports whether a transition is armed for the user.
func (d *Debouncer) Pending(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[userID]
	return ok
}

func statusLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}
