package preferences

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/outing/internal/storage"
)

// Store defines the storage operations the Manager needs.
// Implemented by storage.Store and storage.MongoStore.
type Store interface {
	GetPreferences(ctx context.Context, userID string) (storage.Preferences, error)
	SavePreferences(ctx context.Context, p storage.Preferences) error
	ListPreferenceUserIDs(ctx context.Context) ([]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Patch is a partial update. Nil fields are left unchanged; a non-nil
// empty Interests clears the list.
type Patch struct {
	Location  *string  `json:"location"`
	Interests []string `json:"interests"`
	BudgetMin *float64 `json:"budget_min"`
	BudgetMax *float64 `json:"budget_max"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Location == nil && p.Interests == nil && p.BudgetMin == nil && p.BudgetMax == nil
}

type cacheEntry struct {
	prefs    storage.Preferences
	cachedAt time.Time
}

// Manager provides cached access to per-user preference records.
type Manager struct {
	store Store
	clock Clock
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store Store) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store Store, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// Defaults returns the record a user has before their first update.
func Defaults(userID string) storage.Preferences {
	return storage.Preferences{UserID: userID, Interests: []string{}}
}

// Get returns the user's preferences, or Defaults when none are stored.
// Defaults are not persisted.
func (m *Manager) Get(ctx context.Context, userID string) (storage.Preferences, error) {
	m.mu.RLock()
	if e, ok := m.cache[userID]; ok && m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		p := copyPrefs(e.prefs)
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.cache[userID]; ok && m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		return copyPrefs(e.prefs), nil
	}

	p, err := m.store.GetPreferences(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		p = Defaults(userID)
	} else if err != nil {
		return storage.Preferences{}, fmt.Errorf("loading preferences for %q: %w", userID, err)
	}

	m.cache[userID] = cacheEntry{prefs: p, cachedAt: m.clock.Now()}
	return copyPrefs(p), nil
}

// Update applies patch to the user's record, creating it on first write.
// Interests are de-duplicated keeping first occurrence order. An empty
// patch writes nothing and returns the current record.
func (m *Manager) Update(ctx context.Context, userID string, patch Patch) (storage.Preferences, error) {
	if userID == "" {
		return storage.Preferences{}, errors.New("user_id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.store.GetPreferences(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		p = Defaults(userID)
	} else if err != nil {
		return storage.Preferences{}, fmt.Errorf("loading preferences for %q: %w", userID, err)
	}
	if patch.Empty() {
		return copyPrefs(p), nil
	}

	if patch.Location != nil {
		loc := *patch.Location
		p.Location = &loc
	}
	if patch.Interests != nil {
		p.Interests = dedupe(patch.Interests)
	}
	if patch.BudgetMin != nil {
		v := *patch.BudgetMin
		p.BudgetMin = &v
	}
	if patch.BudgetMax != nil {
		v := *patch.BudgetMax
		p.BudgetMax = &v
	}
	p.UpdatedAt = m.clock.Now().UTC()

	if err := m.store.SavePreferences(ctx, p); err != nil {
		return storage.Preferences{}, fmt.Errorf("saving preferences for %q: %w", userID, err)
	}

	delete(m.cache, userID)
	return copyPrefs(p), nil
}

// ListUserIDs returns every user id with a stored record.
func (m *Manager) ListUserIDs(ctx context.Context) ([]string, error) {
	ids, err := m.store.ListPreferenceUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing preference users: %w", err)
	}
	return ids, nil
}

// Summary returns a one-line description of the user's preferences for
// the system prompt, or "" when nothing is set or loading fails.
func (m *Manager) Summary(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	p, err := m.Get(ctx, userID)
	if err != nil {
		return ""
	}
	return summarize(p)
}

func summarize(p storage.Preferences) string {
	var parts []string
	if p.Location != nil && *p.Location != "" {
		parts = append(parts, "location "+*p.Location)
	}
	if len(p.Interests) > 0 {
		parts = append(parts, "interests "+strings.Join(p.Interests, ", "))
	}
	switch {
	case p.BudgetMin != nil && p.BudgetMax != nil:
		parts = append(parts, fmt.Sprintf("budget $%s-$%s", money(*p.BudgetMin), money(*p.BudgetMax)))
	case p.BudgetMax != nil:
		parts = append(parts, "budget up to $"+money(*p.BudgetMax))
	case p.BudgetMin != nil:
		parts = append(parts, "budget from $"+money(*p.BudgetMin))
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("The current user is %q. Saved preferences: %s.", p.UserID, strings.Join(parts, "; "))
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func copyPrefs(p storage.Preferences) storage.Preferences {
	cp := p
	if p.Location != nil {
		v := *p.Location
		cp.Location = &v
	}
	if p.BudgetMin != nil {
		v := *p.BudgetMin
		cp.BudgetMin = &v
	}
	if p.BudgetMax != nil {
		v := *p.BudgetMax
		cp.BudgetMax = &v
	}
	cp.Interests = make([]string, len(p.Interests))
	copy(cp.Interests, p.Interests)
	return cp
}
