package relay

import (
	"fmt"
	"sort"
	"sync"

	"github.com/backkem/attendbeacon/pkg/beacon"
	"github.com/backkem/attendbeacon/pkg/store"
	"github.com/pion/logging"
)

// DefaultStoreKey is the store key holding relayed session ids.
const DefaultStoreKey = "relayed_sessions"

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Store persists the relayed set. Required.
	Store store.SetStore

	// Key is the store key (default: DefaultStoreKey).
	Key string

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Registry is the append-only set of sessions this device has relayed.
// It is loaded once at construction and written through on every new entry.
type Registry struct {
	store store.SetStore
	key   string
	log   logging.LeveledLogger

	mu      sync.RWMutex
	relayed map[beacon.SessionID]struct{}
}

// NewRegistry loads the relayed set from config.Store.
// Stored entries that are not valid session ids are skipped.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.Store == nil {
		return nil, ErrNilStore
	}
	if config.Key == "" {
		config.Key = DefaultStoreKey
	}

	r := &Registry{
		store:   config.Store,
		key:     config.Key,
		relayed: make(map[beacon.SessionID]struct{}),
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("relay-registry")
	}

	members, err := config.Store.GetSet(config.Key)
	if err != nil {
		return nil, fmt.Errorf("relay: load %s: %w", config.Key, err)
	}
	for _, m := range members {
		id, err := beacon.ParseSessionID(m)
		if err != nil {
			if r.log != nil {
				r.log.Warnf("skipping unparsable relayed entry %q", m)
			}
			continue
		}
		r.relayed[id] = struct{}{}
	}

	if r.log != nil {
		r.log.Debugf("loaded %d relayed sessions", len(r.relayed))
	}
	return r, nil
}

// Contains reports whether session was relayed by this device.
func (r *Registry) Contains(session beacon.SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.relayed[session]
	return ok
}

// MarkRelayed records session. It is idempotent. The in-memory set is
// updated even if persisting fails, so the session stays ineligible for
// the rest of the process lifetime; the persistence error is returned.
func (r *Registry) MarkRelayed(session beacon.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.relayed[session]; ok {
		return nil
	}
	r.relayed[session] = struct{}{}

	members := make([]string, 0, len(r.relayed))
	for id := range r.relayed {
		members = append(members, id.String())
	}
	if err := r.store.PutSet(r.key, members); err != nil {
		return fmt.Errorf("relay: persist %s: %w", session, err)
	}
	return nil
}

// Sessions returns the relayed sessions in textual order.
func (r *Registry) Sessions() []beacon.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]beacon.SessionID, 0, len(r.relayed))
	for id := range r.relayed {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// Len returns the number of relayed sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.relayed)
}
