package bridge

import (
	"sync"
)

// Logger is the minimal logging surface the bridge components need.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

// mappingSnapshot is the persisted form of the store: the same two flat maps
// the in-memory store holds, serialized as one JSON object.
type mappingSnapshot struct {
	TodoistToNotion map[string]string `json:"todoist_to_notion"`
	NotionToTodoist map[string]string `json:"notion_to_todoist"`
}

type MappingStoreOptions struct {
	Backend MappingBackend
	Logger  Logger
}

// MappingStore owns the bijection between Todoist task IDs and Notion page
// IDs. Both directions are mutated together under one mutex, and every
// mutation writes the full snapshot through the backend.
type MappingStore struct {
	mu             sync.Mutex
	sourceToRemote map[string]string
	remoteToSource map[string]string
	backend        MappingBackend
	logger         Logger
}

func NewMappingStore() *MappingStore {
	return NewMappingStoreWithOptions(MappingStoreOptions{})
}

func NewMappingStoreWithOptions(opts MappingStoreOptions) *MappingStore {
	s := &MappingStore{
		sourceToRemote: map[string]string{},
		remoteToSource: map[string]string{},
		backend:        opts.Backend,
		logger:         opts.Logger,
	}
	s.load()
	return s
}

// load is tolerant: a missing snapshot means an empty store, and a corrupt or
// unreadable snapshot is logged and treated as empty. Startup never fails here.
func (s *MappingStore) load() {
	if s.backend == nil {
		return
	}
	snapshot, err := s.backend.Load()
	if err != nil {
		s.logf("failed to load task mappings, starting empty: %v", err)
		return
	}
	if snapshot == nil {
		return
	}
	for sourceID, remoteID := range snapshot.TodoistToNotion {
		s.sourceToRemote[sourceID] = remoteID
	}
	for remoteID, sourceID := range snapshot.NotionToTodoist {
		s.remoteToSource[remoteID] = sourceID
	}
	s.logf("loaded %d task mappings", len(s.sourceToRemote))
}

// Add inserts the pair in both directions and persists. Stale pairs touching
// either ID are dropped first so the two maps stay mutually consistent.
func (s *MappingStore) Add(sourceID, remoteID string) {
	if sourceID == "" || remoteID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prevRemote, ok := s.sourceToRemote[sourceID]; ok && prevRemote != remoteID {
		delete(s.remoteToSource, prevRemote)
	}
	if prevSource, ok := s.remoteToSource[remoteID]; ok && prevSource != sourceID {
		delete(s.sourceToRemote, prevSource)
	}
	s.sourceToRemote[sourceID] = remoteID
	s.remoteToSource[remoteID] = sourceID
	s.persistLocked()
}

// RemoteID returns the Notion page ID mapped to a Todoist task ID.
func (s *MappingStore) RemoteID(sourceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remoteID, ok := s.sourceToRemote[sourceID]
	return remoteID, ok
}

// SourceID returns the Todoist task ID mapped to a Notion page ID.
func (s *MappingStore) SourceID(remoteID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sourceID, ok := s.remoteToSource[remoteID]
	return sourceID, ok
}

// RemoveBySourceID deletes the pair anchored at a Todoist task ID and
// persists. Removing an absent ID is a no-op.
func (s *MappingStore) RemoveBySourceID(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remoteID, ok := s.sourceToRemote[sourceID]
	if !ok {
		return
	}
	delete(s.sourceToRemote, sourceID)
	delete(s.remoteToSource, remoteID)
	s.persistLocked()
}

// RemoveByRemoteID is the symmetric removal anchored at a Notion page ID.
func (s *MappingStore) RemoveByRemoteID(remoteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sourceID, ok := s.remoteToSource[remoteID]
	if !ok {
		return
	}
	delete(s.remoteToSource, remoteID)
	delete(s.sourceToRemote, sourceID)
	s.persistLocked()
}

// Close releases backend resources for backends that hold any, like the
// Postgres connection pool.
func (s *MappingStore) Close() error {
	if closer, ok := s.backend.(mappingBackendCloser); ok {
		return closer.Close()
	}
	return nil
}

func (s *MappingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sourceToRemote)
}

// persistLocked writes the full snapshot through the backend. Persist
// failures are logged, not propagated: the in-memory state is already
// updated and stays authoritative for the rest of the process.
func (s *MappingStore) persistLocked() {
	if s.backend == nil {
		return
	}
	snapshot := &mappingSnapshot{
		TodoistToNotion: make(map[string]string, len(s.sourceToRemote)),
		NotionToTodoist: make(map[string]string, len(s.remoteToSource)),
	}
	for sourceID, remoteID := range s.sourceToRemote {
		snapshot.TodoistToNotion[sourceID] = remoteID
	}
	for remoteID, sourceID := range s.remoteToSource {
		snapshot.NotionToTodoist[remoteID] = sourceID
	}
	if err := s.backend.Save(snapshot); err != nil {
		s.logf("failed to persist task mappings: %v", err)
	}
}

func (s *MappingStore) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
