package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
)

// MappingBackend is the durable side of the MappingStore. Load returning
// (nil, nil) means no snapshot exists yet.
type MappingBackend interface {
	Load() (*mappingSnapshot, error)
	Save(snapshot *mappingSnapshot) error
}

type mappingBackendCloser interface {
	Close() error
}

type InMemoryMappingBackend struct {
	mu       sync.Mutex
	snapshot *mappingSnapshot
}

func NewInMemoryMappingBackend() *InMemoryMappingBackend {
	return &InMemoryMappingBackend{}
}

func (b *InMemoryMappingBackend) Load() (*mappingSnapshot, error) {
	if b == nil {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshot == nil {
		return nil, nil
	}
	return cloneMappingSnapshot(b.snapshot)
}

func (b *InMemoryMappingBackend) Save(snapshot *mappingSnapshot) error {
	if b == nil || snapshot == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	clone, err := cloneMappingSnapshot(snapshot)
	if err != nil {
		return err
	}
	b.snapshot = clone
	return nil
}

func cloneMappingSnapshot(snapshot *mappingSnapshot) (*mappingSnapshot, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	var clone mappingSnapshot
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}

type JSONFileMappingBackend struct {
	Path string
}

func NewJSONFileMappingBackend(path string) *JSONFileMappingBackend {
	return &JSONFileMappingBackend{Path: strings.TrimSpace(path)}
}

func (b *JSONFileMappingBackend) Load() (*mappingSnapshot, error) {
	if b == nil || strings.TrimSpace(b.Path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var snapshot mappingSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (b *JSONFileMappingBackend) Save(snapshot *mappingSnapshot) error {
	if b == nil || strings.TrimSpace(b.Path) == "" || snapshot == nil {
		return nil
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(b.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := b.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.Path)
}

// BuildMappingBackendFromDSN selects a backend by DSN scheme. A bare path or
// file:// DSN gets the JSON file backend, memory:// the in-memory one, and
// postgres:// the Postgres snapshot backend. Registered external factories
// win over the built-in schemes.
func BuildMappingBackendFromDSN(dsn string) (MappingBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if factory, ok := lookupMappingBackendFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewJSONFileMappingBackend(path), nil
	case "memory", "mem", "inmem":
		return NewInMemoryMappingBackend(), nil
	case "postgres", "postgresql":
		return NewPostgresMappingBackend(dsn)
	case "mysql", "sqlite":
		return nil, fmt.Errorf("%w: mapping backend %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported mapping backend scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed == nil {
		return "", ErrInvalidInput
	}
	if strings.TrimSpace(parsed.Scheme) == "" {
		if strings.TrimSpace(raw) == "" {
			return "", ErrInvalidInput
		}
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if path == "" {
		path = strings.TrimSpace(parsed.Host)
	}
	if path == "" {
		return "", ErrInvalidInput
	}
	return path, nil
}

// BackendKind names the backend for the status endpoint.
func BackendKind(backend MappingBackend) string {
	switch backend.(type) {
	case nil:
		return "none"
	case *JSONFileMappingBackend:
		return "file"
	case *InMemoryMappingBackend:
		return "memory"
	case *PostgresMappingBackend:
		return "postgres"
	default:
		return "custom"
	}
}
