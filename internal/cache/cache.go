// Package cache mirrors the active group's snapshot into a session-scoped
// key/value store so it survives restarts of the client. The cache is never a
// source of truth when the storage API can answer.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/five82/mochiyoru/internal/model"
)

// Fixed keys shared by every backend.
const (
	KeyGroupData = "groupData"
	KeyEditMode  = "editMode"
)

// EditModeMembers asks the next load to open the member editor.
const EditModeMembers = "members"

// Cache is the Local Cache contract injected into the core.
type Cache interface {
	Load(ctx context.Context) (model.GroupRef, bool, error)
	Save(ctx context.Context, ref model.GroupRef) error
	Clear(ctx context.Context) error
	SetEditMode(ctx context.Context, mode string) error
	ConsumeEditMode(ctx context.Context) (string, error)
}

// Backend is the raw key/value storage behind a Store.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Ensure Store implements Cache at compile time.
var _ Cache = (*Store)(nil)

// Store serialises the group snapshot as an opaque JSON blob over a Backend.
type Store struct {
	backend Backend
}

// New wraps backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Load returns the cached snapshot. The boolean is false when nothing is
// cached. A corrupt blob is reported as an error alongside false.
func (s *Store) Load(ctx context.Context) (model.GroupRef, bool, error) {
	raw, ok, err := s.backend.Get(ctx, KeyGroupData)
	if err != nil {
		return model.GroupRef{}, false, fmt.Errorf("read %s: %w", KeyGroupData, err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return model.GroupRef{}, false, nil
	}
	var ref model.GroupRef
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return model.GroupRef{}, false, fmt.Errorf("decode %s: %w", KeyGroupData, err)
	}
	return ref, true, nil
}

// Save replaces the cached snapshot.
func (s *Store) Save(ctx context.Context, ref model.GroupRef) error {
	buf, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyGroupData, err)
	}
	if err := s.backend.Set(ctx, KeyGroupData, string(buf)); err != nil {
		return fmt.Errorf("write %s: %w", KeyGroupData, err)
	}
	return nil
}

// Clear drops the snapshot and any pending edit-mode flag.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, KeyGroupData, KeyEditMode); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// SetEditMode flags the next load. An empty mode clears the flag.
func (s *Store) SetEditMode(ctx context.Context, mode string) error {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		return s.backend.Delete(ctx, KeyEditMode)
	}
	if err := s.backend.Set(ctx, KeyEditMode, mode); err != nil {
		return fmt.Errorf("write %s: %w", KeyEditMode, err)
	}
	return nil
}

// ConsumeEditMode returns the flag and clears it. The flag is cleared even
// when the caller ignores the value.
func (s *Store) ConsumeEditMode(ctx context.Context) (string, error) {
	mode, ok, err := s.backend.Get(ctx, KeyEditMode)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", KeyEditMode, err)
	}
	if !ok {
		return "", nil
	}
	if err := s.backend.Delete(ctx, KeyEditMode); err != nil {
		return "", fmt.Errorf("clear %s: %w", KeyEditMode, err)
	}
	return mode, nil
}

// Close releases the backend when it holds resources.
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Backend kinds accepted by Open.
const (
	KindMemory = "memory"
	KindFile   = "file"
	KindRedis  = "redis"
)

// Options select and locate a backend for Open.
type Options struct {
	Kind     string
	Path     string
	RedisURL string
	// Namespace scopes redis keys to one session.
	Namespace string
}

// ErrUnknownKind is returned by Open for an unsupported backend kind.
var ErrUnknownKind = errors.New("unknown cache kind")

// Open builds a Store for the configured backend.
func Open(ctx context.Context, opts Options) (*Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "", KindFile:
		fb, err := NewFile(opts.Path)
		if err != nil {
			return nil, err
		}
		return New(fb), nil
	case KindMemory:
		return New(NewMemory()), nil
	case KindRedis:
		rb, err := DialRedis(ctx, opts.RedisURL, opts.Namespace)
		if err != nil {
			return nil, err
		}
		return New(rb), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
}
