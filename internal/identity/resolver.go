// Package identity decides which group the client is working on. Pick applies
// the fixed precedence of path, query and cache; Resolver adds the store
// backfill, creation, and the offline placeholder.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"

	"github.com/five82/mochiyoru/internal/cache"
	"github.com/five82/mochiyoru/internal/gateway"
	"github.com/five82/mochiyoru/internal/model"
)

// PlaceholderPrefix marks ids generated without the store.
const PlaceholderPrefix = "local-"

// Store is the subset of the storage API resolution needs.
type Store interface {
	CreateGroup(ctx context.Context, name string, members []string) (string, error)
	FetchGroup(ctx context.Context, id string) (model.Group, error)
}

// Options configure a Resolver. Cache and Locator are optional.
type Options struct {
	Store   Store
	Cache   cache.Cache
	Locator Locator
	Logger  *log.Logger
	// NewPlaceholderID overrides offline id generation in tests.
	NewPlaceholderID func() string
}

// Resolver owns the decision of which group id is canonical.
type Resolver struct {
	store   Store
	cache   cache.Cache
	locator Locator
	logger  *log.Logger
	newID   func() string
}

// NewResolver builds a Resolver.
func NewResolver(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	newID := opts.NewPlaceholderID
	if newID == nil {
		newID = NewPlaceholderID
	}
	return &Resolver{
		store:   opts.Store,
		cache:   opts.Cache,
		locator: opts.Locator,
		logger:  logger,
		newID:   newID,
	}
}

// NewPlaceholderID returns a time-ordered local id.
func NewPlaceholderID() string {
	return PlaceholderPrefix + strings.ToLower(ulid.Make().String())
}

// Resolve returns the active group. When no id is known, or only an offline
// placeholder is, it asks the store to create one. If the store cannot be
// reached the returned ref carries a placeholder id and Placeholder is set;
// any other creation failure is returned as an error.
func (r *Resolver) Resolve(ctx context.Context, src Sources) (model.GroupRef, error) {
	choice := Pick(src)
	ref := model.GroupRef{
		ID:          choice.ID,
		Name:        choice.Name,
		Members:     choice.Members,
		Placeholder: choice.Placeholder,
	}

	if ref.Confirmed() {
		r.backfill(ctx, &ref)
		r.save(ctx, ref)
		return ref, nil
	}

	created, err := r.create(ctx, ref)
	if err != nil {
		return model.GroupRef{}, err
	}
	r.save(ctx, created)
	return created, nil
}

// Create registers ref with the store, falling back to a placeholder when
// the store is unreachable. The caller's name and members are kept.
func (r *Resolver) Create(ctx context.Context, ref model.GroupRef) (model.GroupRef, error) {
	created, err := r.create(ctx, ref)
	if err != nil {
		return model.GroupRef{}, err
	}
	r.save(ctx, created)
	return created, nil
}

func (r *Resolver) create(ctx context.Context, ref model.GroupRef) (model.GroupRef, error) {
	name := strings.TrimSpace(ref.Name)
	if name == "" {
		name = model.DefaultGroupName
	}
	members := model.CloneStrings(ref.Members)
	if members == nil {
		members = []string{}
	}

	id, err := r.store.CreateGroup(ctx, name, members)
	if err == nil {
		r.logger.Info("group created", "group", id, "replaces", ref.ID)
		if r.locator != nil {
			r.locator.Replace(id)
		}
		return model.GroupRef{ID: id, Name: name, Members: model.CloneStrings(members)}, nil
	}

	if !gateway.IsUnreachable(err) {
		return model.GroupRef{}, fmt.Errorf("create group: %w", err)
	}

	placeholder := ref.ID
	if placeholder == "" {
		placeholder = r.newID()
	}
	r.logger.Warn("store unreachable, using placeholder group id", "group", placeholder, "err", err)
	return model.GroupRef{
		ID:          placeholder,
		Name:        name,
		Members:     model.CloneStrings(ref.Members),
		Placeholder: true,
	}, nil
}

// backfill fills a missing name or member list from the store. Failures leave
// the local values in place.
func (r *Resolver) backfill(ctx context.Context, ref *model.GroupRef) {
	if ref.Name != "" && len(ref.Members) > 0 {
		return
	}
	g, err := r.store.FetchGroup(ctx, ref.ID)
	if err != nil {
		r.logger.Debug("group metadata backfill failed", "group", ref.ID, "err", err)
		return
	}
	if ref.Name == "" {
		ref.Name = strings.TrimSpace(g.Name)
	}
	if len(ref.Members) == 0 {
		ref.Members = model.CloneStrings(g.Members)
	}
}

func (r *Resolver) save(ctx context.Context, ref model.GroupRef) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Save(ctx, ref); err != nil {
		r.logger.Warn("cache save failed", "err", err)
	}
}
