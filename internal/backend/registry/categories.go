package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jo-hoe/iconease/internal/backend/database"
)

const (
	stateKeyCategories     = "categories"
	stateKeyActiveCategory = "activeCategory"

	defaultCategoryName = "All"
	defaultCategoryIcon = "📋"
)

// ImageQuery is the view of the image registry the category registry
// depends on: projections for counts and the batch delete for cascades.
type ImageQuery interface {
	ImagesByCategory(categoryID string) []ImageRecord
	CountByCategory(categoryID string) int
	FavoritesCount() int
	DeleteImages(ctx context.Context, ids []string) error
}

// Categories owns category definitions across workspaces, persisted as
// serialized state. Counts are always derived from the image registry,
// never cached.
type Categories struct {
	store      database.StoreService
	images     ImageQuery
	workspaces WorkspaceQuery
	broker     *Broker
	notifier   Notifier

	unsubscribe func()
	revision    atomic.Int64

	mu         sync.RWMutex
	categories []CategoryRecord
	active     string
}

// NewCategories builds the registry and subscribes it to image mutations so
// derived count displays can refresh without every image mutation calling in
// here explicitly. Close releases the subscription.
func NewCategories(store database.StoreService, images ImageQuery, workspaces WorkspaceQuery, broker *Broker, notifier Notifier) *Categories {
	c := &Categories{
		store:      store,
		images:     images,
		workspaces: workspaces,
		broker:     broker,
		notifier:   notifier,
		active:     CategoryAll,
	}
	c.unsubscribe = broker.Subscribe(func(event Event) {
		if event.Kind == EventImagesChanged {
			c.revision.Add(1)
		}
	})
	return c
}

func (c *Categories) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// Revision increments on every image mutation; consumers poll it to know
// when derived counts are stale.
func (c *Categories) Revision() int64 {
	return c.revision.Load()
}

// Initialize loads the persisted category list and active selection.
func (c *Categories) Initialize(ctx context.Context) error {
	value, found, err := c.store.GetState(ctx, stateKeyCategories)
	if err != nil {
		c.notifier.Error("failed to load categories", "error", err)
		return err
	}

	var categories []CategoryRecord
	if found {
		if err := json.Unmarshal([]byte(value), &categories); err != nil {
			return fmt.Errorf("failed to decode persisted categories: %w", err)
		}
	}

	active, found, err := c.store.GetState(ctx, stateKeyActiveCategory)
	if err != nil {
		c.notifier.Error("failed to load active category", "error", err)
		return err
	}
	if !found || active == "" {
		active = CategoryAll
	}

	c.mu.Lock()
	c.categories = categories
	c.active = active
	c.mu.Unlock()
	return nil
}

// persist writes the category list and selector; must be called with the
// write lock held.
func (c *Categories) persist(ctx context.Context) error {
	encoded, err := json.Marshal(c.categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}
	if err := c.store.SetState(ctx, stateKeyCategories, string(encoded)); err != nil {
		return err
	}
	return c.store.SetState(ctx, stateKeyActiveCategory, c.active)
}

// AddCategory appends a category to the current workspace. A name colliding
// case-insensitively with an existing category of the same workspace, or a
// second CategoryAll id, is rejected without mutating state.
func (c *Categories) AddCategory(ctx context.Context, category CategoryRecord) (CategoryRecord, error) {
	workspaceID, ok := c.workspaces.CurrentWorkspaceID()
	if !ok {
		c.notifier.Error("cannot add category without a current workspace")
		return CategoryRecord{}, ErrNoWorkspace
	}

	if strings.TrimSpace(category.Name) == "" {
		return CategoryRecord{}, ErrInvalidName
	}
	if category.ID == "" {
		category.ID = database.NewID()
	}
	category.WorkspaceID = workspaceID

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.categories {
		if existing.WorkspaceID != workspaceID {
			continue
		}
		if category.ID == CategoryAll && existing.ID == CategoryAll {
			c.notifier.Warning("workspace already has the default category")
			return CategoryRecord{}, ErrDuplicateName
		}
		if strings.EqualFold(existing.Name, category.Name) {
			c.notifier.Warning("category name already exists", "name", category.Name)
			return CategoryRecord{}, ErrDuplicateName
		}
	}

	c.categories = append(c.categories, category)
	if err := c.persist(ctx); err != nil {
		c.categories = c.categories[:len(c.categories)-1]
		c.notifier.Error("failed to persist category", "name", category.Name, "error", err)
		return CategoryRecord{}, err
	}

	c.notifier.Success("category added", "name", category.Name)
	c.broker.Publish(Event{Kind: EventCategoriesChanged, IDs: []string{category.ID}})
	return category, nil
}

// DeleteCategory removes a category of the current workspace and cascades
// deletion of its member images. The CategoryAll id is protected and the
// call is a no-op for it.
func (c *Categories) DeleteCategory(ctx context.Context, id string) error {
	if id == CategoryAll {
		return nil
	}

	workspaceID, ok := c.workspaces.CurrentWorkspaceID()
	if !ok {
		return ErrNoWorkspace
	}

	c.mu.RLock()
	exists := false
	for _, category := range c.categories {
		if category.ID == id && category.WorkspaceID == workspaceID {
			exists = true
			break
		}
	}
	c.mu.RUnlock()
	if !exists {
		return ErrNotFound
	}

	// Cascade before dropping the definition, so a failed image delete
	// leaves the category in place for a retry.
	members := c.images.ImagesByCategory(id)
	if len(members) > 0 {
		ids := make([]string, 0, len(members))
		for _, img := range members {
			ids = append(ids, img.ID)
		}
		if err := c.images.DeleteImages(ctx, ids); err != nil {
			c.notifier.Error("failed to delete category images", "category_id", id, "error", err)
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.categories[:0:0]
	for _, category := range c.categories {
		if category.ID == id && category.WorkspaceID == workspaceID {
			continue
		}
		kept = append(kept, category)
	}
	c.categories = kept
	if c.active == id {
		c.active = CategoryAll
	}

	if err := c.persist(ctx); err != nil {
		c.notifier.Error("failed to persist category deletion", "category_id", id, "error", err)
		return err
	}

	c.notifier.Success("category deleted", "category_id", id, "images_removed", len(members))
	c.broker.Publish(Event{Kind: EventCategoriesChanged, IDs: []string{id}})
	return nil
}

// CategoryCount recomputes the member count on every call.
func (c *Categories) CategoryCount(id string) int {
	return c.images.CountByCategory(id)
}

// FavoritesCount counts favorites in the current workspace (see DESIGN.md
// for the scoping decision).
func (c *Categories) FavoritesCount() int {
	return c.images.FavoritesCount()
}

// WorkspaceCategories returns the current workspace's categories, always
// including exactly one CategoryAll entry; a missing default is synthesized
// and persisted before returning.
func (c *Categories) WorkspaceCategories(ctx context.Context) ([]CategoryRecord, error) {
	workspaceID, ok := c.workspaces.CurrentWorkspaceID()
	if !ok {
		return nil, ErrNoWorkspace
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workspaceCategoriesLocked(ctx, workspaceID)
}

func (c *Categories) workspaceCategoriesLocked(ctx context.Context, workspaceID string) ([]CategoryRecord, error) {
	var result []CategoryRecord
	hasDefault := false
	for _, category := range c.categories {
		if category.WorkspaceID != workspaceID {
			continue
		}
		if category.ID == CategoryAll {
			hasDefault = true
		}
		result = append(result, category)
	}

	if !hasDefault {
		def := CategoryRecord{
			ID:          CategoryAll,
			Name:        defaultCategoryName,
			Icon:        defaultCategoryIcon,
			WorkspaceID: workspaceID,
		}
		c.categories = append(c.categories, def)
		if err := c.persist(ctx); err != nil {
			c.categories = c.categories[:len(c.categories)-1]
			return nil, err
		}
		result = append([]CategoryRecord{def}, result...)
	}
	return result, nil
}

// EnsureDefault seeds the CategoryAll entry for a workspace and resets the
// active selection. Used on workspace creation.
func (c *Categories) EnsureDefault(ctx context.Context, workspaceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = CategoryAll
	_, err := c.workspaceCategoriesLocked(ctx, workspaceID)
	return err
}

func (c *Categories) SetActiveCategory(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = id
	return c.store.SetState(ctx, stateKeyActiveCategory, id)
}

func (c *Categories) ActiveCategory() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// ClearCategories removes every category of the current workspace.
func (c *Categories) ClearCategories(ctx context.Context) error {
	workspaceID, ok := c.workspaces.CurrentWorkspaceID()
	if !ok {
		return ErrNoWorkspace
	}
	return c.DeleteWorkspaceCategories(ctx, workspaceID)
}

// DeleteWorkspaceCategories bulk-removes a workspace's categories and resets
// the active selection. Used by workspace deletion.
func (c *Categories) DeleteWorkspaceCategories(ctx context.Context, workspaceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.categories[:0:0]
	removed := 0
	for _, category := range c.categories {
		if category.WorkspaceID == workspaceID {
			removed++
			continue
		}
		kept = append(kept, category)
	}
	c.categories = kept
	c.active = CategoryAll

	if err := c.persist(ctx); err != nil {
		c.notifier.Error("failed to persist category removal", "workspace_id", workspaceID, "error", err)
		return err
	}

	if removed > 0 {
		c.broker.Publish(Event{Kind: EventCategoriesChanged})
	}
	return nil
}
