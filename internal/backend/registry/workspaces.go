package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jo-hoe/iconease/internal/backend/database"
)

const (
	stateKeyWorkspaces       = "workspaces"
	stateKeyCurrentWorkspace = "currentWorkspace"
)

// ImageCascade is what the workspace registry needs from the image registry
// when a workspace is removed.
type ImageCascade interface {
	DeleteWorkspaceImages(ctx context.Context, workspaceID string) error
}

// CategoryCascade is what the workspace registry needs from the category
// registry: seeding the default category and cascading removal.
type CategoryCascade interface {
	EnsureDefault(ctx context.Context, workspaceID string) error
	DeleteWorkspaceCategories(ctx context.Context, workspaceID string) error
	SetActiveCategory(ctx context.Context, id string) error
}

// Workspaces owns the workspace list and the current selection, and
// orchestrates the cross-registry cascades on workspace deletion.
type Workspaces struct {
	store    database.StoreService
	broker   *Broker
	notifier Notifier

	images     ImageCascade
	categories CategoryCascade

	mu         sync.RWMutex
	workspaces []WorkspaceRecord
	currentID  string
}

func NewWorkspaces(store database.StoreService, broker *Broker, notifier Notifier) *Workspaces {
	return &Workspaces{
		store:    store,
		broker:   broker,
		notifier: notifier,
	}
}

// Bind attaches the cascade collaborators. Separate from the constructor
// because the image and category registries are built after this one and
// hold a reference back to it.
func (w *Workspaces) Bind(images ImageCascade, categories CategoryCascade) {
	w.images = images
	w.categories = categories
}

// Initialize loads the persisted workspace list and current selection.
func (w *Workspaces) Initialize(ctx context.Context) error {
	value, found, err := w.store.GetState(ctx, stateKeyWorkspaces)
	if err != nil {
		w.notifier.Error("failed to load workspaces", "error", err)
		return err
	}

	var workspaces []WorkspaceRecord
	if found {
		if err := json.Unmarshal([]byte(value), &workspaces); err != nil {
			return fmt.Errorf("failed to decode persisted workspaces: %w", err)
		}
	}

	currentID, _, err := w.store.GetState(ctx, stateKeyCurrentWorkspace)
	if err != nil {
		w.notifier.Error("failed to load current workspace", "error", err)
		return err
	}

	// Self-heal a dangling or missing selection
	exists := false
	for _, workspace := range workspaces {
		if workspace.ID == currentID {
			exists = true
			break
		}
	}
	if !exists {
		currentID = ""
		if len(workspaces) > 0 {
			currentID = workspaces[0].ID
		}
	}

	w.mu.Lock()
	w.workspaces = workspaces
	w.currentID = currentID
	w.mu.Unlock()
	return nil
}

// persist writes the list and selector; must be called with the write lock
// held.
func (w *Workspaces) persist(ctx context.Context) error {
	encoded, err := json.Marshal(w.workspaces)
	if err != nil {
		return fmt.Errorf("failed to encode workspaces: %w", err)
	}
	if err := w.store.SetState(ctx, stateKeyWorkspaces, string(encoded)); err != nil {
		return err
	}
	return w.store.SetState(ctx, stateKeyCurrentWorkspace, w.currentID)
}

// AddWorkspace creates a workspace, makes it current and seeds its default
// category. Empty and whitespace-only names are rejected.
func (w *Workspaces) AddWorkspace(ctx context.Context, name string) (WorkspaceRecord, error) {
	if strings.TrimSpace(name) == "" {
		w.notifier.Error("workspace name must not be empty")
		return WorkspaceRecord{}, ErrInvalidName
	}

	record := WorkspaceRecord{
		ID:        database.NewID(),
		Name:      name,
		CreatedAt: time.Now().UnixMilli(),
	}

	w.mu.Lock()
	previousCurrent := w.currentID
	w.workspaces = append(w.workspaces, record)
	w.currentID = record.ID
	if err := w.persist(ctx); err != nil {
		w.workspaces = w.workspaces[:len(w.workspaces)-1]
		w.currentID = previousCurrent
		w.mu.Unlock()
		w.notifier.Error("failed to persist workspace", "name", name, "error", err)
		return WorkspaceRecord{}, err
	}
	w.mu.Unlock()

	if err := w.categories.EnsureDefault(ctx, record.ID); err != nil {
		w.notifier.Error("failed to seed default category", "workspace_id", record.ID, "error", err)
	}

	w.notifier.Success("workspace created", "name", name, "workspace_id", record.ID)
	w.broker.Publish(Event{Kind: EventWorkspacesChanged, IDs: []string{record.ID}})
	return record, nil
}

// SwitchWorkspace changes the current selection and resets the active
// category. Switching to the already-current workspace is a no-op.
func (w *Workspaces) SwitchWorkspace(ctx context.Context, id string) error {
	w.mu.Lock()
	found := false
	for _, workspace := range w.workspaces {
		if workspace.ID == id {
			found = true
			break
		}
	}
	if !found {
		w.mu.Unlock()
		w.notifier.Error("workspace not found", "workspace_id", id)
		return ErrNotFound
	}
	if w.currentID == id {
		w.mu.Unlock()
		return nil
	}

	w.currentID = id
	if err := w.persist(ctx); err != nil {
		w.mu.Unlock()
		w.notifier.Error("failed to persist workspace switch", "workspace_id", id, "error", err)
		return err
	}
	w.mu.Unlock()

	if err := w.categories.SetActiveCategory(ctx, CategoryAll); err != nil {
		w.notifier.Warning("failed to reset active category", "error", err)
	}

	w.broker.Publish(Event{Kind: EventWorkspacesChanged, IDs: []string{id}})
	return nil
}

// DeleteWorkspace removes a workspace after cascading deletion of its images
// and categories. Deleting the last remaining workspace is rejected.
func (w *Workspaces) DeleteWorkspace(ctx context.Context, id string) error {
	w.mu.Lock()
	found := false
	for _, workspace := range w.workspaces {
		if workspace.ID == id {
			found = true
			break
		}
	}
	if !found {
		w.mu.Unlock()
		w.notifier.Error("workspace not found", "workspace_id", id)
		return ErrNotFound
	}
	if len(w.workspaces) <= 1 {
		w.mu.Unlock()
		w.notifier.Error("cannot delete the last workspace", "workspace_id", id)
		return ErrLastWorkspace
	}
	w.mu.Unlock()

	// Cascade first; a failed cascade leaves the workspace record in place
	// so nothing is silently orphaned.
	if err := w.images.DeleteWorkspaceImages(ctx, id); err != nil {
		w.notifier.Error("failed to delete workspace images", "workspace_id", id, "error", err)
		return err
	}
	if err := w.categories.DeleteWorkspaceCategories(ctx, id); err != nil {
		w.notifier.Error("failed to delete workspace categories", "workspace_id", id, "error", err)
		return err
	}

	w.mu.Lock()
	kept := w.workspaces[:0:0]
	for _, workspace := range w.workspaces {
		if workspace.ID != id {
			kept = append(kept, workspace)
		}
	}
	w.workspaces = kept

	switched := false
	if w.currentID == id {
		w.currentID = ""
		if len(w.workspaces) > 0 {
			w.currentID = w.workspaces[0].ID
		}
		switched = true
	}

	if err := w.persist(ctx); err != nil {
		w.mu.Unlock()
		w.notifier.Error("failed to persist workspace deletion", "workspace_id", id, "error", err)
		return err
	}
	w.mu.Unlock()

	if switched {
		if err := w.categories.SetActiveCategory(ctx, CategoryAll); err != nil {
			w.notifier.Warning("failed to reset active category", "error", err)
		}
	}

	w.notifier.Success("workspace deleted", "workspace_id", id)
	w.broker.Publish(Event{Kind: EventWorkspacesChanged, IDs: []string{id}})
	return nil
}

// UpdateWorkspace renames a workspace in place; the current reference is the
// same record, so readers never see a stale name.
func (w *Workspaces) UpdateWorkspace(ctx context.Context, id, name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	idx := -1
	for pos := range w.workspaces {
		if w.workspaces[pos].ID == id {
			idx = pos
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}

	previous := w.workspaces[idx].Name
	w.workspaces[idx].Name = name
	if err := w.persist(ctx); err != nil {
		w.workspaces[idx].Name = previous
		w.notifier.Error("failed to persist workspace rename", "workspace_id", id, "error", err)
		return err
	}
	return nil
}

// CurrentWorkspaceID reports the current selection, if any.
func (w *Workspaces) CurrentWorkspaceID() (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.currentID == "" {
		return "", false
	}
	return w.currentID, true
}

func (w *Workspaces) CurrentWorkspace() (WorkspaceRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, workspace := range w.workspaces {
		if workspace.ID == w.currentID {
			return workspace, true
		}
	}
	return WorkspaceRecord{}, false
}

func (w *Workspaces) Workspaces() []WorkspaceRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()

	result := make([]WorkspaceRecord, len(w.workspaces))
	copy(result, w.workspaces)
	return result
}
