package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jo-hoe/iconease/internal/backend/database"
	"github.com/jo-hoe/iconease/internal/backend/display"
)

// WorkspaceQuery is the read-only view of the workspace registry the other
// registries depend on.
type WorkspaceQuery interface {
	CurrentWorkspaceID() (string, bool)
}

// HandleProvider derives ephemeral display handles for image records and
// invalidates them when records disappear.
type HandleProvider interface {
	HandleFor(id string) string
	Invalidate(ctx context.Context, id string)
}

// Images owns the authoritative in-memory image list. Every mutation is
// mirrored to the blob store before the in-memory list changes, so the list
// never reports state that failed to persist.
type Images struct {
	store      database.StoreService
	handles    HandleProvider
	workspaces WorkspaceQuery
	broker     *Broker
	notifier   Notifier

	loading atomic.Bool

	mu          sync.RWMutex
	images      []ImageRecord
	searchQuery string
}

func NewImages(store database.StoreService, handles HandleProvider, workspaces WorkspaceQuery, broker *Broker, notifier Notifier) *Images {
	return &Images{
		store:      store,
		handles:    handles,
		workspaces: workspaces,
		broker:     broker,
		notifier:   notifier,
	}
}

// Loading reports whether a mutating flow is in flight, for UI spinners.
func (i *Images) Loading() bool {
	return i.loading.Load()
}

// Initialize loads all persisted image records and regenerates their display
// handles. On storage failure the in-memory list stays empty and the service
// remains usable with zero images.
func (i *Images) Initialize(ctx context.Context) error {
	i.loading.Store(true)
	defer i.loading.Store(false)

	if err := i.store.Open(ctx); err != nil {
		i.notifier.Error("failed to open image store", "error", err)
		return err
	}

	stored, err := i.store.GetAll(ctx, database.PartitionImages)
	if err != nil {
		i.notifier.Error("failed to load images", "error", err)
		i.mu.Lock()
		i.images = nil
		i.mu.Unlock()
		return err
	}

	images := make([]ImageRecord, 0, len(stored))
	for _, rec := range stored {
		images = append(images, i.fromStored(rec))
	}

	i.mu.Lock()
	i.images = images
	i.mu.Unlock()

	i.broker.Publish(Event{Kind: EventImagesChanged})
	return nil
}

// AddImages partitions candidates into accepted and skipped-as-duplicate by
// the filename-uniqueness-within-workspace rule, persists accepted records
// in one transaction and appends them to the in-memory list. Names accepted
// earlier in the same batch count toward the duplicate check.
func (i *Images) AddImages(ctx context.Context, candidates []ImageCandidate) (AddResult, error) {
	i.loading.Store(true)
	defer i.loading.Store(false)

	workspaceID, ok := i.workspaces.CurrentWorkspaceID()
	if !ok {
		i.notifier.Error("cannot add images without a current workspace")
		return AddResult{}, ErrNoWorkspace
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	names := make(map[string]struct{})
	for _, img := range i.images {
		if img.WorkspaceID == workspaceID {
			names[img.FileName] = struct{}{}
		}
	}

	var accepted []ImageRecord
	skipped := 0
	for _, candidate := range candidates {
		if _, duplicate := names[candidate.FileName]; duplicate {
			skipped++
			continue
		}

		payload, err := io.ReadAll(candidate.Source)
		if err != nil {
			i.notifier.Error("failed to read image source",
				"file_name", candidate.FileName, "error", err)
			return AddResult{Skipped: skipped}, fmt.Errorf("failed to read image source %s: %w", candidate.FileName, err)
		}

		categoryID := candidate.CategoryID
		if categoryID == "" {
			categoryID = CategoryAll
		}

		record := ImageRecord{
			ID:          database.NewID(),
			FileName:    candidate.FileName,
			MimeType:    sniffMime(payload, candidate.MimeType),
			Payload:     payload,
			CategoryID:  categoryID,
			WorkspaceID: workspaceID,
			CreatedAt:   time.Now().UnixMilli(),
		}
		record.DisplayHandle = i.handles.HandleFor(record.ID)

		names[record.FileName] = struct{}{}
		accepted = append(accepted, record)
	}

	if len(accepted) == 0 {
		if skipped > 0 {
			i.notifier.Warning("all images were duplicates", "skipped", skipped)
		}
		return AddResult{Skipped: skipped}, nil
	}

	stored := make([]*database.Record, 0, len(accepted))
	for idx := range accepted {
		stored = append(stored, toStored(&accepted[idx]))
	}
	if err := i.store.PutAll(ctx, database.PartitionImages, stored); err != nil {
		i.notifier.Error("failed to persist images", "error", err)
		return AddResult{Skipped: skipped}, err
	}

	i.images = append(i.images, accepted...)
	i.notifier.Success("images added", "added", len(accepted), "skipped", skipped)
	i.broker.Publish(Event{Kind: EventImagesChanged})
	return AddResult{Added: len(accepted), Skipped: skipped}, nil
}

func (i *Images) DeleteImage(ctx context.Context, id string) error {
	return i.DeleteImages(ctx, []string{id})
}

// DeleteImages removes records best-effort, one store delete per id. The
// in-memory list drops exactly the ids whose store delete succeeded; the
// first error is reported after the whole batch ran.
func (i *Images) DeleteImages(ctx context.Context, ids []string) error {
	i.loading.Store(true)
	defer i.loading.Store(false)

	i.mu.Lock()
	defer i.mu.Unlock()

	removed := make(map[string]struct{}, len(ids))
	var firstErr error
	for _, id := range ids {
		if err := i.store.Delete(ctx, database.PartitionImages, id); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed[id] = struct{}{}
		i.handles.Invalidate(ctx, id)
	}

	if len(removed) > 0 {
		kept := i.images[:0:0]
		for _, img := range i.images {
			if _, gone := removed[img.ID]; !gone {
				kept = append(kept, img)
			}
		}
		i.images = kept
		i.broker.Publish(Event{Kind: EventImagesChanged, IDs: ids})
	}

	if firstErr != nil {
		i.notifier.Error("failed to delete some images", "requested", len(ids), "removed", len(removed), "error", firstErr)
	}
	return firstErr
}

// DeleteWorkspaceImages removes every image belonging to a workspace. Used
// by the workspace registry when cascading a workspace delete.
func (i *Images) DeleteWorkspaceImages(ctx context.Context, workspaceID string) error {
	i.mu.RLock()
	var ids []string
	for _, img := range i.images {
		if img.WorkspaceID == workspaceID {
			ids = append(ids, img.ID)
		}
	}
	i.mu.RUnlock()

	if len(ids) == 0 {
		return nil
	}
	return i.DeleteImages(ctx, ids)
}

// DeleteAllImages clears the image partition. With onlyFavorites set,
// favorited records of the entire store survive: the partition is cleared
// and the favorites rewritten in one transaction. This operation is
// deliberately store-wide, not workspace-scoped (see DESIGN.md).
func (i *Images) DeleteAllImages(ctx context.Context, onlyFavorites bool) error {
	i.loading.Store(true)
	defer i.loading.Store(false)

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.store.Clear(ctx, database.PartitionImages); err != nil {
		i.notifier.Error("failed to clear images", "error", err)
		return err
	}

	var survivors []ImageRecord
	if onlyFavorites {
		for _, img := range i.images {
			if img.IsFavorite {
				survivors = append(survivors, img)
			}
		}
		if len(survivors) > 0 {
			stored := make([]*database.Record, 0, len(survivors))
			for idx := range survivors {
				stored = append(stored, toStored(&survivors[idx]))
			}
			if err := i.store.PutAll(ctx, database.PartitionImages, stored); err != nil {
				i.notifier.Error("failed to rewrite favorite images", "error", err)
				i.images = nil
				i.broker.Publish(Event{Kind: EventImagesChanged})
				return err
			}
		}
	}

	surviving := make(map[string]struct{}, len(survivors))
	for _, img := range survivors {
		surviving[img.ID] = struct{}{}
	}
	for _, img := range i.images {
		if _, kept := surviving[img.ID]; !kept {
			i.handles.Invalidate(ctx, img.ID)
		}
	}

	i.images = survivors
	i.notifier.Success("images cleared", "kept_favorites", onlyFavorites, "remaining", len(survivors))
	i.broker.Publish(Event{Kind: EventImagesChanged})
	return nil
}

// ToggleFavorite flips the favorite flag and persists the full updated list.
func (i *Images) ToggleFavorite(ctx context.Context, id string) error {
	i.loading.Store(true)
	defer i.loading.Store(false)

	i.mu.Lock()
	defer i.mu.Unlock()

	idx := -1
	for pos := range i.images {
		if i.images[pos].ID == id {
			idx = pos
			break
		}
	}
	if idx < 0 {
		i.notifier.Error("cannot toggle favorite of unknown image", "image_id", id)
		return ErrNotFound
	}

	updated := make([]ImageRecord, len(i.images))
	copy(updated, i.images)
	updated[idx].IsFavorite = !updated[idx].IsFavorite

	stored := make([]*database.Record, 0, len(updated))
	for pos := range updated {
		stored = append(stored, toStored(&updated[pos]))
	}
	if err := i.store.PutAll(ctx, database.PartitionImages, stored); err != nil {
		i.notifier.Error("failed to persist favorite toggle", "image_id", id, "error", err)
		return err
	}

	i.images = updated
	i.broker.Publish(Event{Kind: EventImagesChanged, IDs: []string{id}})
	return nil
}

// SetSearchQuery stores the query applied by FilteredImages.
func (i *Images) SetSearchQuery(query string) {
	i.mu.Lock()
	i.searchQuery = query
	i.mu.Unlock()
}

func (i *Images) SearchQuery() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.searchQuery
}

// ImagesByCategory returns the current workspace's images, optionally
// narrowed to one category. CategoryAll passes every workspace image.
func (i *Images) ImagesByCategory(categoryID string) []ImageRecord {
	workspaceID, ok := i.workspaces.CurrentWorkspaceID()
	if !ok {
		return nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	var result []ImageRecord
	for _, img := range i.images {
		if img.WorkspaceID != workspaceID {
			continue
		}
		if categoryID != CategoryAll && img.CategoryID != categoryID {
			continue
		}
		result = append(result, img)
	}
	return result
}

// FavoriteImages returns the current workspace's favorited images.
func (i *Images) FavoriteImages() []ImageRecord {
	workspaceID, ok := i.workspaces.CurrentWorkspaceID()
	if !ok {
		return nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	var result []ImageRecord
	for _, img := range i.images {
		if img.WorkspaceID == workspaceID && img.IsFavorite {
			result = append(result, img)
		}
	}
	return result
}

// FilteredImages applies workspace scoping, then category, then the stored
// search query as a case-insensitive substring match on the file name.
func (i *Images) FilteredImages(categoryID string) []ImageRecord {
	images := i.ImagesByCategory(categoryID)

	i.mu.RLock()
	query := strings.TrimSpace(i.searchQuery)
	i.mu.RUnlock()
	if query == "" {
		return images
	}

	query = strings.ToLower(query)
	filtered := images[:0:0]
	for _, img := range images {
		if strings.Contains(strings.ToLower(img.FileName), query) {
			filtered = append(filtered, img)
		}
	}
	return filtered
}

// ImageByID returns a copy of one record.
func (i *Images) ImageByID(id string) (ImageRecord, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	for _, img := range i.images {
		if img.ID == id {
			return img, true
		}
	}
	return ImageRecord{}, false
}

// IsDuplicate reports whether a file name already exists in the current
// workspace.
func (i *Images) IsDuplicate(fileName string) bool {
	workspaceID, ok := i.workspaces.CurrentWorkspaceID()
	if !ok {
		return false
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	for _, img := range i.images {
		if img.WorkspaceID == workspaceID && img.FileName == fileName {
			return true
		}
	}
	return false
}

func (i *Images) CountByCategory(categoryID string) int {
	return len(i.ImagesByCategory(categoryID))
}

// FavoritesCount counts the current workspace's favorites.
func (i *Images) FavoritesCount() int {
	return len(i.FavoriteImages())
}

func (i *Images) fromStored(rec *database.Record) ImageRecord {
	return ImageRecord{
		ID:            rec.ID,
		FileName:      rec.FileName,
		MimeType:      rec.MimeType,
		Payload:       rec.Payload,
		DisplayHandle: i.handles.HandleFor(rec.ID),
		CategoryID:    rec.CategoryID,
		WorkspaceID:   rec.WorkspaceID,
		IsFavorite:    rec.IsFavorite,
		CreatedAt:     rec.CreatedAt,
	}
}

func toStored(img *ImageRecord) *database.Record {
	return &database.Record{
		ID:          img.ID,
		FileName:    img.FileName,
		MimeType:    img.MimeType,
		Payload:     img.Payload,
		CategoryID:  img.CategoryID,
		WorkspaceID: img.WorkspaceID,
		IsFavorite:  img.IsFavorite,
		CreatedAt:   img.CreatedAt,
	}
}

// sniffMime prefers the declared content type and falls back to content
// detection. http.DetectContentType does not know SVG, so that is checked
// separately.
func sniffMime(payload []byte, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if display.IsSVGData(payload) {
		return "image/svg+xml"
	}
	return http.DetectContentType(payload)
}
