package registry

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jo-hoe/iconease/internal/backend/database"
)

type stubHandles struct {
	mu          sync.Mutex
	invalidated []string
}

func (s *stubHandles) HandleFor(id string) string {
	return "/display/" + id
}

func (s *stubHandles) Invalidate(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, id)
}

func (s *stubHandles) invalidatedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]string, len(s.invalidated))
	copy(result, s.invalidated)
	return result
}

type testEnv struct {
	store      database.StoreService
	handles    *stubHandles
	broker     *Broker
	workspaces *Workspaces
	images     *Images
	categories *Categories
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvAt(t, filepath.Join(t.TempDir(), "registry_test.db"))
}

// newTestEnvAt wires the three registries against a sqlite file at the given
// path, so tests can simulate a process restart by building a second
// environment on the same file.
func newTestEnvAt(t *testing.T, databasePath string) *testEnv {
	t.Helper()

	store := database.NewSQLiteStore(databasePath)
	broker := NewBroker()
	notifier := NewSlogNotifier()
	handles := &stubHandles{}

	workspaces := NewWorkspaces(store, broker, notifier)
	images := NewImages(store, handles, workspaces, broker, notifier)
	categories := NewCategories(store, images, workspaces, broker, notifier)
	workspaces.Bind(images, categories)

	ctx := context.Background()
	if err := store.Open(ctx); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := workspaces.Initialize(ctx); err != nil {
		t.Fatalf("failed to initialize workspaces: %v", err)
	}
	if err := categories.Initialize(ctx); err != nil {
		t.Fatalf("failed to initialize categories: %v", err)
	}
	if err := images.Initialize(ctx); err != nil {
		t.Fatalf("failed to initialize images: %v", err)
	}

	t.Cleanup(func() {
		categories.Close()
		if err := store.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})

	return &testEnv{
		store:      store,
		handles:    handles,
		broker:     broker,
		workspaces: workspaces,
		images:     images,
		categories: categories,
	}
}

func (e *testEnv) mustAddWorkspace(t *testing.T, name string) WorkspaceRecord {
	t.Helper()
	workspace, err := e.workspaces.AddWorkspace(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to add workspace %q: %v", name, err)
	}
	return workspace
}

func (e *testEnv) mustAddImage(t *testing.T, fileName, categoryID, content string) ImageRecord {
	t.Helper()
	result, err := e.images.AddImages(context.Background(), []ImageCandidate{{
		FileName:   fileName,
		MimeType:   "image/png",
		CategoryID: categoryID,
		Source:     strings.NewReader(content),
	}})
	if err != nil {
		t.Fatalf("failed to add image %q: %v", fileName, err)
	}
	if result.Added != 1 {
		t.Fatalf("expected image %q to be added, got %+v", fileName, result)
	}
	record, ok := e.images.ImageByID(lastImageID(e.images, fileName))
	if !ok {
		t.Fatalf("added image %q not found", fileName)
	}
	return record
}

func lastImageID(images *Images, fileName string) string {
	all := images.ImagesByCategory(CategoryAll)
	for idx := len(all) - 1; idx >= 0; idx-- {
		if all[idx].FileName == fileName {
			return all[idx].ID
		}
	}
	return ""
}

func (e *testEnv) mustAddCategory(t *testing.T, name, icon string) CategoryRecord {
	t.Helper()
	category, err := e.categories.AddCategory(context.Background(), CategoryRecord{Name: name, Icon: icon})
	if err != nil {
		t.Fatalf("failed to add category %q: %v", name, err)
	}
	return category
}
