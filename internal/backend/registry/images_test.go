package registry

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestImages_AddImagesRequiresWorkspace(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.images.AddImages(context.Background(), []ImageCandidate{{
		FileName: "logo.png",
		Source:   strings.NewReader("data"),
	}})
	if err != ErrNoWorkspace {
		t.Fatalf("expected ErrNoWorkspace, got %v", err)
	}
}

func TestImages_AddImagesSkipsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	env.mustAddWorkspace(t, "Design")

	result, err := env.images.AddImages(context.Background(), []ImageCandidate{
		{FileName: "logo.png", Source: strings.NewReader("first")},
		{FileName: "logo.png", Source: strings.NewReader("second")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Added != 1 || result.Skipped != 1 {
		t.Fatalf("expected 1 added / 1 skipped, got %+v", result)
	}

	stored := env.images.ImagesByCategory(CategoryAll)
	if len(stored) != 1 {
		t.Fatalf("expected 1 image, got %d", len(stored))
	}
	if string(stored[0].Payload) != "first" {
		t.Errorf("expected the first candidate to win, got payload %q", stored[0].Payload)
	}
}

func TestImages_AddImagesSkipsExistingName(t *testing.T) {
	env := newTestEnv(t)
	env.mustAddWorkspace(t, "Design")
	env.mustAddImage(t, "logo.png", "", "original")

	result, err := env.images.AddImages(context.Background(), []ImageCandidate{{
		FileName: "logo.png",
		Source:   strings.NewReader("replacement"),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Added != 0 || result.Skipped != 1 {
		t.Fatalf("expected 0 added / 1 skipped, got %+v", result)
	}
}

func TestImages_SameNameAllowedAcrossWorkspaces(t *testing.T) {
	env := newTestEnv(t)
	first := env.mustAddWorkspace(t, "Design")
	env.mustAddImage(t, "logo.png", "", "design logo")

	env.mustAddWorkspace(t, "Marketing")
	env.mustAddImage(t, "logo.png", "", "marketing logo")

	if count := env.images.CountByCategory(CategoryAll); count != 1 {
		t.Errorf("expected 1 image in current workspace, got %d", count)
	}

	if err := env.workspaces.SwitchWorkspace(context.Background(), first.ID); err != nil {
		t.Fatalf("failed to switch workspace: %v", err)
	}
	if count := env.images.CountByCategory(CategoryAll); count != 1 {
		t.Errorf("expected 1 image after switching back, got %d", count)
	}
}

func TestImages_ProjectionsAreWorkspaceScoped(t *testing.T) {
	env := newTestEnv(t)
	env.mustAddWorkspace(t, "Design")
	env.mustAddImage(t, "a.png", "", "a")
	env.mustAddImage(t, "b.png", "", "b")

	env.mustAddWorkspace(t, "Marketing")
	env.mustAddImage(t, "c.png", "", "c")

	images := env.images.ImagesByCategory(CategoryAll)
	if len(images) != 1 {
		t.Fatalf("expected 1 image in Marketing, got %d", len(images))
	}
	if images[0].FileName != "c.png" {
		t.Errorf("expected c.png, got %s", images[0].FileName)
	}
}

func TestImages_CategoryProjection(t *testing.T) {
	env := newTestEnv(t)
	env.mustAddWorkspace(t, "Design")
	icons := env.mustAddCategory(t, "Icons", "🎨")

	env.mustAddImage(t, "icon.png", icons.ID, "icon")
	env.mustAddImage(t, "photo.png", "", "photo")

	if count := env.images.CountByCategory(icons.ID); count != 1 {
		t.Errorf("expected 1 image in category, got %d", count)
	}
	if count := env.images.CountByCategory(CategoryAll); count != 2 {
		t.Errorf("expected 2 images in all, got %d", count)
	}
}

func TestImages_ToggleFavorite(t *testing.T) {
	env := newTestEnv(t)
	env.mustAddWorkspace(t, "Design")
	image := env.mustAddImage(t, "star.png", "", "star")

	if err := env.images.ToggleFavorite(context.Background(), image.ID); err != nil {
		t.Fatalf("failed to toggle favorite: %v", err)
	}
	favorites := env.images.FavoriteImages()
	if len(favorites) != 1 || favorites[0].ID != image.ID {
		t.Fatalf("expected 1 favorite %s, got %v", image.ID, favorites)
	}
	if count := env.images.FavoritesCount(); count != 1 {
		t.Errorf("expected favorites count 1, got %d", count)
	}

	if err := env.images.ToggleFavorite(context.Background(), image.ID); err != nil {
		t.Fatalf("failed to toggle favorite back: %v", err)
	}
	if count := env.images.FavoritesCount(); count != 0 {
		t.Errorf("expected favorites count 0, got %d", count)
	}
}

func TestImages_ToggleFavoriteUnknownID(t *testing.T) {
	env := newTestEnv(t)
	env.mustAddWorkspace(t, "Design")

	if err := env.images.ToggleFavorite(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestImages_DeleteImageInvalidatesHandle(t *testing.T) {
	env := newTestEnv(t)
	env.mustAddWorkspace(t, "Design")
	image := env.mustAddImage(t, "gone.png", "", "gone")

	if err := env.images.DeleteImage(context.Background(), image.ID); err != nil {
		t.Fatalf("failed to delete image: %v", err)
	}
	if _, ok := env.images.ImageByID(image.ID); ok {
		t.Error("expected image to be gone")
	}

	invalidated := env.handles.invalidatedIDs()
	if len(invalidated) != 1 || invalidated[0] != image.ID {
		t.Errorf("expected handle invalidation for %s, got %v", image.ID, invalidated)
	}
}

func TestImages_DeleteAbsentIDIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	env.mustAddWorkspace(t, "Design")
	env.mustAddImage(t, "keep.png", "", "keep")

	if err := env.images.DeleteImage(context.Background(), "does-not-exist"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count := env.images.CountByCategory(CategoryAll); count != 1 {
		t.Errorf("expected 1 image to remain, got %d", count)
	}
}

func TestImages_DeleteAllImages(t *testing.T) {
	env := newTestEnv(t)
	env.mustAddWorkspace(t, "Design")
	env.mustAddImage(t, "a.png", "", "a")
	env.mustAddImage(t, "b.png", "", "b")

	if err := env.images.DeleteAllImages(context.Background(), false); err != nil {
		t.Fatalf("failed to clear images: %v", err)
	}
	if count := env.images.CountByCategory(CategoryAll); count != 0 {
		t.Errorf("expected no images, got %d", count)
	}
}

func TestImages_DeleteAllImagesKeepsFavorites(t *testing.T) {
	env := newTestEnv(t)
	env.mustAddWorkspace(t, "Design")
	favorite := env.mustAddImage(t, "keep.png", "", "keep")
	env.mustAddImage(t, "drop.png", "", "drop")

	if err := env.images.ToggleFavorite(context.Background(), favorite.ID); err != nil {
		t.Fatalf("failed to toggle favorite: %v", err)
	}
	if err := env.images.DeleteAllImages(context.Background(), true); err != nil {
		t.Fatalf("failed to clear images: %v", err)
	}

	remaining := env.images.ImagesByCategory(CategoryAll)
	if len(remaining) != 1 {
		t.Fatalf("expected 1 surviving image, got %d", len(remaining))
	}
	if remaining[0].ID != favorite.ID {
		t.Errorf("expected favorite %s to survive, got %s", favorite.ID, remaining[0].ID)
	}
}

func TestImages_SearchFiltering(t *testing.T) {
	env := newTestEnv(t)
	env.mustAddWorkspace(t, "Design")
	env.mustAddImage(t, "Company-Logo.png", "", "logo")
	env.mustAddImage(t, "background.jpg", "", "background")

	env.images.SetSearchQuery("  logo ")
	filtered := env.images.FilteredImages(CategoryAll)
	if len(filtered) != 1 {
		t.Fatalf("expected 1 match, got %d", len(filtered))
	}
	if filtered[0].FileName != "Company-Logo.png" {
		t.Errorf("expected Company-Logo.png, got %s", filtered[0].FileName)
	}

	env.images.SetSearchQuery("")
	if len(env.images.FilteredImages(CategoryAll)) != 2 {
		t.Error("expected empty query to pass all images")
	}
}

func TestImages_IsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.mustAddWorkspace(t, "Design")
	env.mustAddImage(t, "logo.png", "", "logo")

	if !env.images.IsDuplicate("logo.png") {
		t.Error("expected logo.png to be reported as duplicate")
	}
	if env.images.IsDuplicate("other.png") {
		t.Error("expected other.png not to be reported as duplicate")
	}
}

func TestImages_MimeSniffing(t *testing.T) {
	env := newTestEnv(t)
	env.mustAddWorkspace(t, "Design")

	result, err := env.images.AddImages(context.Background(), []ImageCandidate{{
		FileName: "vector.svg",
		Source:   strings.NewReader(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`),
	}})
	if err != nil || result.Added != 1 {
		t.Fatalf("failed to add svg: %v %+v", err, result)
	}

	images := env.images.ImagesByCategory(CategoryAll)
	if images[0].MimeType != "image/svg+xml" {
		t.Errorf("expected image/svg+xml, got %s", images[0].MimeType)
	}
}

func TestImages_PersistedAcrossRestart(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "restart_test.db")
	payload := []byte{0x89, 0x50, 0x4E, 0x47, 0x00, 0x01, 0x02, 0x03}

	env := newTestEnvAt(t, databasePath)
	env.mustAddWorkspace(t, "Design")
	image := env.mustAddImage(t, "persisted.png", "", string(payload))
	if err := env.images.ToggleFavorite(context.Background(), image.ID); err != nil {
		t.Fatalf("failed to toggle favorite: %v", err)
	}
	if err := env.store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	restarted := newTestEnvAt(t, databasePath)
	restored, ok := restarted.images.ImageByID(image.ID)
	if !ok {
		t.Fatal("expected image to survive restart")
	}
	if !bytes.Equal(restored.Payload, payload) {
		t.Errorf("payload changed across restart: %v != %v", restored.Payload, payload)
	}
	if !restored.IsFavorite {
		t.Error("expected favorite flag to survive restart")
	}
	if restored.DisplayHandle == "" {
		t.Error("expected display handle to be regenerated")
	}
	if current, _ := restarted.workspaces.CurrentWorkspace(); current.Name != "Design" {
		t.Errorf("expected current workspace Design, got %q", current.Name)
	}
}
