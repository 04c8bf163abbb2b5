package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/iconease/internal/backend/database"
	"github.com/jo-hoe/iconease/internal/backend/display"
	"github.com/jo-hoe/iconease/internal/backend/registry"
)

// CoreService wires the blob store, the display pipeline and the three
// registries into one dependency graph and owns their lifecycle.
type CoreService struct {
	config *ServiceConfig

	store    database.StoreService
	broker   *registry.Broker
	cache    *display.Cache
	renderer *display.Renderer

	workspaces *registry.Workspaces
	categories *registry.Categories
	images     *registry.Images
}

func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	store, err := database.NewStore(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	cache, err := display.NewCache(config.Display.CacheAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize display cache: %w", err)
	}

	broker := registry.NewBroker()
	notifier := registry.NewSlogNotifier()

	workspaces := registry.NewWorkspaces(store, broker, notifier)
	images := registry.NewImages(store, cache, workspaces, broker, notifier)
	categories := registry.NewCategories(store, images, workspaces, broker, notifier)
	workspaces.Bind(images, categories)

	slog.Info("core service assembled",
		"database_type", config.Database.Type,
		"display_width", config.Display.Width)

	return &CoreService{
		config:     config,
		store:      store,
		broker:     broker,
		cache:      cache,
		renderer:   display.NewRenderer(config.Display.Width),
		workspaces: workspaces,
		categories: categories,
		images:     images,
	}, nil
}

// Initialize opens the store and loads every registry. Workspaces load first
// because the other registries scope their views by the current workspace.
func (service *CoreService) Initialize(ctx context.Context) error {
	if err := service.store.Open(ctx); err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if err := service.workspaces.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize workspaces: %w", err)
	}
	if err := service.categories.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize categories: %w", err)
	}
	if err := service.images.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize images: %w", err)
	}
	slog.Info("core service initialized",
		"workspaces", len(service.workspaces.Workspaces()))
	return nil
}

func (service *CoreService) Workspaces() *registry.Workspaces { return service.workspaces }
func (service *CoreService) Categories() *registry.Categories { return service.categories }
func (service *CoreService) Images() *registry.Images         { return service.images }
func (service *CoreService) Renderer() *display.Renderer      { return service.renderer }
func (service *CoreService) Cache() *display.Cache            { return service.cache }

func (service *CoreService) Close() error {
	service.categories.Close()
	if err := service.cache.Close(); err != nil {
		slog.Warn("failed to close display cache", "error", err)
	}
	return service.store.Close()
}
