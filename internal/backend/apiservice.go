package backend

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jo-hoe/iconease/internal/backend/registry"
	"github.com/jo-hoe/iconease/internal/core"

	"github.com/labstack/echo/v4"
)

// APIService exposes the registries over HTTP for the UI layer.
type APIService struct {
	config *core.ServiceConfig
	core   *core.CoreService
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		config: config,
		core:   coreService,
	}
}

type nameRequest struct {
	Name string `json:"name" validate:"required"`
}

type categoryRequest struct {
	Name string `json:"name" validate:"required"`
	Icon string `json:"icon"`
}

type idsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type countResponse struct {
	Count int `json:"count"`
}

type workspaceListResponse struct {
	Workspaces []registry.WorkspaceRecord `json:"workspaces"`
	CurrentID  string                     `json:"currentId"`
}

type categoryListResponse struct {
	Categories []registry.CategoryRecord `json:"categories"`
	ActiveID   string                    `json:"activeId"`
	Revision   int64                     `json:"revision"`
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	e.GET("/api/workspaces", s.listWorkspaces)
	e.POST("/api/workspaces", s.addWorkspace)
	e.PUT("/api/workspaces/:id", s.updateWorkspace)
	e.DELETE("/api/workspaces/:id", s.deleteWorkspace)
	e.POST("/api/workspaces/:id/switch", s.switchWorkspace)

	e.GET("/api/categories", s.listCategories)
	e.POST("/api/categories", s.addCategory)
	e.DELETE("/api/categories/:id", s.deleteCategory)
	e.POST("/api/categories/:id/activate", s.activateCategory)
	e.GET("/api/categories/:id/count", s.categoryCount)
	e.GET("/api/favorites/count", s.favoritesCount)

	e.GET("/api/images", s.listImages)
	e.POST("/api/images", s.addImages)
	e.DELETE("/api/images", s.deleteAllImages)
	e.DELETE("/api/images/:id", s.deleteImage)
	e.POST("/api/images/delete", s.deleteImages)
	e.POST("/api/images/:id/favorite", s.toggleFavorite)
	e.PUT("/api/search", s.setSearchQuery)

	e.GET("/display/:id", s.serveDisplay)
}

// toHTTPError maps registry sentinels to client error codes; everything else
// is a storage or rendering failure and surfaces as 500.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrNoWorkspace), errors.Is(err, registry.ErrInvalidName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrDuplicateName), errors.Is(err, registry.ErrLastWorkspace):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (s *APIService) listWorkspaces(c echo.Context) error {
	currentID, _ := s.core.Workspaces().CurrentWorkspaceID()
	return c.JSON(http.StatusOK, workspaceListResponse{
		Workspaces: s.core.Workspaces().Workspaces(),
		CurrentID:  currentID,
	})
}

func (s *APIService) addWorkspace(c echo.Context) error {
	var request nameRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&request); err != nil {
		return err
	}

	workspace, err := s.core.Workspaces().AddWorkspace(c.Request().Context(), request.Name)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, workspace)
}

func (s *APIService) updateWorkspace(c echo.Context) error {
	var request nameRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&request); err != nil {
		return err
	}

	if err := s.core.Workspaces().UpdateWorkspace(c.Request().Context(), c.Param("id"), request.Name); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) deleteWorkspace(c echo.Context) error {
	if err := s.core.Workspaces().DeleteWorkspace(c.Request().Context(), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) switchWorkspace(c echo.Context) error {
	if err := s.core.Workspaces().SwitchWorkspace(c.Request().Context(), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) listCategories(c echo.Context) error {
	categories, err := s.core.Categories().WorkspaceCategories(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, categoryListResponse{
		Categories: categories,
		ActiveID:   s.core.Categories().ActiveCategory(),
		Revision:   s.core.Categories().Revision(),
	})
}

func (s *APIService) addCategory(c echo.Context) error {
	var request categoryRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&request); err != nil {
		return err
	}

	category, err := s.core.Categories().AddCategory(c.Request().Context(), registry.CategoryRecord{
		Name: request.Name,
		Icon: request.Icon,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, category)
}

func (s *APIService) deleteCategory(c echo.Context) error {
	if err := s.core.Categories().DeleteCategory(c.Request().Context(), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) activateCategory(c echo.Context) error {
	if err := s.core.Categories().SetActiveCategory(c.Request().Context(), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) categoryCount(c echo.Context) error {
	return c.JSON(http.StatusOK, countResponse{Count: s.core.Categories().CategoryCount(c.Param("id"))})
}

func (s *APIService) favoritesCount(c echo.Context) error {
	return c.JSON(http.StatusOK, countResponse{Count: s.core.Categories().FavoritesCount()})
}

func (s *APIService) listImages(c echo.Context) error {
	if favorites, _ := strconv.ParseBool(c.QueryParam("favorites")); favorites {
		return c.JSON(http.StatusOK, s.core.Images().FavoriteImages())
	}

	categoryID := c.QueryParam("category")
	if categoryID == "" {
		categoryID = registry.CategoryAll
	}
	return c.JSON(http.StatusOK, s.core.Images().FilteredImages(categoryID))
}

func (s *APIService) addImages(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	files := form.File["files"]
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files provided")
	}
	categoryID := c.FormValue("categoryId")

	candidates := make([]registry.ImageCandidate, 0, len(files))
	var sources []interface{ Close() error }
	defer func() {
		for _, source := range sources {
			if err := source.Close(); err != nil {
				slog.Warn("failed to close upload source", "error", err)
			}
		}
	}()

	for _, file := range files {
		source, err := file.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		sources = append(sources, source)
		candidates = append(candidates, registry.ImageCandidate{
			FileName:   file.Filename,
			MimeType:   file.Header.Get("Content-Type"),
			CategoryID: categoryID,
			Source:     source,
		})
	}

	result, err := s.core.Images().AddImages(c.Request().Context(), candidates)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *APIService) deleteImage(c echo.Context) error {
	if err := s.core.Images().DeleteImage(c.Request().Context(), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) deleteImages(c echo.Context) error {
	var request idsRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&request); err != nil {
		return err
	}

	if err := s.core.Images().DeleteImages(c.Request().Context(), request.IDs); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) deleteAllImages(c echo.Context) error {
	onlyFavorites, _ := strconv.ParseBool(c.QueryParam("onlyFavorites"))
	if err := s.core.Images().DeleteAllImages(c.Request().Context(), onlyFavorites); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) toggleFavorite(c echo.Context) error {
	if err := s.core.Images().ToggleFavorite(c.Request().Context(), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) setSearchQuery(c echo.Context) error {
	var request searchRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.core.Images().SetSearchQuery(request.Query)
	return c.NoContent(http.StatusNoContent)
}

// serveDisplay is the target of the ephemeral display handles. The rendered
// payload is produced on first access and cached until the image changes.
func (s *APIService) serveDisplay(c echo.Context) error {
	id := c.Param("id")
	image, ok := s.core.Images().ImageByID(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "image not found")
	}

	ctx := c.Request().Context()
	cached, found, err := s.core.Cache().Get(ctx, id)
	if err != nil {
		slog.Warn("display cache read failed", "image_id", id, "error", err)
	}
	if found {
		return c.Blob(http.StatusOK, "image/png", cached)
	}

	rendered, err := s.core.Renderer().Render(image.Payload)
	if err != nil {
		return toHTTPError(err)
	}
	if err := s.core.Cache().Set(ctx, id, rendered); err != nil {
		slog.Warn("display cache write failed", "image_id", id, "error", err)
	}
	return c.Blob(http.StatusOK, "image/png", rendered)
}
