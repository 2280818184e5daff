// Package api serves the last delivered news items and the load history over
// HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pevans/newsapp/config"
	"github.com/pevans/newsapp/diagnostics"
	"github.com/pevans/newsapp/loader"
	"github.com/pevans/newsapp/newsfeed"
	"github.com/sirupsen/logrus"
)

// Refresher starts background loads. Satisfied by *loader.Loader.
type Refresher interface {
	Start(ctx context.Context, url string, deliver func(*loader.Result)) uint64
}

// LoadHistory reads recorded loads. Satisfied by *diagnostics.Store.
type LoadHistory interface {
	ListLoads(filter diagnostics.LoadFilter) ([]diagnostics.LoadRecord, error)
	Summary() (map[string]int, error)
}

// APIServer represents the HTTP API server.
type APIServer struct {
	feed       *newsfeed.NewsFeed
	refresher  Refresher
	history    LoadHistory
	requestURL string
	cfg        *config.Config
	log        logrus.FieldLogger

	mu     sync.RWMutex
	latest *loader.Result
}

// NewAPIServer creates a new API server. history may be nil, in which case
// the load history routes answer 404. A nil log uses the logrus standard
// logger.
func NewAPIServer(
	feed *newsfeed.NewsFeed,
	refresher Refresher,
	history LoadHistory,
	requestURL string,
	log logrus.FieldLogger,
) *APIServer {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &APIServer{
		feed:       feed,
		refresher:  refresher,
		history:    history,
		requestURL: requestURL,
		log:        log,
	}
}

// SetupRouter configures the Gin router with all API routes.
func (s *APIServer) SetupRouter() *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v1")
	api.GET("/items", s.HandleListItems)
	api.GET("/items/:index", s.HandleGetItem)
	api.GET("/items/:index/thumbnail", s.HandleGetThumbnail)
	api.POST("/refresh", s.HandleRefresh)
	api.GET("/status", s.HandleStatus)
	api.GET("/loads", s.HandleListLoads)
	api.GET("/loads/summary", s.HandleLoadSummary)
	api.GET("/config", s.HandleGetConfig)

	return router
}

// Accept takes a delivered load result. Results with data replace the
// stored item set; failures are kept only for reporting, so the previous set
// stays visible.
func (s *APIServer) Accept(result *loader.Result) {
	s.mu.Lock()
	s.latest = result
	s.mu.Unlock()

	if !result.Status.HasData() {
		return
	}

	if err := s.feed.Replace(result.URL, result.Items); err != nil {
		s.log.WithError(err).WithField("generation", result.Generation).Error("Failed to store news items")
	}
}

// SetConfig exposes cfg, redacted, on GET /api/v1/config.
func (s *APIServer) SetConfig(cfg *config.Config) {
	s.cfg = cfg
}

// Latest returns the most recently accepted result, or nil.
func (s *APIServer) Latest() *loader.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// ItemView is the JSON shape of one item. Thumbnail bytes are served from
// their own route.
type ItemView struct {
	Index           int    `json:"index"`
	Title           string `json:"title"`
	Section         string `json:"section"`
	Author          string `json:"author"`
	PublicationDate string `json:"publication_date"`
	TrailText       string `json:"trail_text"`
	Summary         string `json:"summary"`
	URL             string `json:"url"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
}

func newItemView(index int, item newsfeed.NewsItem) ItemView {
	view := ItemView{
		Index:           index,
		Title:           item.Title,
		Section:         item.Section,
		Author:          item.Author,
		PublicationDate: item.PublicationDate,
		TrailText:       item.TrailText,
		Summary:         item.PlainTrailText(),
		URL:             item.URL,
	}
	if item.HasThumbnail() {
		view.ThumbnailURL = "/api/v1/items/" + strconv.Itoa(index) + "/thumbnail"
	}
	return view
}

// ListItemsResponse represents the response for GET /api/v1/items.
type ListItemsResponse struct {
	Items    []ItemView `json:"items"`
	Total    int        `json:"total"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
}

// HandleListItems handles GET /api/v1/items.
func (s *APIServer) HandleListItems(c *gin.Context) {
	snapshot, err := s.feed.Load()
	if err != nil && !errors.Is(err, newsfeed.ErrNoSnapshot) {
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to list items: "+err.Error()))
		return
	}

	// Nothing stored yet: report why, if the last load failed
	if snapshot == nil {
		if latest := s.Latest(); latest != nil && !latest.Status.HasData() {
			c.JSON(failureCode(latest.Status), errorResponse(latest.Status.String(), failureMessage(latest)))
			return
		}
		snapshot = &newsfeed.Snapshot{Items: []newsfeed.NewsItem{}}
	}

	limit, offset, ok := parsePagination(c, 50)
	if !ok {
		return
	}

	section := c.Query("section")
	views := []ItemView{}
	for i, item := range snapshot.Items {
		if section != "" && !strings.EqualFold(item.Section, section) {
			continue
		}
		views = append(views, newItemView(i, item))
	}

	response := ListItemsResponse{
		Items:  paginate(views, offset, limit),
		Total:  len(views),
		Limit:  limit,
		Offset: offset,
	}
	if !snapshot.LoadedAt.IsZero() {
		loadedAt := snapshot.LoadedAt
		response.LoadedAt = &loadedAt
	}

	c.JSON(http.StatusOK, response)
}

// HandleGetItem handles GET /api/v1/items/{index}.
func (s *APIServer) HandleGetItem(c *gin.Context) {
	index, item, ok := s.lookupItem(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, newItemView(index, *item))
}

// HandleGetThumbnail handles GET /api/v1/items/{index}/thumbnail.
func (s *APIServer) HandleGetThumbnail(c *gin.Context) {
	_, item, ok := s.lookupItem(c)
	if !ok {
		return
	}

	if !item.HasThumbnail() {
		c.JSON(http.StatusNotFound, errorResponse("not_found", "Item has no thumbnail"))
		return
	}

	c.Data(http.StatusOK, item.ThumbnailContentType(), item.Thumbnail)
}

// lookupItem resolves the :index path parameter, writing the error response
// itself when it fails.
func (s *APIServer) lookupItem(c *gin.Context) (int, *newsfeed.NewsItem, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_index", "Invalid item index: "+c.Param("index")))
		return 0, nil, false
	}

	item, err := s.feed.Get(index)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to get item: "+err.Error()))
		return 0, nil, false
	}
	if item == nil {
		c.JSON(http.StatusNotFound, errorResponse("not_found", "Item not found"))
		return 0, nil, false
	}

	return index, item, true
}

// HandleRefresh handles POST /api/v1/refresh. The load runs in the
// background; the response carries its generation.
func (s *APIServer) HandleRefresh(c *gin.Context) {
	if s.refresher == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse("unavailable", "Refresh is not configured"))
		return
	}

	// The load outlives the request
	ctx := context.WithoutCancel(c.Request.Context())
	gen := s.refresher.Start(ctx, s.requestURL, s.Accept)

	s.log.WithField("generation", gen).Info("Refresh requested")
	c.JSON(http.StatusAccepted, gin.H{"generation": gen})
}

// StatusResponse represents the response for GET /api/v1/status.
type StatusResponse struct {
	Status            string     `json:"status"`
	Generation        uint64     `json:"generation"`
	URL               string     `json:"url,omitempty"`
	ItemCount         int        `json:"item_count"`
	SkippedEntries    int        `json:"skipped_entries"`
	ThumbnailFailures int        `json:"thumbnail_failures"`
	HTTPStatus        int        `json:"http_status,omitempty"`
	Error             string     `json:"error,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

// HandleStatus handles GET /api/v1/status.
func (s *APIServer) HandleStatus(c *gin.Context) {
	latest := s.Latest()
	if latest == nil {
		c.JSON(http.StatusOK, StatusResponse{Status: "pending"})
		return
	}

	resp := StatusResponse{
		Status:            latest.Status.String(),
		Generation:        latest.Generation,
		URL:               latest.URL,
		ItemCount:         len(latest.Items),
		SkippedEntries:    latest.Skipped,
		ThumbnailFailures: latest.ThumbnailFailures,
		HTTPStatus:        latest.HTTPStatus,
		StartedAt:         &latest.StartedAt,
		FinishedAt:        &latest.FinishedAt,
	}
	if latest.Err != nil {
		resp.Error = latest.Err.Error()
	}

	c.JSON(http.StatusOK, resp)
}

// ListLoadsResponse represents the response for GET /api/v1/loads.
type ListLoadsResponse struct {
	Loads  []diagnostics.LoadRecord `json:"loads"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// HandleListLoads handles GET /api/v1/loads.
func (s *APIServer) HandleListLoads(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, errorResponse("not_found", "Load history is not enabled"))
		return
	}

	limit, offset, ok := parsePagination(c, 20)
	if !ok {
		return
	}

	filter := diagnostics.LoadFilter{Limit: limit, Offset: offset}
	if status := c.Query("status"); status != "" {
		if _, err := loader.ParseStatus(status); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "Invalid status parameter"))
			return
		}
		filter.Status = &status
	}

	loads, err := s.history.ListLoads(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to list loads: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, ListLoadsResponse{Loads: loads, Limit: limit, Offset: offset})
}

// HandleLoadSummary handles GET /api/v1/loads/summary.
func (s *APIServer) HandleLoadSummary(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, errorResponse("not_found", "Load history is not enabled"))
		return
	}

	counts, err := s.history.Summary()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to summarize loads: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

// HandleGetConfig handles GET /api/v1/config.
func (s *APIServer) HandleGetConfig(c *gin.Context) {
	if s.cfg == nil {
		c.JSON(http.StatusNotFound, errorResponse("not_found", "Configuration is not exposed"))
		return
	}

	c.JSON(http.StatusOK, s.cfg.Redacted())
}

// parsePagination reads limit and offset, writing a 400 itself when either
// is invalid. Limits above 1000 are clamped.
func parsePagination(c *gin.Context, defaultLimit int) (int, int, bool) {
	limit := defaultLimit
	if limitParam := c.Query("limit"); limitParam != "" {
		parsedLimit, err := strconv.Atoi(limitParam)
		if err != nil || parsedLimit < 1 {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "Invalid limit parameter"))
			return 0, 0, false
		}
		limit = min(parsedLimit, 1000)
	}

	offset := 0
	if offsetParam := c.Query("offset"); offsetParam != "" {
		parsedOffset, err := strconv.Atoi(offsetParam)
		if err != nil || parsedOffset < 0 {
			c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", "Invalid offset parameter"))
			return 0, 0, false
		}
		offset = parsedOffset
	}

	return limit, offset, true
}

// paginate returns a slice of items for the given offset and limit.
func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}

	end := min(offset+limit, len(items))

	return items[offset:end]
}

// failureCode maps a failed load onto the HTTP status used to report it.
func failureCode(status loader.Status) int {
	switch status {
	case loader.StatusNoNetwork, loader.StatusCanceled:
		return http.StatusServiceUnavailable
	case loader.StatusFetchError, loader.StatusParseError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func failureMessage(r *loader.Result) string {
	switch {
	case r.Status == loader.StatusNoURL:
		return "No request URL is configured"
	case r.Err != nil:
		return r.Err.Error()
	default:
		return "Load failed"
	}
}
