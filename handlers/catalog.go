package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"mediavault/api"
	"mediavault/models"
	"mediavault/services/catalog"
	"mediavault/services/publisher"
)

// catalogService is the slice of the catalog service the HTTP layer consumes.
type catalogService interface {
	SelectGroup(ctx context.Context, groupID string) error
	LoadNextPart(ctx context.Context) error
	ReloadIndex(ctx context.Context) error
	EnrichSeries(name string) *models.EnrichedSeries
	SetPreviewContent(bundle *models.PreviewBundle)
	PublishContent(ctx context.Context) error
	Snapshot() catalog.Snapshot
	Stats() models.CacheStats
}

var _ catalogService = (*catalog.Service)(nil)

// groupWarmer prefetches a group's parts into the loader cache.
type groupWarmer interface {
	WarmGroup(ctx context.Context, groupID string, partCount int) int
}

// publishHistoryLister reads the publish journal.
type publishHistoryLister interface {
	ListPublishHistory(limit int) ([]models.PublishRecord, error)
}

type CatalogHandler struct {
	Service catalogService
	Warmer  groupWarmer
	History publishHistoryLister
}

func NewCatalogHandler(s catalogService) *CatalogHandler {
	return &CatalogHandler{Service: s}
}

// SetGroupWarmer wires the loader's prefetch; optional.
func (h *CatalogHandler) SetGroupWarmer(w groupWarmer) {
	h.Warmer = w
}

// SetPublishHistory wires the publish journal reader; optional.
func (h *CatalogHandler) SetPublishHistory(l publishHistoryLister) {
	h.History = l
}

// RegisterRoutes mounts the catalog API. Mutating actions go through the
// per-IP rate limiter.
func (h *CatalogHandler) RegisterRoutes(r *mux.Router, limiter *api.IPRateLimiter) {
	limited := func(next http.HandlerFunc) http.HandlerFunc {
		if limiter == nil {
			return next
		}
		return api.RateLimit(limiter, next)
	}

	r.HandleFunc("/api/catalog", h.GetSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/catalog/groups", h.GetGroups).Methods(http.MethodGet)
	r.HandleFunc("/api/catalog/items", h.GetItems).Methods(http.MethodGet)
	r.HandleFunc("/api/catalog/movies", h.GetMovies).Methods(http.MethodGet)
	r.HandleFunc("/api/catalog/series", h.GetSeries).Methods(http.MethodGet)
	r.HandleFunc("/api/catalog/series/{name}", h.GetSeriesDetail).Methods(http.MethodGet)
	r.HandleFunc("/api/catalog/stats", h.GetStats).Methods(http.MethodGet)

	r.HandleFunc("/api/catalog/select", h.SelectGroup).Methods(http.MethodPost)
	r.HandleFunc("/api/catalog/next", h.LoadNextPart).Methods(http.MethodPost)
	r.HandleFunc("/api/catalog/reload", limited(h.Reload)).Methods(http.MethodPost)
	r.HandleFunc("/api/catalog/groups/{id}/warm", limited(h.WarmGroup)).Methods(http.MethodPost)

	r.HandleFunc("/api/catalog/preview", h.SetPreview).Methods(http.MethodPut)
	r.HandleFunc("/api/catalog/preview", h.DiscardPreview).Methods(http.MethodDelete)
	r.HandleFunc("/api/catalog/publish", limited(h.Publish)).Methods(http.MethodPost)
	r.HandleFunc("/api/catalog/publish/history", h.GetPublishHistory).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *CatalogHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.Snapshot())
}

func (h *CatalogHandler) GetGroups(w http.ResponseWriter, r *http.Request) {
	snap := h.Service.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"indexLoaded":  snap.IndexLoaded,
		"indexVersion": snap.IndexVersion,
		"groups":       snap.Groups,
	})
}

func (h *CatalogHandler) GetItems(w http.ResponseWriter, r *http.Request) {
	snap := h.Service.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"currentGroup": snap.CurrentGroup,
		"currentPart":  snap.CurrentPart,
		"totalParts":   snap.TotalParts,
		"hasMoreParts": snap.HasMoreParts,
		"items":        snap.Items,
	})
}

func (h *CatalogHandler) GetMovies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"publishedMovies": h.Service.Snapshot().PublishedMovies})
}

func (h *CatalogHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"publishedSeries": h.Service.Snapshot().PublishedSeries})
}

func (h *CatalogHandler) GetSeriesDetail(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(mux.Vars(r)["name"])
	if name == "" {
		writeError(w, http.StatusBadRequest, "series name required")
		return
	}
	series := h.Service.EnrichSeries(name)
	if series == nil {
		writeError(w, http.StatusNotFound, "series not loaded")
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (h *CatalogHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	snap := h.Service.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"cache":          h.Service.Stats(),
		"loadedItems":    len(snap.Items),
		"derivedMovies":  len(snap.PublishedMovies),
		"derivedSeries":  len(snap.PublishedSeries),
		"hasUnpublished": snap.HasUnpublished,
	})
}

type selectGroupRequest struct {
	GroupID string `json:"groupId"`
}

func (h *CatalogHandler) SelectGroup(w http.ResponseWriter, r *http.Request) {
	var req selectGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.GroupID) == "" {
		writeError(w, http.StatusBadRequest, "groupId required")
		return
	}
	if err := h.Service.SelectGroup(r.Context(), strings.TrimSpace(req.GroupID)); err != nil {
		h.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Service.Snapshot())
}

func (h *CatalogHandler) LoadNextPart(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.LoadNextPart(r.Context()); err != nil {
		h.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Service.Snapshot())
}

func (h *CatalogHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.ReloadIndex(r.Context()); err != nil {
		h.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Service.Snapshot())
}

func (h *CatalogHandler) WarmGroup(w http.ResponseWriter, r *http.Request) {
	if h.Warmer == nil {
		writeError(w, http.StatusNotImplemented, "warmup not available")
		return
	}
	groupID := mux.Vars(r)["id"]

	var partCount int
	for _, g := range h.Service.Snapshot().Groups {
		if g.ID == groupID {
			partCount = g.PartCount
			break
		}
	}
	if partCount == 0 {
		writeError(w, http.StatusNotFound, "unknown group")
		return
	}

	warmed := h.Warmer.WarmGroup(r.Context(), groupID, partCount)
	writeJSON(w, http.StatusOK, map[string]any{"groupId": groupID, "warmedParts": warmed, "totalParts": partCount})
}

func (h *CatalogHandler) SetPreview(w http.ResponseWriter, r *http.Request) {
	var bundle models.PreviewBundle
	if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
		writeError(w, http.StatusBadRequest, "invalid preview bundle")
		return
	}
	h.Service.SetPreviewContent(&bundle)
	writeJSON(w, http.StatusOK, map[string]any{"hasUnpublished": true})
}

func (h *CatalogHandler) DiscardPreview(w http.ResponseWriter, r *http.Request) {
	h.Service.SetPreviewContent(nil)
	writeJSON(w, http.StatusOK, map[string]any{"hasUnpublished": false})
}

func (h *CatalogHandler) Publish(w http.ResponseWriter, r *http.Request) {
	err := h.Service.PublishContent(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h.Service.Snapshot())
	case errors.Is(err, catalog.ErrNothingStaged):
		writeError(w, http.StatusConflict, "no preview content staged")
	case errors.Is(err, publisher.ErrPublishFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.writeActionError(w, err)
	}
}

func (h *CatalogHandler) GetPublishHistory(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeJSON(w, http.StatusOK, map[string]any{"history": []models.PublishRecord{}})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	records, err := h.History.ListPublishHistory(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read publish history")
		return
	}
	if records == nil {
		records = []models.PublishRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records})
}

// writeActionError maps service errors to HTTP statuses: wiring mistakes are
// 500s, everything else is an upstream fetch problem.
func (h *CatalogHandler) writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotConfigured), errors.Is(err, catalog.ErrNoSink):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, catalog.ErrIndexLoadInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
