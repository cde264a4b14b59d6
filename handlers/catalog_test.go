package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"mediavault/models"
	"mediavault/services/catalog"
	"mediavault/services/publisher"
)

type fakeCatalogService struct {
	snapshot catalog.Snapshot
	stats    models.CacheStats

	selectErr  error
	nextErr    error
	reloadErr  error
	publishErr error
	series     *models.EnrichedSeries

	lastSelectedGroup string
	nextCalls         int
	reloadCalls       int
	publishCalls      int
	lastPreview       *models.PreviewBundle
	previewSet        bool
}

func (f *fakeCatalogService) SelectGroup(_ context.Context, groupID string) error {
	f.lastSelectedGroup = groupID
	return f.selectErr
}

func (f *fakeCatalogService) LoadNextPart(_ context.Context) error {
	f.nextCalls++
	return f.nextErr
}

func (f *fakeCatalogService) ReloadIndex(_ context.Context) error {
	f.reloadCalls++
	return f.reloadErr
}

func (f *fakeCatalogService) EnrichSeries(name string) *models.EnrichedSeries {
	return f.series
}

func (f *fakeCatalogService) SetPreviewContent(bundle *models.PreviewBundle) {
	f.lastPreview = bundle
	f.previewSet = true
}

func (f *fakeCatalogService) PublishContent(_ context.Context) error {
	f.publishCalls++
	return f.publishErr
}

func (f *fakeCatalogService) Snapshot() catalog.Snapshot {
	return f.snapshot
}

func (f *fakeCatalogService) Stats() models.CacheStats {
	return f.stats
}

type fakeWarmer struct {
	lastGroup string
	lastCount int
	warmed    int
}

func (f *fakeWarmer) WarmGroup(_ context.Context, groupID string, partCount int) int {
	f.lastGroup = groupID
	f.lastCount = partCount
	return f.warmed
}

type fakeHistory struct {
	records []models.PublishRecord
	err     error
}

func (f *fakeHistory) ListPublishHistory(limit int) ([]models.PublishRecord, error) {
	return f.records, f.err
}

func newTestRouter(svc *fakeCatalogService) (*mux.Router, *CatalogHandler) {
	h := NewCatalogHandler(svc)
	r := mux.NewRouter()
	h.RegisterRoutes(r, nil)
	return r, h
}

func TestGetSnapshot(t *testing.T) {
	svc := &fakeCatalogService{snapshot: catalog.Snapshot{
		IndexLoaded:  true,
		IndexVersion: 5,
		CurrentGroup: "movies",
		HasMoreParts: true,
	}}
	router, _ := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["indexLoaded"] != true || body["currentGroup"] != "movies" {
		t.Fatalf("unexpected snapshot body: %v", body)
	}
	if body["hasMoreParts"] != true {
		t.Fatalf("expected hasMoreParts true, got %v", body["hasMoreParts"])
	}
}

func TestSelectGroup(t *testing.T) {
	svc := &fakeCatalogService{}
	router, _ := newTestRouter(svc)

	payload := bytes.NewBufferString(`{"groupId":"movies"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/catalog/select", payload))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastSelectedGroup != "movies" {
		t.Fatalf("expected movies selected, got %q", svc.lastSelectedGroup)
	}
}

func TestSelectGroupRequiresGroupID(t *testing.T) {
	router, _ := newTestRouter(&fakeCatalogService{})

	for _, payload := range []string{``, `{}`, `{"groupId":"  "}`} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/catalog/select", bytes.NewBufferString(payload)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("payload %q: expected 400, got %d", payload, rec.Code)
		}
	}
}

func TestSelectGroupFetchFailure(t *testing.T) {
	svc := &fakeCatalogService{selectErr: fmt.Errorf("select group: remote down")}
	router, _ := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/catalog/select", bytes.NewBufferString(`{"groupId":"movies"}`)))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for fetch failure, got %d", rec.Code)
	}
}

func TestNotConfiguredMapsTo500(t *testing.T) {
	svc := &fakeCatalogService{selectErr: catalog.ErrNotConfigured}
	router, _ := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/catalog/select", bytes.NewBufferString(`{"groupId":"movies"}`)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for configuration error, got %d", rec.Code)
	}
}

func TestLoadNextPart(t *testing.T) {
	svc := &fakeCatalogService{}
	router, _ := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/catalog/next", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.nextCalls != 1 {
		t.Fatalf("expected one LoadNextPart call, got %d", svc.nextCalls)
	}
}

func TestReload(t *testing.T) {
	svc := &fakeCatalogService{}
	router, _ := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/catalog/reload", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.reloadCalls != 1 {
		t.Fatalf("expected one reload call, got %d", svc.reloadCalls)
	}
}

func TestGetSeriesDetail(t *testing.T) {
	svc := &fakeCatalogService{series: &models.EnrichedSeries{SeriesName: "Show", EpisodeCount: 2}}
	router, _ := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/series/Show", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got models.EnrichedSeries
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SeriesName != "Show" || got.EpisodeCount != 2 {
		t.Fatalf("unexpected series: %+v", got)
	}
}

func TestGetSeriesDetailNotLoaded(t *testing.T) {
	router, _ := newTestRouter(&fakeCatalogService{series: nil})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/series/Unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unloaded series, got %d", rec.Code)
	}
}

func TestSetAndDiscardPreview(t *testing.T) {
	svc := &fakeCatalogService{}
	router, _ := newTestRouter(svc)

	payload := bytes.NewBufferString(`{"movies":[{"title":"A","imageUrl":"u"}],"series":[]}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/catalog/preview", payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastPreview == nil || len(svc.lastPreview.Movies) != 1 {
		t.Fatalf("bundle not staged: %+v", svc.lastPreview)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/catalog/preview", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastPreview != nil {
		t.Fatal("expected staging discarded")
	}
}

func TestPublishStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		publishErr error
		wantStatus int
	}{
		{"success", nil, http.StatusOK},
		{"nothing staged", catalog.ErrNothingStaged, http.StatusConflict},
		{"sink failure", fmt.Errorf("publish content: %w", publisher.ErrPublishFailed), http.StatusBadGateway},
		{"no sink", catalog.ErrNoSink, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		svc := &fakeCatalogService{publishErr: tc.publishErr}
		router, _ := newTestRouter(svc)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/catalog/publish", nil))
		if rec.Code != tc.wantStatus {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.wantStatus, rec.Code)
		}
	}
}

func TestWarmGroup(t *testing.T) {
	svc := &fakeCatalogService{snapshot: catalog.Snapshot{
		Groups: []models.Group{{ID: "movies", Title: "Movies", PartCount: 4}},
	}}
	router, h := newTestRouter(svc)
	warmer := &fakeWarmer{warmed: 4}
	h.SetGroupWarmer(warmer)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/catalog/groups/movies/warm", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if warmer.lastGroup != "movies" || warmer.lastCount != 4 {
		t.Fatalf("warmer called with %q/%d", warmer.lastGroup, warmer.lastCount)
	}
}

func TestWarmGroupUnknown(t *testing.T) {
	svc := &fakeCatalogService{}
	router, h := newTestRouter(svc)
	h.SetGroupWarmer(&fakeWarmer{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/catalog/groups/ghost/warm", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown group, got %d", rec.Code)
	}
}

func TestWarmGroupWithoutWarmer(t *testing.T) {
	router, _ := newTestRouter(&fakeCatalogService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/catalog/groups/movies/warm", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without warmer, got %d", rec.Code)
	}
}

func TestGetPublishHistory(t *testing.T) {
	svc := &fakeCatalogService{}
	router, h := newTestRouter(svc)
	h.SetPublishHistory(&fakeHistory{records: []models.PublishRecord{
		{ID: "pub-1", Status: models.PublishStatusPublished},
	}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/publish/history?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		History []models.PublishRecord `json:"history"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.History) != 1 || body.History[0].ID != "pub-1" {
		t.Fatalf("unexpected history: %+v", body.History)
	}
}

func TestGetPublishHistoryWithoutJournal(t *testing.T) {
	router, _ := newTestRouter(&fakeCatalogService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/publish/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with empty history, got %d", rec.Code)
	}
}
