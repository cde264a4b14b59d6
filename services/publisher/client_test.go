package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"mediavault/models"
)

type fakeJournal struct {
	mu        sync.Mutex
	attempts  []*models.PublishRecord
	completed map[string]string // id -> status
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{completed: make(map[string]string)}
}

func (f *fakeJournal) RecordPublishAttempt(rec *models.PublishRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, rec)
	return nil
}

func (f *fakeJournal) CompletePublish(id, status, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[id] = status
	return nil
}

func sampleBundle() *models.PreviewBundle {
	return &models.PreviewBundle{
		Movies: []models.Item{{Title: "A"}},
		Series: []models.PreviewSeries{{SeriesName: "Show", Episodes: []models.Item{{Title: "Show S01E01", SeriesName: "Show"}}}},
	}
}

func TestPublishSuccess(t *testing.T) {
	var received *models.PreviewBundle
	var publishID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/catalog/publish", r.URL.Path)
		publishID = r.Header.Get("X-Publish-ID")

		var bundle models.PreviewBundle
		require.NoError(t, json.NewDecoder(r.Body).Decode(&bundle))
		received = &bundle

		json.NewEncoder(w).Encode(map[string]any{"publishId": publishID, "indexVersion": 7})
	}))
	defer srv.Close()

	journal := newFakeJournal()
	client := NewClient(srv.URL, journal)

	err := client.Publish(context.Background(), sampleBundle())
	require.NoError(t, err)
	require.NotNil(t, received)
	require.Len(t, received.Movies, 1)
	require.NotEmpty(t, publishID)

	require.Len(t, journal.attempts, 1)
	require.Equal(t, models.PublishStatusPending, journal.attempts[0].Status)
	require.Equal(t, 1, journal.attempts[0].MovieCount)
	require.Equal(t, models.PublishStatusPublished, journal.completed[journal.attempts[0].ID])
}

func TestPublishSinkRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "storage full", http.StatusInternalServerError)
	}))
	defer srv.Close()

	journal := newFakeJournal()
	client := NewClient(srv.URL, journal)

	err := client.Publish(context.Background(), sampleBundle())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPublishFailed), "rejection must be a PublishError: %v", err)

	require.Len(t, journal.attempts, 1)
	require.Equal(t, models.PublishStatusFailed, journal.completed[journal.attempts[0].ID])
}

func TestPublishTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	client := NewClient(srv.URL, nil)
	err := client.Publish(context.Background(), sampleBundle())
	require.True(t, errors.Is(err, ErrPublishFailed))
}

func TestPublishNilBundle(t *testing.T) {
	client := NewClient("http://unused", nil)
	err := client.Publish(context.Background(), nil)
	require.True(t, errors.Is(err, ErrPublishFailed))
}

func TestPublishWithoutJournal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	require.NoError(t, client.Publish(context.Background(), sampleBundle()))
}
