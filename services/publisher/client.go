package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mediavault/models"
)

// ErrPublishFailed marks a publish rejected by the sink or lost in transit.
// Callers keep their staging when they see it.
var ErrPublishFailed = errors.New("publish failed")

const publishTimeout = 2 * time.Minute

// Journal records publish attempts. The database repository implements it;
// a nil journal disables recording without affecting the publish itself.
type Journal interface {
	RecordPublishAttempt(rec *models.PublishRecord) error
	CompletePublish(id, status, errMsg string) error
}

// receipt is the sink's confirmation payload.
type receipt struct {
	PublishID    string `json:"publishId"`
	IndexVersion int    `json:"indexVersion"`
}

// Client hands prepared content bundles to the external publish sink
// (conceptually: upload + index update). Publish only returns nil once the
// sink has confirmed acceptance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	journal    Journal
}

func NewClient(baseURL string, journal Journal) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: publishTimeout},
		journal:    journal,
	}
}

// Publish POSTs the bundle to the sink and waits for its confirmation.
// Every attempt is journaled (pending, then published or failed).
func (c *Client) Publish(ctx context.Context, bundle *models.PreviewBundle) error {
	if bundle == nil {
		return fmt.Errorf("%w: nil bundle", ErrPublishFailed)
	}

	id := uuid.NewString()
	c.recordAttempt(id, bundle)

	err := c.send(ctx, id, bundle)
	if err != nil {
		c.complete(id, models.PublishStatusFailed, err.Error())
		return err
	}
	c.complete(id, models.PublishStatusPublished, "")
	return nil
}

func (c *Client) send(ctx context.Context, id string, bundle *models.PreviewBundle) error {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("%w: encode bundle: %v", ErrPublishFailed, err)
	}

	apiURL := fmt.Sprintf("%s/catalog/publish", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrPublishFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Publish-ID", id)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: sink returned status %d", ErrPublishFailed, resp.StatusCode)
	}

	// The confirmation body is informational; an empty or malformed body from
	// an older sink still counts as success once the status was 2xx.
	var rec receipt
	if body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024)); err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &rec); err == nil && rec.IndexVersion > 0 {
			log.Printf("[publisher] sink confirmed publish %s, new index v%d", id, rec.IndexVersion)
			return nil
		}
	}
	log.Printf("[publisher] sink confirmed publish %s", id)
	return nil
}

func (c *Client) recordAttempt(id string, bundle *models.PreviewBundle) {
	if c.journal == nil {
		return
	}
	rec := &models.PublishRecord{
		ID:          id,
		Status:      models.PublishStatusPending,
		MovieCount:  len(bundle.Movies),
		SeriesCount: len(bundle.Series),
	}
	if err := c.journal.RecordPublishAttempt(rec); err != nil {
		log.Printf("[publisher] warning: failed to journal attempt %s: %v", id, err)
	}
}

func (c *Client) complete(id, status, errMsg string) {
	if c.journal == nil {
		return
	}
	if err := c.journal.CompletePublish(id, status, errMsg); err != nil {
		log.Printf("[publisher] warning: failed to journal completion %s: %v", id, err)
	}
}
