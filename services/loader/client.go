package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"mediavault/models"
)

const (
	indexCacheKey    = "index"
	indexBodyLimit   = 10 * 1024 * 1024 // 10MB
	partBodyLimit    = 1 * 1024 * 1024  // 1MB per part
	fetchAttempts    = 3
	fetchRetryDelay  = 300 * time.Millisecond
	warmConcurrency  = 3
	warmPartTimeout  = 30 * time.Second
	defaultTTLHours  = 24
	requestUserAgent = "mediavault/1.0"
)

// Client fetches catalog metadata and per-part item batches from the remote
// source, caching every payload on disk. It owns its cache and versioning:
// part cache keys carry the index version, so a republished catalog (version
// bump) misses naturally even before ClearAllCache runs.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *fileCache

	mu           sync.Mutex
	indexVersion int
}

// NewClient creates a loader client. cacheDir is created lazily on first
// write; pass afero.NewMemMapFs() in tests.
func NewClient(baseURL string, fs afero.Fs, cacheDir string, ttlHours int) *Client {
	if ttlHours <= 0 {
		ttlHours = defaultTTLHours
	}
	return &Client{
		baseURL:    trimBaseURL(baseURL),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      newFileCache(fs, cacheDir, ttlHours),
	}
}

func trimBaseURL(base string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base
}

// indexPayload is the remote's index document. Older sources list the opaque
// part descriptors inline; newer ones send a bare partCount. Both decode.
type indexPayload struct {
	Version int `json:"version"`
	Groups  []struct {
		ID        string            `json:"id"`
		Title     string            `json:"title"`
		Parts     []json.RawMessage `json:"parts,omitempty"`
		PartCount int               `json:"partCount,omitempty"`
	} `json:"groups"`
}

func (p *indexPayload) toIndex() *models.CatalogIndex {
	index := &models.CatalogIndex{Version: p.Version, Groups: make([]models.Group, 0, len(p.Groups))}
	for _, g := range p.Groups {
		count := g.PartCount
		if count == 0 {
			count = len(g.Parts)
		}
		index.Groups = append(index.Groups, models.Group{ID: g.ID, Title: g.Title, PartCount: count})
	}
	return index
}

// LoadIndex fetches the catalog index, serving from cache when fresh.
func (c *Client) LoadIndex(ctx context.Context) (*models.CatalogIndex, error) {
	var cached models.CatalogIndex
	if ok, _ := c.cache.get(indexCacheKey, &cached); ok {
		c.rememberVersion(cached.Version)
		return &cached, nil
	}

	var payload indexPayload
	apiURL := fmt.Sprintf("%s/catalog/index.json", c.baseURL)
	if err := c.fetchJSON(ctx, apiURL, indexBodyLimit, &payload); err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	index := payload.toIndex()
	if err := c.cache.set(indexCacheKey, index); err != nil {
		log.Printf("[loader] warning: failed to cache index: %v", err)
	}
	c.rememberVersion(index.Version)
	return index, nil
}

func (c *Client) rememberVersion(v int) {
	c.mu.Lock()
	c.indexVersion = v
	c.mu.Unlock()
}

func (c *Client) partCacheKey(groupID string, part int) string {
	c.mu.Lock()
	v := c.indexVersion
	c.mu.Unlock()
	return fmt.Sprintf("v%d-%s-part-%d", v, groupID, part)
}

// LoadPart fetches one part of a group, serving from cache when fresh.
func (c *Client) LoadPart(ctx context.Context, groupID string, part int) ([]models.Item, error) {
	if groupID == "" {
		return nil, fmt.Errorf("load part: empty group id")
	}
	if part < 0 {
		return nil, fmt.Errorf("load part: negative part index %d", part)
	}

	key := c.partCacheKey(groupID, part)
	var cached []models.Item
	if ok, _ := c.cache.get(key, &cached); ok {
		return cached, nil
	}

	var items []models.Item
	apiURL := fmt.Sprintf("%s/catalog/%s/part-%d.json", c.baseURL, url.PathEscape(groupID), part)
	if err := c.fetchJSON(ctx, apiURL, partBodyLimit, &items); err != nil {
		return nil, fmt.Errorf("fetch part %d of group %q: %w", part, groupID, err)
	}
	if err := c.cache.set(key, items); err != nil {
		log.Printf("[loader] warning: failed to cache part %d of %q: %v", part, groupID, err)
	}
	return items, nil
}

// WarmGroup prefetches every part of a group concurrently so later pagination
// is served from cache. Individual part failures are logged, not fatal; the
// number of parts fetched successfully is returned.
func (c *Client) WarmGroup(ctx context.Context, groupID string, partCount int) int {
	if groupID == "" || partCount <= 0 {
		return 0
	}

	var succeeded atomic.Int64
	p := pool.New().WithMaxGoroutines(warmConcurrency)
	for i := 0; i < partCount; i++ {
		part := i
		p.Go(func() {
			partCtx, cancel := context.WithTimeout(ctx, warmPartTimeout)
			defer cancel()
			if _, err := c.LoadPart(partCtx, groupID, part); err != nil {
				log.Printf("[loader] warm %s part %d failed: %v", groupID, part, err)
				return
			}
			succeeded.Add(1)
		})
	}
	p.Wait()

	n := int(succeeded.Load())
	log.Printf("[loader] warmed group %s: %d/%d parts", groupID, n, partCount)
	return n
}

// ClearAllCache drops every cached payload (index and parts).
func (c *Client) ClearAllCache() error {
	if err := c.cache.clear(); err != nil {
		return fmt.Errorf("clear loader cache: %w", err)
	}
	log.Printf("[loader] cache cleared")
	return nil
}

// CacheStats reports the current on-disk cache footprint.
func (c *Client) CacheStats() models.CacheStats {
	entries, bytes := c.cache.usage()
	return models.CacheStats{
		EstimatedMemoryLabel: formatBytes(bytes),
		Entries:              entries,
	}
}

// fetchJSON performs a GET with bounded retries on transient failures and
// decodes the response body into v. 4xx responses are not retried.
func (c *Client) fetchJSON(ctx context.Context, apiURL string, bodyLimit int64, v any) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", requestUserAgent)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("fetch: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				err := fmt.Errorf("remote returned status %d", resp.StatusCode)
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return retry.Unrecoverable(err)
				}
				return err
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, bodyLimit))
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			if err := json.Unmarshal(body, v); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
			}
			return nil
		},
		retry.Attempts(fetchAttempts),
		retry.Delay(fetchRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
}

// formatBytes renders a byte count as a short human-readable label.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
