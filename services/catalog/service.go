package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"mediavault/models"
	"mediavault/utils"
)

var (
	// ErrNotConfigured is returned when an action is invoked on a service
	// that was constructed without its loader. It signals a wiring mistake,
	// not a user-recoverable condition.
	ErrNotConfigured = errors.New("catalog service not configured with a loader")

	// ErrIndexLoadInProgress is returned when LoadIndex is called while a
	// previous index load is still in flight. Calls are dropped, not queued.
	ErrIndexLoadInProgress = errors.New("index load already in progress")

	// ErrNothingStaged is returned by PublishContent when no preview bundle
	// is staged.
	ErrNothingStaged = errors.New("no preview content staged")

	// ErrNoSink is returned by PublishContent when no publish sink is wired.
	ErrNoSink = errors.New("catalog service not configured with a publish sink")
)

// Loader is the remote source contract the catalog consumes. The remote owns
// its own caching and versioning; ClearAllCache is its only (coarse-grained)
// invalidation primitive.
type Loader interface {
	LoadIndex(ctx context.Context) (*models.CatalogIndex, error)
	LoadPart(ctx context.Context, groupID string, part int) ([]models.Item, error)
	ClearAllCache() error
	CacheStats() models.CacheStats
}

// Sink accepts a prepared content bundle for publication. Publish must only
// return nil once the bundle has been durably accepted.
type Sink interface {
	Publish(ctx context.Context, bundle *models.PreviewBundle) error
}

// Service holds the catalog state: the loaded index, the pagination cursor for
// the active group, the item accumulator, the views derived from it, and the
// publish staging area. It is safe for concurrent use; fetches run outside the
// lock and a per-selection generation guards against a late-arriving part from
// a previously selected group landing in the wrong accumulator.
type Service struct {
	loader Loader
	sink   Sink

	mu sync.Mutex

	// Index state.
	indexLoaded  bool
	indexVersion int
	groups       []models.Group
	loadingIndex bool

	// Pagination cursor. items only ever holds parts 0..currentPart of
	// activeGroupID; switching groups clears it.
	activeGroupID string
	currentPart   int
	totalParts    int
	items         []models.Item
	loadingPart   bool
	generation    uint64

	// Views derived from items, replaced wholesale after every mutation.
	movies []models.Item
	series []*models.EnrichedSeries

	// Publish staging.
	preview *models.PreviewBundle
}

// New creates a catalog service. The sink may be nil when publishing is not
// wired; the loader must not be.
func New(loader Loader, sink Sink) *Service {
	return &Service{loader: loader, sink: sink}
}

// LoadIndex fetches the catalog index and replaces the group list. A failed
// load leaves prior state untouched. Overlapping calls are rejected with
// ErrIndexLoadInProgress rather than stacked.
func (s *Service) LoadIndex(ctx context.Context) error {
	s.mu.Lock()
	if s.loader == nil {
		s.mu.Unlock()
		return ErrNotConfigured
	}
	if s.loadingIndex {
		s.mu.Unlock()
		return ErrIndexLoadInProgress
	}
	s.loadingIndex = true
	s.mu.Unlock()

	index, err := s.loader.LoadIndex(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingIndex = false
	if err != nil {
		log.Printf("[catalog] index load failed: %v", err)
		return fmt.Errorf("load index: %w", err)
	}

	s.groups = index.Groups
	s.indexVersion = index.Version
	s.indexLoaded = true
	log.Printf("[catalog] index v%d loaded: %d groups", index.Version, len(index.Groups))
	return nil
}

// ReloadIndex clears the loader's cache, reloads the index, and — if a group
// was active — deselects and reselects it so its pagination state is rebuilt
// against fresh parts. The reselect runs strictly after the reload completes.
func (s *Service) ReloadIndex(ctx context.Context) error {
	s.mu.Lock()
	if s.loader == nil {
		s.mu.Unlock()
		return ErrNotConfigured
	}
	active := s.activeGroupID
	s.mu.Unlock()

	if err := s.loader.ClearAllCache(); err != nil {
		log.Printf("[catalog] warning: cache clear before reload failed: %v", err)
	}
	if err := s.LoadIndex(ctx); err != nil {
		return err
	}
	if active == "" {
		return nil
	}

	s.mu.Lock()
	s.resetPaginationLocked()
	s.mu.Unlock()
	return s.SelectGroup(ctx, active)
}

// resetPaginationLocked clears the cursor, accumulator, and derived views, and
// bumps the generation so in-flight fetches for the old selection are dropped
// when they complete.
func (s *Service) resetPaginationLocked() {
	s.activeGroupID = ""
	s.currentPart = 0
	s.totalParts = 0
	s.items = nil
	s.loadingPart = false
	s.generation++
	s.rederiveLocked()
}

func (s *Service) rederiveLocked() {
	s.movies, s.series = deriveViews(s.items)
}

// SelectGroup makes groupID the active group and loads its first part,
// replacing the accumulator with that part's items. Reselecting the already
// active group is a no-op. On fetch failure the group stays selected with an
// empty accumulator; there is no automatic retry.
func (s *Service) SelectGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	if s.loader == nil {
		s.mu.Unlock()
		return ErrNotConfigured
	}
	if groupID != "" && groupID == s.activeGroupID {
		s.mu.Unlock()
		return nil
	}

	total := 0
	for _, g := range s.groups {
		if g.ID == groupID {
			total = g.PartCount
			break
		}
	}

	s.activeGroupID = groupID
	s.currentPart = 0
	s.totalParts = total
	s.items = nil
	s.rederiveLocked()
	s.generation++
	gen := s.generation
	s.loadingPart = true
	s.mu.Unlock()

	items, err := s.loader.LoadPart(ctx, groupID, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.activeGroupID != groupID {
		log.Printf("[catalog] discarding stale part 0 of %q (selection changed mid-fetch)", groupID)
		return nil
	}
	s.loadingPart = false
	if err != nil {
		log.Printf("[catalog] part 0 of %q failed: %v", groupID, err)
		return fmt.Errorf("select group %q: %w", groupID, err)
	}

	s.items = items
	s.rederiveLocked()
	return nil
}

// LoadNextPart fetches the next part of the active group and appends its items
// to the accumulator. It is a silent no-op when no group is active, a part
// fetch is already in flight, or the group is exhausted. On failure the cursor
// does not advance, so calling again retries the same part.
func (s *Service) LoadNextPart(ctx context.Context) error {
	s.mu.Lock()
	if s.loader == nil {
		s.mu.Unlock()
		return ErrNotConfigured
	}
	if s.activeGroupID == "" || s.loadingPart || s.currentPart+1 >= s.totalParts {
		s.mu.Unlock()
		return nil
	}

	groupID := s.activeGroupID
	next := s.currentPart + 1
	gen := s.generation
	s.loadingPart = true
	s.mu.Unlock()

	items, err := s.loader.LoadPart(ctx, groupID, next)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.activeGroupID != groupID {
		log.Printf("[catalog] discarding stale part %d of %q (selection changed mid-fetch)", next, groupID)
		return nil
	}
	s.loadingPart = false
	if err != nil {
		log.Printf("[catalog] part %d of %q failed: %v", next, groupID, err)
		return fmt.Errorf("load part %d of %q: %w", next, groupID, err)
	}

	s.items = append(s.items, items...)
	s.currentPart = next
	s.rederiveLocked()
	return nil
}

// EnrichSeries looks a series up in the currently derived series view by exact
// name, by normalized key, or — failing both — by ASCII-folded case-insensitive
// name. It returns nil when the series has not yet paginated into view; it
// never fetches.
func (s *Service) EnrichSeries(name string) *models.EnrichedSeries {
	if name == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, es := range s.series {
		if es.SeriesName == name || es.NormalizedKey == name {
			return es
		}
	}
	folded := utils.FoldTitle(name)
	for _, es := range s.series {
		if utils.FoldTitle(es.SeriesName) == folded {
			return es
		}
	}
	return nil
}

// SetPreviewContent replaces the staged preview bundle wholesale. Passing nil
// discards the current staging.
func (s *Service) SetPreviewContent(bundle *models.PreviewBundle) {
	s.mu.Lock()
	s.preview = bundle
	s.mu.Unlock()
}

// HasUnpublished reports whether a preview bundle is currently staged.
func (s *Service) HasUnpublished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview != nil
}

// PublishContent hands the staged bundle to the sink. Staging is cleared and
// the index reloaded only after the sink confirms success; on failure the
// bundle stays staged so the publish can be retried.
func (s *Service) PublishContent(ctx context.Context) error {
	s.mu.Lock()
	if s.loader == nil {
		s.mu.Unlock()
		return ErrNotConfigured
	}
	if s.preview == nil {
		s.mu.Unlock()
		return ErrNothingStaged
	}
	if s.sink == nil {
		s.mu.Unlock()
		return ErrNoSink
	}
	bundle := s.preview
	s.mu.Unlock()

	if err := s.sink.Publish(ctx, bundle); err != nil {
		log.Printf("[catalog] publish failed, staging kept: %v", err)
		return fmt.Errorf("publish content: %w", err)
	}

	s.mu.Lock()
	s.preview = nil
	s.mu.Unlock()
	log.Printf("[catalog] publish confirmed: %d movies, %d series", len(bundle.Movies), len(bundle.Series))

	return s.ReloadIndex(ctx)
}

// HasMoreParts reports whether the active group has unloaded parts left.
func (s *Service) HasMoreParts() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMorePartsLocked()
}

func (s *Service) hasMorePartsLocked() bool {
	return s.activeGroupID != "" && s.currentPart < s.totalParts-1
}

// IsLoading reports whether an index or part fetch is in flight.
func (s *Service) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingIndex || s.loadingPart
}

// Stats proxies the loader's cache statistics.
func (s *Service) Stats() models.CacheStats {
	if s.loader == nil {
		return models.CacheStats{}
	}
	return s.loader.CacheStats()
}

// Snapshot is a consistent read of everything the catalog exposes.
type Snapshot struct {
	IndexLoaded  bool           `json:"indexLoaded"`
	IndexVersion int            `json:"indexVersion"`
	Groups       []models.Group `json:"groups"`

	CurrentGroup string        `json:"currentGroup,omitempty"`
	CurrentPart  int           `json:"currentPart"`
	TotalParts   int           `json:"totalParts"`
	Items        []models.Item `json:"items"`

	PublishedMovies []models.Item            `json:"publishedMovies"`
	PublishedSeries []*models.EnrichedSeries `json:"publishedSeries"`

	LoadingIndex bool `json:"loadingIndex"`
	LoadingPart  bool `json:"loadingPart"`
	IsLoading    bool `json:"isLoading"`
	HasMoreParts bool `json:"hasMoreParts"`

	PreviewContent *models.PreviewBundle `json:"previewContent,omitempty"`
	HasUnpublished bool                  `json:"hasUnpublished"`
}

// Snapshot returns a copy of the current catalog state. Slices are copied;
// derived series are rebuilt wholesale on every mutation and never mutated
// afterwards, so sharing their pointers is safe.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		IndexLoaded:     s.indexLoaded,
		IndexVersion:    s.indexVersion,
		Groups:          append([]models.Group(nil), s.groups...),
		CurrentGroup:    s.activeGroupID,
		CurrentPart:     s.currentPart,
		TotalParts:      s.totalParts,
		Items:           append([]models.Item(nil), s.items...),
		PublishedMovies: append([]models.Item(nil), s.movies...),
		PublishedSeries: append([]*models.EnrichedSeries(nil), s.series...),
		LoadingIndex:    s.loadingIndex,
		LoadingPart:     s.loadingPart,
		IsLoading:       s.loadingIndex || s.loadingPart,
		HasMoreParts:    s.hasMorePartsLocked(),
		PreviewContent:  s.preview,
		HasUnpublished:  s.preview != nil,
	}
	return snap
}
