package models

// Group is a top-level catalog category (movies, a channel bundle, ...) that
// the remote source splits into fixed-size parts for incremental loading.
// Groups are immutable once loaded; the group list is replaced wholesale when
// the index is (re)loaded.
type Group struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	PartCount int    `json:"partCount"`
}

// CatalogIndex is the catalog metadata served by the remote loader.
type CatalogIndex struct {
	Version int     `json:"version"`
	Groups  []Group `json:"groups"`
}

// Item is a single catalog entry inside a part. An empty SeriesName marks a
// standalone playable item (a movie); a non-empty SeriesName marks an episode
// belonging to that series.
type Item struct {
	Title      string `json:"title"`
	ImageURL   string `json:"imageUrl"`
	SeriesName string `json:"seriesName,omitempty"`
}

// IsEpisode reports whether the item belongs to a series.
func (i Item) IsEpisode() bool {
	return i.SeriesName != ""
}

// EnrichedSeries is a derived aggregate grouping the loaded episodes of one
// series by season. It is rebuilt from scratch from the current accumulator on
// every change and never stored independently.
type EnrichedSeries struct {
	SeriesName    string         `json:"seriesName"`
	NormalizedKey string         `json:"normalizedKey"`
	PosterURL     string         `json:"posterUrl"`
	BackdropURL   string         `json:"backdropUrl"`
	SeasonCount   int            `json:"seasonCount"`
	EpisodeCount  int            `json:"episodeCount"`
	Episodes      []Item         `json:"episodes"`
	Seasons       map[int][]Item `json:"seasons"`
}

// PreviewSeries is a series-shaped record inside a staged preview bundle.
type PreviewSeries struct {
	SeriesName string `json:"seriesName"`
	PosterURL  string `json:"posterUrl,omitempty"`
	Episodes   []Item `json:"episodes"`
}

// PreviewBundle is an admin-prepared, not-yet-published content set. It exists
// only between "generate preview" and publish/discard and is never partially
// published.
type PreviewBundle struct {
	Movies []Item          `json:"movies"`
	Series []PreviewSeries `json:"series"`
}

// CacheStats describes the remote loader's local cache usage.
type CacheStats struct {
	EstimatedMemoryLabel string `json:"estimatedMemoryLabel"`
	Entries              int    `json:"entries"`
}
