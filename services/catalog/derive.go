package catalog

import (
	"net/url"
	"regexp"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"mediavault/models"
)

// seasonPattern extracts the season number from titles following the
// "Show Name S02E05" convention. Titles without it collapse into season 1,
// which may be semantically wrong for sources that never tag seasons; the item
// data carries no explicit season field to do better with.
var seasonPattern = regexp.MustCompile(`(?i)S(\d+)E(\d+)`)

// deriveViews projects the accumulator into the two display views: standalone
// playable items in accumulator order, and series grouped by name and season.
// It is pure and rebuilds both views from scratch; the accumulator is bounded
// by the parts loaded so far, so no incremental diffing is needed.
func deriveViews(items []models.Item) ([]models.Item, []*models.EnrichedSeries) {
	movies := make([]models.Item, 0, len(items))
	var series []*models.EnrichedSeries
	byName := make(map[string]*models.EnrichedSeries)

	for _, item := range items {
		if !item.IsEpisode() {
			movies = append(movies, item)
			continue
		}

		name := norm.NFC.String(item.SeriesName)
		es, ok := byName[name]
		if !ok {
			es = &models.EnrichedSeries{
				SeriesName:    name,
				NormalizedKey: url.PathEscape(name),
				// No separate backdrop source exists; both start from
				// the first episode's image.
				PosterURL:   item.ImageURL,
				BackdropURL: item.ImageURL,
				Seasons:     make(map[int][]models.Item),
			}
			byName[name] = es
			series = append(series, es)
		}

		es.Episodes = append(es.Episodes, item)
		es.EpisodeCount++

		season := parseSeason(item.Title)
		es.Seasons[season] = append(es.Seasons[season], item)
		es.SeasonCount = len(es.Seasons)
	}

	return movies, series
}

// parseSeason returns the season number encoded in the title, defaulting to 1
// when the title does not follow the SxxExx convention.
func parseSeason(title string) int {
	m := seasonPattern.FindStringSubmatch(title)
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 1
	}
	return n
}
