// Package metadata implements the Metadata Resolver: joins a chunk to
// its episode/podcast attribute bundle via a read-only relational
// store, with exact, episode-number, and fuzzy matching fallbacks.
package metadata

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/errs"
	"github.com/BDSE37/Podwise-sub002/internal/model"
)

// Bundle is the resolved episode/podcast attribute set attached to
// every chunk. EpisodeID is 0 when no row could be resolved — the
// fallback case from §4.D and the metadata-downtime open question.
type Bundle struct {
	EpisodeID     int64
	PodcastID     int64
	PodcastName   string
	EpisodeTitle  string
	Author        string
	Category      string
	Duration      string
	PublishedDate string
	AppleRating   int
}

// Store is the narrow read-only relational access the resolver needs.
// Implemented by *PgxStore against the real store; tests supply an
// in-memory fake.
type Store interface {
	EpisodesByPodcast(ctx context.Context, podcastID int64) ([]model.Episode, error)
	Podcast(ctx context.Context, podcastID int64) (model.Podcast, bool, error)
}

// Resolver implements the §4.D matching cascade.
type Resolver struct {
	store  Store
	logger *logrus.Logger
}

// New creates a Resolver.
func New(store Store, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Resolver{store: store, logger: logger}
}

var episodeNumberPattern = regexp.MustCompile(`(?i)\bEP\s*0*([0-9]+)\b`)

// Resolve implements the three-step matching cascade from §4.D,
// falling back to a podcast-level aggregate with EpisodeID=0 when no
// episode row matches or the store is unreachable.
func (r *Resolver) Resolve(ctx context.Context, podcastID int64, episodeTitleHint string) (Bundle, error) {
	episodes, err := r.store.EpisodesByPodcast(ctx, podcastID)
	if err != nil {
		r.logger.WithError(err).Warn("metadata store unreachable, falling back to podcast-level aggregate")
		return r.podcastFallback(ctx, podcastID)
	}

	if ep, ok := matchExactTitle(episodes, episodeTitleHint); ok {
		return r.bundleFor(ctx, podcastID, ep)
	}
	if ep, ok := matchEpisodeNumber(episodes, episodeTitleHint); ok {
		return r.bundleFor(ctx, podcastID, ep)
	}
	if ep, ok := matchFuzzyTitle(episodes, episodeTitleHint); ok {
		return r.bundleFor(ctx, podcastID, ep)
	}

	return r.podcastFallback(ctx, podcastID)
}

func matchExactTitle(episodes []model.Episode, hint string) (model.Episode, bool) {
	for _, ep := range episodes {
		if ep.EpisodeTitle == hint {
			return ep, true
		}
	}
	return model.Episode{}, false
}

func matchEpisodeNumber(episodes []model.Episode, hint string) (model.Episode, bool) {
	m := episodeNumberPattern.FindStringSubmatch(hint)
	if m == nil {
		return model.Episode{}, false
	}
	for _, ep := range episodes {
		if episodeNumberPattern.FindStringSubmatch(ep.EpisodeTitle) != nil {
			epMatch := episodeNumberPattern.FindStringSubmatch(ep.EpisodeTitle)
			if epMatch[1] == m[1] {
				return ep, true
			}
		}
	}
	return model.Episode{}, false
}

// matchFuzzyTitle considers candidates whose normalized-title Jaccard
// character-set overlap with hint is ≥ 0.3 and returns the best one:
// candidates with both duration and published_date populated come
// first, then the highest overlap; exact ties keep row order.
func matchFuzzyTitle(episodes []model.Episode, hint string) (model.Episode, bool) {
	normHint := normalizeTitle(hint)
	if normHint == "" {
		return model.Episode{}, false
	}
	hintSet := charSet(normHint)

	type candidate struct {
		ep    model.Episode
		score float64
	}
	var candidates []candidate
	for _, ep := range episodes {
		score := jaccard(hintSet, charSet(normalizeTitle(ep.EpisodeTitle)))
		if score >= 0.3 {
			candidates = append(candidates, candidate{ep: ep, score: score})
		}
	}
	if len(candidates) == 0 {
		return model.Episode{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		iComplete := ci.ep.Duration != "" && ci.ep.PublishedDate != ""
		jComplete := cj.ep.Duration != "" && cj.ep.PublishedDate != ""
		if iComplete != jComplete {
			return iComplete
		}
		return ci.score > cj.score
	})
	return candidates[0].ep, true
}

func normalizeTitle(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func charSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

func jaccard(a, b map[rune]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for r := range a {
		if _, ok := b[r]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func (r *Resolver) bundleFor(ctx context.Context, podcastID int64, ep model.Episode) (Bundle, error) {
	podcast, ok, err := r.store.Podcast(ctx, podcastID)
	if err != nil || !ok {
		return r.podcastFallback(ctx, podcastID)
	}
	return Bundle{
		EpisodeID:     ep.EpisodeID,
		PodcastID:     podcastID,
		PodcastName:   safeCast(podcast.PodcastName, model.UnknownSentinel, model.MaxPodcastNameLen),
		EpisodeTitle:  safeCast(ep.EpisodeTitle, model.UnknownSentinel, model.MaxEpisodeTitleLen),
		Author:        safeCast(podcast.Author, model.UnknownSentinel, model.MaxAuthorLen),
		Category:      safeCast(podcast.Category, model.UnknownSentinel, model.MaxCategoryLen),
		Duration:      safeCast(ep.Duration, model.UnknownSentinel, model.MaxDurationLen),
		PublishedDate: safeCast(ep.PublishedDate, model.UnknownSentinel, model.MaxPublishedDateLen),
		AppleRating:   podcast.AppleRating,
	}, nil
}

// podcastFallback returns a podcast-level aggregate: podcast name,
// author, category, average duration (over episodes whose duration
// parses as HH:MM:SS), and earliest published_date,
// with EpisodeID=0 so downstream queries can distinguish resolved from
// unresolved rows (§9 open question).
func (r *Resolver) podcastFallback(ctx context.Context, podcastID int64) (Bundle, error) {
	podcast, ok, err := r.store.Podcast(ctx, podcastID)
	if err != nil {
		return Bundle{}, errs.Wrap(errs.ResourceError, "metadata.fallback", err, "podcast lookup failed")
	}
	if !ok {
		return Bundle{
			EpisodeID:     0,
			PodcastID:     podcastID,
			PodcastName:   model.UnknownSentinel,
			EpisodeTitle:  model.UnknownSentinel,
			Author:        model.UnknownSentinel,
			Category:      model.UnknownSentinel,
			Duration:      model.UnknownSentinel,
			PublishedDate: model.UnknownSentinel,
		}, nil
	}

	episodes, _ := r.store.EpisodesByPodcast(ctx, podcastID)
	avgDuration := averageDuration(episodes)
	earliest := earliestPublished(episodes)

	return Bundle{
		EpisodeID:     0,
		PodcastID:     podcastID,
		PodcastName:   safeCast(podcast.PodcastName, model.UnknownSentinel, model.MaxPodcastNameLen),
		EpisodeTitle:  model.UnknownSentinel,
		Author:        safeCast(podcast.Author, model.UnknownSentinel, model.MaxAuthorLen),
		Category:      safeCast(podcast.Category, model.UnknownSentinel, model.MaxCategoryLen),
		Duration:      avgDuration,
		PublishedDate: earliest,
		AppleRating:   podcast.AppleRating,
	}, nil
}

func averageDuration(episodes []model.Episode) string {
	var total time.Duration
	var count int
	for _, ep := range episodes {
		t, err := time.Parse("15:04:05", ep.Duration)
		if err != nil {
			continue
		}
		total += t.Sub(time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC))
		count++
	}
	if count == 0 {
		return model.UnknownSentinel
	}
	return time.Time{}.Add(total / time.Duration(count)).Format("15:04:05")
}

func earliestPublished(episodes []model.Episode) string {
	earliest := ""
	for _, ep := range episodes {
		if ep.PublishedDate == "" {
			continue
		}
		if earliest == "" || ep.PublishedDate < earliest {
			earliest = ep.PublishedDate
		}
	}
	if earliest == "" {
		return model.UnknownSentinel
	}
	return earliest
}

// safeCast coerces a possibly-empty value to a default and truncates
// with a "..." suffix per §3/§4.D: nulls become the sentinel; oversize
// values are truncated with the last three characters replaced.
func safeCast(value, fallback string, maxLen int) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	r := []rune(value)
	if len(r) <= maxLen {
		return value
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// PgxStore is the production Store backed by the two read-only
// relations described in §6: podcasts(podcast_id, podcast_name, author,
// category, apple_rating) and episodes(episode_id, podcast_id,
// episode_title, duration, published_date, languages,
// apple_episodes_ranking, created_at).
type PgxStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPgxStore wraps a pgx connection pool.
func NewPgxStore(pool *pgxpool.Pool, timeout time.Duration) *PgxStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PgxStore{pool: pool, timeout: timeout}
}

func (s *PgxStore) EpisodesByPodcast(ctx context.Context, podcastID int64) ([]model.Episode, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT episode_id, podcast_id, episode_title, duration, published_date,
		       languages, apple_episodes_ranking, created_at
		FROM episodes WHERE podcast_id = $1`, podcastID)
	if err != nil {
		return nil, errs.Wrap(errs.ResourceError, "metadata.episodes_by_podcast", err, "query episodes")
	}
	defer rows.Close()

	var episodes []model.Episode
	for rows.Next() {
		var ep model.Episode
		if err := rows.Scan(&ep.EpisodeID, &ep.PodcastID, &ep.EpisodeTitle, &ep.Duration,
			&ep.PublishedDate, &ep.Languages, &ep.AppleEpisodesRanking, &ep.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.DataError, "metadata.episodes_by_podcast", err, "scan episode row")
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// ListPodcastIDs returns every known podcast ID, used by the ingestion
// CLI to discover which RSS_<podcast_id> collections to process.
func (s *PgxStore) ListPodcastIDs(ctx context.Context) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT podcast_id FROM podcasts ORDER BY podcast_id`)
	if err != nil {
		return nil, errs.Wrap(errs.ResourceError, "metadata.list_podcast_ids", err, "query podcasts")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap(errs.DataError, "metadata.list_podcast_ids", err, "scan podcast id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PgxStore) Podcast(ctx context.Context, podcastID int64) (model.Podcast, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var p model.Podcast
	err := s.pool.QueryRow(ctx, `
		SELECT podcast_id, podcast_name, author, category, apple_rating
		FROM podcasts WHERE podcast_id = $1`, podcastID).
		Scan(&p.PodcastID, &p.PodcastName, &p.Author, &p.Category, &p.AppleRating)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return model.Podcast{}, false, nil
		}
		return model.Podcast{}, false, errs.Wrap(errs.ResourceError, "metadata.podcast", err, "query podcast")
	}
	return p, true, nil
}
