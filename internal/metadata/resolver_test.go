package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BDSE37/Podwise-sub002/internal/model"
)

type fakeStore struct {
	episodes map[int64][]model.Episode
	podcasts map[int64]model.Podcast
	err      error
}

func (f *fakeStore) EpisodesByPodcast(ctx context.Context, podcastID int64) ([]model.Episode, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.episodes[podcastID], nil
}

func (f *fakeStore) Podcast(ctx context.Context, podcastID int64) (model.Podcast, bool, error) {
	p, ok := f.podcasts[podcastID]
	return p, ok, nil
}

func newFixtureStore() *fakeStore {
	return &fakeStore{
		episodes: map[int64][]model.Episode{
			7: {
				{EpisodeID: 101, PodcastID: 7, EpisodeTitle: "EP123 台灣半導體產業展望", Duration: "00:45:00", PublishedDate: "2024-01-01"},
				{EpisodeID: 102, PodcastID: 7, EpisodeTitle: "創業者的時間管理術", Duration: "00:30:00", PublishedDate: "2024-02-01"},
			},
		},
		podcasts: map[int64]model.Podcast{
			7: {PodcastID: 7, PodcastName: "商業洞察", Author: "某某", Category: "商業", AppleRating: 4},
		},
	}
}

func TestResolveExactTitleMatch(t *testing.T) {
	r := New(newFixtureStore(), nil)
	b, err := r.Resolve(context.Background(), 7, "創業者的時間管理術")
	require.NoError(t, err)
	assert.Equal(t, int64(102), b.EpisodeID)
	assert.Equal(t, "商業洞察", b.PodcastName)
}

func TestResolveEpisodeNumberMatch(t *testing.T) {
	r := New(newFixtureStore(), nil)
	b, err := r.Resolve(context.Background(), 7, "EP123")
	require.NoError(t, err)
	assert.Equal(t, int64(101), b.EpisodeID)
}

func TestResolveFuzzyTitleMatch(t *testing.T) {
	r := New(newFixtureStore(), nil)
	// Close variant of the stored title with punctuation/whitespace noise.
	b, err := r.Resolve(context.Background(), 7, "創業者 的 時間管理術！")
	require.NoError(t, err)
	assert.Equal(t, int64(102), b.EpisodeID)
}

func TestResolveNoMatchFallsBackToPodcastLevel(t *testing.T) {
	r := New(newFixtureStore(), nil)
	b, err := r.Resolve(context.Background(), 7, "完全不相關的標題 xyz")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.EpisodeID)
	assert.Equal(t, "商業洞察", b.PodcastName)
	assert.NotEmpty(t, b.Duration)
	assert.NotEmpty(t, b.PublishedDate)
}

func TestResolveUnknownPodcastReturnsSentinels(t *testing.T) {
	r := New(newFixtureStore(), nil)
	b, err := r.Resolve(context.Background(), 999, "anything")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.EpisodeID)
	assert.Equal(t, model.UnknownSentinel, b.PodcastName)
	assert.Equal(t, model.UnknownSentinel, b.Author)
}

func TestResolveStoreErrorFallsBackGracefully(t *testing.T) {
	store := newFixtureStore()
	store.err = assertErr{"connection refused"}
	r := New(store, nil)

	b, err := r.Resolve(context.Background(), 7, "EP123")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.EpisodeID)
	assert.Equal(t, "商業洞察", b.PodcastName)
}

func TestSafeCastTruncatesWithEllipsis(t *testing.T) {
	long := "一二三四五六七八九十"
	got := safeCast(long, model.UnknownSentinel, 5)
	assert.Equal(t, []rune(got)[len([]rune(got))-3:], []rune("..."))
	assert.LessOrEqual(t, len([]rune(got)), 5)
}

func TestSafeCastUsesFallbackOnEmpty(t *testing.T) {
	assert.Equal(t, model.UnknownSentinel, safeCast("", model.UnknownSentinel, 10))
	assert.Equal(t, model.UnknownSentinel, safeCast("   ", model.UnknownSentinel, 10))
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
