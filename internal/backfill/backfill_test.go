package backfill

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franklinacm/synapse/internal/ingest"
	"github.com/franklinacm/synapse/internal/rules"
	"github.com/franklinacm/synapse/internal/source"
	"github.com/franklinacm/synapse/internal/store"
)

var t0 = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

// fakeHistory serves messages per channel, oldest first.
type fakeHistory struct {
	channels []source.Channel
	messages map[int64][]source.Message
	failOn   map[int64]error
	calls    int
	onFetch  func()
}

func (f *fakeHistory) TextChannels(context.Context) ([]source.Channel, error) {
	return f.channels, nil
}

func (f *fakeHistory) MessagesAfter(_ context.Context, ch source.Channel, afterID int64, limit int) ([]source.Message, error) {
	f.calls++
	if f.onFetch != nil {
		f.onFetch()
	}
	if err := f.failOn[ch.ID]; err != nil {
		return nil, err
	}
	var page []source.Message
	for _, m := range f.messages[ch.ID] {
		if m.ID > afterID && len(page) < limit {
			page = append(page, m)
		}
	}
	return page, nil
}

func (f *fakeHistory) add(ch source.Channel, n int, firstID int64) {
	if f.messages == nil {
		f.messages = map[int64][]source.Message{}
	}
	f.channels = append(f.channels, ch)
	for i := 0; i < n; i++ {
		f.messages[ch.ID] = append(f.messages[ch.ID], source.Message{
			ID:        firstID + int64(i),
			Author:    source.Member{User: source.User{ID: 1001, Name: "ada"}},
			Channel:   ch,
			Content:   "hello",
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		})
	}
}

type recordingPublisher struct {
	mu    sync.Mutex
	paths []rules.Path
}

func (p *recordingPublisher) Publish(rc *rules.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, rc.Path)
	return true
}

func setup(t *testing.T) (*store.Store, *ingest.Ingester, *recordingPublisher) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "backfill.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	pub := &recordingPublisher{}
	return s, ingest.New(s, pub), pub
}

var (
	general  = source.Channel{ID: 500, Name: "general", Type: source.ChannelText}
	showcase = source.Channel{ID: 501, Name: "showcase", Type: source.ChannelText}
)

func TestScanner_PagesAndCheckpoints(t *testing.T) {
	s, in, pub := setup(t)
	ctx := context.Background()
	h := &fakeHistory{}
	h.add(general, 5, 1000)
	h.add(showcase, 2, 2000)

	rep, err := New(h, in, s, WithPageSize(2)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Channels)
	assert.Equal(t, 7, rep.Created)
	assert.Equal(t, 4, rep.Pages) // 2+2+1 for general, 2 for showcase; empty pages are not counted

	cp, err := s.BackfillCheckpoint(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(1004), cp)

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.MessagesBackfilled)

	require.Len(t, pub.paths, 7)
	for _, p := range pub.paths {
		assert.Equal(t, rules.PathHistoric, p)
	}
}

func TestScanner_ResumesFromCheckpoint(t *testing.T) {
	s, in, pub := setup(t)
	ctx := context.Background()
	h := &fakeHistory{}
	h.add(general, 3, 1000)

	_, err := New(h, in, s).Run(ctx)
	require.NoError(t, err)

	h.messages[general.ID] = append(h.messages[general.ID], source.Message{
		ID:        1003,
		Author:    source.Member{User: source.User{ID: 1001, Name: "ada"}},
		Channel:   general,
		Content:   "new since last scan",
		CreatedAt: t0.Add(time.Hour),
	})
	rep, err := New(h, in, s).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 0, rep.Updated)
	assert.Len(t, pub.paths, 4)
}

func TestScanner_ChannelFailureDoesNotStopScan(t *testing.T) {
	s, in, _ := setup(t)
	h := &fakeHistory{failOn: map[int64]error{500: errors.New("missing access")}}
	h.add(general, 3, 1000)
	h.add(showcase, 3, 2000)

	rep, err := New(h, in, s).Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "missing access")
	assert.Equal(t, 1, rep.Channels)
	assert.Equal(t, 3, rep.Created)
}

func TestScanner_LiveMessageAlreadyStoredIsNotRepublished(t *testing.T) {
	s, in, pub := setup(t)
	ctx := context.Background()
	h := &fakeHistory{}
	h.add(general, 2, 1000)

	require.NoError(t, in.Ingest(ctx, source.MessageCreated{Message: h.messages[general.ID][0]}))

	rep, err := New(h, in, s).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 1, rep.Updated)

	paths := append([]rules.Path(nil), pub.paths...)
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	assert.Equal(t, []rules.Path{rules.PathHistoric, rules.PathLive}, paths)
}

func TestScanner_CancelMidFetchStillWritesPage(t *testing.T) {
	s, in, pub := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &fakeHistory{onFetch: cancel}
	h.add(general, 4, 1000)

	rep, err := New(h, in, s, WithPageSize(2)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, rep.Pages)
	assert.Equal(t, 2, rep.Created)
	assert.Zero(t, rep.Failed)
	assert.Equal(t, 1, h.calls)

	cp, err := s.BackfillCheckpoint(context.Background(), general.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), cp)

	stats, err := s.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.MessagesBackfilled)
	assert.Len(t, pub.paths, 2)
}
