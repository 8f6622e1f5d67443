package mediator_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/votqanh/go-wikimediator/apierror"
	"github.com/votqanh/go-wikimediator/internal/test"
	"github.com/votqanh/go-wikimediator/mediator"
	"github.com/votqanh/go-wikimediator/metrics"
	"github.com/votqanh/go-wikimediator/pathfind"
)

func newMediator(t *testing.T, g *test.Graph, opts ...mediator.Option) *mediator.Mediator {
	t.Cleanup(g.Close)
	m, err := mediator.New(g, opts...)
	require.NoError(t, err)
	return m
}

func TestInvalidOptions(t *testing.T) {
	_, err := mediator.New(test.NewGraph(), mediator.WithCapacity(0))
	require.ErrorIs(t, err, mediator.ErrInvalidArgument)
	_, err = mediator.New(test.NewGraph(), mediator.WithTTL(-time.Second))
	require.ErrorIs(t, err, mediator.ErrInvalidArgument)
	_, err = mediator.New(nil)
	require.Error(t, err)
}

func TestSearch(t *testing.T) {
	g := test.NewGraph()
	g.SetText("Cat", "meow")
	g.SetText("Catfish", "blub")
	g.SetText("Dog", "woof")
	m := newMediator(t, g)

	titles, err := m.Search(context.Background(), "cat", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"Cat", "Catfish"}, titles)

	titles, err = m.Search(context.Background(), "cat", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"Cat"}, titles)
}

func TestGetPageCaches(t *testing.T) {
	g := test.NewGraph()
	g.SetText("Cat", "meow")
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	m := newMediator(t, g, mediator.WithMetrics(met))

	for i := 0; i < 3; i++ {
		text, err := m.GetPage(context.Background(), "Cat")
		require.NoError(t, err)
		require.Equal(t, "meow", text)
	}
	require.Equal(t, 1, g.TextCalls())
	require.Equal(t, 2.0, testutil.ToFloat64(met.CacheHits))
	require.Equal(t, 1.0, testutil.ToFloat64(met.CacheMisses))
	require.Equal(t, 3.0, testutil.ToFloat64(met.RequestsTotal.WithLabelValues(mediator.OpGetPage, "success")))
}

func TestGetPageMissingNotCached(t *testing.T) {
	g := test.NewGraph()
	m := newMediator(t, g)

	for i := 0; i < 2; i++ {
		text, err := m.GetPage(context.Background(), "Nowhere")
		require.NoError(t, err)
		require.Empty(t, text)
	}
	require.Equal(t, 2, g.TextCalls())
}

func TestGetPageExpires(t *testing.T) {
	g := test.NewGraph()
	g.SetText("Cat", "meow")
	clk := clock.NewMock()
	m := newMediator(t, g, mediator.WithClock(clk), mediator.WithTTL(time.Minute))

	_, err := m.GetPage(context.Background(), "Cat")
	require.NoError(t, err)
	clk.Add(30 * time.Second)
	_, err = m.GetPage(context.Background(), "Cat")
	require.NoError(t, err)
	require.Equal(t, 1, g.TextCalls())

	// The read above renewed the entry.
	clk.Add(50 * time.Second)
	_, err = m.GetPage(context.Background(), "Cat")
	require.NoError(t, err)
	require.Equal(t, 1, g.TextCalls())

	clk.Add(2 * time.Minute)
	text, err := m.GetPage(context.Background(), "Cat")
	require.NoError(t, err)
	require.Equal(t, "meow", text)
	require.Equal(t, 2, g.TextCalls())
}

func TestGetPageSharesFetch(t *testing.T) {
	g := test.NewGraph()
	g.SetText("Cat", "meow")
	g.SetDelay(100 * time.Millisecond)
	m := newMediator(t, g)

	gate := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			text, err := m.GetPage(context.Background(), "Cat")
			if err != nil || text != "meow" {
				t.Errorf("unexpected result %q, %v", text, err)
			}
		}()
	}
	close(gate)
	wg.Wait()
	require.Equal(t, 1, g.TextCalls())
}

func TestGetPageSharedFetchOutlivesCaller(t *testing.T) {
	g := test.NewGraph()
	g.SetText("Cat", "meow")
	g.SetDelay(200 * time.Millisecond)
	m := newMediator(t, g)

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	shortErr := make(chan error, 1)
	go func() {
		_, err := m.GetPage(short, "Cat")
		shortErr <- err
	}()
	// Let the short caller start the fetch.
	time.Sleep(10 * time.Millisecond)

	text, err := m.GetPage(context.Background(), "Cat")
	require.NoError(t, err)
	require.Equal(t, "meow", text)
	require.ErrorIs(t, <-shortErr, context.DeadlineExceeded)
	require.Equal(t, 1, g.TextCalls())

	// The fetch finished after the short caller left and was still cached.
	text, err = m.GetPage(context.Background(), "Cat")
	require.NoError(t, err)
	require.Equal(t, "meow", text)
	require.Equal(t, 1, g.TextCalls())
}

func TestGetPageFetchTimeout(t *testing.T) {
	g := test.NewGraph()
	g.SetText("Cat", "meow")
	g.SetDelay(time.Second)
	m := newMediator(t, g, mediator.WithFetchTimeout(20*time.Millisecond))

	_, err := m.GetPage(context.Background(), "Cat")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = mediator.New(test.NewGraph(), mediator.WithFetchTimeout(0))
	require.ErrorIs(t, err, mediator.ErrInvalidArgument)
}

func TestGetPageError(t *testing.T) {
	g := test.NewGraph()
	g.SetDelay(time.Second)
	m := newMediator(t, g)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.GetPage(ctx, "Cat")
	require.ErrorIs(t, err, context.Canceled)
}

func TestZeitgeist(t *testing.T) {
	g := test.NewGraph()
	g.SetText("cat", "meow")
	m := newMediator(t, g)
	ctx := context.Background()

	keys, err := m.Zeitgeist(5)
	require.NoError(t, err)
	require.Empty(t, keys)

	for _, q := range []string{"dog", "fish", "dog", "fish", "dog"} {
		_, err = m.Search(ctx, q, 3)
		require.NoError(t, err)
	}
	_, err = m.GetPage(ctx, "cat")
	require.NoError(t, err)

	keys, err = m.Zeitgeist(5)
	require.NoError(t, err)
	require.Equal(t, []string{"dog", "fish", "cat"}, keys)
}

func TestTrending(t *testing.T) {
	g := test.NewGraph()
	clk := clock.NewMock()
	m := newMediator(t, g, mediator.WithClock(clk))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.Search(ctx, "old", 1)
		require.NoError(t, err)
	}
	clk.Add(time.Minute)
	_, err := m.Search(ctx, "new", 1)
	require.NoError(t, err)
	_, err = m.GetPage(ctx, "newer")
	require.NoError(t, err)
	_, err = m.GetPage(ctx, "newer")
	require.NoError(t, err)
	clk.Add(10 * time.Second)

	keys, err := m.Trending(30*time.Second, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"newer", "new"}, keys)

	keys, err = m.Trending(2*time.Minute, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"old", "newer"}, keys)

	keys, err = m.Trending(0, 5)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestPeakLoadCountsItself(t *testing.T) {
	clk := clock.NewMock()
	m := newMediator(t, test.NewGraph(), mediator.WithClock(clk))

	require.Equal(t, 1, m.PeakLoad())
	require.Equal(t, 2, m.PeakLoad())

	clk.Add(40 * time.Second)
	peak, err := m.WindowedPeakLoad(30 * time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, peak)

	peak, err = m.WindowedPeakLoad(time.Minute)
	require.NoError(t, err)
	require.Equal(t, 4, peak)
}

func TestInvalidArguments(t *testing.T) {
	m := newMediator(t, test.NewGraph())
	ctx := context.Background()

	checkInvalid := func(err error) {
		t.Helper()
		require.ErrorIs(t, err, mediator.ErrInvalidArgument)
		require.Equal(t, http.StatusBadRequest, apierror.StatusOf(err))
	}

	_, err := m.Search(ctx, "x", 0)
	checkInvalid(err)
	_, err = m.Zeitgeist(0)
	checkInvalid(err)
	_, err = m.Trending(-time.Second, 3)
	checkInvalid(err)
	_, err = m.Trending(time.Second, 0)
	checkInvalid(err)
	_, err = m.WindowedPeakLoad(0)
	checkInvalid(err)
	_, err = m.ShortestPath(ctx, "a", "b", 0)
	checkInvalid(err)

	// Rejected calls still count as load, and the search still counts as a
	// request for its query.
	require.Equal(t, 7, m.PeakLoad())
	keys, err := m.Zeitgeist(1)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, keys)
}

func TestShortestPath(t *testing.T) {
	g := test.NewGraph()
	g.Link("a", "c", "b")
	g.Link("b", "d")
	g.Link("c", "d")
	g.Link("d", "z")
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	m := newMediator(t, g, mediator.WithMetrics(met))

	path, err := m.ShortestPath(context.Background(), "a", "z", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "d", "z"}, path)

	path, err = m.ShortestPath(context.Background(), "a", "a", time.Second)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, path)
	require.Equal(t, 2.0, testutil.ToFloat64(met.PathSearchesTotal.WithLabelValues("found")))
}

func TestShortestPathTimeout(t *testing.T) {
	g := test.NewGraph()
	g.Link("a", "b")
	g.Hang("b")
	m := newMediator(t, g, mediator.WithFinderOptions(pathfind.WithReverse(nil)))

	start := time.Now()
	_, err := m.ShortestPath(context.Background(), "a", "z", 50*time.Millisecond)
	require.ErrorIs(t, err, pathfind.ErrTimeout)
	require.Equal(t, http.StatusGatewayTimeout, apierror.StatusOf(err))
	require.Less(t, time.Since(start), time.Second)
}

func TestShortestPathSourceError(t *testing.T) {
	errBoom := errors.New("boom")
	g := test.NewGraph()
	g.Fail("a", errBoom)
	m := newMediator(t, g)

	_, err := m.ShortestPath(context.Background(), "a", "z", time.Second)
	require.ErrorIs(t, err, errBoom)
}

func TestStateRoundTrip(t *testing.T) {
	g := test.NewGraph()
	g.SetText("Cat", "meow")
	g.SetText("Dog", "woof")
	clk := clock.NewMock()
	m := newMediator(t, g, mediator.WithClock(clk), mediator.WithCapacity(8), mediator.WithTTL(time.Hour))
	ctx := context.Background()

	_, err := m.GetPage(ctx, "Cat")
	require.NoError(t, err)
	_, err = m.GetPage(ctx, "Dog")
	require.NoError(t, err)
	_, err = m.GetPage(ctx, "Dog")
	require.NoError(t, err)

	st := m.State()
	require.Equal(t, 8, st.Capacity)
	require.Equal(t, time.Hour, st.TTL)
	require.Len(t, st.Entries, 2)
	require.Len(t, st.Requests, 2)
	require.Len(t, st.Load, 3)

	g2 := test.NewGraph()
	m2 := newMediator(t, g2, mediator.WithClock(clk))
	require.NoError(t, m2.LoadState(st))

	text, err := m2.GetPage(ctx, "Dog")
	require.NoError(t, err)
	require.Equal(t, "woof", text)
	require.Zero(t, g2.TextCalls())

	keys, err := m2.Zeitgeist(5)
	require.NoError(t, err)
	require.Equal(t, []string{"Dog", "Cat"}, keys)
	require.Equal(t, 6, m2.PeakLoad())
	require.Equal(t, 8, m2.State().Capacity)
}
