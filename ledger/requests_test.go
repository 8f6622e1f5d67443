package ledger_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/votqanh/go-wikimediator/ledger"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return epoch.Add(time.Duration(sec) * time.Second)
}

func TestZeitgeistEmpty(t *testing.T) {
	l := ledger.NewRequestLedger()
	require.Empty(t, l.Zeitgeist(5))
	require.NotNil(t, l.Zeitgeist(5))
	require.Zero(t, l.Len())
}

func TestZeitgeistOrder(t *testing.T) {
	l := ledger.NewRequestLedger()
	for i, key := range []string{"cat", "dog", "fish", "dog", "fish", "dog"} {
		l.Record(key, at(i))
	}
	require.Equal(t, []string{"dog", "fish", "cat"}, l.Zeitgeist(5))
	require.Equal(t, []string{"dog", "fish"}, l.Zeitgeist(2))
	require.Empty(t, l.Zeitgeist(0))
	require.Empty(t, l.Zeitgeist(-1))
	require.Equal(t, 3, l.Len())
}

func TestZeitgeistTiesKeepFirstSeenOrder(t *testing.T) {
	l := ledger.NewRequestLedger()
	l.Record("b", at(0))
	l.Record("a", at(1))
	l.Record("c", at(2))
	l.Record("a", at(3))
	l.Record("b", at(4))
	require.Equal(t, []string{"b", "a", "c"}, l.Zeitgeist(3))
}

func TestTrending(t *testing.T) {
	l := ledger.NewRequestLedger()
	l.Record("old", at(0))
	l.Record("old", at(1))
	l.Record("old", at(2))
	l.Record("new", at(10))
	l.Record("new", at(11))
	l.Record("edge", at(5))

	now := at(11)
	require.Equal(t, []string{"new", "edge"}, l.Trending(now, 6*time.Second, 5))
	require.Equal(t, []string{"new"}, l.Trending(now, 6*time.Second, 1))
	require.Equal(t, []string{"old", "new", "edge"}, l.Trending(now, 11*time.Second, 5))
	require.Empty(t, l.Trending(now, time.Second, 0))
}

func TestTrendingZeroWindow(t *testing.T) {
	l := ledger.NewRequestLedger()
	l.Record("a", at(1))
	l.Record("b", at(2))
	l.Record("b", at(2))
	require.Equal(t, []string{"b"}, l.Trending(at(2), 0, 5))
	require.Empty(t, l.Trending(at(3), 0, 5))
}

func TestSnapshotRestore(t *testing.T) {
	l := ledger.NewRequestLedger()
	l.Record("x", at(0))
	l.Record("y", at(1))
	l.Record("x", at(2))

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "x", snap[0].Key)
	require.Equal(t, []time.Time{at(0), at(2)}, snap[0].Times)

	// Snapshot is a copy.
	snap[0].Times[0] = at(100)
	require.Equal(t, at(0), l.Snapshot()[0].Times[0])

	other := ledger.NewRequestLedger()
	other.Record("z", at(5))
	other.Restore(append(l.Snapshot(),
		ledger.Record{Key: "empty"},
		ledger.Record{Key: "y", Times: []time.Time{at(3)}},
	))
	require.Equal(t, 2, other.Len())
	require.Equal(t, []string{"x", "y"}, other.Zeitgeist(5))
	require.Equal(t, []time.Time{at(1), at(3)}, other.Snapshot()[1].Times)

	other.Record("y", at(4))
	require.Equal(t, []string{"y", "x"}, other.Zeitgeist(5))
}

func TestConcurrentRecord(t *testing.T) {
	l := ledger.NewRequestLedger()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Record(fmt.Sprint("key", j%5), at(i))
				_ = l.Zeitgeist(3)
			}
		}(i)
	}
	wg.Wait()

	var total int
	for _, r := range l.Snapshot() {
		total += len(r.Times)
	}
	require.Equal(t, 1000, total)
	require.Len(t, l.Zeitgeist(10), 5)
}
