package pathfind

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/channelqueue"
	"github.com/gammazero/deque"
	lru "github.com/hashicorp/golang-lru/v2"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"
)

var log = logging.Logger("pathfind")

var (
	// ErrTimeout is returned when no path is found within the allotted time.
	// A search that runs out of nodes to expand also returns ErrTimeout, as
	// the two cases are not told apart.
	ErrTimeout = errors.New("path search timed out")
	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("timeout must be positive")
)

// ExpandFunc returns the nodes that node links to. Neighbors are expected in
// sorted order; results are sorted again before use.
type ExpandFunc func(ctx context.Context, node string) ([]string, error)

// Finder searches for the shortest, lexicographically smallest path between
// two nodes of a graph that is only known through an ExpandFunc.
type Finder struct {
	clock       clock.Clock
	expand      ExpandFunc
	maxBranches int
	maxDepth    int
	memoSize    int
	reverse     ExpandFunc
}

// New creates a Finder that discovers the graph by calling expand.
func New(expand ExpandFunc, options ...Option) (*Finder, error) {
	if expand == nil {
		return nil, errors.New("nil expand function")
	}
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}
	return &Finder{
		clock:       opts.clock,
		expand:      expand,
		maxBranches: opts.maxBranches,
		maxDepth:    opts.maxDepth,
		memoSize:    opts.memoSize,
		reverse:     opts.reverse,
	}, nil
}

// FindPath returns the path from start to target with the fewest links. When
// several such paths exist the lexicographically smallest one is returned,
// comparing node by node.
//
// Each neighbor of start is searched breadth-first by its own goroutine. The
// depth of the first path found bounds every other branch, so branches that
// can only produce longer paths stop early. If timeout passes before all
// branches that could still produce a path of the best depth are done,
// ErrTimeout is returned even when a path was already found.
func (f *Finder) FindPath(ctx context.Context, start, target string, timeout time.Duration) ([]string, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	if start == target {
		return []string{start}, nil
	}

	ctx, cancel := f.clock.WithTimeout(ctx, timeout)
	defer cancel()

	memo, err := lru.New[string, []string](f.memoSize)
	if err != nil {
		return nil, err
	}
	s := &search{
		Finder: f,
		memo:   memo,
		start:  start,
		target: target,
	}
	s.best.Store(math.MaxInt64)

	began := f.clock.Now()

	first, err := s.neighbors(ctx, start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, searchErr(ctx)
		}
		return nil, fmt.Errorf("cannot expand %q: %w", start, err)
	}
	if contains(first, target) {
		return []string{start, target}, nil
	}

	if f.reverse != nil {
		if path := s.shortcut(ctx, first); path != nil {
			log.Debugw("Found path through inbound links", "start", start, "target", target, "elapsed", f.clock.Since(began))
			return path, nil
		}
	}

	done := make(chan []string, 1)
	go func() {
		done <- s.run(ctx, first)
	}()

	select {
	case path := <-done:
		// Branches cut short by the deadline may have missed a smaller path.
		if ctx.Err() != nil {
			return nil, searchErr(ctx)
		}
		if path == nil {
			log.Debugw("No path found", "start", start, "target", target, "elapsed", f.clock.Since(began))
			return nil, ErrTimeout
		}
		log.Debugw("Found path", "start", start, "target", target, "depth", len(path)-1, "elapsed", f.clock.Since(began))
		return path, nil
	case <-ctx.Done():
		log.Infow("Path search timed out", "start", start, "target", target, "timeout", timeout)
		return nil, searchErr(ctx)
	}
}

// searchErr returns ErrTimeout unless the caller canceled the search.
func searchErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return ErrTimeout
}

// search is the state of one FindPath call.
type search struct {
	*Finder
	best   atomic.Int64
	memo   *lru.Cache[string, []string]
	start  string
	target string
}

// shortcut returns [start, n, target] for the smallest first-level neighbor n
// that links to target. The path is exact because target is not a neighbor of
// start. The inbound list may be incomplete, so neighbors that sort before the
// first inbound match are expanded to check for a link to target.
func (s *search) shortcut(ctx context.Context, first []string) []string {
	inbound, err := call(ctx, s.reverse, s.target)
	if err != nil {
		log.Warnw("Cannot get inbound links", "node", s.target, "err", err)
		return nil
	}
	in := make(map[string]struct{}, len(inbound))
	for _, n := range inbound {
		in[n] = struct{}{}
	}
	match := -1
	for i, n := range first {
		if n == s.start {
			continue
		}
		if _, ok := in[n]; ok {
			match = i
			break
		}
	}
	if match == -1 {
		return nil
	}
	for _, n := range first[:match] {
		if n == s.start {
			continue
		}
		nbrs, err := s.neighbors(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warnw("Cannot expand node, skipping", "node", n, "err", err)
			continue
		}
		if contains(nbrs, s.target) {
			return []string{s.start, n, s.target}
		}
	}
	return []string{s.start, first[match], s.target}
}

// run searches every first-level branch and returns the best candidate, or
// nil if no branch reached target.
func (s *search) run(ctx context.Context, first []string) []string {
	cq := channelqueue.New[[]string](-1)
	found := cq.In()

	g, gctx := errgroup.WithContext(ctx)
	if s.maxBranches > 0 {
		g.SetLimit(s.maxBranches)
	}
	for _, n := range first {
		if n == s.start {
			continue
		}
		path := []string{s.start, n}
		g.Go(func() error {
			s.branch(gctx, path, found)
			return nil
		})
	}
	_ = g.Wait()
	close(found)

	var best []string
	for path := range cq.Out() {
		if best == nil || less(path, best) {
			best = path
		}
	}
	return best
}

// branch does a breadth-first search below the first two nodes of root. The
// frontier holds paths in lexicographic order, so the first path to reach
// target is the smallest one at that depth within the branch.
func (s *search) branch(ctx context.Context, root []string, found chan<- []string) {
	visited := map[string]struct{}{
		s.start: {},
		root[1]: {},
	}
	var frontier deque.Deque[[]string]
	frontier.PushBack(root)

	for depth := len(root) - 1; frontier.Len() != 0; depth++ {
		next := depth + 1
		if s.maxDepth != 0 && next > s.maxDepth {
			return
		}
		var nextFrontier deque.Deque[[]string]
		for frontier.Len() != 0 {
			if ctx.Err() != nil || int64(next) > s.best.Load() {
				return
			}
			path := frontier.PopFront()
			node := path[len(path)-1]
			nbrs, err := s.neighbors(ctx, node)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warnw("Cannot expand node, skipping", "node", node, "err", err)
				continue
			}
			for _, n := range nbrs {
				if n == s.target {
					s.report(extend(path, n), found)
					return
				}
				if _, ok := visited[n]; ok {
					continue
				}
				visited[n] = struct{}{}
				nextFrontier.PushBack(extend(path, n))
			}
		}
		frontier = nextFrontier
	}
}

// report lowers the best depth to the depth of path and queues path as a
// candidate.
func (s *search) report(path []string, found chan<- []string) {
	depth := int64(len(path) - 1)
	for {
		best := s.best.Load()
		if depth > best {
			return
		}
		if s.best.CompareAndSwap(best, depth) {
			break
		}
	}
	found <- path
}

// neighbors expands node, using the memo when node was already expanded
// during this search.
func (s *search) neighbors(ctx context.Context, node string) ([]string, error) {
	if nbrs, ok := s.memo.Get(node); ok {
		return nbrs, nil
	}
	nbrs, err := call(ctx, s.expand, node)
	if err != nil {
		return nil, err
	}
	nbrs = sortUnique(nbrs)
	s.memo.Add(node, nbrs)
	return nbrs, nil
}

// call runs expand in its own goroutine and stops waiting for it when ctx is
// done. An expand call that never returns is abandoned.
func call(ctx context.Context, expand ExpandFunc, node string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type result struct {
		nbrs []string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		nbrs, err := expand(ctx, node)
		resCh <- result{nbrs, err}
	}()

	select {
	case res := <-resCh:
		return res.nbrs, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// less orders paths by length, then node by node.
func less(a, b []string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func extend(path []string, node string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = node
	return out
}

func contains(nodes []string, node string) bool {
	i := sort.SearchStrings(nodes, node)
	return i < len(nodes) && nodes[i] == node
}

func sortUnique(nodes []string) []string {
	out := append([]string(nil), nodes...)
	sort.Strings(out)
	j := 0
	for i := range out {
		if i != 0 && out[i] == out[j-1] {
			continue
		}
		out[j] = out[i]
		j++
	}
	return out[:j]
}
