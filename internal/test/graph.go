package test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Graph is an in-memory link graph with page texts. It serves both as a
// neighbor expansion function for path searches and as a content source.
type Graph struct {
	lock    sync.RWMutex
	links   map[string][]string
	texts   map[string]string
	fail    map[string]error
	hang    map[string]struct{}
	delay   time.Duration
	release chan struct{}
	closeMu sync.Once

	expandCalls atomic.Int64
	textCalls   atomic.Int64
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		links:   make(map[string][]string),
		texts:   make(map[string]string),
		fail:    make(map[string]error),
		hang:    make(map[string]struct{}),
		release: make(chan struct{}),
	}
}

// Link adds links from one node to each of the given nodes.
func (g *Graph) Link(from string, to ...string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.links[from] = append(g.links[from], to...)
}

// SetText sets the text of a page.
func (g *Graph) SetText(title, text string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.texts[title] = text
}

// Fail makes expanding node return err.
func (g *Graph) Fail(node string, err error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.fail[node] = err
}

// Hang makes expanding node block, ignoring its context, until Close is
// called.
func (g *Graph) Hang(node string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.hang[node] = struct{}{}
}

// SetDelay adds a delay to every expansion. The delay respects the context.
func (g *Graph) SetDelay(d time.Duration) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.delay = d
}

// Close releases all hanging expansions.
func (g *Graph) Close() {
	g.closeMu.Do(func() { close(g.release) })
}

// ExpandCalls returns the number of times a node was expanded.
func (g *Graph) ExpandCalls() int {
	return int(g.expandCalls.Load())
}

// TextCalls returns the number of times a page text was fetched.
func (g *Graph) TextCalls() int {
	return int(g.textCalls.Load())
}

// Expand returns the sorted nodes that node links to.
func (g *Graph) Expand(ctx context.Context, node string) ([]string, error) {
	g.expandCalls.Add(1)

	g.lock.RLock()
	err := g.fail[node]
	_, hang := g.hang[node]
	delay := g.delay
	out := append([]string(nil), g.links[node]...)
	g.lock.RUnlock()

	if hang {
		<-g.release
	}
	if delay != 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Inbound returns the sorted nodes that link to node.
func (g *Graph) Inbound(ctx context.Context, node string) ([]string, error) {
	g.lock.RLock()
	defer g.lock.RUnlock()

	var out []string
	for from, to := range g.links {
		for _, n := range to {
			if n == node {
				out = append(out, from)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Search returns up to limit sorted titles containing query, ignoring case.
func (g *Graph) Search(ctx context.Context, query string, limit int) ([]string, error) {
	g.lock.RLock()
	defer g.lock.RUnlock()

	q := strings.ToLower(query)
	var out []string
	for title := range g.texts {
		if strings.Contains(strings.ToLower(title), q) {
			out = append(out, title)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Text returns the text of a page, or an empty string if there is no such
// page.
func (g *Graph) Text(ctx context.Context, title string) (string, error) {
	g.textCalls.Add(1)

	g.lock.RLock()
	delay := g.delay
	text := g.texts[title]
	g.lock.RUnlock()

	if delay != 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, nil
}

// OutboundLinks is Expand.
func (g *Graph) OutboundLinks(ctx context.Context, title string) ([]string, error) {
	return g.Expand(ctx, title)
}

// InboundLinks is Inbound.
func (g *Graph) InboundLinks(ctx context.Context, title string) ([]string, error) {
	return g.Inbound(ctx, title)
}
