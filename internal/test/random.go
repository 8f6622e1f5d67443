package test

import (
	"fmt"
	"math/rand"
	"sync/atomic"
)

var globalSeed atomic.Int64

// RandomTitles returns a slice of n unique page titles.
func RandomTitles(n int) []string {
	rng := rand.New(rand.NewSource(globalSeed.Add(1)))
	titles := make([]string, n)
	set := make(map[string]struct{})
	for i := 0; i < n; i++ {
		title := fmt.Sprintf("Page_%06d", rng.Intn(1000000))
		if _, ok := set[title]; ok {
			i--
			continue
		}
		set[title] = struct{}{}
		titles[i] = title
	}
	return titles
}

// RandomGraph returns a graph of n pages where each page links to up to
// degree other random pages. Every page has a non-empty text.
func RandomGraph(n, degree int) (*Graph, []string) {
	rng := rand.New(rand.NewSource(globalSeed.Add(1)))
	titles := RandomTitles(n)
	g := NewGraph()
	for _, title := range titles {
		g.SetText(title, "text of "+title)
		for j := 0; j < degree; j++ {
			to := titles[rng.Intn(n)]
			if to != title {
				g.Link(title, to)
			}
		}
	}
	return g, titles
}
