package wikisource

import (
	"context"

	"github.com/votqanh/go-wikimediator/pathfind"
)

// ContentSource is the interface implemented by all content sources.
type ContentSource interface {
	// Search returns up to limit page titles matching query, best match
	// first.
	Search(ctx context.Context, query string, limit int) ([]string, error)
	// Text returns the text of a page. If the page does not exist then an
	// empty string without error is returned.
	Text(ctx context.Context, title string) (string, error)
	// OutboundLinks returns the sorted, de-duplicated titles of the pages
	// that a page links to.
	OutboundLinks(ctx context.Context, title string) ([]string, error)
	// InboundLinks returns the titles of the pages that link to a page.
	InboundLinks(ctx context.Context, title string) ([]string, error)
}

// Expand adapts the outbound links of src for use in a path search.
func Expand(src ContentSource) pathfind.ExpandFunc {
	return src.OutboundLinks
}

// Reverse adapts the inbound links of src for use in a path search.
func Reverse(src ContentSource) pathfind.ExpandFunc {
	return src.InboundLinks
}
