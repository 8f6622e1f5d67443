// Package model defines the values exchanged between the mediator, its cache
// and the content source.
package model

// Page is the text of one page of the content source. Pages are identified by
// their title.
type Page struct {
	// Title is the canonical title of the page.
	Title string
	// Text is the page text as returned by the content source.
	Text string `json:",omitempty"`
}

// ID returns the page title, which is the stable identifier used as the cache
// key.
func (p Page) ID() string {
	return p.Title
}
