package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/votqanh/go-wikimediator/mediator"
)

// Request types.
const (
	TypeSearch           = "search"
	TypeGetPage          = "getPage"
	TypeZeitgeist        = "zeitgeist"
	TypeTrending         = "trending"
	TypeWindowedPeakLoad = "windowedPeakLoad"
	TypeShortestPath     = "shortestPath"
	TypeStop             = "stop"
)

var errUnknownType = errors.New("unknown request type")

// operation is a parsed request. The set of operations is closed: only the
// types in this file implement it.
type operation interface {
	operation()
}

type searchOp struct {
	query string
	limit int
}

type getPageOp struct {
	title string
}

type zeitgeistOp struct {
	limit int
}

type trendingOp struct {
	window   time.Duration
	maxItems int
}

type peakLoadOp struct {
	window    time.Duration
	hasWindow bool
}

type shortestPathOp struct {
	from    string
	to      string
	timeout time.Duration
}

type stopOp struct{}

func (searchOp) operation()       {}
func (getPageOp) operation()      {}
func (zeitgeistOp) operation()    {}
func (trendingOp) operation()     {}
func (peakLoadOp) operation()     {}
func (shortestPathOp) operation() {}
func (stopOp) operation()         {}

// parse turns a wire request into an operation.
func parse(req Request) (operation, error) {
	switch req.Type {
	case TypeSearch:
		return searchOp{query: req.Query, limit: req.Limit}, nil
	case TypeGetPage:
		return getPageOp{title: req.PageTitle}, nil
	case TypeZeitgeist:
		return zeitgeistOp{limit: req.Limit}, nil
	case TypeTrending:
		return trendingOp{window: seconds(req.TimeLimitInSeconds), maxItems: req.MaxItems}, nil
	case TypeWindowedPeakLoad:
		if req.TimeWindowInSeconds == nil {
			return peakLoadOp{}, nil
		}
		return peakLoadOp{window: seconds(*req.TimeWindowInSeconds), hasWindow: true}, nil
	case TypeShortestPath:
		return shortestPathOp{from: req.PageTitle, to: req.PageTitle2, timeout: seconds(req.Timeout)}, nil
	case TypeStop:
		return stopOp{}, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownType, req.Type)
}

// execute runs op against med and returns the value to put in the response.
// Stop is handled by the connection and never reaches execute.
func execute(ctx context.Context, med *mediator.Mediator, op operation) (any, error) {
	switch op := op.(type) {
	case searchOp:
		return med.Search(ctx, op.query, op.limit)
	case getPageOp:
		return med.GetPage(ctx, op.title)
	case zeitgeistOp:
		return med.Zeitgeist(op.limit)
	case trendingOp:
		return med.Trending(op.window, op.maxItems)
	case peakLoadOp:
		if !op.hasWindow {
			return med.PeakLoad(), nil
		}
		return med.WindowedPeakLoad(op.window)
	case shortestPathOp:
		return med.ShortestPath(ctx, op.from, op.to, op.timeout)
	}
	return nil, fmt.Errorf("cannot execute %T", op)
}
