package wikisource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	logging "github.com/ipfs/go-log/v2"
	"github.com/votqanh/go-wikimediator/apierror"
)

var log = logging.Logger("wikisource")

// maxSearchLimit is the largest srlimit the Action API accepts.
const maxSearchLimit = 500

// Client is a ContentSource that talks to the MediaWiki Action API over HTTP.
type Client struct {
	c         *http.Client
	apiURL    *url.URL
	linkLimit int
	userAgent string
}

// Client must implement ContentSource.
var _ ContentSource = (*Client)(nil)

// New creates a new MediaWiki client for the api.php endpoint at apiURL.
func New(apiURL string, options ...Option) (*Client, error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url must have http or https scheme: %s", apiURL)
	}
	u.RawQuery = ""

	rclient := &retryablehttp.Client{
		HTTPClient:   opts.httpClient,
		RetryWaitMin: opts.retryWaitMin,
		RetryWaitMax: opts.retryWaitMax,
		RetryMax:     opts.retryMax,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		// Let the caller see the last response so its status is reported.
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
		RequestLogHook: func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			if attempt != 0 {
				log.Warnw("Retrying request", "url", req.URL.String(), "attempt", attempt)
			}
		},
	}

	return &Client{
		c:         rclient.StandardClient(),
		apiURL:    u,
		linkLimit: opts.linkLimit,
		userAgent: opts.userAgent,
	}, nil
}

// Search returns up to limit titles of pages matching query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(limit)},
		"srprop":   {""},
	}
	var resp searchResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.err()
	}

	titles := make([]string, 0, len(resp.Query.Search))
	for _, r := range resp.Query.Search {
		titles = append(titles, r.Title)
	}
	return titles, nil
}

// Text returns the wikitext of a page, or an empty string if the page does
// not exist.
func (c *Client) Text(ctx context.Context, title string) (string, error) {
	params := url.Values{
		"action": {"parse"},
		"page":   {title},
		"prop":   {"wikitext"},
	}
	var resp parseResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		if resp.Error.Code == "missingtitle" {
			return "", nil
		}
		return "", resp.Error.err()
	}
	return resp.Parse.Wikitext, nil
}

// OutboundLinks returns the sorted titles of the main namespace pages that a
// page links to. A page that does not exist has no links.
func (c *Client) OutboundLinks(ctx context.Context, title string) ([]string, error) {
	params := url.Values{
		"action":      {"query"},
		"prop":        {"links"},
		"titles":      {title},
		"pllimit":     {"max"},
		"plnamespace": {"0"},
	}

	var links []string
	for {
		var resp linksResponse
		if err := c.get(ctx, params, &resp); err != nil {
			return nil, err
		}
		if resp.Error != nil {
			return nil, resp.Error.err()
		}
		for _, page := range resp.Query.Pages {
			if page.Missing {
				continue
			}
			for _, l := range page.Links {
				links = append(links, l.Title)
			}
		}
		if c.limitReached(len(links)) || !nextPage(params, resp.Continue) {
			break
		}
	}
	return c.finish(links), nil
}

// InboundLinks returns the sorted titles of the main namespace pages that
// link to a page.
func (c *Client) InboundLinks(ctx context.Context, title string) ([]string, error) {
	params := url.Values{
		"action":      {"query"},
		"list":        {"backlinks"},
		"bltitle":     {title},
		"bllimit":     {"max"},
		"blnamespace": {"0"},
	}

	var links []string
	for {
		var resp backlinksResponse
		if err := c.get(ctx, params, &resp); err != nil {
			return nil, err
		}
		if resp.Error != nil {
			return nil, resp.Error.err()
		}
		for _, l := range resp.Query.Backlinks {
			links = append(links, l.Title)
		}
		if c.limitReached(len(links)) || !nextPage(params, resp.Continue) {
			break
		}
	}
	return c.finish(links), nil
}

func (c *Client) get(ctx context.Context, params url.Values, v any) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	u := *c.apiURL
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return apierror.FromResponse(resp.StatusCode, body)
	}

	if err = json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("cannot decode %s response: %w", params.Get("action"), err)
	}
	log.Debugw("Fetched", "action", params.Get("action"), "bytes", len(body))
	return nil
}

func (c *Client) limitReached(n int) bool {
	return c.linkLimit != 0 && n >= c.linkLimit
}

// finish sorts and de-duplicates links, and cuts them to the link limit.
func (c *Client) finish(links []string) []string {
	sort.Strings(links)
	out := links[:0]
	for _, l := range links {
		if len(out) != 0 && l == out[len(out)-1] {
			continue
		}
		out = append(out, l)
	}
	if c.limitReached(len(out)) {
		out = out[:c.linkLimit]
	}
	if out == nil {
		return []string{}
	}
	return out
}

// nextPage copies the continuation values into params. It returns false when
// there are no more results.
func nextPage(params url.Values, cont map[string]string) bool {
	if len(cont) == 0 {
		return false
	}
	for k, v := range cont {
		params.Set(k, v)
	}
	return true
}

func (e *apiError) err() error {
	err := fmt.Errorf("mediawiki api error %s: %s", e.Code, e.Info)
	switch e.Code {
	case "missingtitle", "invalidtitle":
		return apierror.NotFound(err)
	case "maxlag", "ratelimited":
		return apierror.Unavailable(err)
	}
	return apierror.New(err, http.StatusBadGateway)
}

