package wikisource_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/votqanh/go-wikimediator/apierror"
	"github.com/votqanh/go-wikimediator/wikisource"
)

func newClient(t *testing.T, h http.HandlerFunc, opts ...wikisource.Option) *wikisource.Client {
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	opts = append([]wikisource.Option{wikisource.WithRetry(0, 0, 0)}, opts...)
	c, err := wikisource.New(ts.URL+"/w/api.php", opts...)
	require.NoError(t, err)
	return c
}

func TestNewBadURL(t *testing.T) {
	_, err := wikisource.New("ftp://example.com/api.php")
	require.Error(t, err)
	_, err = wikisource.New(wikisource.DefaultAPIURL, wikisource.WithRetry(-1, 0, 0))
	require.Error(t, err)
	_, err = wikisource.New(wikisource.DefaultAPIURL, wikisource.WithRetry(1, time.Second, time.Millisecond))
	require.Error(t, err)
}

func TestSearch(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "/w/api.php", r.URL.Path)
		require.Equal(t, "query", q.Get("action"))
		require.Equal(t, "search", q.Get("list"))
		require.Equal(t, "cats", q.Get("srsearch"))
		require.Equal(t, "2", q.Get("srlimit"))
		require.Equal(t, "json", q.Get("format"))
		require.Equal(t, "tester", r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"batchcomplete":true,"query":{"search":[{"ns":0,"title":"Cat"},{"ns":0,"title":"Cats (musical)"}]}}`)
	}, wikisource.WithUserAgent("tester"))

	titles, err := c.Search(context.Background(), "cats", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"Cat", "Cats (musical)"}, titles)
}

func TestSearchZeroLimit(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	titles, err := c.Search(context.Background(), "cats", 0)
	require.NoError(t, err)
	require.Empty(t, titles)
	require.Zero(t, calls.Load())
}

func TestText(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "parse", q.Get("action"))
		require.Equal(t, "wikitext", q.Get("prop"))
		switch q.Get("page") {
		case "Cat":
			fmt.Fprint(w, `{"parse":{"title":"Cat","pageid":6678,"wikitext":"The '''cat''' is a small mammal."}}`)
		default:
			fmt.Fprint(w, `{"error":{"code":"missingtitle","info":"The page you specified doesn't exist."}}`)
		}
	})

	text, err := c.Text(context.Background(), "Cat")
	require.NoError(t, err)
	require.Equal(t, "The '''cat''' is a small mammal.", text)

	text, err = c.Text(context.Background(), "No such page")
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestOutboundLinksPaging(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "links", q.Get("prop"))
		require.Equal(t, "Cat", q.Get("titles"))
		require.Equal(t, "0", q.Get("plnamespace"))
		switch q.Get("plcontinue") {
		case "":
			fmt.Fprint(w, `{"continue":{"plcontinue":"6678|0|Lion","continue":"||"},"query":{"pages":[{"pageid":6678,"ns":0,"title":"Cat","links":[{"ns":0,"title":"Tiger"},{"ns":0,"title":"Dog"}]}]}}`)
		case "6678|0|Lion":
			require.Equal(t, "||", q.Get("continue"))
			fmt.Fprint(w, `{"batchcomplete":true,"query":{"pages":[{"pageid":6678,"ns":0,"title":"Cat","links":[{"ns":0,"title":"Lion"},{"ns":0,"title":"Dog"}]}]}}`)
		default:
			t.Errorf("unexpected continuation %q", q.Get("plcontinue"))
		}
	})

	links, err := c.OutboundLinks(context.Background(), "Cat")
	require.NoError(t, err)
	require.Equal(t, []string{"Dog", "Lion", "Tiger"}, links)

	// Adapter for path searches uses the same links.
	links, err = wikisource.Expand(c)(context.Background(), "Cat")
	require.NoError(t, err)
	require.Equal(t, []string{"Dog", "Lion", "Tiger"}, links)
}

func TestOutboundLinksMissingPage(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"batchcomplete":true,"query":{"pages":[{"ns":0,"title":"Nope","missing":true}]}}`)
	})
	links, err := c.OutboundLinks(context.Background(), "Nope")
	require.NoError(t, err)
	require.NotNil(t, links)
	require.Empty(t, links)
}

func TestLinkLimit(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"continue":{"blcontinue":"0|123","continue":"-||"},"query":{"backlinks":[{"title":"C"},{"title":"A"},{"title":"B"}]}}`)
	}, wikisource.WithLinkLimit(2))

	links, err := c.InboundLinks(context.Background(), "Cat")
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, links)
	require.Equal(t, int32(1), calls.Load())
}

func TestInboundLinks(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "backlinks", q.Get("list"))
		require.Equal(t, "Cat", q.Get("bltitle"))
		if q.Get("blcontinue") == "" {
			fmt.Fprint(w, `{"continue":{"blcontinue":"0|99","continue":"-||"},"query":{"backlinks":[{"pageid":1,"ns":0,"title":"Pet"}]}}`)
			return
		}
		fmt.Fprint(w, `{"batchcomplete":true,"query":{"backlinks":[{"pageid":2,"ns":0,"title":"Felidae"}]}}`)
	})

	links, err := wikisource.Reverse(c)(context.Background(), "Cat")
	require.NoError(t, err)
	require.Equal(t, []string{"Felidae", "Pet"}, links)
}

func TestRetry(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"query":{"search":[{"title":"Cat"}]}}`)
	}, wikisource.WithRetry(2, time.Millisecond, 10*time.Millisecond))

	titles, err := c.Search(context.Background(), "cat", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"Cat"}, titles)
	require.Equal(t, int32(2), calls.Load())
}

func TestErrorStatus(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})
	_, err := c.Text(context.Background(), "Cat")
	var apierr *apierror.Error
	require.True(t, errors.As(err, &apierr))
	require.Equal(t, http.StatusForbidden, apierr.Status())
	require.Equal(t, "nope", apierr.Error())
}

func TestAPIError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":"badvalue","info":"Unrecognized value for parameter \"list\"."}}`)
	})
	_, err := c.Search(context.Background(), "cat", 3)
	require.Error(t, err)
	require.Equal(t, http.StatusBadGateway, apierror.StatusOf(err))
	require.Contains(t, err.Error(), "badvalue")
}

func TestContextCanceled(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.OutboundLinks(ctx, "Cat")
	require.Error(t, err)
}
