package drive

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/tonimelisma/gfolder/internal/pipeline"
	"github.com/tonimelisma/gfolder/internal/retry"
)

const listFields = "nextPageToken, files(" + entryFields + ")"

// Page is one listing response.
type Page struct {
	Entries       []Entry
	NextPageToken string // empty on the last page
}

// ListPage fetches the page of q that starts at token ("" for the first).
func (c *Client) ListPage(ctx context.Context, q Query, token string) (Page, error) {
	filter := q.String()

	c.logger.Debug("listing page",
		slog.String("query", filter),
		slog.Bool("continuation", token != ""),
	)

	return retry.Do(ctx, c.caller, "list "+q.Parent, func(ctx context.Context) (Page, int, error) {
		call := c.svc.Files.List().
			Q(filter).
			PageSize(int64(c.pageSize)).
			Fields(googleapi.Field(listFields)).
			Context(ctx)

		if token != "" {
			call = call.PageToken(token)
		}

		res, err := call.Do()
		if err != nil {
			status, apiErr := apiFailure(err)
			return Page{}, status, apiErr
		}

		page := Page{
			Entries:       make([]Entry, 0, len(res.Files)),
			NextPageToken: res.NextPageToken,
		}

		for _, f := range res.Files {
			page.Entries = append(page.Entries, toEntry(f))
		}

		return page, res.HTTPStatusCode, nil
	})
}

// Pages lists q lazily, one page at a time, in server order. The first page
// is fetched before iteration starts yielding; while a page carries a
// continuation token the next one is fetched in the background before the
// current one is yielded. An empty folder yields one empty page.
//
// The prefetch pool belongs to this iteration and is shut down when the loop
// ends, including on early break. A listing error is yielded once and ends
// the sequence.
func (c *Client) Pages(ctx context.Context, q Query) iter.Seq2[[]Entry, error] {
	return func(yield func([]Entry, error) bool) {
		pool := pipeline.NewPool(ctx)
		defer pool.Close()

		first, err := c.ListPage(ctx, q, "")
		current := pipeline.Resolved(first, err)

		for n := 0; ; n++ {
			page, err := current.Wait(ctx)
			if err != nil {
				yield(nil, err)
				return
			}

			next := page.NextPageToken
			if next != "" {
				current = pipeline.Submit(pool, func(ctx context.Context) (Page, error) {
					return c.ListPage(ctx, q, next)
				})
			}

			if !yield(page.Entries, nil) {
				c.logger.Debug("listing abandoned", slog.Int("pages", n+1))
				return
			}

			if next == "" {
				return
			}
		}
	}
}

// Entries flattens Pages.
func (c *Client) Entries(ctx context.Context, q Query) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for page, err := range c.Pages(ctx, q) {
			if err != nil {
				yield(Entry{}, err)
				return
			}

			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

// List returns every entry of q.
func (c *Client) List(ctx context.Context, q Query) ([]Entry, error) {
	var all []Entry

	for e, err := range c.Entries(ctx, q) {
		if err != nil {
			return nil, err
		}

		all = append(all, e)
	}

	return all, nil
}

// Lookup returns the untrashed child of parent called name. Names are not
// unique among siblings; the first match in server order wins.
func (c *Client) Lookup(ctx context.Context, parent, name string) (Entry, error) {
	matches, err := c.List(ctx, ChildrenOf(parent).Named(name))
	if err != nil {
		return Entry{}, err
	}

	if len(matches) == 0 {
		return Entry{}, fmt.Errorf("drive: %q in %s: %w", name, parent, ErrNotFound)
	}

	if len(matches) > 1 {
		c.logger.Warn("duplicate names, using the first",
			slog.String("name", name),
			slog.String("parent", parent),
			slog.Int("count", len(matches)),
		)
	}

	return matches[0], nil
}

// readBody drains a successful download response.
func readBody(resp *http.Response) ([]byte, int, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("drive: reading response body: %w", err)
	}

	return data, resp.StatusCode, nil
}
