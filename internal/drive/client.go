package drive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/tonimelisma/gfolder/internal/retry"
)

const defaultUserAgent = "gfolder/0.1"

// entryFields selects the entry fields every call asks for.
const entryFields = "id, name, mimeType, size, modifiedTime"

// Authority supplies bearer tokens and repairs them after a failed call.
// Defined at the consumer; auth.Authority is the real implementation.
type Authority interface {
	oauth2.TokenSource
	Recover(ctx context.Context) error
}

// Options tunes a Client. Zero values mean the service defaults.
type Options struct {
	// Endpoint is the API base, e.g. "https://www.googleapis.com/drive/v3/".
	Endpoint  string
	UserAgent string
	PageSize  int
	// Transport carries requests under the bearer transport.
	Transport http.RoundTripper
	// Timeout bounds one request, body included.
	Timeout time.Duration
}

// Client performs remote calls for a folder tree. Every method goes through
// the retry protocol with the authority's Recover as recovery action. A
// Client is safe for concurrent use and is shared by every folder of a tree.
type Client struct {
	svc      *gdrive.Service
	caller   *retry.Caller
	pageSize int
	logger   *slog.Logger
}

// NewClient builds a Client authenticating with auth.
func NewClient(ctx context.Context, auth Authority, opts Options, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// oauth2.NewClient would wrap auth in a ReuseTokenSource and keep serving
	// a bearer the authority already replaced.
	hc := &http.Client{
		Transport: &oauth2.Transport{Source: auth, Base: opts.Transport},
		Timeout:   opts.Timeout,
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	clientOpts := []option.ClientOption{
		option.WithHTTPClient(hc),
		option.WithUserAgent(ua),
	}

	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := gdrive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("drive: creating service: %w", err)
	}

	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > PageSize {
		pageSize = PageSize
	}

	return &Client{
		svc:      svc,
		caller:   retry.NewCaller(auth.Recover, logger),
		pageSize: pageSize,
		logger:   logger,
	}, nil
}

// Download returns the content of a native file.
func (c *Client) Download(ctx context.Context, id string) ([]byte, error) {
	c.logger.Debug("downloading", slog.String("id", id))

	return retry.Do(ctx, c.caller, "download "+id, func(ctx context.Context) ([]byte, int, error) {
		resp, err := c.svc.Files.Get(id).Context(ctx).Download()
		if err != nil {
			status, apiErr := apiFailure(err)
			return nil, status, apiErr
		}

		return readBody(resp)
	})
}

// Export returns a service-internal document rendered as mimeType. The bytes
// are returned as the service produced them.
func (c *Client) Export(ctx context.Context, id, mimeType string) ([]byte, error) {
	if mimeType == "" {
		return nil, ErrExportFormatRequired
	}

	c.logger.Debug("exporting", slog.String("id", id), slog.String("format", mimeType))

	return retry.Do(ctx, c.caller, "export "+id, func(ctx context.Context) ([]byte, int, error) {
		resp, err := c.svc.Files.Export(id, mimeType).Context(ctx).Download()
		if err != nil {
			status, apiErr := apiFailure(err)
			return nil, status, apiErr
		}

		return readBody(resp)
	})
}

// Fetch returns the content of e: media for a native file, the export for a
// document. Folders have no content.
func (c *Client) Fetch(ctx context.Context, e Entry, exportFormat string) ([]byte, error) {
	switch e.Kind() {
	case KindFolder:
		return nil, fmt.Errorf("drive: %q has no content: %w", e.Name, ErrNotAFolder)
	case KindDocument:
		if exportFormat == "" {
			return nil, fmt.Errorf("drive: %q (%s): %w", e.Name, e.MimeType, ErrExportFormatRequired)
		}

		return c.Export(ctx, e.ID, exportFormat)
	default:
		return c.Download(ctx, e.ID)
	}
}

// CreateFile creates an empty file record called name in parent.
func (c *Client) CreateFile(ctx context.Context, parent, name string) (Entry, error) {
	return c.create(ctx, &gdrive.File{Name: name, Parents: []string{parent}})
}

// CreateFolder creates a folder called name in parent.
func (c *Client) CreateFolder(ctx context.Context, parent, name string) (Entry, error) {
	return c.create(ctx, &gdrive.File{Name: name, Parents: []string{parent}, MimeType: FolderMimeType})
}

func (c *Client) create(ctx context.Context, f *gdrive.File) (Entry, error) {
	c.logger.Info("creating",
		slog.String("name", f.Name),
		slog.String("parent", f.Parents[0]),
		slog.String("mime_type", f.MimeType),
	)

	return retry.Do(ctx, c.caller, "create "+f.Name, func(ctx context.Context) (Entry, int, error) {
		created, err := c.svc.Files.Create(f).Fields(googleapi.Field(entryFields)).Context(ctx).Do()
		if err != nil {
			status, apiErr := apiFailure(err)
			return Entry{}, status, apiErr
		}

		return toEntry(created), created.HTTPStatusCode, nil
	})
}

// Upload replaces the content of file id with content.
func (c *Client) Upload(ctx context.Context, id string, content []byte) (Entry, error) {
	c.logger.Info("uploading", slog.String("id", id), slog.Int("size", len(content)))

	return retry.Do(ctx, c.caller, "upload "+id, func(ctx context.Context) (Entry, int, error) {
		// A fresh reader per attempt.
		updated, err := c.svc.Files.Update(id, &gdrive.File{}).
			Media(bytes.NewReader(content)).
			Fields(googleapi.Field(entryFields)).
			Context(ctx).
			Do()
		if err != nil {
			status, apiErr := apiFailure(err)
			return Entry{}, status, apiErr
		}

		return toEntry(updated), updated.HTTPStatusCode, nil
	})
}

// Delete removes id permanently.
func (c *Client) Delete(ctx context.Context, id string) error {
	c.logger.Info("deleting", slog.String("id", id))

	_, err := retry.Do(ctx, c.caller, "delete "+id, func(ctx context.Context) (struct{}, int, error) {
		if err := c.svc.Files.Delete(id).Context(ctx).Do(); err != nil {
			status, apiErr := apiFailure(err)
			return struct{}{}, status, apiErr
		}

		return struct{}{}, http.StatusNoContent, nil
	})

	return err
}
