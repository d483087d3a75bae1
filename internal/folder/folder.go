// Package folder presents a remote folder as a mapping from slash-separated
// keys to contents. A key with several segments walks the tree one folder at
// a time: the first segment resolves to a child Folder and the rest of the
// key is handed to it.
//
// Folders are values. A child carries a copy of its parent's id path plus its
// own id and never refers back to the parent; every Folder of a tree shares
// the same Remote, and with it the same token owner.
package folder

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"path"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/gfolder/internal/drive"
)

// ErrEmptyKey is returned for keys with no segments, such as "" or "//".
var ErrEmptyKey = errors.New("folder: empty key")

// Remote is the set of remote calls a Folder needs. *drive.Client
// implements it.
type Remote interface {
	Entries(ctx context.Context, q drive.Query) iter.Seq2[drive.Entry, error]
	Lookup(ctx context.Context, parent, name string) (drive.Entry, error)
	Fetch(ctx context.Context, e drive.Entry, exportFormat string) ([]byte, error)
	CreateFile(ctx context.Context, parent, name string) (drive.Entry, error)
	CreateFolder(ctx context.Context, parent, name string) (drive.Entry, error)
	Upload(ctx context.Context, id string, content []byte) (drive.Entry, error)
	Delete(ctx context.Context, id string) error
}

// Folder is one position in the remote tree.
type Folder struct {
	remote Remote
	ids    []string
	path   string
	logger *slog.Logger
}

// Value is what a key resolves to: a child Folder, or the content of a file.
type Value struct {
	Entry   drive.Entry
	Folder  *Folder // non-nil for folders, which are not fetched
	Content []byte
}

// IsFolder reports whether v holds a Folder.
func (v Value) IsFolder() bool {
	return v.Folder != nil
}

// Root returns the drive's root folder. No remote call is made.
func Root(remote Remote, logger *slog.Logger) *Folder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Folder{remote: remote, ids: []string{drive.RootID}, path: "/", logger: logger}
}

// Open resolves p from the root into a Folder. An empty p or "/" is the root.
func Open(ctx context.Context, remote Remote, p string, logger *slog.Logger) (*Folder, error) {
	root := Root(remote, logger)

	if strings.Trim(p, "/") == "" {
		return root, nil
	}

	return root.Sub(ctx, p)
}

// ID is the remote id of the folder whose children f lists.
func (f *Folder) ID() string {
	return f.ids[len(f.ids)-1]
}

// IDs returns the ids from the root down to f.
func (f *Folder) IDs() []string {
	return slices.Clone(f.ids)
}

// Path is the slash-separated display path of f.
func (f *Folder) Path() string {
	return f.path
}

func (f *Folder) String() string {
	return "gfolder: " + f.path
}

// Get resolves key. A folder resolves lazily to a child Folder; a native file
// to its content. A service-internal document fails with
// drive.ErrExportFormatRequired; use Export.
func (f *Folder) Get(ctx context.Context, key string) (Value, error) {
	return f.Export(ctx, key, "")
}

// Export is Get with an export format for service-internal documents. The
// format is ignored for native files and folders.
func (f *Folder) Export(ctx context.Context, key, format string) (Value, error) {
	segs, err := splitKey(key)
	if err != nil {
		return Value{}, err
	}

	return f.get(ctx, segs, format)
}

func (f *Folder) get(ctx context.Context, segs []string, format string) (Value, error) {
	if len(segs) > 1 {
		child, err := f.child(ctx, segs[0])
		if err != nil {
			return Value{}, err
		}

		return child.get(ctx, segs[1:], format)
	}

	e, err := f.remote.Lookup(ctx, f.ID(), segs[0])
	if err != nil {
		return Value{}, err
	}

	if e.IsFolder() {
		return Value{Entry: e, Folder: f.sub(e)}, nil
	}

	content, err := f.remote.Fetch(ctx, e, format)
	if err != nil {
		return Value{}, err
	}

	return Value{Entry: e, Content: content}, nil
}

// Sub resolves key to a Folder.
func (f *Folder) Sub(ctx context.Context, key string) (*Folder, error) {
	segs, err := splitKey(key)
	if err != nil {
		return nil, err
	}

	cur := f
	for _, seg := range segs {
		if cur, err = cur.child(ctx, seg); err != nil {
			return nil, err
		}
	}

	return cur, nil
}

// Set writes content to key, replacing what is there. A missing file is
// created first; missing folders on the way are created too. Writing to a
// folder fails with drive.ErrImmutableFolder.
//
// Creation and upload are separate calls. If the upload of a new file fails,
// the empty record stays behind and is logged at Warn; a later Set of the
// same key uploads into it.
func (f *Folder) Set(ctx context.Context, key string, content []byte) error {
	segs, err := splitKey(key)
	if err != nil {
		return err
	}

	return f.set(ctx, segs, content)
}

func (f *Folder) set(ctx context.Context, segs []string, content []byte) error {
	if len(segs) > 1 {
		child, err := f.childOrCreate(ctx, segs[0])
		if err != nil {
			return err
		}

		return child.set(ctx, segs[1:], content)
	}

	name := segs[0]

	e, err := f.remote.Lookup(ctx, f.ID(), name)
	created := false

	switch {
	case errors.Is(err, drive.ErrNotFound):
		f.logger.Debug("creating file before upload", slog.String("path", f.join(name)))

		if e, err = f.remote.CreateFile(ctx, f.ID(), name); err != nil {
			return err
		}

		created = true
	case err != nil:
		return err
	case e.IsFolder():
		return fmt.Errorf("folder: %s: %w", f.join(name), drive.ErrImmutableFolder)
	}

	if _, err := f.remote.Upload(ctx, e.ID, content); err != nil {
		if created {
			f.logger.Warn("upload failed, empty file left behind",
				slog.String("path", f.join(name)),
				slog.String("id", e.ID),
			)
		}

		return err
	}

	return nil
}

// Delete removes key. The entry is resolved once and removed by id.
func (f *Folder) Delete(ctx context.Context, key string) error {
	segs, err := splitKey(key)
	if err != nil {
		return err
	}

	return f.delete(ctx, segs)
}

func (f *Folder) delete(ctx context.Context, segs []string) error {
	if len(segs) > 1 {
		child, err := f.child(ctx, segs[0])
		if err != nil {
			return err
		}

		return child.delete(ctx, segs[1:])
	}

	e, err := f.remote.Lookup(ctx, f.ID(), segs[0])
	if err != nil {
		return err
	}

	return f.remote.Delete(ctx, e.ID)
}

// child resolves name to a child Folder.
func (f *Folder) child(ctx context.Context, name string) (*Folder, error) {
	e, err := f.remote.Lookup(ctx, f.ID(), name)
	if err != nil {
		return nil, err
	}

	if !e.IsFolder() {
		return nil, fmt.Errorf("folder: %s is a %s: %w", f.join(name), e.Kind(), drive.ErrNotAFolder)
	}

	return f.sub(e), nil
}

func (f *Folder) childOrCreate(ctx context.Context, name string) (*Folder, error) {
	sub, err := f.child(ctx, name)
	if !errors.Is(err, drive.ErrNotFound) {
		return sub, err
	}

	f.logger.Info("creating folder", slog.String("path", f.join(name)))

	e, err := f.remote.CreateFolder(ctx, f.ID(), name)
	if err != nil {
		return nil, err
	}

	return f.sub(e), nil
}

func (f *Folder) sub(e drive.Entry) *Folder {
	ids := make([]string, len(f.ids), len(f.ids)+1)
	copy(ids, f.ids)

	return &Folder{
		remote: f.remote,
		ids:    append(ids, e.ID),
		path:   f.join(e.Name),
		logger: f.logger,
	}
}

func (f *Folder) join(name string) string {
	return path.Join(f.path, name)
}

// splitKey strips a leading slash, drops empty segments and normalizes each
// segment to NFC.
func splitKey(key string) ([]string, error) {
	var segs []string

	for _, s := range strings.Split(strings.TrimPrefix(key, "/"), "/") {
		if strings.TrimSpace(s) == "" {
			continue
		}

		segs = append(segs, norm.NFC.String(s))
	}

	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyKey, key)
	}

	return segs, nil
}
