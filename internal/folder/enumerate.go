package folder

import (
	"context"
	"iter"
	"log/slog"

	"github.com/tonimelisma/gfolder/internal/drive"
	"github.com/tonimelisma/gfolder/internal/pipeline"
)

// Item pairs a child's name with its resolved value.
type Item struct {
	Name  string
	Value Value
}

func (f *Folder) query(filter drive.Filter) drive.Query {
	return drive.ChildrenOf(f.ID()).Only(filter)
}

// Entries lists the children of f matching filter, in server order.
func (f *Folder) Entries(ctx context.Context, filter drive.Filter) iter.Seq2[drive.Entry, error] {
	return f.remote.Entries(ctx, f.query(filter))
}

// All lists every child name lazily.
func (f *Folder) All(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for e, err := range f.Entries(ctx, drive.AllKinds) {
			if !yield(e.Name, err) || err != nil {
				return
			}
		}
	}
}

func (f *Folder) names(ctx context.Context, filter drive.Filter) ([]string, error) {
	var names []string

	for e, err := range f.Entries(ctx, filter) {
		if err != nil {
			return nil, err
		}

		names = append(names, e.Name)
	}

	return names, nil
}

// Keys returns the names of every child.
func (f *Folder) Keys(ctx context.Context) ([]string, error) {
	return f.names(ctx, drive.AllKinds)
}

// Files returns the names of the children that are not folders.
func (f *Folder) Files(ctx context.Context) ([]string, error) {
	return f.names(ctx, drive.FilesOnly)
}

// Folders returns the names of the child folders.
func (f *Folder) Folders(ctx context.Context) ([]string, error) {
	return f.names(ctx, drive.FoldersOnly)
}

// Len counts the children by listing them all.
func (f *Folder) Len(ctx context.Context) (int, error) {
	keys, err := f.Keys(ctx)
	if err != nil {
		return 0, err
	}

	return len(keys), nil
}

// Items yields every child with its value.
func (f *Folder) Items(ctx context.Context) iter.Seq2[Item, error] {
	return f.ItemsAs(ctx, drive.AllKinds, "")
}

// FileItems yields the non-folder children with their content.
func (f *Folder) FileItems(ctx context.Context) iter.Seq2[Item, error] {
	return f.ItemsAs(ctx, drive.FilesOnly, "")
}

// FolderItems yields the child folders.
func (f *Folder) FolderItems(ctx context.Context) iter.Seq2[Item, error] {
	return f.ItemsAs(ctx, drive.FoldersOnly, "")
}

// ItemsAs yields the children matching filter in listing order. Content is
// fetched one entry ahead of the one being yielded, so the download of the
// next entry overlaps the caller's work on the current one. Documents are
// exported as exportFormat.
//
// A failed fetch is yielded with its item (the Value still carries the
// entry) and iteration goes on. A failed listing ends iteration.
func (f *Folder) ItemsAs(ctx context.Context, filter drive.Filter, exportFormat string) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		pool := pipeline.NewPool(ctx)
		defer pool.Close()

		var prev *pendingItem

		for e, err := range f.Entries(ctx, filter) {
			if err != nil {
				if prev != nil && !prev.yield(ctx, yield) {
					return
				}

				yield(Item{}, err)

				return
			}

			next := &pendingItem{name: e.Name, value: f.fetch(pool, e, exportFormat)}

			if prev != nil && !prev.yield(ctx, yield) {
				f.logger.Debug("items abandoned", slog.String("path", f.path))
				return
			}

			prev = next
		}

		if prev != nil {
			prev.yield(ctx, yield)
		}
	}
}

type pendingItem struct {
	name  string
	value *pipeline.Future[Value]
}

func (p *pendingItem) yield(ctx context.Context, yield func(Item, error) bool) bool {
	v, err := p.value.Wait(ctx)
	return yield(Item{Name: p.name, Value: v}, err)
}

// fetch starts resolving e. Folders resolve without a remote call; the listed
// entry is reused so no second lookup is made.
func (f *Folder) fetch(pool *pipeline.Pool, e drive.Entry, exportFormat string) *pipeline.Future[Value] {
	if e.IsFolder() {
		v := Value{Entry: e, Folder: f.sub(e)}
		return pipeline.Resolved[Value](v, nil)
	}

	return pipeline.Submit(pool, func(ctx context.Context) (Value, error) {
		content, err := f.remote.Fetch(ctx, e, exportFormat)
		return Value{Entry: e, Content: content}, err
	})
}
