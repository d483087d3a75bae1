package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gfolder/internal/drive"
	"github.com/tonimelisma/gfolder/internal/folder"
)

// Local file permissions for downloaded content.
const (
	localFilePerms = 0o644
	localDirPerms  = 0o755
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [key]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}

	cmd.Flags().Bool("files", false, "list files only")
	cmd.Flags().Bool("folders", false, "list folders only")
	cmd.MarkFlagsMutuallyExclusive("files", "folders")

	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key> [local-path]",
		Short: "Download a file (\"-\" writes to stdout)",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}

	cmd.Flags().String("export-format", "", "MIME type to export documents as, e.g. application/pdf")

	return cmd
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-path> [key]",
		Short: "Upload a file, creating missing folders",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runPut,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete a file or folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}
}

func newPullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull [key]",
		Short: "Download every file of a folder",
		Long: `Download every file directly inside a folder into a local directory.
Content is fetched one file ahead while the previous one is written. Files that
fail are reported and skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPull,
	}

	cmd.Flags().String("dest", ".", "local directory to write into")
	cmd.Flags().String("export-format", "", "MIME type to export documents as, e.g. application/pdf")

	return cmd
}

// openSession builds the logger and session shared by the file commands.
func openSession(cmd *cobra.Command) (*Session, *slog.Logger, error) {
	logger := buildLogger(cmd.ErrOrStderr())

	s, err := NewSession(cmd.Context(), resolvedCfg, logger)
	if err != nil {
		return nil, nil, err
	}

	return s, logger, nil
}

// subFolder resolves an optional key argument to a folder below the root.
func subFolder(cmd *cobra.Command, root *folder.Folder, args []string) (*folder.Folder, error) {
	if len(args) == 0 {
		return root, nil
	}

	f, err := root.Sub(cmd.Context(), args[0])
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", args[0], err)
	}

	return f, nil
}

func runLs(cmd *cobra.Command, args []string) error {
	s, logger, err := openSession(cmd)
	if err != nil {
		return err
	}

	f, err := subFolder(cmd, s.Root, args)
	if err != nil {
		return err
	}

	filter := drive.AllKinds
	if only, _ := cmd.Flags().GetBool("files"); only {
		filter = drive.FilesOnly
	}

	if only, _ := cmd.Flags().GetBool("folders"); only {
		filter = drive.FoldersOnly
	}

	logger.Debug("ls", "path", f.Path())

	var entries []drive.Entry

	for e, err := range f.Entries(cmd.Context(), filter) {
		if err != nil {
			return fmt.Errorf("listing %q: %w", f.Path(), err)
		}

		entries = append(entries, e)
	}

	if flagJSON {
		return printEntriesJSON(cmd.OutOrStdout(), entries)
	}

	printEntriesTable(cmd.OutOrStdout(), entries)

	return nil
}

// lsJSONItem is the JSON output schema for a single entry in ls output.
type lsJSONItem struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at,omitempty"`
	ID         string `json:"id"`
}

func printEntriesJSON(w io.Writer, entries []drive.Entry) error {
	out := make([]lsJSONItem, 0, len(entries))
	for i := range entries {
		item := lsJSONItem{
			Name:     entries[i].Name,
			Kind:     entries[i].Kind().String(),
			MimeType: entries[i].MimeType,
			Size:     entries[i].Size,
			ID:       entries[i].ID,
		}

		if !entries[i].ModifiedTime.IsZero() {
			item.ModifiedAt = entries[i].ModifiedTime.UTC().Format("2006-01-02T15:04:05Z")
		}

		out = append(out, item)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printEntriesTable(w io.Writer, entries []drive.Entry) {
	// Sort: folders first, then alphabetical.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsFolder() != entries[j].IsFolder() {
			return entries[i].IsFolder()
		}

		return entries[i].Name < entries[j].Name
	})

	headers := []string{"NAME", "SIZE", "MODIFIED"}
	rows := make([][]string, 0, len(entries))

	for i := range entries {
		name := entries[i].Name
		size := formatSize(entries[i].Size)

		switch entries[i].Kind() {
		case drive.KindFolder:
			name += "/"
			size = "-"
		case drive.KindDocument:
			size = "-"
		}

		rows = append(rows, []string{name, size, formatTime(entries[i].ModifiedTime)})
	}

	printTable(w, headers, rows)
}

func runGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	format, _ := cmd.Flags().GetString("export-format")

	s, logger, err := openSession(cmd)
	if err != nil {
		return err
	}

	logger.Debug("get", "key", key, "export_format", format)

	v, err := s.Root.Export(cmd.Context(), key, format)
	if err != nil {
		if errors.Is(err, drive.ErrExportFormatRequired) {
			return fmt.Errorf("%q is a document, pass --export-format: %w", key, err)
		}

		return fmt.Errorf("getting %q: %w", key, err)
	}

	if v.IsFolder() {
		return fmt.Errorf("%q is a folder, not a file", key)
	}

	localPath := v.Entry.Name
	if len(args) > 1 {
		localPath = args[1]
	}

	if localPath == "-" {
		_, err := cmd.OutOrStdout().Write(v.Content)
		return err
	}

	if err := os.WriteFile(localPath, v.Content, localFilePerms); err != nil {
		return fmt.Errorf("writing %q: %w", localPath, err)
	}

	statusf(cmd, "Downloaded %s (%s)\n", localPath, formatSize(int64(len(v.Content))))

	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	localPath := args[0]

	fi, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stating local file: %w", err)
	}

	if fi.IsDir() {
		return fmt.Errorf("%q is a directory, not a file", localPath)
	}

	key := filepath.Base(localPath)
	if len(args) > 1 {
		key = args[1]
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("reading %q: %w", localPath, err)
	}

	s, logger, err := openSession(cmd)
	if err != nil {
		return err
	}

	logger.Debug("put", "local_path", localPath, "key", key, "size", fi.Size())

	if err := s.Root.Set(cmd.Context(), key, content); err != nil {
		return fmt.Errorf("uploading %q: %w", key, err)
	}

	statusf(cmd, "Uploaded %s (%s)\n", key, formatSize(fi.Size()))

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	key := args[0]

	s, logger, err := openSession(cmd)
	if err != nil {
		return err
	}

	logger.Debug("rm", "key", key)

	if err := s.Root.Delete(cmd.Context(), key); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}

	statusf(cmd, "Deleted %s\n", key)

	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	dest, _ := cmd.Flags().GetString("dest")
	format, _ := cmd.Flags().GetString("export-format")

	s, logger, err := openSession(cmd)
	if err != nil {
		return err
	}

	f, err := subFolder(cmd, s.Root, args)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dest, localDirPerms); err != nil {
		return fmt.Errorf("creating %q: %w", dest, err)
	}

	var written, failed int

	for item, err := range f.ItemsAs(cmd.Context(), drive.FilesOnly, format) {
		if err != nil && item.Name == "" {
			return fmt.Errorf("listing %q: %w", f.Path(), err)
		}

		if err != nil {
			logger.Warn("skipping file", "name", item.Name, "error", err)
			statusf(cmd, "Skipped %s: %v\n", item.Name, err)
			failed++

			continue
		}

		target := filepath.Join(dest, filepath.Base(item.Name))
		if err := os.WriteFile(target, item.Value.Content, localFilePerms); err != nil {
			return fmt.Errorf("writing %q: %w", target, err)
		}

		written++
	}

	statusf(cmd, "Pulled %d file(s) from %s into %s\n", written, f.Path(), dest)

	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be downloaded", failed)
	}

	return nil
}
