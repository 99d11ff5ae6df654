package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const archiveDirPerm os.FileMode = 0o750

// Entry is one successfully produced item file to bundle.
type Entry struct {
	Index      int
	Title      string
	SourcePath string
}

// Build writes the entries into a zip at destZipPath. Entry names are the
// item index plus the sanitized title, so two items with identical titles
// never collide. Rebuilding for the same inputs truncates the previous
// archive and yields the same entry set, never duplicates.
func Build(destZipPath string, entries []Entry) error {
	if len(entries) == 0 {
		return errors.New("no entries to archive")
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	zipFile, err := createFile(destZipPath)
	if err != nil {
		return err
	}
	zipWriter := zip.NewWriter(zipFile)
	defer func() { _ = zipWriter.Close() }()
	defer func() { _ = zipFile.Close() }()

	for _, entry := range sorted {
		if err := addEntry(zipWriter, entry); err != nil {
			return err
		}
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("close zip writer: %w", err)
	}
	if err := zipFile.Close(); err != nil {
		return fmt.Errorf("close zip file: %w", err)
	}
	return nil
}

func addEntry(zipWriter *zip.Writer, entry Entry) error {
	src, err := os.Open(entry.SourcePath) //nolint:gosec // path produced by the fetch collaborator under the job dir
	if err != nil {
		return fmt.Errorf("open %q: %w", entry.SourcePath, err)
	}
	defer func() { _ = src.Close() }()

	name := EntryName(entry.Index, entry.Title, filepath.Ext(entry.SourcePath))
	entryWriter, err := zipWriter.Create(name)
	if err != nil {
		return fmt.Errorf("zip entry %q: %w", name, err)
	}
	if _, err := io.Copy(entryWriter, src); err != nil {
		return fmt.Errorf("copy %q: %w", name, err)
	}
	return nil
}

// EntryName derives the stable in-archive name for an item.
func EntryName(index int, title, ext string) string {
	return fmt.Sprintf("%03d-%s%s", index, slugify(title), ext)
}

var unsafeRunes = regexp.MustCompile(`[^a-zA-Z0-9_\-]+`)

// slugify collapses anything filesystem-hostile to underscores.
func slugify(text string) string {
	text = unsafeRunes.ReplaceAllString(text, "_")
	text = strings.Trim(text, "_")
	if text == "" {
		return "item"
	}
	return text
}

// createFile creates or truncates the destination along with its parent dir.
func createFile(destinationPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(destinationPath), archiveDirPerm); err != nil { //nolint:gosec // directory created by application under controlled path
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	outputFile, err := os.Create(destinationPath) //nolint:gosec // path is constructed by the application
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return outputFile, nil
}
