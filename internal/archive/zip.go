package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/oshokin/quaso-pack/internal/config"
)

const (
	// executableMode is stored for entries with any execute bit set.
	executableMode fs.FileMode = 0o755
	// regularMode is stored for every other entry.
	regularMode fs.FileMode = 0o644
)

var (
	// modTime is stored on every entry so identical stages give identical archives.
	modTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

	// ErrUnsafeEntry is returned for entry names that are absolute or leave the archive root.
	ErrUnsafeEntry = errors.New("archive entry escapes the archive root")
)

// entry is one file scheduled for the archive.
type entry struct {
	// name is the slash-separated path inside the archive.
	name string
	// path is the file on disk.
	path string
	// mode is the normalized permission stored in the archive.
	mode fs.FileMode
}

// skipFunc reports whether a walked name is left out. Skipped directories are
// not descended into.
type skipFunc func(name string, dir bool) bool

// collect walks root and returns its regular files sorted by entry name.
func collect(ctx context.Context, root string, skip skipFunc) ([]entry, error) {
	var entries []entry

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err = ctx.Err(); err != nil {
			return err
		}

		if p == root {
			return nil
		}

		if skip != nil && skip(d.Name(), d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		name, err := entryName(rel)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		entries = append(entries, entry{name: name, path: p, mode: normalizeMode(info.Mode())})

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].name < entries[j].name
	})

	return entries, nil
}

// entryName converts a path relative to the archive root into a zip entry name.
func entryName(rel string) (string, error) {
	name := filepath.ToSlash(rel)
	if path.IsAbs(name) || filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%q: %w", rel, ErrUnsafeEntry)
	}

	return path.Clean(name), nil
}

func normalizeMode(mode fs.FileMode) fs.FileMode {
	if mode&0o111 != 0 {
		return executableMode
	}

	return regularMode
}

// method maps a configured compression name onto a zip method.
func method(compression string) uint16 {
	switch compression {
	case config.CompressionStore:
		return zip.Store
	case config.CompressionZstd:
		return zstd.ZipMethodWinZip
	default:
		return zip.Deflate
	}
}

// writeZip builds the archive in memory.
func writeZip(ctx context.Context, entries []entry, compression string) ([]byte, error) {
	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(zstd.WithEncoderConcurrency(1)))

	m := method(compression)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		header := &zip.FileHeader{
			Name:     e.name,
			Method:   m,
			Modified: modTime,
		}
		header.SetMode(e.mode)

		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("create entry %s: %w", e.name, err)
		}

		if err = copyInto(w, e.path); err != nil {
			return nil, fmt.Errorf("write entry %s: %w", e.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}

	return buf.Bytes(), nil
}

func copyInto(w io.Writer, p string) error {
	f, err := os.Open(filepath.Clean(p))
	if err != nil {
		return err
	}

	defer func() {
		_ = f.Close()
	}()

	_, err = io.Copy(w, f)

	return err
}

// Entries lists the entry names of an archive in stored order.
func Entries(archivePath string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", archivePath, err)
	}

	defer func() {
		_ = r.Close()
	}()

	r.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}

	return names, nil
}
