package archive

import (
	"bytes"
	"context"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/opencontainers/go-digest"

	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/domain/pack"
	"github.com/oshokin/quaso-pack/internal/logger"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

// ChecksumFunction is used for archive checksums and replacement verification.
const ChecksumFunction crypto.Hash = crypto.SHA512

var errHashUnavailable = errors.New("hash function unavailable")

// Options configures archive creation.
type Options struct {
	// Compression is one of the config.Compression* names.
	Compression string
}

// Result describes a written archive.
type Result struct {
	// Path is the absolute archive path.
	Path string `yaml:"path"`
	// Files is the number of archived files.
	Files int `yaml:"files"`
	// Size is the archive size in bytes.
	Size int64 `yaml:"size"`
	// Checksum is the base64 SHA-512 of the archive.
	Checksum string `yaml:"checksum"`
	// Digest is the content-addressable digest of the archive.
	Digest digest.Digest `yaml:"digest"`
}

// Pack compresses the contents of stageDir into archivePath.
//
// Entry names are relative to stageDir. An absent or empty stage yields
// pack.EmptyStageError and leaves archivePath untouched. An existing archive
// is replaced atomically.
func Pack(ctx context.Context, stageDir, archivePath string, opts Options) (*Result, error) {
	entries, err := collect(ctx, stageDir, nil)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &pack.EmptyStageError{Path: stageDir}
	} else if err != nil {
		return nil, fmt.Errorf("read stage %s: %w", stageDir, err)
	}

	if len(entries) == 0 {
		return nil, &pack.EmptyStageError{Path: stageDir}
	}

	return write(ctx, entries, archivePath, opts)
}

// PackSource archives a template source tree. Names matching any exclude
// pattern are left out at every depth.
func PackSource(ctx context.Context, root, archivePath string, excludes []string, opts Options) (*Result, error) {
	skip := func(name string, _ bool) bool {
		return slices.ContainsFunc(excludes, func(pattern string) bool {
			matched, err := filepath.Match(pattern, name)

			return err == nil && matched
		})
	}

	entries, err := collect(ctx, root, skip)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", root, err)
	}

	if len(entries) == 0 {
		return nil, &pack.EmptyStageError{Path: root}
	}

	return write(ctx, entries, archivePath, opts)
}

func write(ctx context.Context, entries []entry, archivePath string, opts Options) (*Result, error) {
	data, err := writeZip(ctx, entries, opts.Compression)
	if err != nil {
		return nil, err
	}

	checksum, err := checksumOf(data)
	if err != nil {
		return nil, err
	}

	if err = replace(archivePath, data, checksum); err != nil {
		return nil, err
	}

	result := &Result{
		Path:     archivePath,
		Files:    len(entries),
		Size:     int64(len(data)),
		Checksum: base64.StdEncoding.EncodeToString(checksum),
		Digest:   digest.FromBytes(data),
	}

	logger.InfoKV(ctx, "Archive written",
		"path", result.Path,
		"files", result.Files,
		"size", result.Size,
		"digest", result.Digest)

	return result, nil
}

// replace atomically swaps archivePath for data, verifying the checksum on the way.
func replace(archivePath string, data, checksum []byte) error {
	if err := os.MkdirAll(filepath.Dir(archivePath), config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	// go-update swaps an existing file, so a new archive starts from an empty placeholder.
	created := false

	if _, err := os.Stat(archivePath); errors.Is(err, os.ErrNotExist) {
		f, err := os.Create(filepath.Clean(archivePath))
		if err != nil {
			return fmt.Errorf("create %s: %w", archivePath, err)
		}

		_ = f.Close()
		created = true
	}

	err := goupdate.Apply(bytes.NewReader(data), goupdate.Options{
		TargetPath: archivePath,
		TargetMode: config.DefaultFilePermissions,
		Checksum:   checksum,
		Hash:       ChecksumFunction,
	})
	if err != nil {
		if created {
			_ = os.Remove(archivePath)
		}

		if rerr := goupdate.RollbackError(err); rerr != nil {
			return fmt.Errorf("replace %s: %w (rollback failed: %v)", archivePath, err, rerr)
		}

		return fmt.Errorf("replace %s: %w", archivePath, err)
	}

	removeOld(archivePath)

	return nil
}

// removeOld deletes the backups go-update may leave next to the target.
func removeOld(archivePath string) {
	dir, name := filepath.Split(archivePath)

	for _, old := range []string{archivePath + ".old", filepath.Join(dir, "."+name+".old")} {
		if _, err := os.Stat(old); err == nil {
			_ = os.Remove(old)
		}
	}
}

func checksumOf(data []byte) ([]byte, error) {
	if !ChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := ChecksumFunction.New()
	if _, err := hasher.Write(data); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// Checksum returns the base64 SHA-512 of a file on disk.
func Checksum(path string) (string, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	sum, err := checksumOf(contents)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(sum), nil
}
