package stage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/opencontainers/go-digest"

	"github.com/oshokin/quaso-pack/internal/domain/pack"
	"github.com/oshokin/quaso-pack/internal/logger"
	"github.com/oshokin/quaso-pack/internal/resolver"
)

// Result describes a populated staging directory.
type Result struct {
	// Dir is the absolute staging directory.
	Dir string
	// Files lists every staged file, slash-separated, relative to Dir and sorted.
	Files []string
	// Digest fingerprints the staged file names and contents.
	Digest digest.Digest
}

// errUnsafeDest is returned when an artifact destination escapes the stage.
var errUnsafeDest = errors.New("artifact destination must stay inside the staging directory")

// Assemble recreates the staging directory for res and copies the target's
// staging set into it.
//
// The previous stage is deleted before anything else, so a failed run leaves
// no stage behind. Every source is checked before the first copy; a missing
// source, or an empty build output, yields pack.MissingArtifactError.
func Assemble(ctx context.Context, res *resolver.Resolution) (*Result, error) {
	ctx = logger.WithKV(ctx, "template", res.Template.Name, "stage", res.Target.Label)

	if err := os.RemoveAll(res.Stage); err != nil {
		return nil, fmt.Errorf("remove previous stage %s: %w", res.Stage, err)
	}

	sources, err := verifySources(res)
	if err != nil {
		return nil, err
	}

	for i, artifact := range res.Target.Artifacts {
		dst := filepath.Join(res.Stage, filepath.FromSlash(artifact.Dest))

		if artifact.Dir {
			err = copyDir(sources[i].path, dst)
		} else {
			err = copyFile(sources[i].path, dst, sources[i].info.Mode())
		}

		if err != nil {
			_ = os.RemoveAll(res.Stage)

			return nil, fmt.Errorf("stage %s: %w", artifact.Source, err)
		}
	}

	result, err := Inspect(res.Stage)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Stage assembled", "dir", result.Dir, "files", len(result.Files), "digest", result.Digest)

	return result, nil
}

// source is a verified staging input.
type source struct {
	path string
	info fs.FileInfo
}

// verifySources checks every artifact of the staging set without copying anything.
func verifySources(res *resolver.Resolution) ([]source, error) {
	sources := make([]source, 0, len(res.Target.Artifacts))

	for _, artifact := range res.Target.Artifacts {
		if !filepath.IsLocal(filepath.FromSlash(artifact.Dest)) {
			return nil, fmt.Errorf("%s: %w", artifact.Dest, errUnsafeDest)
		}

		path := filepath.Join(res.Template.Root, filepath.FromSlash(artifact.Source))

		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, &pack.MissingArtifactError{Path: path}
		} else if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}

		if info.IsDir() != artifact.Dir {
			return nil, &pack.MissingArtifactError{Path: path}
		}

		if artifact.Built && info.Size() == 0 {
			return nil, &pack.MissingArtifactError{Path: path}
		}

		sources = append(sources, source{path: path, info: info})
	}

	return sources, nil
}

// Inspect lists the files of an existing stage and computes its digest.
// The digest covers each relative path and content digest, in sorted order,
// so it is stable across runs and platforms.
func Inspect(dir string) (*Result, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		files = append(files, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inspect stage %s: %w", dir, err)
	}

	sort.Strings(files)

	digester := digest.Canonical.Digester()

	for _, rel := range files {
		fileDigest, err := digestFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}

		_, _ = fmt.Fprintf(digester.Hash(), "%s\x00%s\n", rel, fileDigest)
	}

	return &Result{
		Dir:    dir,
		Files:  files,
		Digest: digester.Digest(),
	}, nil
}

func digestFile(path string) (digest.Digest, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = f.Close()
	}()

	return digest.Canonical.FromReader(f)
}
