package stage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/oshokin/quaso-pack/internal/config"
)

// copyFile copies a regular file, keeping its permission bits.
func copyFile(src, dst string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), config.DefaultDirPermissions); err != nil {
		return err
	}

	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return fmt.Errorf("copy %s: %w", src, err)
	}

	return out.Close()
}

// errSymlinkLoop is returned for a symlinked directory that points back into
// the tree being copied.
var errSymlinkLoop = errors.New("symlinked directory loops back into the copied tree")

// copyDir copies a directory tree. Symlinks are followed; anything that is
// neither a regular file nor a directory is skipped.
func copyDir(src, dst string) error {
	return copyTree(src, dst, nil)
}

// copyTree copies src into dst. chain holds the real paths of the trees whose
// copy is in progress above src.
func copyTree(src, dst string, chain []string) error {
	root, err := filepath.EvalSymlinks(src)
	if err != nil {
		return err
	}

	chain = append(slices.Clip(chain), root)

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)

		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		switch {
		case info.IsDir():
			if d.Type()&fs.ModeSymlink == 0 {
				return os.MkdirAll(target, config.DefaultDirPermissions)
			}

			if err = checkLoop(path, filepath.Join(root, rel), chain); err != nil {
				return err
			}

			return copyTree(path, target, chain)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode())
		default:
			return nil
		}
	})
}

// checkLoop rejects a directory link at path, whose real location is realPath,
// when it resolves to an ancestor of itself or of a tree on the chain.
func checkLoop(path, realPath string, chain []string) error {
	linked, err := filepath.EvalSymlinks(path)
	if err != nil {
		return err
	}

	for _, dir := range append(slices.Clip(chain), filepath.Dir(realPath)) {
		if dir == linked || strings.HasPrefix(dir, linked+string(filepath.Separator)) {
			return fmt.Errorf("%s: %w", path, errSymlinkLoop)
		}
	}

	return nil
}
