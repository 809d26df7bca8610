package xfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/disk"
)

// createPerm is handed to open(2) for new outputs so the umask applies,
// as with a plain create.
const createPerm = 0666

var tmpSeq atomic.Uint64

// resolveOutput follows a symlink at path so the link's target is the
// file that gets replaced. A dangling link resolves to where it points.
func resolveOutput(path string) (string, error) {
	fi, err := os.Lstat(path)
	if err != nil || fi.Mode()&os.ModeSymlink == 0 {
		return path, nil
	}
	if target, err := filepath.EvalSymlinks(path); err == nil {
		return target, nil
	}
	link, err := os.Readlink(path)
	if err != nil {
		return "", fmt.Errorf("failed to read symlink: %w", err)
	}
	if !filepath.IsAbs(link) {
		link = filepath.Join(filepath.Dir(path), link)
	}
	return link, nil
}

// createTemp opens a fresh file next to path with O_EXCL and createPerm.
func createTemp(path string) (*os.File, error) {
	dir, base := filepath.Dir(path), filepath.Base(path)
	for {
		name := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", base, os.Getpid(), tmpSeq.Add(1)))
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, createPerm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return f, err
	}
}

// writeFileAtomic writes chunks to a temp file next to path, syncs it and
// renames it over path. A symlink at path is followed, and an existing
// regular file keeps its mode. The temp file never survives a failure.
func writeFileAtomic(path string, chunks ...[]byte) (err error) {
	path, err = resolveOutput(path)
	if err != nil {
		return err
	}

	tmp, err := createTemp(path)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	for _, c := range chunks {
		if _, err = tmp.Write(c); err != nil {
			return fmt.Errorf("failed to write temp file: %w", err)
		}
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if fi, statErr := os.Stat(path); statErr == nil && fi.Mode().IsRegular() {
		if err = tmp.Chmod(fi.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to keep permissions: %w", err)
		}
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// diskFree reports the bytes available to unprivileged users on the
// filesystem holding dir.
func diskFree(dir string) (uint64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to stat filesystem of %s: %w", dir, err)
	}
	return usage.Free, nil
}

func checkSpace(free func(string) (uint64, error), path string, need uint64) error {
	dir := filepath.Dir(path)
	avail, err := free(dir)
	if err != nil {
		return err
	}
	if need > avail {
		return fmt.Errorf("%w in %s: need %d bytes, have %d", ErrNoSpace, dir, need, avail)
	}
	return nil
}
