package materializer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ProjectFS is the absolute-rooted view of the project's source and output
// trees that every materialization method writes through. It owns the
// atomic-write primitive (write to a temp file beside the destination,
// fsync, rename) so a reader never observes a partially-written artifact at
// its final path — grounded in the original's project filesystem
// collaborator, which streams to a same-filesystem temp path specifically
// to make the rename atomic.
type ProjectFS struct {
	Root string
}

// Abs resolves a project-relative path to an absolute filesystem path.
func (fs *ProjectFS) Abs(rel string) string {
	return filepath.Join(fs.Root, filepath.FromSlash(rel))
}

// AtomicWrite streams r to dest by first writing to ".tmp.<uuid>" in
// dest's directory, fsyncing, and renaming over dest. mode is applied
// before the rename so the final path never appears with the wrong
// permissions.
func (fs *ProjectFS) AtomicWrite(destRel string, r io.Reader, mode os.FileMode) (int64, error) {
	dest := fs.Abs(destRel)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("materializer: mkdir %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp.%s", uuid.NewString()))
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, fmt.Errorf("materializer: create temp file: %w", err)
	}
	n, copyErr := io.Copy(f, r)
	if copyErr == nil {
		copyErr = f.Sync()
	}
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(tmp)
		if closeErr != nil && copyErr == nil {
			copyErr = closeErr
		}
		return n, fmt.Errorf("materializer: write temp file: %w", copyErr)
	}
	if err := os.Chmod(tmp, mode); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("materializer: chmod temp file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("materializer: rename into place: %w", err)
	}
	return n, nil
}

// CopyFile copies srcRel into destRel, hard-linking when possible and
// falling back to a byte copy across filesystem boundaries.
func (fs *ProjectFS) CopyFile(srcRel, destRel string) error {
	src := fs.Abs(srcRel)
	dest := fs.Abs(destRel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("materializer: mkdir for copy dest: %w", err)
	}
	if err := os.Link(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("materializer: open copy source %s: %w", src, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("materializer: stat copy source %s: %w", src, err)
	}
	_, err = fs.AtomicWrite(destRel, in, info.Mode().Perm())
	return err
}

// Symlink creates a symlink at destRel pointing at target (either an
// absolute external path or an absolute path under Root).
func (fs *ProjectFS) Symlink(target, destRel string) error {
	dest := fs.Abs(destRel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("materializer: mkdir for symlink dest: %w", err)
	}
	os.Remove(dest)
	if err := os.Symlink(target, dest); err != nil {
		return fmt.Errorf("materializer: symlink %s -> %s: %w", dest, target, err)
	}
	return nil
}

// Remove deletes the file or directory at rel. A missing path is not an
// error: the cleaner treats "already gone" as success.
func (fs *ProjectFS) Remove(rel string) error {
	if err := os.RemoveAll(fs.Abs(rel)); err != nil {
		return fmt.Errorf("materializer: remove %s: %w", rel, err)
	}
	return nil
}

// IsDir reports whether rel exists and is a directory.
func (fs *ProjectFS) IsDir(rel string) bool {
	info, err := os.Stat(fs.Abs(rel))
	return err == nil && info.IsDir()
}

// Exists reports whether rel exists on disk.
func (fs *ProjectFS) Exists(rel string) bool {
	_, err := os.Lstat(fs.Abs(rel))
	return err == nil
}
