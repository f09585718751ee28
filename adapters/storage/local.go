// Package storage writes transcoder output to the local filesystem.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/Skryldev/image-transcoder/errors"
)

// Local stores output files under a root directory.
type Local struct {
	rootDir     string
	permissions os.FileMode
}

// NewLocal creates a Local sink rooted at dir.
func NewLocal(dir string, perm os.FileMode) (*Local, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: mkdir %s: %w", dir, err)
	}
	return &Local{rootDir: dir, permissions: perm}, nil
}

func (l *Local) absPath(name string) string {
	return filepath.Join(l.rootDir, filepath.Clean("/"+name))
}

// Object is a file being written.  Nothing is visible under its final name
// until Commit.
type Object struct {
	f         *os.File
	path      string
	perm      os.FileMode
	committed bool
}

// Create starts writing name.
func (l *Local) Create(ctx context.Context, name string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryTransport, "local.create", err)
	}
	path := l.absPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryTransport, "local.create.mkdir", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryTransport, "local.create.open", err)
	}
	return &Object{f: f, path: path, perm: l.permissions}, nil
}

// Path returns the final location of o.
func (o *Object) Path() string { return o.path }

func (o *Object) Write(p []byte) (int, error) { return o.f.Write(p) }

// Commit moves the data to its final name and, when meta is not empty,
// writes it to a side-car JSON file next to it.
func (o *Object) Commit(meta map[string]string) error {
	if err := o.f.Chmod(o.perm); err != nil {
		o.Abort()
		return apperrors.Wrap(apperrors.CategoryTransport, "local.commit.chmod", err)
	}
	if err := o.f.Close(); err != nil {
		o.Abort()
		return apperrors.Wrap(apperrors.CategoryTransport, "local.commit.close", err)
	}
	if err := os.Rename(o.f.Name(), o.path); err != nil {
		o.Abort()
		return apperrors.Wrap(apperrors.CategoryTransport, "local.commit.rename", err)
	}
	o.committed = true

	if len(meta) > 0 {
		mf, err := os.OpenFile(o.path+".meta.json", os.O_WRONLY|os.O_CREATE|os.O_TRUNC, o.perm)
		if err != nil {
			return apperrors.Wrap(apperrors.CategoryTransport, "local.commit.meta", err)
		}
		defer mf.Close()
		enc := json.NewEncoder(mf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(meta); err != nil {
			return apperrors.Wrap(apperrors.CategoryTransport, "local.commit.meta", err)
		}
	}
	return nil
}

// Abort discards an uncommitted object.  It is safe to call after Commit.
func (o *Object) Abort() {
	if o.committed {
		return
	}
	o.f.Close()
	os.Remove(o.f.Name())
}

var _ io.Writer = (*Object)(nil)
