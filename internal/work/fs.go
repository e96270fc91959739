package work

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dagrun/internal/job"
)

// MakeDir creates Dir (and parents) under Parent.
type MakeDir struct {
	Env    Env
	Parent string
	Dir    string
}

func (w MakeDir) Execute(ctx context.Context) error {
	p, err := w.Env.path(w.Parent, w.Dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", p, err)
	}
	return nil
}

// RenameDir moves Dir to NewName, both under Parent. Missing parents of the
// destination are created.
type RenameDir struct {
	Env     Env
	Parent  string
	Dir     string
	NewName string
}

func (w RenameDir) Execute(ctx context.Context) error {
	if w.NewName == "" {
		return job.NoRetry(errors.New("rename: new name is empty"))
	}
	from, err := w.Env.path(w.Parent, w.Dir)
	if err != nil {
		return err
	}
	to, err := w.Env.path(w.Parent, w.NewName)
	if err != nil {
		return err
	}
	if _, err := os.Stat(to); err == nil {
		return job.NoRetry(fmt.Errorf("rename %s: destination %s exists", from, to))
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// RemoveDir removes an empty directory.
type RemoveDir struct {
	Env    Env
	Parent string
	Dir    string
}

func (w RemoveDir) Execute(ctx context.Context) error {
	p, err := w.Env.path(w.Parent, w.Dir)
	if err != nil {
		return err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("rmdir: %w", err)
	}
	if !fi.IsDir() {
		return job.NoRetry(fmt.Errorf("rmdir %s: not a directory", p))
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("rmdir: %w", err)
	}
	return nil
}

// RemoveFile removes a single file.
type RemoveFile struct {
	Env  Env
	Dir  string
	Name string
}

func (w RemoveFile) Execute(ctx context.Context) error {
	p, err := w.Env.path(w.Dir, w.Name)
	if err != nil {
		return err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	if fi.IsDir() {
		return job.NoRetry(fmt.Errorf("remove %s: is a directory", p))
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// WriteFile writes Text to Name in Dir, replacing existing content. Dir must
// already exist.
type WriteFile struct {
	Env  Env
	Dir  string
	Name string
	Text string
}

func (w WriteFile) Execute(ctx context.Context) error {
	p, err := w.Env.path(w.Dir, w.Name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, []byte(w.Text), 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// ReadFile reads Name in Dir to the end. Content is discarded; the job only
// proves the file is readable.
type ReadFile struct {
	Env  Env
	Dir  string
	Name string
}

func (w ReadFile) Execute(ctx context.Context) error {
	p, err := w.Env.path(w.Dir, w.Name)
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(io.Discard, readerCtx{ctx: ctx, r: f}); err != nil {
		return fmt.Errorf("read %s: %w", p, err)
	}
	return nil
}

// readerCtx stops a long copy once ctx is done.
type readerCtx struct {
	ctx context.Context
	r   io.Reader
}

func (r readerCtx) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, context.Cause(r.ctx)
	}
	return r.r.Read(p)
}
