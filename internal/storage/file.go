package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	logx "timetablebot/pkg/logx"
)

// fileRepo keeps the whole map in memory and rewrites the file on every commit.
type fileRepo struct {
	path string
	log  logx.Logger

	wmu sync.Mutex // single writer

	mu     sync.RWMutex
	data   Records
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	r := &fileRepo{path: cfg.Path, log: log}
	r.data = r.load()
	return r, nil
}

// load fails open: an unreadable or corrupt file yields an empty map and is
// moved aside so the next commit does not overwrite the evidence.
func (r *fileRepo) load() Records {
	b, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return Records{}
	}
	if err != nil {
		r.log.Error("storage read failed; starting empty", logx.String("path", r.path), logx.Err(err))
		return Records{}
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return Records{}
	}
	var m Records
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		aside := fmt.Sprintf("%s.corrupt-%d", r.path, time.Now().Unix())
		if rerr := os.Rename(r.path, aside); rerr != nil {
			r.log.Warn("storage backup failed", logx.String("path", r.path), logx.Err(rerr))
		}
		r.log.Error("storage file corrupt; starting empty",
			logx.String("path", r.path), logx.String("backup", aside), logx.Err(err))
		return Records{}
	}
	return m
}

func (r *fileRepo) Snapshot(ctx context.Context) (Records, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	return r.data.Clone(), nil
}

func (r *fileRepo) Update(ctx context.Context, fn func(Records) error) error {
	r.wmu.Lock()
	defer r.wmu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrClosed
	}
	work := r.data.Clone()
	r.mu.RUnlock()

	if err := fn(work); err != nil {
		return err
	}
	if err := writeAtomic(r.path, work); err != nil {
		return err
	}

	r.mu.Lock()
	r.data = work
	r.mu.Unlock()
	return nil
}

func (r *fileRepo) Close() error {
	r.wmu.Lock()
	defer r.wmu.Unlock()
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// writeAtomic replaces path with the indented JSON of m: temp file, fsync, rename.
func writeAtomic(path string, m Records) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
