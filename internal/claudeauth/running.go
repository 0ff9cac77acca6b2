package claudeauth

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// livenessSweepInterval bounds how stale a dead lock file can keep the
// wait loop alive when no directory event fires.
const livenessSweepInterval = 2 * time.Second

// livePIDs lists session lock files whose owning process still exists.
// Each running IDE-attached session keeps a <pid>.lock in the lock
// directory; files left behind by crashed sessions are filtered out.
func (c *Client) livePIDs() ([]int, error) {
	entries, err := os.ReadDir(c.lockDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var pids []int
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".lock") {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSuffix(name, ".lock"))
		if err != nil || pid <= 0 {
			continue
		}
		if processAlive(pid) {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// Running reports whether at least one application session holds a live
// lock.
func (c *Client) Running() (bool, error) {
	pids, err := c.livePIDs()
	if err != nil {
		return false, err
	}
	return len(pids) > 0, nil
}

// WaitUntilClosed blocks until every application session has exited or the
// context is cancelled. Lock-directory events wake the check immediately;
// a periodic sweep catches processes that died without removing their
// lock file.
func (c *Client) WaitUntilClosed(ctx context.Context) error {
	pids, err := c.livePIDs()
	if err != nil {
		return err
	}
	if len(pids) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(c.lockDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	ticker := time.NewTicker(livenessSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-watcher.Events:
			if !ok {
				return errors.New("lock watcher closed")
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return errors.New("lock watcher closed")
			}
			if werr != nil {
				return werr
			}
		case <-ticker.C:
		}

		pids, err := c.livePIDs()
		if err != nil {
			return err
		}
		if len(pids) == 0 {
			return nil
		}
	}
}
