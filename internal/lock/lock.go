// Package lock keeps two pipeline runs on one host from writing the warehouse at the same time.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/climadw/climadw/internal/config"
)

const DefaultPath = "~/.climadw/climadw.lock"

// HeldError is returned when a live process owns the lock.
type HeldError struct {
	PID int
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("another climadw run is in progress (PID %d)", e.PID)
}

// Lock is a held PID lock file.
type Lock struct {
	path string
}

// Acquire takes the lock at path, replacing a lock file left behind by a
// process that is no longer running. The lock file is linked into place
// with its PID already written, so a reader never sees it empty.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	for attempt := 0; ; attempt++ {
		err := link(path)
		if err == nil {
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}

		pid, running, err := Holder(path)
		if err != nil {
			return nil, err
		}
		if running || attempt > 0 {
			return nil, &HeldError{PID: pid}
		}
		// stale
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("removing stale lock: %w", err)
		}
	}
}

// link writes our PID to a temporary file beside path and hard-links it to
// path, failing with fs.ErrExist when path is already taken.
func link(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating lock: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, werr := tmp.WriteString(strconv.Itoa(os.Getpid()))
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("writing lock: %w", werr)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("writing lock: %w", err)
	}

	if err := os.Link(tmp.Name(), path); err != nil {
		var le *os.LinkError
		if errors.As(err, &le) && errors.Is(le.Err, fs.ErrExist) {
			return fs.ErrExist
		}
		return fmt.Errorf("creating lock: %w", err)
	}
	return nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Holder reports the PID recorded in the lock file and whether that process
// is still running. pid is 0 when there is no readable lock.
func Holder(path string) (pid int, running bool, err error) {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("reading lock: %w", err)
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		// the PID is written before the file is linked, so garbage is stale
		return -1, false, nil
	}
	return pid, isProcessRunning(pid), nil
}

func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
