// Package lockfile keeps two servers from sharing one database.
//
// The lock is a file next to the database holding the owner's PID and the
// time it was taken. A lock whose PID no longer runs is reclaimed.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Suffix is appended to a database path to form its lock path.
const Suffix = ".lock"

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("database is in use by another server")

// Owner describes the process recorded in a lock file.
type Owner struct {
	PID     int
	Since   time.Time
	Running bool
}

// Lockfile is an exclusive, file-based lock.
type Lockfile struct {
	path   string
	file   *os.File
	locked bool
}

// New creates a lock at path. Nothing touches the filesystem until
// TryAcquire.
func New(path string) *Lockfile {
	return &Lockfile{path: path}
}

// ForDatabase returns the lock guarding the database at dbPath.
func ForDatabase(dbPath string) *Lockfile {
	return New(dbPath + Suffix)
}

// TryAcquire takes the lock or returns ErrLocked if a running process owns
// it. A stale lock is removed and taken over.
func (l *Lockfile) TryAcquire() error {
	if l.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	file, err := l.create()
	if errors.Is(err, os.ErrExist) {
		owner, readErr := l.Owner()
		if readErr == nil && owner.Running {
			return fmt.Errorf("%w (pid %d since %s)", ErrLocked, owner.PID, owner.Since.Format(time.RFC3339))
		}
		if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("failed to remove stale lock: %w", removeErr)
		}
		file, err = l.create()
	}
	if err != nil {
		return fmt.Errorf("failed to create lock: %w", err)
	}

	l.file = file
	l.locked = true

	if _, err := fmt.Fprintf(file, "%d\n%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339)); err != nil {
		_ = l.Release()
		return fmt.Errorf("failed to write lock: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = l.Release()
		return fmt.Errorf("failed to sync lock: %w", err)
	}
	return nil
}

func (l *Lockfile) create() (*os.File, error) {
	return os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
}

// Owner reads the process recorded in the lock file. An unreadable or
// malformed file yields an error.
func (l *Lockfile) Owner() (Owner, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return Owner{}, err
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || pid <= 0 {
		return Owner{}, fmt.Errorf("invalid pid in %s", l.path)
	}

	owner := Owner{PID: pid, Running: isProcessRunning(pid)}
	if len(lines) > 1 {
		owner.Since, _ = time.Parse(time.RFC3339, strings.TrimSpace(lines[1]))
	}
	return owner, nil
}

// Release drops the lock and removes the file. Releasing an unheld lock is
// a no-op.
func (l *Lockfile) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false

	var errs []error
	if l.file != nil {
		errs = append(errs, l.file.Close())
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove lock: %w", err))
	}
	return errors.Join(errs...)
}

// Locked reports whether this instance holds the lock.
func (l *Lockfile) Locked() bool {
	return l.locked
}

// Path returns the lock file path.
func (l *Lockfile) Path() string {
	return l.path
}
