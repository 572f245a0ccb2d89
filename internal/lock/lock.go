// Package lock implements the per-sanctuary marker file that serialises
// mutating operations across processes.
package lock

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// DefaultStaleAfter is the age past which a marker is always considered stale
const DefaultStaleAfter = 5 * time.Minute

const (
	guardSuffix  = ".guard"
	guardTimeout = 2 * time.Second
	guardRetry   = 10 * time.Millisecond

	cleanupRetries = 3
	cleanupDelay   = 100 * time.Millisecond

	humanLayout = "2006-01-02 15:04:05"
)

// ErrStaleCleanup is returned when a stale marker could not be removed
var ErrStaleCleanup = errors.New("failed to remove stale lock")

// Info describes the holder of a lock
type Info struct {
	PID       int       `json:"pid"`
	Timestamp string    `json:"timestamp"`
	Operation string    `json:"operation"`
	Created   time.Time `json:"created"`
}

// Age returns how long the lock has been held at now
func (i Info) Age(now time.Time) time.Duration {
	return now.Sub(i.Created)
}

// StalePolicy reports whether a marker may be taken over
type StalePolicy func(info Info, now time.Time) bool

// DefaultStalePolicy treats markers older than maxAge, or owned by a process
// that no longer exists, as stale.
func DefaultStalePolicy(maxAge time.Duration) StalePolicy {
	return func(info Info, now time.Time) bool {
		if info.Age(now) > maxAge {
			return true
		}
		return !processAlive(info.PID)
	}
}

// ContentionError is returned by WithLock when another operation holds the lock
type ContentionError struct {
	Operation string
	Holder    *Info
}

func (e *ContentionError) Error() string {
	if e.Holder == nil {
		return fmt.Sprintf("cannot %s: sanctuary is locked", e.Operation)
	}
	return fmt.Sprintf("cannot %s: sanctuary is locked by %q (pid %d) since %s",
		e.Operation, e.Holder.Operation, e.Holder.PID, e.Holder.Timestamp)
}

// Locker guards one marker file. A Locker is not safe for concurrent use;
// separate processes (or goroutines) use separate Lockers on the same path.
type Locker struct {
	Path     string
	Disabled bool
	Stale    StalePolicy
	Now      func() time.Time
	PID      int

	held bool
}

// New returns a Locker for path with the default stale policy
func New(path string) *Locker {
	return &Locker{
		Path:  path,
		Stale: DefaultStalePolicy(DefaultStaleAfter),
		Now:   time.Now,
		PID:   os.Getpid(),
	}
}

func (l *Locker) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}

func (l *Locker) pid() int {
	if l.PID == 0 {
		return os.Getpid()
	}
	return l.PID
}

func (l *Locker) stale(info Info) bool {
	if l.Stale == nil {
		return DefaultStalePolicy(DefaultStaleAfter)(info, l.now())
	}
	return l.Stale(info, l.now())
}

// Acquire takes the lock for op. It returns false without waiting when a live
// holder exists. A stale marker is removed and the acquire retried once.
func (l *Locker) Acquire(op string) (bool, error) {
	if l.Disabled {
		return true, nil
	}
	if l.held {
		return false, fmt.Errorf("lock %s already held by this locker", l.Path)
	}

	if err := os.MkdirAll(filepath.Dir(l.Path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	guard := flock.New(l.Path + guardSuffix)
	ctx, cancel := context.WithTimeout(context.Background(), guardTimeout)
	defer cancel()

	ok, err := guard.TryLockContext(ctx, guardRetry)
	if err != nil {
		// a guard held past the timeout means the other side is mid-acquire
		if errors.Is(err, context.DeadlineExceeded) {
			return false, nil
		}
		return false, fmt.Errorf("failed to lock guard file: %w", err)
	}
	if !ok {
		return false, nil
	}
	defer func() {
		if err := guard.Unlock(); err != nil {
			log.Warnf("failed to release lock guard: %v", err)
		}
	}()

	for attempt := 0; attempt < 2; attempt++ {
		info, err := l.read()
		switch {
		case os.IsNotExist(err):
			if err := l.write(op); err != nil {
				return false, err
			}
			l.held = true
			log.Debugf("acquired lock for %s", op)
			return true, nil
		case err != nil:
			log.Warnf("unreadable lock file %s, treating as stale: %v", l.Path, err)
		case !l.stale(*info):
			return false, nil
		default:
			log.Infof("removing stale lock held by pid %d (%s)", info.PID, info.Operation)
		}

		if err := l.removeStale(); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Release removes the marker if this Locker holds it and the marker still
// names this process.
func (l *Locker) Release() error {
	if l.Disabled || !l.held {
		return nil
	}
	l.held = false

	info, err := l.read()
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lock file: %w", err)
	}
	if info.PID != l.pid() {
		log.Warnf("lock was taken over by pid %d, leaving it in place", info.PID)
		return nil
	}
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// IsLocked reports whether a marker exists
func (l *Locker) IsLocked() bool {
	if l.Disabled {
		return false
	}
	_, err := os.Stat(l.Path)
	return err == nil
}

// Info returns the current holder, or nil when unlocked
func (l *Locker) Info() (*Info, error) {
	if l.Disabled {
		return nil, nil
	}
	info, err := l.read()
	if os.IsNotExist(err) {
		return nil, nil
	}
	return info, err
}

// ForceUnlock removes the marker regardless of its owner. It reports whether
// a marker was present.
func (l *Locker) ForceUnlock() (bool, error) {
	if l.Disabled {
		return false, nil
	}
	err := os.Remove(l.Path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to remove lock file: %w", err)
	}
	l.held = false
	return true, nil
}

// WithLock runs fn while holding the lock for op. The lock is released on
// every return path, including panics.
func (l *Locker) WithLock(op string, fn func() error) (err error) {
	ok, err := l.Acquire(op)
	if err != nil {
		return err
	}
	if !ok {
		holder, _ := l.Info()
		return &ContentionError{Operation: op, Holder: holder}
	}
	defer func() {
		if rerr := l.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}

func (l *Locker) write(op string) error {
	now := l.now()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "pid=%d\n", l.pid())
	fmt.Fprintf(&buf, "timestamp=%s\n", now.Format(humanLayout))
	fmt.Fprintf(&buf, "operation=%s\n", op)
	fmt.Fprintf(&buf, "created=%d\n", now.UnixMilli())

	dir := filepath.Dir(l.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to install lock file: %w", err)
	}
	return nil
}

func (l *Locker) read() (*Info, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (l *Locker) removeStale() error {
	op := func() error {
		err := os.Remove(l.Path)
		if err == nil || os.IsNotExist(err) {
			return nil
		}
		return err
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(cleanupDelay), cleanupRetries)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("%w %s: %v", ErrStaleCleanup, l.Path, err)
	}
	return nil
}

// Parse decodes the key=value marker format
func Parse(data []byte) (*Info, error) {
	fields := map[string]string{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	for _, key := range []string{"pid", "created"} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("lock file has no %s", key)
		}
	}

	pid, err := cast.ToIntE(fields["pid"])
	if err != nil || pid <= 0 {
		return nil, fmt.Errorf("invalid pid %q in lock file", fields["pid"])
	}
	created, err := cast.ToInt64E(fields["created"])
	if err != nil {
		return nil, fmt.Errorf("invalid created %q in lock file", fields["created"])
	}

	return &Info{
		PID:       pid,
		Timestamp: fields["timestamp"],
		Operation: fields["operation"],
		Created:   time.UnixMilli(created),
	}, nil
}
