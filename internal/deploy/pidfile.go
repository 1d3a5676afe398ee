package deploy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
)

const (
	pidFileName  = "homestock.pid"
	lockFileName = "homestock.lock"
)

// ErrAlreadyRunning is returned by Guard when another server holds the lock.
var ErrAlreadyRunning = errors.New("homestock server already running")

// PIDFile records the server's PID next to an exclusive file lock. The lock
// decides liveness; the PID is informational, for status and stop.
type PIDFile struct {
	path string
	lock *flock.Flock
}

// NewPIDFile creates a PID file manager for the given data directory.
func NewPIDFile(dataDir string) *PIDFile {
	return &PIDFile{
		path: filepath.Join(dataDir, pidFileName),
		lock: flock.New(filepath.Join(dataDir, lockFileName)),
	}
}

// Path returns the full path to the PID file.
func (p *PIDFile) Path() string {
	return p.path
}

// Write creates/overwrites the PID file with the current process ID.
func (p *PIDFile) Write() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	data := []byte(strconv.Itoa(os.Getpid()))
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Read returns the PID stored in the PID file, or 0 if not found.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// IsRunning reports whether a server holds the lock, and its PID. A PID
// file left behind by a crashed server is removed.
func (p *PIDFile) IsRunning() (int, bool) {
	if p.lock.Locked() {
		return os.Getpid(), true
	}
	if _, err := os.Stat(p.lock.Path()); os.IsNotExist(err) {
		p.Remove()
		return 0, false
	}

	probe := flock.New(p.lock.Path())
	locked, err := probe.TryLock()
	if err != nil {
		return 0, false
	}
	if locked {
		probe.Unlock()
		p.Remove()
		return 0, false
	}

	pid, err := p.Read()
	if err != nil || pid == 0 || !processExists(pid) {
		return 0, true
	}
	return pid, true
}

// Guard takes the server lock and writes the PID file. It fails with
// ErrAlreadyRunning if another server holds the lock.
func (p *PIDFile) Guard() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	locked, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", p.lock.Path(), err)
	}
	if !locked {
		pid, _ := p.Read()
		return fmt.Errorf("%w (pid=%d)", ErrAlreadyRunning, pid)
	}
	if err := p.Write(); err != nil {
		p.lock.Unlock()
		return err
	}
	return nil
}

// Release removes the PID file and drops the lock.
func (p *PIDFile) Release() error {
	rmErr := p.Remove()
	if err := p.lock.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", p.lock.Path(), err)
	}
	return rmErr
}

// processExists checks if a process with the given PID is alive.
func processExists(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds. Signal 0 checks existence.
	return proc.Signal(syscall.Signal(0)) == nil
}

// StopServer sends SIGTERM to the running server.
func StopServer(dataDir string) error {
	pf := NewPIDFile(dataDir)
	pid, running := pf.IsRunning()
	if !running || pid == 0 {
		return fmt.Errorf("server is not running")
	}
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to signal own process %d", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM to %d: %w", pid, err)
	}
	return nil
}
