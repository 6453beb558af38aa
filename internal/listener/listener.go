// Package listener owns the unix socket that clients connect to.
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jmylchreest/medialistener/internal/hub"
)

var (
	// ErrPathOccupied is returned when the socket path exists and is not a socket.
	ErrPathOccupied = errors.New("socket path is occupied by a non-socket file")
	// ErrAddressInUse is returned when another process is accepting on the socket path.
	ErrAddressInUse = errors.New("socket path is in use by another listener")
	// ErrSocketRemoved is returned by Serve when the socket file disappears.
	ErrSocketRemoved = errors.New("socket path was removed")
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
	probeTimeout   = 200 * time.Millisecond
)

// Registrar accepts new client channels.
type Registrar interface {
	Register(conn io.WriteCloser) (string, error)
	Unregister(id string)
}

// Listener accepts client connections on a unix socket and hands them to a Registrar.
type Listener struct {
	path   string
	ln     *net.UnixListener
	info   os.FileInfo
	reg    Registrar
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	fatalErr error
}

// Listen binds the unix socket at path. A stale socket left by an unclean
// shutdown is removed first. A non-zero mode is applied to the socket file.
func Listen(path string, mode os.FileMode, reg Registrar, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	if err := removeStale(path, logger); err != nil {
		return nil, err
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", path, err)
	}
	// The path is removed explicitly by Remove.
	ln.SetUnlinkOnClose(false)

	if mode != 0 {
		if err := os.Chmod(path, mode); err != nil {
			_ = ln.Close()
			_ = os.Remove(path)
			return nil, fmt.Errorf("failed to set socket mode: %w", err)
		}
	}

	info, err := os.Lstat(path)
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("failed to stat socket: %w", err)
	}

	logger.Info("listening", "socket", path)
	return &Listener{
		path:   path,
		ln:     ln,
		info:   info,
		reg:    reg,
		logger: logger,
	}, nil
}

// removeStale deletes a leftover socket file at path.
func removeStale(path string, logger *slog.Logger) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat socket path: %w", err)
	}

	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%w: %s", ErrPathOccupied, path)
	}

	if conn, err := net.DialTimeout("unix", path, probeTimeout); err == nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %s", ErrAddressInUse, path)
	}

	logger.Info("removing stale socket", "socket", path)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}
	return nil
}

// Path returns the socket path.
func (l *Listener) Path() string {
	return l.path
}

// Serve accepts connections until ctx is cancelled or Close is called,
// returning nil in both cases. It returns ErrSocketRemoved if the socket
// file is deleted, and other accept errors that are not transient.
func (l *Listener) Serve(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-done:
		}
	}()

	watcher, err := l.watchPath(done)
	if err != nil {
		// Accepting still works without the watcher.
		l.logger.Warn("failed to watch socket path", "socket", l.path, "error", err)
	} else {
		defer watcher.Close()
	}

	var delay time.Duration
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if closed, fatal := l.state(); closed {
				return fatal
			}
			if isTransient(err) {
				if delay == 0 {
					delay = minAcceptDelay
				} else {
					delay *= 2
				}
				if delay > maxAcceptDelay {
					delay = maxAcceptDelay
				}
				l.logger.Warn("accept failed, retrying", "error", err, "delay", delay)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
				}
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		delay = 0
		l.handle(conn)
	}
}

// handle registers an accepted connection and watches it for peer close.
func (l *Listener) handle(conn net.Conn) {
	id, err := l.reg.Register(conn)
	if err != nil {
		_ = conn.Close()
		if errors.Is(err, hub.ErrShuttingDown) {
			l.logger.Debug("rejected connection during shutdown")
			return
		}
		l.logger.Warn("failed to register connection", "error", err)
		return
	}

	l.logger.Debug("client connected", "subscriber", id)
	go l.watchPeer(conn, id)
}

// watchPeer reads and discards client input until the peer goes away.
func (l *Listener) watchPeer(conn net.Conn, id string) {
	buf := make([]byte, 512)
	for {
		if _, err := conn.Read(buf); err != nil {
			l.logger.Debug("client disconnected", "subscriber", id)
			l.reg.Unregister(id)
			return
		}
	}
}

// watchPath reports ErrSocketRemoved when the socket file is deleted or replaced.
func (l *Listener) watchPath(done <-chan struct{}) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(l.path) {
					continue
				}
				if !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Create) {
					continue
				}
				if l.ownsPath() {
					continue
				}
				l.logger.Error("socket file removed", "socket", l.path)
				l.closeWith(ErrSocketRemoved)
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("socket watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return watcher, nil
}

// ownsPath reports whether the socket file is still the one we bound.
// Inode numbers are reused on tmpfs, so the file must also still be a
// socket with the modification time recorded at bind.
func (l *Listener) ownsPath() bool {
	info, err := os.Lstat(l.path)
	if err != nil {
		return false
	}
	if info.Mode()&os.ModeSocket == 0 {
		return false
	}
	return os.SameFile(info, l.info) && info.ModTime().Equal(l.info.ModTime())
}

// Close stops accepting connections. Established connections are not affected.
func (l *Listener) Close() {
	l.closeWith(nil)
}

func (l *Listener) closeWith(fatal error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.fatalErr = fatal
	l.mu.Unlock()

	if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		l.logger.Debug("error closing listener", "error", err)
	}
}

func (l *Listener) state() (closed bool, fatal error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed, l.fatalErr
}

// Remove deletes the socket file if it is still the one this listener created.
func (l *Listener) Remove() error {
	if !l.ownsPath() {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove socket: %w", err)
	}
	l.logger.Debug("removed socket", "socket", l.path)
	return nil
}

// isTransient reports whether an accept error is worth retrying.
func isTransient(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	for _, errno := range []syscall.Errno{
		syscall.ECONNABORTED,
		syscall.EINTR,
		syscall.EAGAIN,
		syscall.EMFILE,
		syscall.ENFILE,
		syscall.ENOBUFS,
		syscall.ENOMEM,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
