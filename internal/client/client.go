// Package client connects to medialistenerd and decodes its event stream.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/jmylchreest/medialistener/internal/model"
)

const (
	minRetryDelay = 250 * time.Millisecond
	maxRetryDelay = 10 * time.Second
	maxLineSize   = 1024 * 1024
)

// Client is one connection to the daemon socket.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

// Dial connects to the daemon socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", path, err)
	}
	return newClient(conn), nil
}

func newClient(conn net.Conn) *Client {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	return &Client{conn: conn, scanner: scanner}
}

// Next blocks until the next record arrives. It returns io.EOF when the
// daemon closes the connection.
func (c *Client) Next() (model.Record, error) {
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		return model.DecodeRecord(line)
	}
	if err := c.scanner.Err(); err != nil {
		return model.Record{}, err
	}
	return model.Record{}, io.EOF
}

// Stream calls fn for every record until the connection closes, ctx is
// cancelled or fn fails. A clean close by the daemon returns nil; an error
// from fn is returned as a *HandlerError.
func (c *Client) Stream(ctx context.Context, fn func(model.Record) error) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	for {
		rec, err := c.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := fn(rec); err != nil {
			return &HandlerError{Err: err}
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Watch streams records from the daemon at path to fn. When reconnect is
// true a lost connection is retried with backoff until ctx is cancelled.
func Watch(ctx context.Context, path string, reconnect bool, fn func(model.Record) error, logger *slog.Logger) error {
	return WatchWithStatus(ctx, path, reconnect, fn, nil, logger)
}

// StatusFunc is told when a connection is established (err == nil) or lost.
type StatusFunc func(connected bool, err error)

// WatchWithStatus is Watch with a callback reporting connection changes.
func WatchWithStatus(ctx context.Context, path string, reconnect bool, fn func(model.Record) error, status StatusFunc, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if status == nil {
		status = func(bool, error) {}
	}

	delay := minRetryDelay
	for {
		c, err := Dial(ctx, path)
		if err == nil {
			delay = minRetryDelay
			logger.Debug("connected to daemon", "socket", path)
			status(true, nil)
			err = c.Stream(ctx, fn)
			_ = c.Close()
			if err == nil {
				err = io.EOF
			}
			if ctx.Err() == nil {
				status(false, err)
			}
		}

		if ctx.Err() != nil {
			return nil
		}
		var handlerErr *HandlerError
		if errors.As(err, &handlerErr) {
			return handlerErr.Err
		}
		if !reconnect {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		logger.Debug("connection lost, retrying", "socket", path, "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// HandlerError wraps an error returned by the record callback. Watch
// stops on it instead of reconnecting.
type HandlerError struct {
	Err error
}

func (e *HandlerError) Error() string {
	return "failed to handle record: " + e.Err.Error()
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
