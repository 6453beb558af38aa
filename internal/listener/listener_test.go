package listener

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/medialistener/internal/hub"
	"github.com/jmylchreest/medialistener/internal/model"
)

func socketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ml.sock")
}

func serve(t *testing.T, l *Listener) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Serve(ctx) }()
	return cancel, errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestListen_RemovesStaleSocket(t *testing.T) {
	path := socketPath(t)

	stale, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	stale.SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	info, err := os.Lstat(path)
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&os.ModeSocket)

	l, err := Listen(path, 0, hub.New(hub.DefaultOptions(), nil), nil)
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, path, l.Path())
}

func TestListen_RefusesNonSocketFile(t *testing.T) {
	path := socketPath(t)
	require.NoError(t, os.WriteFile(path, []byte("keep me"), 0600))

	_, err := Listen(path, 0, hub.New(hub.DefaultOptions(), nil), nil)
	assert.ErrorIs(t, err, ErrPathOccupied)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestListen_RefusesLiveSocket(t *testing.T) {
	path := socketPath(t)
	h := hub.New(hub.DefaultOptions(), nil)

	first, err := Listen(path, 0, h, nil)
	require.NoError(t, err)
	defer first.Close()

	_, err = Listen(path, 0, h, nil)
	assert.ErrorIs(t, err, ErrAddressInUse)
}

func TestListen_AppliesMode(t *testing.T) {
	path := socketPath(t)
	l, err := Listen(path, 0600, hub.New(hub.DefaultOptions(), nil), nil)
	require.NoError(t, err)
	defer l.Close()

	info, err := os.Lstat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestServe_DeliversPublishedEvents(t *testing.T) {
	path := socketPath(t)
	h := hub.New(hub.DefaultOptions(), nil)
	l, err := Listen(path, 0, h, nil)
	require.NoError(t, err)

	cancel, errCh := serve(t, l)
	defer cancel()

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.Publish(model.NewPlaybackStateChanged(1, time.Now(), "mpv", true))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	rec, err := model.DecodeRecord(line)
	require.NoError(t, err)
	assert.Equal(t, model.KindPlaybackStateChanged, rec.EventType)
	assert.Equal(t, uint64(1), rec.EventNumber)

	cancel()
	assert.NoError(t, waitErr(t, errCh))
}

func TestServe_PeerCloseUnregisters(t *testing.T) {
	path := socketPath(t)
	h := hub.New(hub.DefaultOptions(), nil)
	l, err := Listen(path, 0, h, nil)
	require.NoError(t, err)

	cancel, errCh := serve(t, l)
	defer cancel()

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.Count() == 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, waitErr(t, errCh))
}

func TestServe_RejectsDuringShutdown(t *testing.T) {
	path := socketPath(t)
	h := hub.New(hub.DefaultOptions(), nil)
	require.NoError(t, h.Shutdown(context.Background()))

	l, err := Listen(path, 0, h, nil)
	require.NoError(t, err)
	cancel, errCh := serve(t, l)
	defer cancel()

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Equal(t, 0, h.Count())

	cancel()
	assert.NoError(t, waitErr(t, errCh))
}

func TestServe_SocketRemoved(t *testing.T) {
	path := socketPath(t)
	l, err := Listen(path, 0, hub.New(hub.DefaultOptions(), nil), nil)
	require.NoError(t, err)

	cancel, errCh := serve(t, l)
	defer cancel()

	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.Remove(path))

	assert.ErrorIs(t, waitErr(t, errCh), ErrSocketRemoved)
}

func TestServe_CloseStopsAccepting(t *testing.T) {
	path := socketPath(t)
	l, err := Listen(path, 0, hub.New(hub.DefaultOptions(), nil), nil)
	require.NoError(t, err)

	_, errCh := serve(t, l)
	l.Close()
	assert.NoError(t, waitErr(t, errCh))

	// Closing twice is harmless.
	l.Close()
}

func TestRemove(t *testing.T) {
	t.Run("removes own socket", func(t *testing.T) {
		path := socketPath(t)
		l, err := Listen(path, 0, hub.New(hub.DefaultOptions(), nil), nil)
		require.NoError(t, err)
		l.Close()

		require.NoError(t, l.Remove())
		_, err = os.Lstat(path)
		assert.True(t, os.IsNotExist(err))

		// Already gone.
		assert.NoError(t, l.Remove())
	})

	t.Run("leaves replaced file alone", func(t *testing.T) {
		path := socketPath(t)
		l, err := Listen(path, 0, hub.New(hub.DefaultOptions(), nil), nil)
		require.NoError(t, err)
		l.Close()

		require.NoError(t, os.Remove(path))
		require.NoError(t, os.WriteFile(path, []byte("other"), 0600))

		assert.False(t, l.ownsPath())
		require.NoError(t, l.Remove())
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "other", string(data))
	})

	t.Run("leaves replacement socket alone", func(t *testing.T) {
		path := socketPath(t)
		l, err := Listen(path, 0, hub.New(hub.DefaultOptions(), nil), nil)
		require.NoError(t, err)
		l.Close()
		require.NoError(t, os.Remove(path))

		// File timestamps can be coarser than the gap between binds.
		time.Sleep(20 * time.Millisecond)
		other, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
		require.NoError(t, err)
		defer other.Close()

		assert.False(t, l.ownsPath())
		require.NoError(t, l.Remove())
		info, err := os.Lstat(path)
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&os.ModeSocket)
	})
}

func TestIsTransient(t *testing.T) {
	assert.False(t, isTransient(net.ErrClosed))
	assert.True(t, isTransient(&net.OpError{Op: "accept", Err: os.NewSyscallError("accept", syscall.EMFILE)}))
}
