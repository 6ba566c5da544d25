package ipc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Unix socket paths are length-limited, so avoid the long t.TempDir().
func socketPath(t *testing.T) string {
	dir, err := os.MkdirTemp("", "vox")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "ctl.sock")
}

func TestRoundTrip(t *testing.T) {
	path := socketPath(t)
	srv, err := Listen(path, func(req Request) Reply {
		if req.Cmd != CmdStatus {
			return Reply{Error: "unknown command " + req.Cmd, State: "idle"}
		}
		return Reply{OK: true, State: "idle", Status: "Ready", DeviceID: 3, History: []string{"You: hi"}}
	})
	require.NoError(t, err)

	rep, err := Send(context.Background(), path, CmdStatus)
	require.NoError(t, err)
	assert.True(t, rep.OK)
	assert.Equal(t, "Ready", rep.Status)
	assert.Equal(t, int64(3), rep.DeviceID)
	assert.Equal(t, []string{"You: hi"}, rep.History)

	rep, err = Send(context.Background(), path, "dance")
	require.NoError(t, err)
	assert.False(t, rep.OK)
	assert.Contains(t, rep.Error, "dance")

	require.NoError(t, srv.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = Send(context.Background(), path, CmdStatus)
	assert.Error(t, err)
}

func TestListenReplacesStaleSocket(t *testing.T) {
	path := socketPath(t)
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	srv, err := Listen(path, func(Request) Reply { return Reply{OK: true} })
	require.NoError(t, err)
	defer srv.Close()

	rep, err := Send(context.Background(), path, CmdToggle)
	require.NoError(t, err)
	assert.True(t, rep.OK)
}
