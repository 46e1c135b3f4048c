package ipc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")

	got := make(chan string, 2)
	srv, err := StartServer(path, func(msg ControlMessage) Reply {
		got <- msg.Cmd
		switch msg.Cmd {
		case CmdStatus:
			return Reply{OK: true, Status: "listening"}
		case CmdQuit:
			return Reply{OK: true}
		default:
			return Reply{Error: "unknown command " + msg.Cmd}
		}
	})
	require.NoError(t, err)
	defer srv.Close()

	r, err := SendCommand(path, CmdStatus)
	require.NoError(t, err)
	assert.Equal(t, Reply{OK: true, Status: "listening"}, r)
	assert.Equal(t, CmdStatus, <-got)

	r, err = SendCommand(path, "dance")
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.Equal(t, "unknown command dance", r.Error)
	assert.Equal(t, "dance", <-got)
}

func TestStartServerReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")

	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	srv, err := StartServer(path, func(ControlMessage) Reply { return Reply{OK: true, Status: "fresh"} })
	require.NoError(t, err)
	defer srv.Close()

	r, err := SendCommand(path, CmdStatus)
	require.NoError(t, err)
	assert.Equal(t, "fresh", r.Status)
}

func TestSendWithoutServer(t *testing.T) {
	_, err := SendCommand(filepath.Join(t.TempDir(), "none.sock"), CmdQuit)
	assert.Error(t, err)
}
