package qmp

import (
	"context"
	"encoding/json"
	"image"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers QMP commands on one end of a pipe and records them
type fakeServer struct {
	conn     net.Conn
	commands chan map[string]interface{}
	reply    func(cmd map[string]interface{}) string
}

func startFakeServer(t *testing.T, reply func(cmd map[string]interface{}) string) (*Client, *fakeServer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	srv := &fakeServer{conn: serverConn, commands: make(chan map[string]interface{}, 32), reply: reply}

	go func() {
		defer serverConn.Close()
		if _, err := serverConn.Write([]byte(`{"QMP":{"version":{},"capabilities":[]}}` + "\n")); err != nil {
			return
		}
		dec := json.NewDecoder(serverConn)
		for {
			var cmd map[string]interface{}
			if err := dec.Decode(&cmd); err != nil {
				return
			}
			srv.commands <- cmd
			out := `{"return":{}}`
			if srv.reply != nil {
				if r := srv.reply(cmd); r != "" {
					out = r
				}
			}
			if _, err := serverConn.Write([]byte(out + "\n")); err != nil {
				return
			}
		}
	}()

	c := New("100")
	require.NoError(t, c.handshake(context.Background(), clientConn))
	t.Cleanup(func() { c.Close() })

	first := <-srv.commands
	require.Equal(t, "qmp_capabilities", first["execute"])
	return c, srv
}

func TestScaleAbs(t *testing.T) {
	tests := []struct {
		pos, size, want int
	}{
		{0, 800, 0},
		{799, 800, AbsAxisMax},
		{900, 800, AbsAxisMax},
		{-5, 800, 0},
		{400, 801, AbsAxisMax / 2},
		{10, 1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScaleAbs(tt.pos, tt.size), "pos=%d size=%d", tt.pos, tt.size)
	}
}

func TestDefaultSocketPath(t *testing.T) {
	assert.Equal(t, "/var/run/qemu-server/105.qmp", DefaultSocketPath("105"))
	assert.Equal(t, "/tmp/vm.sock", NewWithSocketPath("105", "/tmp/vm.sock").SocketPath())
}

func TestExecuteNotConnected(t *testing.T) {
	_, err := New("1").Execute(context.Background(), Command{Execute: "query-status"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPointerClickSendsEvents(t *testing.T) {
	c, srv := startFakeServer(t, nil)

	p := Pointer{Client: c}
	require.NoError(t, p.ClickAt(context.Background(), 400, 300, image.Pt(801, 601)))

	move := <-srv.commands
	assert.Equal(t, "input-send-event", move["execute"])
	events := move["arguments"].(map[string]interface{})["events"].([]interface{})
	require.Len(t, events, 2)
	x := events[0].(map[string]interface{})
	assert.Equal(t, "abs", x["type"])
	assert.Equal(t, map[string]interface{}{"axis": "x", "value": float64(AbsAxisMax / 2)}, x["data"])

	down := <-srv.commands
	btn := down["arguments"].(map[string]interface{})["events"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"down": true, "button": "left"}, btn["data"])

	up := <-srv.commands
	btn = up["arguments"].(map[string]interface{})["events"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, false, btn["data"].(map[string]interface{})["down"])
}

func TestPointerRequiresFrameSize(t *testing.T) {
	p := Pointer{Client: New("1")}
	assert.Error(t, p.ClickAt(context.Background(), 1, 1, image.Point{}))
}

func TestExecuteReturnsQMPError(t *testing.T) {
	c, _ := startFakeServer(t, func(cmd map[string]interface{}) string {
		if cmd["execute"] == "device_add" {
			return `{"error":{"class":"GenericError","desc":"Bus 'usb-bus.0' not found"}}`
		}
		return ""
	})

	err := c.AddTablet(context.Background(), "tablet0")
	require.Error(t, err)
	var qerr *Error
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "GenericError", qerr.Class)
}

func TestExecuteSkipsEvents(t *testing.T) {
	c, _ := startFakeServer(t, func(cmd map[string]interface{}) string {
		if cmd["execute"] == "query-status" {
			return `{"event":"RESUME","data":{}}` + "\n" + `{"return":{"running":true,"status":"running","singlestep":false}}`
		}
		return ""
	})

	status, err := c.QueryStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, "running", status.Status)
}
