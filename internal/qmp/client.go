package qmp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jeeftor/qmp-macro/internal/constants"
	"github.com/jeeftor/qmp-macro/internal/logging"
	"github.com/spakin/netpbm"
)

// Client represents a QMP client connection
type Client struct {
	conn       net.Conn
	vmid       string
	reader     *bufio.Reader
	socketPath string

	mu sync.Mutex
}

// Command represents a QMP command
type Command struct {
	Execute   string      `json:"execute"`
	Arguments interface{} `json:"arguments,omitempty"`
	ID        string      `json:"id,omitempty"`
}

// Response represents a QMP response
type Response struct {
	Return interface{} `json:"return,omitempty"`
	Error  *Error      `json:"error,omitempty"`
	ID     string      `json:"id,omitempty"`
	Event  string      `json:"event,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// Error represents a QMP error
type Error struct {
	Class string `json:"class"`
	Desc  string `json:"desc"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("QMP error: %s: %s", e.Class, e.Desc)
}

// New creates a new QMP client
func New(vmid string) *Client {
	return &Client{vmid: vmid}
}

// NewWithSocketPath creates a new QMP client with a custom socket path
func NewWithSocketPath(vmid string, socketPath string) *Client {
	return &Client{
		vmid:       vmid,
		socketPath: socketPath,
	}
}

// SocketPath returns the socket the client dials
func (q *Client) SocketPath() string {
	if q.socketPath != "" {
		return q.socketPath
	}
	return DefaultSocketPath(q.vmid)
}

// Connect establishes a connection to the QMP socket and negotiates capabilities
func (q *Client) Connect(ctx context.Context) error {
	socketPath := q.SocketPath()

	logging.Debug("Connecting to QMP socket", "path", socketPath)
	dialer := net.Dialer{Timeout: constants.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}

	if err := q.handshake(ctx, conn); err != nil {
		conn.Close()
		return err
	}

	logging.Info("Connected to QMP socket", "vmid", q.vmid)
	return nil
}

// handshake reads the greeting and enables command mode
func (q *Client) handshake(ctx context.Context, conn net.Conn) error {
	q.conn = conn
	q.reader = bufio.NewReader(conn)

	var greeting Response
	if err := q.readJSON(&greeting); err != nil {
		return fmt.Errorf("failed to read greeting: %w", err)
	}
	logging.LogResponse(greeting)

	if _, err := q.Execute(ctx, Command{Execute: "qmp_capabilities"}); err != nil {
		return fmt.Errorf("failed to negotiate capabilities: %w", err)
	}
	return nil
}

// Close closes the QMP connection
func (q *Client) Close() error {
	if q.conn != nil {
		logging.Debug("Closing QMP connection", "vmid", q.vmid)
		return q.conn.Close()
	}
	return nil
}

// Execute sends a command and waits for its reply. Asynchronous events that
// arrive before the reply are logged and skipped.
func (q *Client) Execute(ctx context.Context, cmd Command) (*Response, error) {
	if q.conn == nil {
		return nil, ErrNotConnected
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	deadline := time.Now().Add(constants.SocketTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := q.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}
	defer q.conn.SetDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() {
		q.conn.SetDeadline(time.Now())
	})
	defer stop()

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	logging.LogCommand(cmd.Execute, cmd.Arguments)
	logging.Debug("Raw JSON sent", "json", string(data))
	if _, err := q.conn.Write(data); err != nil {
		return nil, q.ioError(ctx, ErrCommandFailed(cmd.Execute, err))
	}

	for {
		var resp Response
		if err := q.readJSON(&resp); err != nil {
			return nil, q.ioError(ctx, ErrCommandFailed(cmd.Execute, err))
		}
		logging.LogResponse(resp)

		if resp.Event != "" {
			logging.Debug("QMP event", "event", resp.Event)
			continue
		}
		if resp.Error != nil {
			return nil, ErrCommandFailed(cmd.Execute, resp.Error)
		}
		return &resp, nil
	}
}

// ioError prefers the context's error when cancellation caused the failure
func (q *Client) ioError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// readJSON reads a JSON object from the QMP socket
func (q *Client) readJSON(v interface{}) error {
	var fullLine []byte
	for {
		line, isPrefix, err := q.reader.ReadLine()
		if err != nil {
			return err
		}
		fullLine = append(fullLine, line...)
		if !isPrefix {
			break
		}
	}

	logging.Debug("Raw JSON received", "json", string(fullLine))
	return json.Unmarshal(fullLine, v)
}

// QueryStatus returns the current VM status
func (q *Client) QueryStatus(ctx context.Context) (*Status, error) {
	resp, err := q.Execute(ctx, Command{Execute: "query-status"})
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(resp.Return)
	if err != nil {
		return nil, ErrInvalidResponse(err.Error())
	}
	var status Status
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, ErrInvalidResponse(err.Error())
	}
	return &status, nil
}

// AddTablet attaches a USB tablet so absolute pointer events reach the guest
func (q *Client) AddTablet(ctx context.Context, id string) error {
	_, err := q.Execute(ctx, Command{
		Execute:   "device_add",
		Arguments: DeviceAdd{Driver: "usb-tablet", ID: id},
	})
	return err
}

// RemoveDevice removes a device from the VM
func (q *Client) RemoveDevice(ctx context.Context, deviceID string) error {
	_, err := q.Execute(ctx, Command{
		Execute:   "device_del",
		Arguments: DeviceDel{ID: deviceID},
	})
	return err
}

// ScreenDump takes a screenshot into filename (PPM). With remoteTempPath the
// QEMU host writes the file there and nothing is copied locally.
func (q *Client) ScreenDump(ctx context.Context, filename string, remoteTempPath string) error {
	tempPath := ""
	if remoteTempPath != "" {
		tempPath = remoteTempPath
		logging.Debug("Using remote temporary path for screenshot", "path", tempPath)
	} else {
		tempFile, err := os.CreateTemp("", "qmp-screenshot-*.ppm")
		if err != nil {
			return fmt.Errorf("failed to create temporary file: %w", err)
		}
		tempPath = tempFile.Name()
		defer os.Remove(tempPath)
		tempFile.Close()
		logging.Debug("Created local temporary file for screenshot", "path", tempPath)
	}

	if _, err := q.Execute(ctx, Command{
		Execute:   "screendump",
		Arguments: Screenshot{Filename: tempPath},
	}); err != nil {
		return err
	}

	if remoteTempPath != "" {
		logging.Info("Screenshot saved on remote server", "path", remoteTempPath)
		return nil
	}

	srcFile, err := os.Open(tempPath)
	if err != nil {
		return fmt.Errorf("failed to open temporary file: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy screenshot: %w", err)
	}
	return nil
}

// Capture takes a screendump and decodes it
func (q *Client) Capture(ctx context.Context) (image.Image, error) {
	tempFile, err := os.CreateTemp("", "qmp-frame-*.ppm")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempPath := tempFile.Name()
	tempFile.Close()
	defer os.Remove(tempPath)

	ctx, cancel := context.WithTimeout(ctx, constants.ScreenshotTimeout)
	defer cancel()
	if _, err := q.Execute(ctx, Command{
		Execute:   "screendump",
		Arguments: Screenshot{Filename: tempPath},
	}); err != nil {
		return nil, err
	}

	file, err := os.Open(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open screendump: %w", err)
	}
	defer file.Close()

	img, err := netpbm.Decode(file, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screendump: %w", err)
	}
	return img, nil
}
