package ipc

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// dialTimeout bounds connecting to the daemon socket.
const dialTimeout = 2 * time.Second

// Client is the CLI and console side of the daemon socket. It is not safe
// for concurrent use from several goroutines issuing commands that depend on
// each other's ordering.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the daemon socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: jsonrpc.NewClient(conn)}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if c == nil || c.rpc == nil {
		return nil
	}
	return c.rpc.Close()
}

func invoke[Resp any](c *Client, method string, req any) (*Resp, error) {
	resp := new(Resp)
	if err := c.rpc.Call(ServiceName+"."+method, req, resp); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return resp, nil
}

// Start asks the daemon to begin a batch. A refusal is reported in the
// response, not as an error.
func (c *Client) Start() (*StartResponse, error) {
	return invoke[StartResponse](c, "Start", StartRequest{})
}

// Reset clears outcomes and the fault flag; closeReport also dismisses the
// last report.
func (c *Client) Reset(closeReport bool) (*ResetResponse, error) {
	return invoke[ResetResponse](c, "Reset", ResetRequest{CloseReport: closeReport})
}

// EmergencyStop disables every output. The daemon exits shortly after it
// replies.
func (c *Client) EmergencyStop() (*EmergencyStopResponse, error) {
	return invoke[EmergencyStopResponse](c, "EmergencyStop", EmergencyStopRequest{})
}

func (c *Client) Status() (*StatusResponse, error) {
	return invoke[StatusResponse](c, "Status", StatusRequest{})
}

func (c *Client) Report() (*ReportResponse, error) {
	return invoke[ReportResponse](c, "Report", ReportRequest{})
}
