package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultSocketTimeout bounds one round trip to the classifier service.
const DefaultSocketTimeout = 250 * time.Millisecond

// SocketClient talks to the Python classifier service over a Unix socket.
// Each call dials, writes one msgpack request and decodes one msgpack reply.
type SocketClient struct {
	socketPath string
	timeout    time.Duration
}

// classifierRequest is sent to the Python service.
type classifierRequest struct {
	Task   string    `msgpack:"t"`
	Height int       `msgpack:"h"`
	Width  int       `msgpack:"w"`
	Data   []byte    `msgpack:"d,omitempty"` // RGB uint8, row-major, shape (H, W, 3)
	Pixels []float32 `msgpack:"p,omitempty"` // grayscale in [0,1], shape (H, W)
}

// classifierResponse is received from the Python service.
type classifierResponse struct {
	Categories  []Category `msgpack:"categories"`
	Scores      []float32  `msgpack:"scores"`
	InferenceMs float32    `msgpack:"inference_ms"`
	Error       string     `msgpack:"error"`
}

// NewSocketClient creates a client for the service listening on socketPath.
func NewSocketClient(socketPath string) *SocketClient {
	return &SocketClient{
		socketPath: socketPath,
		timeout:    DefaultSocketTimeout,
	}
}

// SetTimeout changes the per-call timeout. Values <= 0 are ignored.
func (c *SocketClient) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// ClassifyAccessory implements AccessoryClassifier.
func (c *SocketClient) ClassifyAccessory(ctx context.Context, r *Raster) ([]Category, error) {
	if r == nil || len(r.RGB) != RegionSize*RegionSize*3 {
		return nil, errors.New("classify: accessory raster must be 224x224 RGB")
	}

	resp, err := c.call(ctx, classifierRequest{
		Task:   KindAccessory,
		Height: RegionSize,
		Width:  RegionSize,
		Data:   r.RGB,
	})
	if err != nil {
		return nil, err
	}
	return resp.Categories, nil
}

// ClassifyExpression implements ExpressionClassifier.
func (c *SocketClient) ClassifyExpression(ctx context.Context, r *Raster) ([]float32, error) {
	if r == nil || len(r.Gray) != ExpressionSize*ExpressionSize {
		return nil, errors.New("classify: expression raster must be 48x48 grayscale")
	}

	resp, err := c.call(ctx, classifierRequest{
		Task:   KindExpression,
		Height: ExpressionSize,
		Width:  ExpressionSize,
		Pixels: r.Gray,
	})
	if err != nil {
		return nil, err
	}
	return resp.Scores, nil
}

func (c *SocketClient) call(ctx context.Context, req classifierRequest) (*classifierResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to classifier service: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	reqData, err := msgpack.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var resp classifierResponse
	if err := msgpack.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("classifier service: %s", resp.Error)
	}
	return &resp, nil
}
