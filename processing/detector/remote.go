package detector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/url"
	"sync"
	"time"

	"treesight/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultRemoteTimeout bounds one frame round trip to the detection server.
const DefaultRemoteTimeout = 5 * time.Second

var _ Model = (*RemoteModel)(nil)

// RemoteModel sends JPEG frames to a detection server over a websocket and
// reads back a JSON list of normalized boxes per frame.
type RemoteModel struct {
	// serializes Predict calls
	mu sync.Mutex

	// guards conn, dialed and closed; never held across network I/O
	connMu sync.Mutex
	conn   *websocket.Conn
	// query the open connection was dialed with
	dialed string
	closed bool

	host    string
	timeout time.Duration

	log *zap.Logger
}

func NewRemoteModel(host string, log *zap.Logger) *RemoteModel {
	return &RemoteModel{
		host:    host,
		timeout: DefaultRemoteTimeout,
		log:     log,
	}
}

// WithTimeout sets the deadline for dialing and for each frame round trip.
// Zero keeps the default.
func (d *RemoteModel) WithTimeout(timeout time.Duration) *RemoteModel {
	if timeout > 0 {
		d.timeout = timeout
	}
	return d
}

func (d *RemoteModel) endpoint(params InferenceParams) string {
	u := url.URL{Scheme: "ws", Host: d.host, Path: "/ws", RawQuery: params.Query().Encode()}
	return u.String()
}

func (d *RemoteModel) current(target string) (*websocket.Conn, error) {
	d.connMu.Lock()
	defer d.connMu.Unlock()

	if d.closed {
		return nil, ErrModelClosed
	}
	if d.conn != nil && d.dialed != target {
		d.conn.Close()
		d.conn = nil
		d.dialed = ""
	}
	return d.conn, nil
}

func (d *RemoteModel) connect(params InferenceParams) (*websocket.Conn, error) {
	target := d.endpoint(params)

	conn, err := d.current(target)
	if err != nil || conn != nil {
		return conn, err
	}

	d.log.Info("connecting to detector server", zap.String("url", target))

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = d.timeout

	conn, _, err = dialer.Dial(target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	d.connMu.Lock()
	defer d.connMu.Unlock()

	if d.closed {
		conn.Close()
		return nil, ErrModelClosed
	}

	d.conn = conn
	d.dialed = target

	return conn, nil
}

func (d *RemoteModel) Predict(frame *image.RGBA, params InferenceParams) ([]models.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connect(params)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, nil); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}

	deadline := time.Now().Add(d.timeout)
	conn.SetWriteDeadline(deadline)
	conn.SetReadDeadline(deadline)

	if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		return nil, d.fail(conn, fmt.Errorf("send frame: %w", err))
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		return nil, d.fail(conn, fmt.Errorf("read detections: %w", err))
	}

	var results []models.DetectionResult
	if err := json.Unmarshal(message, &results); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}

	w, h := frame.Bounds().Dx(), frame.Bounds().Dy()

	out := make([]models.Detection, 0, len(results))
	for _, r := range results {
		det, ok := r.ToDetection(w, h)
		if !ok {
			d.log.Warn("skipping malformed box", zap.Int("len", len(r.Box)))
			continue
		}
		out = append(out, det)
	}

	return out, nil
}

// fail drops conn after an I/O error. A connection torn down by Close reports
// ErrModelClosed instead of the network error.
func (d *RemoteModel) fail(conn *websocket.Conn, err error) error {
	d.connMu.Lock()
	defer d.connMu.Unlock()

	if d.conn == conn {
		conn.Close()
		d.conn = nil
		d.dialed = ""
	}

	if d.closed {
		return fmt.Errorf("%w: %v", ErrModelClosed, err)
	}
	return err
}

// Close drops the connection without waiting for an in-flight Predict, which
// then fails.
func (d *RemoteModel) Close() error {
	d.connMu.Lock()
	defer d.connMu.Unlock()

	d.closed = true
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
		d.dialed = ""
	}
	return nil
}
