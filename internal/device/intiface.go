package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	buttplugMessageVersion = 3
	intifaceIOTimeout      = 10 * time.Second
)

// Intiface drives a device through an Intiface Central server speaking the
// Buttplug v3 JSON protocol over WebSocket.
type Intiface struct {
	url         string
	clientName  string
	deviceIndex int

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint32
}

// Ensure Intiface implements Device
var _ Device = (*Intiface)(nil)

type buttplugError struct {
	ID           uint32 `json:"Id"`
	ErrorMessage string `json:"ErrorMessage"`
	ErrorCode    int    `json:"ErrorCode"`
}

// NewIntiface creates a device for the given server and device index. The connection
// is opened lazily on first use.
func NewIntiface(url, clientName string, deviceIndex int) *Intiface {
	return &Intiface{
		url:         url,
		clientName:  clientName,
		deviceIndex: deviceIndex,
	}
}

func (d *Intiface) Apply(ctx context.Context, level float64) error {
	if clampLevel(level) == 0 {
		return d.Stop(ctx)
	}
	return d.send(ctx, func(id uint32) interface{} {
		return map[string]interface{}{
			"ScalarCmd": map[string]interface{}{
				"Id":          id,
				"DeviceIndex": d.deviceIndex,
				"Scalars": []map[string]interface{}{
					{"Index": 0, "Scalar": clampLevel(level), "ActuatorType": "Vibrate"},
				},
			},
		}
	})
}

func (d *Intiface) Stop(ctx context.Context) error {
	return d.send(ctx, func(id uint32) interface{} {
		return map[string]interface{}{
			"StopDeviceCmd": map[string]interface{}{
				"Id":          id,
				"DeviceIndex": d.deviceIndex,
			},
		}
	})
}

// Close closes the connection if one is open
func (d *Intiface) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	d.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := d.conn.Close()
	d.conn = nil
	return err
}

// send writes one command and waits for its reply. A broken connection is
// re-established once before giving up.
func (d *Intiface) send(ctx context.Context, build func(id uint32) interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if d.conn == nil {
			if err := d.connect(ctx); err != nil {
				lastErr = err
				continue
			}
		}

		err := d.roundTrip(build(d.id()))
		if err == nil {
			return nil
		}
		var perr *protocolError
		if errors.As(err, &perr) {
			return err
		}

		logrus.Warnf("Intiface connection lost, reconnecting: %v", err)
		d.conn.Close()
		d.conn = nil
		lastErr = err
	}
	return fmt.Errorf("failed to send to Intiface: %w", lastErr)
}

func (d *Intiface) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: intifaceIOTimeout}
	conn, _, err := dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", d.url, err)
	}
	d.conn = conn

	err = d.roundTrip(map[string]interface{}{
		"RequestServerInfo": map[string]interface{}{
			"Id":             d.id(),
			"ClientName":     d.clientName,
			"MessageVersion": buttplugMessageVersion,
		},
	})
	if err != nil {
		conn.Close()
		d.conn = nil
		return fmt.Errorf("handshake with %s failed: %w", d.url, err)
	}

	logrus.Infof("Connected to Intiface at %s", d.url)
	return nil
}

type protocolError struct {
	msg string
}

func (e *protocolError) Error() string {
	return e.msg
}

func (d *Intiface) roundTrip(message interface{}) error {
	d.conn.SetWriteDeadline(time.Now().Add(intifaceIOTimeout))
	if err := d.conn.WriteJSON([]interface{}{message}); err != nil {
		return err
	}

	d.conn.SetReadDeadline(time.Now().Add(intifaceIOTimeout))
	var replies []map[string]json.RawMessage
	if err := d.conn.ReadJSON(&replies); err != nil {
		return err
	}

	for _, reply := range replies {
		if raw, ok := reply["Error"]; ok {
			var e buttplugError
			if err := json.Unmarshal(raw, &e); err != nil {
				return &protocolError{msg: "intiface returned an unreadable error"}
			}
			return &protocolError{msg: fmt.Sprintf("intiface error %d: %s", e.ErrorCode, e.ErrorMessage)}
		}
	}
	return nil
}

func (d *Intiface) id() uint32 {
	d.nextID++
	return d.nextID
}
