package device

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIntiface records every command it receives and answers Ok, or Error for ScalarCmd when failScalar is set
type fakeIntiface struct {
	mu          sync.Mutex
	commands    []string
	failScalar  bool
	dropAfter   int // close the connection after this many messages; 0 disables
	connections int
}

func (f *fakeIntiface) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		f.mu.Lock()
		f.connections++
		f.mu.Unlock()

		handled := 0
		for {
			var msgs []map[string]map[string]interface{}
			if err := conn.ReadJSON(&msgs); err != nil {
				return
			}

			for _, msg := range msgs {
				for name, body := range msg {
					f.mu.Lock()
					f.commands = append(f.commands, name)
					fail := f.failScalar && name == "ScalarCmd"
					f.mu.Unlock()

					id := body["Id"]
					var reply interface{}
					switch {
					case name == "RequestServerInfo":
						reply = map[string]interface{}{"ServerInfo": map[string]interface{}{"Id": id, "ServerName": "fake", "MessageVersion": 3}}
					case fail:
						reply = map[string]interface{}{"Error": map[string]interface{}{"Id": id, "ErrorMessage": "Device not found", "ErrorCode": 3}}
					default:
						reply = map[string]interface{}{"Ok": map[string]interface{}{"Id": id}}
					}
					if err := conn.WriteJSON([]interface{}{reply}); err != nil {
						return
					}
				}
			}

			handled++
			f.mu.Lock()
			drop := f.dropAfter > 0 && handled >= f.dropAfter
			if drop {
				f.dropAfter = 0
			}
			f.mu.Unlock()
			if drop {
				return
			}
		}
	}
}

func (f *fakeIntiface) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func startFake(t *testing.T, f *fakeIntiface) string {
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestIntiface_ApplyAndStop(t *testing.T) {
	fake := &fakeIntiface{}
	d := NewIntiface(startFake(t, fake), "Bzz", 0)
	defer d.Close()

	require.NoError(t, d.Apply(context.Background(), 0.4))
	require.NoError(t, d.Apply(context.Background(), 0))

	assert.Equal(t, []string{"RequestServerInfo", "ScalarCmd", "StopDeviceCmd"}, fake.snapshot())
}

func TestIntiface_ProtocolErrorIsReturned(t *testing.T) {
	fake := &fakeIntiface{failScalar: true}
	d := NewIntiface(startFake(t, fake), "Bzz", 0)
	defer d.Close()

	err := d.Apply(context.Background(), 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Device not found")
}

func TestIntiface_ReconnectsAfterDrop(t *testing.T) {
	// Server hangs up right after the handshake
	fake := &fakeIntiface{dropAfter: 1}
	d := NewIntiface(startFake(t, fake), "Bzz", 0)
	defer d.Close()

	require.NoError(t, d.Apply(context.Background(), 0.2))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 2, fake.connections)
	assert.Equal(t, "ScalarCmd", fake.commands[len(fake.commands)-1])
}

func TestIntiface_UnreachableServer(t *testing.T) {
	d := NewIntiface("ws://127.0.0.1:1", "Bzz", 0)
	assert.Error(t, d.Stop(context.Background()))
}

func TestIntiface_ScalarPayload(t *testing.T) {
	var (
		mu     sync.Mutex
		scalar map[string]interface{}
	)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msgs []map[string]map[string]interface{}
			if !assert.NoError(t, json.Unmarshal(data, &msgs)) {
				return
			}
			if body, ok := msgs[0]["ScalarCmd"]; ok {
				mu.Lock()
				scalar = body
				mu.Unlock()
			}
			conn.WriteJSON([]interface{}{map[string]interface{}{"Ok": map[string]interface{}{"Id": 1}}})
		}
	}))
	defer server.Close()

	d := NewIntiface("ws"+strings.TrimPrefix(server.URL, "http"), "Bzz", 2)
	defer d.Close()
	require.NoError(t, d.Apply(context.Background(), 1.5))

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, scalar)
	assert.Equal(t, float64(2), scalar["DeviceIndex"])
	scalars := scalar["Scalars"].([]interface{})
	assert.Equal(t, float64(1), scalars[0].(map[string]interface{})["Scalar"], "levels are clamped to 1")
}
