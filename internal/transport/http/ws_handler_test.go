package http

import (
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/focusrelay/internal/config"
	"github.com/vovakirdan/focusrelay/internal/core"
	"github.com/vovakirdan/focusrelay/internal/proto"
)

func startTestServer(t *testing.T) (*httptest.Server, *core.Hub) {
	t.Helper()

	logger := zerolog.Nop()
	reg := prometheus.NewRegistry()
	hub := core.NewHub(core.Options{
		Metrics: core.NewMetrics(reg),
		Logger:  &logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	cfg := config.Default()
	cfg.Addr = ":0"
	server := NewServer(hub, &cfg, &logger, reg)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts, hub
}

func dial(ctx context.Context, t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// readType reads frames until one of the wanted type arrives.
func readType(ctx context.Context, t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	for {
		var msg map[string]any
		require.NoError(t, wsjson.Read(ctx, conn, &msg), "waiting for %s", want)
		if msg["type"] == want {
			return msg
		}
	}
}

func write(ctx context.Context, t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
}

func TestWebSocketTeacherReceivesStudentState(t *testing.T) {
	ts, _ := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	teacher := dial(ctx, t, ts)
	write(ctx, t, teacher, `{"type":"join","roomId":"r1","userId":1,"displayName":"T","role":"teacher"}`)
	state := readType(ctx, t, teacher, "meeting_state")
	assert.Equal(t, "r1", state["roomId"])

	student := dial(ctx, t, ts)
	write(ctx, t, student, `{"type":"join","roomId":"r1","userId":2,"displayName":"S","role":"student"}`)
	joined := readType(ctx, t, teacher, "member_joined")
	assert.Equal(t, "2", joined["memberId"])

	write(ctx, t, student, `{"type":"state_update","focusScore":65}`)
	update := readType(ctx, t, teacher, "state_update")
	assert.Equal(t, "2", update["memberId"])
	assert.Equal(t, 65.0, update["focusScore"])
	assert.Equal(t, 65.0, update["average"])
}

func TestWebSocketAbruptCloseNotifiesRoom(t *testing.T) {
	ts, hub := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	teacher := dial(ctx, t, ts)
	write(ctx, t, teacher, `{"type":"join","roomId":"r1","userId":1,"role":"teacher"}`)
	readType(ctx, t, teacher, "meeting_state")

	student := dial(ctx, t, ts)
	write(ctx, t, student, `{"type":"join","roomId":"r1","userId":2}`)
	readType(ctx, t, teacher, "member_joined")

	student.CloseNow()

	left := readType(ctx, t, teacher, "member_left")
	assert.Equal(t, "2", left["memberId"])
	assert.Eventually(t, func() bool {
		return len(hub.Snapshot("r1").Members) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWebSocketSurvivesRejectedFrames(t *testing.T) {
	ts, _ := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(ctx, t, ts)
	write(ctx, t, conn, `not json`)
	write(ctx, t, conn, `{"type":"dance"}`)
	write(ctx, t, conn, `{"type":"chat","message":"nobody hears this"}`)
	write(ctx, t, conn, `{"type":"request_state","roomId":"empty"}`)

	var msg proto.MeetingState
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, proto.OutboundMeetingState, msg.Type)
	assert.Equal(t, "empty", msg.RoomID)
	assert.Empty(t, msg.Members)
	assert.Zero(t, msg.Average)
}

func TestRoomEndpoints(t *testing.T) {
	ts, _ := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(ctx, t, ts)
	write(ctx, t, conn, `{"type":"join","roomId":"r1","userId":7,"focusScore":40}`)
	readType(ctx, t, conn, "meeting_state")

	var rooms []RoomSummary
	require.Eventually(t, func() bool {
		resp, err := ts.Client().Get(ts.URL + "/api/rooms")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		rooms = nil
		return json.NewDecoder(resp.Body).Decode(&rooms) == nil && len(rooms) == 1 && rooms[0].Average == 40
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, RoomSummary{RoomID: "r1", Members: 1, Average: 40}, rooms[0])

	resp, err := ts.Client().Get(ts.URL + "/api/rooms/r1/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	var snap proto.MeetingState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Len(t, snap.Members, 1)
	assert.Equal(t, "7", snap.Members[0].MemberID)

	missing, err := ts.Client().Get(ts.URL + "/api/rooms/nope/snapshot")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, 200, missing.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(ctx, t, ts)
	write(ctx, t, conn, `{"type":"join","roomId":"r1"}`)
	readType(ctx, t, conn, "meeting_state")

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "focusrelay_connections 1")
	assert.Contains(t, string(body), `focusrelay_messages_total{type="join"} 1`)
}

func TestOutboxDropsWhenFull(t *testing.T) {
	out := newOutbox(1)
	require.NoError(t, out.Send([]byte("a")))
	assert.ErrorIs(t, out.Send([]byte("b")), core.ErrSendBufferFull)

	out.close()
	assert.ErrorIs(t, out.Send([]byte("c")), core.ErrConnectionGone)
}

func TestRequestIDHeader(t *testing.T) {
	ts, _ := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))

	req, err := stdhttp.NewRequest(stdhttp.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(headerRequestID, "abc-123")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(headerRequestID))
}

func TestWebSocketUpgradeRegistersConnection(t *testing.T) {
	ts, hub := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(ctx, t, ts)
	write(ctx, t, conn, `{"type":"join","roomId":"r1","userId":3}`)
	state := readType(ctx, t, conn, "meeting_state")
	assert.Equal(t, "r1", state["roomId"])
	assert.Equal(t, 1, hub.Registry().Len())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return hub.Registry().Len() == 0 }, time.Second, 10*time.Millisecond)
	assert.Empty(t, hub.RoomIDs())
}
