package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/focusrelay/internal/log"
	"github.com/vovakirdan/focusrelay/internal/proto"
)

func main() {
	logger := log.New("info")
	if err := run(logger); err != nil {
		logger.Error().Err(err).Msg("ws_smoke failed")
		os.Exit(1)
	}
}

// run joins a room as a teacher and a student, sends one focus score and
// waits for the teacher to see it.
func run(logger *zerolog.Logger) error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	room := flag.String("room", "smoke", "room id")
	score := flag.Float64("score", 65, "focus score the student reports")
	text := flag.String("text", "hello from smoke test", "chat message the student sends")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	teacher, err := dialJoin(ctx, *addr, map[string]any{
		"type": "join", "roomId": *room, "userId": 1, "displayName": "Smoke Teacher", "role": "teacher",
	})
	if err != nil {
		return fmt.Errorf("teacher: %w", err)
	}
	defer teacher.Close(websocket.StatusNormalClosure, "bye")

	student, err := dialJoin(ctx, *addr, map[string]any{
		"type": "join", "roomId": *room, "userId": 2, "displayName": "Smoke Student",
	})
	if err != nil {
		return fmt.Errorf("student: %w", err)
	}
	defer student.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, student, map[string]any{"type": "state_update", "focusScore": *score}); err != nil {
		return fmt.Errorf("send state: %w", err)
	}
	if err := wsjson.Write(ctx, student, map[string]any{"type": "chat", "message": *text}); err != nil {
		return fmt.Errorf("send chat: %w", err)
	}

	var update proto.StateUpdate
	var chat proto.Chat
	for update.Type == "" || chat.Type == "" {
		var frame map[string]any
		if err := wsjson.Read(ctx, teacher, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		logger.Info().Interface("frame", frame).Msg("teacher received")
		switch frame["type"] {
		case proto.OutboundStateUpdate:
			update.Type = proto.OutboundStateUpdate
			update.MemberID, _ = frame["memberId"].(string)
			update.Average, _ = frame["average"].(float64)
		case proto.OutboundChat:
			chat.Type = proto.OutboundChat
			chat.Message, _ = frame["message"].(string)
		}
	}

	logger.Info().
		Str("member_id", update.MemberID).
		Float64("average", update.Average).
		Str("chat", chat.Message).
		Msg("smoke test passed")
	return nil
}

// dialJoin opens a connection, sends join and waits for the meeting_state reply.
func dialJoin(ctx context.Context, addr string, join map[string]any) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if err := wsjson.Write(ctx, conn, join); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("send join: %w", err)
	}
	for {
		var state proto.MeetingState
		if err := wsjson.Read(ctx, conn, &state); err != nil {
			conn.CloseNow()
			return nil, fmt.Errorf("read: %w", err)
		}
		if state.Type == proto.OutboundMeetingState {
			return conn, nil
		}
	}
}
