package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/focusrelay/internal/core"
)

// RoomHandlers exposes read-only room state for downstream collaborators
// such as a persistence job polling snapshots.
type RoomHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *core.Hub, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub: hub,
		log: logger,
	}
}

// RoomSummary represents a room in API responses.
type RoomSummary struct {
	RoomID  string  `json:"roomId"`
	Members int     `json:"members"`
	Average float64 `json:"average"`
}

// ListRooms handles listing live rooms.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	ids := h.hub.RoomIDs()
	response := make([]RoomSummary, 0, len(ids))
	for _, id := range ids {
		snap := h.hub.Snapshot(id)
		if len(snap.Members) == 0 {
			// emptied between listing and snapshot
			continue
		}
		response = append(response, RoomSummary{
			RoomID:  id,
			Members: len(snap.Members),
			Average: snap.Average,
		})
	}

	h.log.Debug().Int("room_count", len(response)).Msg("rooms listed")
	c.JSON(http.StatusOK, response)
}

// Snapshot returns the meeting_state payload of one room. Unknown rooms
// are reported as empty, not as an error.
// GET /api/rooms/:roomId/snapshot
func (h *RoomHandlers) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Snapshot(c.Param("roomId")))
}
