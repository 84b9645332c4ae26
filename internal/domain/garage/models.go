package garage

import (
	"time"
)

const (
	EventEnter = "enter"
	EventExit  = "exit"
)

// ValidEventType reports whether s is one of the accepted car event kinds.
func ValidEventType(s string) bool {
	return s == EventEnter || s == EventExit
}

// SlotUpdatePayload is posted by an occupancy sensor node.
type SlotUpdatePayload struct {
	SlotID   string `json:"slot_id"`
	Occupied *bool  `json:"occupied"`
}

// CarEventPayload is posted by a gate node that already knows the plate.
type CarEventPayload struct {
	Plate string `json:"plate"`
	Event string `json:"event"`
}

// DetectRequest asks the server to capture a frame from the camera node
// and run plate detection in the background.
type DetectRequest struct {
	Event    string `json:"event"`
	ESP32URL string `json:"esp32_url,omitempty"`
}

type SlotInfo struct {
	ID        int64      `json:"id"`
	SlotID    string     `json:"slot_id"`
	Occupied  bool       `json:"occupied"`
	X         int        `json:"x"`
	Y         int        `json:"y"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type HistoryEntry struct {
	ID        int64     `json:"id"`
	SlotID    string    `json:"slot_id"`
	Occupied  bool      `json:"occupied"`
	Timestamp time.Time `json:"timestamp"`
}

type CarEventInfo struct {
	ID         int64     `json:"id"`
	Plate      string    `json:"plate"`
	Event      string    `json:"event"`
	Confidence *float64  `json:"confidence,omitempty"`
	ImagePath  *string   `json:"image_path,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type Summary struct {
	Total         int     `json:"total"`
	Occupied      int     `json:"occupied"`
	Available     int     `json:"available"`
	OccupancyRate float64 `json:"occupancy_rate"`
	// Provisional is the optimistic in-memory count of vehicles pending
	// physical slot confirmation. It resets on restart.
	Provisional int `json:"provisional"`
}
