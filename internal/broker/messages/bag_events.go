package messages

import (
	"time"
)

const (
	EventBagCreated       = "bag.created"
	EventBagAutoProcessed = "bag.auto_processed"
	EventBagProcessed     = "bag.processed"
)

// BagEvent is published to the bag events topic, keyed by bag_id.
type BagEvent struct {
	Type      string    `json:"type"`
	BagID     string    `json:"bag_id"`
	ID        int64     `json:"id"`
	Socket    string    `json:"socket"`
	BagSource string    `json:"bag_source,omitempty"`
	BagTypeID int64     `json:"bag_type_id"`
	WeightKg  *string   `json:"weight_kg,omitempty"`
	Extra     bool      `json:"extra"`
	At        time.Time `json:"at"`

	ProcessingTimeSeconds *int64 `json:"processing_time_seconds,omitempty"`
	// ClosedBy is the bag whose arrival auto-processed this one.
	ClosedBy string `json:"closed_by,omitempty"`
}

func (e BagEvent) EventType() string { return e.Type }

// ShipmentStatusUpdated arrives from the shipping side, keyed by tracking number.
type ShipmentStatusUpdated struct {
	TrackingNumber string     `json:"tracking_number"`
	Status         string     `json:"status"`
	At             *time.Time `json:"at,omitempty"`
}
