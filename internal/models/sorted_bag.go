package models

import (
	"strings"
	"time"
)

// SortedBag is the shipment record of a processed bag. One per bag.
type SortedBag struct {
	ID                int64          `json:"id"`
	BagID             int64          `json:"bag"`
	Destination       Destination    `json:"destination"`
	Status            ShipmentStatus `json:"status"`
	FinalQualityCheck bool           `json:"final_quality_check"`
	PackagingNotes    string         `json:"packaging_notes"`
	TrackingNumber    string         `json:"tracking_number"`
	ShippedAt         *time.Time     `json:"shipped_at"`
	DeliveredAt       *time.Time     `json:"delivered_at"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`

	BagCode string `json:"bag_code,omitempty"`
}

// ApplyStatus stamps shipped_at and delivered_at on the first save in that status.
// Stamps are never cleared, whatever the status moves to afterwards.
func (s *SortedBag) ApplyStatus(now time.Time) {
	if s.Status == ShipmentStatusShipped && s.ShippedAt == nil {
		t := now
		s.ShippedAt = &t
	}
	if s.Status == ShipmentStatusDelivered && s.DeliveredAt == nil {
		t := now
		s.DeliveredAt = &t
	}
	s.UpdatedAt = now
}

type SortedBagInput struct {
	BagID             int64
	Destination       Destination
	Status            ShipmentStatus
	FinalQualityCheck bool
	PackagingNotes    string
	TrackingNumber    string
}

func (in *SortedBagInput) Validate() error {
	if in.Status == "" {
		in.Status = ShipmentStatusPending
	}
	in.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
	if in.BagID <= 0 {
		return Invalid("bag", "is required")
	}
	if !in.Destination.IsValid() {
		return Invalid("destination", "must be one of retail, outlet, donation, recycling, disposal")
	}
	if !in.Status.IsValid() {
		return Invalid("status", "must be one of pending, shipped, delivered, returned")
	}
	if len(in.TrackingNumber) > 100 {
		return Invalid("tracking_number", "max 100 chars")
	}
	return nil
}

func (in *SortedBagInput) NewSortedBag(now time.Time) *SortedBag {
	sb := &SortedBag{
		BagID:             in.BagID,
		Destination:       in.Destination,
		Status:            in.Status,
		FinalQualityCheck: in.FinalQualityCheck,
		PackagingNotes:    in.PackagingNotes,
		TrackingNumber:    in.TrackingNumber,
		CreatedAt:         now,
	}
	sb.ApplyStatus(now)
	return sb
}

type SortedBagUpdate struct {
	Destination       *Destination
	Status            *ShipmentStatus
	FinalQualityCheck *bool
	PackagingNotes    *string
	TrackingNumber    *string
}

func (u *SortedBagUpdate) Apply(sb *SortedBag, now time.Time) error {
	if u.Destination != nil && !u.Destination.IsValid() {
		return Invalid("destination", "must be one of retail, outlet, donation, recycling, disposal")
	}
	if u.Status != nil && !u.Status.IsValid() {
		return Invalid("status", "must be one of pending, shipped, delivered, returned")
	}
	if u.TrackingNumber != nil && len(strings.TrimSpace(*u.TrackingNumber)) > 100 {
		return Invalid("tracking_number", "max 100 chars")
	}
	if u.Destination != nil {
		sb.Destination = *u.Destination
	}
	if u.Status != nil {
		sb.Status = *u.Status
	}
	if u.FinalQualityCheck != nil {
		sb.FinalQualityCheck = *u.FinalQualityCheck
	}
	if u.PackagingNotes != nil {
		sb.PackagingNotes = *u.PackagingNotes
	}
	if u.TrackingNumber != nil {
		sb.TrackingNumber = strings.TrimSpace(*u.TrackingNumber)
	}
	sb.ApplyStatus(now)
	return nil
}

type SortedBagFilter struct {
	Destination Destination
	Status      ShipmentStatus
	Limit       int
	Offset      int
}

func (f *SortedBagFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
