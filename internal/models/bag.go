package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	BagIDPrefix = "BAG_"
	maxBagIDLen = 50
)

var (
	sequentialBagIDRe = regexp.MustCompile(`^BAG_(\d+)$`)
	validBagIDRe      = regexp.MustCompile(`^BAG_(\d{6,}|[0-9A-F]{8})$`)

	maxWeight = decimal.NewFromInt(1000)
)

// Bag is one physical bag received at a socket.
type Bag struct {
	ID           int64               `json:"id"`
	BagID        string              `json:"bag_id"`
	SocketID     int64               `json:"socket"`
	PersonID     *int64              `json:"person"`
	BagTypeID    int64               `json:"bag_type"`
	BagSubtypeID *int64              `json:"bag_subtype"`
	QualityGrade QualityGrade        `json:"quality_grade"`
	WeightKg     decimal.NullDecimal `json:"weight_kg"`
	ItemCount    int                 `json:"item_count"`
	Processed    bool                `json:"processed"`
	Extra        bool                `json:"extra"`
	Notes        string              `json:"notes"`
	Source       BagSource           `json:"bag_source,omitempty"`

	ProcessingTimeSeconds  *int64 `json:"processing_time_seconds"`
	AutoProcessedByNextBag bool   `json:"auto_processed_by_next_bag"`

	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Filled by list queries.
	SocketCode     string `json:"socket_code,omitempty"`
	BagTypeName    string `json:"bag_type_name,omitempty"`
	BagSubtypeName string `json:"bag_subtype_name,omitempty"`
	PersonName     string `json:"person_name,omitempty"`
}

// MarkProcessed sets the flag and stamps ProcessedAt on the first transition only.
func (b *Bag) MarkProcessed(now time.Time) {
	b.Processed = true
	if b.ProcessedAt == nil {
		t := now
		b.ProcessedAt = &t
	}
}

// AutoProcess closes the processing window of a pending bag because a later bag arrived.
func (b *Bag) AutoProcess(now time.Time) {
	secs := int64(now.Sub(b.ReceivedAt).Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	b.ProcessingTimeSeconds = &secs
	b.AutoProcessedByNextBag = true
	b.MarkProcessed(now)
}

func (b *Bag) ProcessingDuration() string {
	return FormatDuration(b.ProcessingTimeSeconds)
}

// FormatDuration renders "Hh Mm Ss", "Mm Ss" or "Ss". Nil renders as "".
func FormatDuration(seconds *int64) string {
	if seconds == nil {
		return ""
	}
	s := *seconds
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, sec)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}

// NextBagNumber returns max+1 over the numeric suffixes of sequential ids.
// Ids that do not match BAG_<digits> are ignored.
func NextBagNumber(existing []string) int64 {
	var max int64
	for _, id := range existing {
		m := sequentialBagIDRe.FindStringSubmatch(id)
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1
}

func FormatBagID(n int64) string {
	return fmt.Sprintf("%s%06d", BagIDPrefix, n)
}

func NextBagID(existing []string) string {
	return FormatBagID(NextBagNumber(existing))
}

// ValidBagID accepts BAG_ followed by 6+ digits or by 8 uppercase hex chars.
func ValidBagID(id string) bool {
	return len(id) <= maxBagIDLen && validBagIDRe.MatchString(id)
}

// ValidateWeight allows numeric(5,2): non-negative, below 1000, at most 2 fraction digits.
func ValidateWeight(w decimal.Decimal) error {
	if w.IsNegative() {
		return Invalid("weight_kg", "must not be negative")
	}
	if w.Exponent() < -2 {
		return Invalid("weight_kg", "at most 2 decimal places")
	}
	if w.GreaterThanOrEqual(maxWeight) {
		return Invalid("weight_kg", "must be less than 1000")
	}
	return nil
}

type BagCreateInput struct {
	// BagID is generated when empty.
	BagID        string
	SocketID     int64
	PersonID     *int64
	BagTypeID    int64
	BagSubtypeID *int64
	QualityGrade QualityGrade
	WeightKg     decimal.NullDecimal
	ItemCount    int
	Processed    bool
	Extra        bool
	Notes        string
	Source       BagSource
}

func (in *BagCreateInput) Validate() error {
	in.BagID = strings.TrimSpace(in.BagID)
	if in.BagID != "" && !ValidBagID(in.BagID) {
		return Invalid("bag_id", "must be BAG_ + 6 digits or BAG_ + 8 hex chars")
	}
	if in.SocketID <= 0 {
		return Invalid("socket", "is required")
	}
	if in.BagTypeID <= 0 {
		return Invalid("bag_type", "is required")
	}
	if !in.QualityGrade.IsValid() {
		return Invalid("quality_grade", "must be A, B, C or empty")
	}
	if in.WeightKg.Valid {
		if err := ValidateWeight(in.WeightKg.Decimal); err != nil {
			return err
		}
	}
	if in.ItemCount < 0 {
		return Invalid("item_count", "must not be negative")
	}
	if in.Source != "" && !in.Source.IsValid() {
		return Invalid("bag_source", "must be IN or OUT")
	}
	return nil
}

// NewBag builds the row to insert. ReceivedAt is now.
func (in *BagCreateInput) NewBag(bagID string, now time.Time) *Bag {
	b := &Bag{
		BagID:        bagID,
		SocketID:     in.SocketID,
		PersonID:     in.PersonID,
		BagTypeID:    in.BagTypeID,
		BagSubtypeID: in.BagSubtypeID,
		QualityGrade: in.QualityGrade,
		WeightKg:     in.WeightKg,
		ItemCount:    in.ItemCount,
		Extra:        in.Extra,
		Notes:        in.Notes,
		Source:       in.Source,
		ReceivedAt:   now,
		UpdatedAt:    now,
	}
	if in.Processed {
		b.MarkProcessed(now)
	}
	return b
}

// BagUpdate is a partial edit. Nil fields are left as they are.
type BagUpdate struct {
	PersonID     *int64
	ClearPerson  bool
	BagSubtypeID *int64
	QualityGrade *QualityGrade
	WeightKg     *decimal.NullDecimal
	ItemCount    *int
	Processed    *bool
	Extra        *bool
	Notes        *string
	Source       *BagSource
}

// Apply edits b in place. A processed bag cannot go back to pending.
func (u *BagUpdate) Apply(b *Bag, now time.Time) error {
	if u.QualityGrade != nil && !u.QualityGrade.IsValid() {
		return Invalid("quality_grade", "must be A, B, C or empty")
	}
	if u.WeightKg != nil && u.WeightKg.Valid {
		if err := ValidateWeight(u.WeightKg.Decimal); err != nil {
			return err
		}
	}
	if u.ItemCount != nil && *u.ItemCount < 0 {
		return Invalid("item_count", "must not be negative")
	}
	if u.Source != nil && *u.Source != "" && !u.Source.IsValid() {
		return Invalid("bag_source", "must be IN or OUT")
	}
	if u.Processed != nil && !*u.Processed && b.Processed {
		return Invalid("processed", "a processed bag cannot return to pending")
	}

	switch {
	case u.ClearPerson:
		b.PersonID = nil
	case u.PersonID != nil:
		b.PersonID = u.PersonID
	}
	if u.BagSubtypeID != nil {
		b.BagSubtypeID = u.BagSubtypeID
	}
	if u.QualityGrade != nil {
		b.QualityGrade = *u.QualityGrade
	}
	if u.WeightKg != nil {
		b.WeightKg = *u.WeightKg
	}
	if u.ItemCount != nil {
		b.ItemCount = *u.ItemCount
	}
	if u.Extra != nil {
		b.Extra = *u.Extra
	}
	if u.Notes != nil {
		b.Notes = *u.Notes
	}
	if u.Source != nil {
		b.Source = *u.Source
	}
	if u.Processed != nil && *u.Processed {
		b.MarkProcessed(now)
	}
	b.UpdatedAt = now
	return nil
}

type BagStatusFilter string

const (
	BagStatusAll       BagStatusFilter = ""
	BagStatusProcessed BagStatusFilter = "processed"
	BagStatusPending   BagStatusFilter = "pending"
)

type BagFilter struct {
	Status    BagStatusFilter
	SocketID  int64
	BagTypeID int64
	Limit     int
	Offset    int
}

func (f *BagFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// DashboardStats is the summary shown on the main page.
type DashboardStats struct {
	ActiveSockets int    `json:"active_sockets"`
	TotalBags     int    `json:"total_bags"`
	ProcessedBags int    `json:"processed_bags"`
	PendingBags   int    `json:"pending_bags"`
	SortedBags    int    `json:"sorted_bags"`
	Personnel     int    `json:"personnel"`
	RecentBags    []*Bag `json:"recent_bags"`
}
