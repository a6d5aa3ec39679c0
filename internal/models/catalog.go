package models

import (
	"regexp"
	"strings"
	"time"
)

const (
	DefaultSocketColor  = "#010101"
	DefaultCatalogColor = "#808080"
	// NeutralColor is shown for subtypes without a category.
	NeutralColor = "#808080"

	MinOrder = 1
	MaxOrder = 1000
)

var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Socket is a physical intake/output station.
type Socket struct {
	ID             int64     `json:"id"`
	SocketID       string    `json:"socket_id"`
	Name           string    `json:"socket_name"`
	Color          string    `json:"socket_color"`
	Location       string    `json:"location"`
	IsActive       bool      `json:"is_active"`
	Order          int       `json:"order"`
	SupportsSource bool      `json:"supports_source"`
	Users          []string  `json:"users"`
	BagCount       int       `json:"bag_count"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Socket) Normalize() {
	s.SocketID = strings.TrimSpace(s.SocketID)
	s.Name = strings.TrimSpace(s.Name)
	if s.Color == "" {
		s.Color = DefaultSocketColor
	}
}

func (s *Socket) Validate() error {
	if s.SocketID == "" || len(s.SocketID) > 50 {
		return Invalid("socket_id", "is required, max 50 chars")
	}
	if s.Name == "" || len(s.Name) > 50 {
		return Invalid("socket_name", "is required, max 50 chars")
	}
	if !hexColorRe.MatchString(s.Color) {
		return Invalid("socket_color", "must be #RRGGBB")
	}
	if len(s.Location) > 100 {
		return Invalid("location", "max 100 chars")
	}
	return nil
}

// SocketImpact counts the rows a socket delete would cascade to.
type SocketImpact struct {
	BagTypes   int `json:"bag_types"`
	Subtypes   int `json:"subtypes"`
	Bags       int `json:"bags"`
	SortedBags int `json:"sorted_bags"`
}

func (i SocketImpact) Empty() bool {
	return i.BagTypes == 0 && i.Subtypes == 0 && i.Bags == 0 && i.SortedBags == 0
}

// BagTypeCategory groups subtypes for display.
type BagTypeCategory struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Icon     string `json:"icon"`
	Order    int    `json:"order"`
	IsActive bool   `json:"is_active"`
}

func (c *BagTypeCategory) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Color == "" {
		c.Color = DefaultCatalogColor
	}
	if c.Name == "" || len(c.Name) > 100 {
		return Invalid("name", "is required, max 100 chars")
	}
	if !hexColorRe.MatchString(c.Color) {
		return Invalid("color", "must be #RRGGBB")
	}
	return nil
}

// BagType classifies bag content at one socket and direction.
type BagType struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Code        string       `json:"code"`
	Description string       `json:"description"`
	Color       string       `json:"color"`
	Parameters  ParameterSet `json:"parameters"`
	Order       int          `json:"order"`
	Source      BagSource    `json:"bag_source"`
	IsActive    bool         `json:"is_active"`
	SocketID    int64        `json:"socket"`
	CreatedAt   time.Time    `json:"created_at"`
}

// AllowsExtra reports whether the operator has to choose between Standard and Extra.
func (t *BagType) AllowsExtra() bool {
	return t.Parameters.Has(ParameterStandard) && t.Parameters.Has(ParameterExtra)
}

func (t *BagType) Validate() error {
	t.Name = strings.TrimSpace(t.Name)
	t.Code = strings.TrimSpace(t.Code)
	if t.Color == "" {
		t.Color = DefaultCatalogColor
	}
	if t.Name == "" || len(t.Name) > 50 {
		return Invalid("name", "is required, max 50 chars")
	}
	if t.Code == "" || len(t.Code) > 20 {
		return Invalid("code", "is required, max 20 chars")
	}
	if t.Order < MinOrder || t.Order > MaxOrder {
		return Invalid("order", "must be between 1 and 1000")
	}
	if !t.Source.IsValid() {
		return Invalid("bag_source", "must be IN or OUT")
	}
	if t.SocketID <= 0 {
		return Invalid("socket", "is required")
	}
	if !hexColorRe.MatchString(t.Color) {
		return Invalid("color", "must be #RRGGBB")
	}
	return nil
}

// BagSubtype is a finer classification under a bag type.
type BagSubtype struct {
	ID          int64            `json:"id"`
	BagTypeID   int64            `json:"bag_type"`
	CategoryID  *int64           `json:"category"`
	Category    *BagTypeCategory `json:"category_info,omitempty"`
	Name        string           `json:"name"`
	Code        string           `json:"code"`
	Description string           `json:"description"`
	Order       int              `json:"order"`
	Color       string           `json:"color"`
	IsActive    bool             `json:"is_active"`
	CreatedAt   time.Time        `json:"created_at"`
}

// EffectiveColor is the category color, or NeutralColor without a category.
func (s *BagSubtype) EffectiveColor() string {
	if s.Category != nil && s.Category.Color != "" {
		return s.Category.Color
	}
	return NeutralColor
}

func (s *BagSubtype) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Order == 0 {
		s.Order = 1
	}
	if s.Color == "" {
		s.Color = DefaultCatalogColor
	}
	if s.BagTypeID <= 0 {
		return Invalid("bag_type", "is required")
	}
	if s.Name == "" || len(s.Name) > 100 {
		return Invalid("name", "is required, max 100 chars")
	}
	if len(s.Code) > 10 {
		return Invalid("code", "max 10 chars")
	}
	if s.Order < MinOrder || s.Order > MaxOrder {
		return Invalid("order", "must be between 1 and 1000")
	}
	if !hexColorRe.MatchString(s.Color) {
		return Invalid("color", "must be #RRGGBB")
	}
	return nil
}

// SortingPerson is an operator who sorts bags.
type SortingPerson struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	PersonID   string    `json:"person_id"`
	Color      string    `json:"person_color"`
	BagsSorted int       `json:"bags_sorted"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (p *SortingPerson) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.PersonID = strings.TrimSpace(p.PersonID)
	if p.Color == "" {
		p.Color = "#000000"
	}
	if p.Name == "" || len(p.Name) > 100 {
		return Invalid("name", "is required, max 100 chars")
	}
	if p.PersonID == "" || len(p.PersonID) > 20 {
		return Invalid("person_id", "is required, max 20 chars")
	}
	if !hexColorRe.MatchString(p.Color) {
		return Invalid("person_color", "must be #RRGGBB")
	}
	return nil
}

// OrderKind selects which catalog table a reorder applies to.
type OrderKind string

const (
	OrderKindSocket     OrderKind = "socket"
	OrderKindBagType    OrderKind = "bagtype"
	OrderKindBagSubtype OrderKind = "bagsubtype"
)

func (k OrderKind) IsValid() bool {
	switch k {
	case OrderKindSocket, OrderKindBagType, OrderKindBagSubtype:
		return true
	}
	return false
}

type BagTypeFilter struct {
	SocketID   int64
	Source     BagSource
	ActiveOnly bool
}

type SubtypeFilter struct {
	BagTypeID  int64
	CategoryID int64
	ActiveOnly bool
}
