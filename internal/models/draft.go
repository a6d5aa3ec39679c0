package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WizardStep names a step of the bag entry wizard, in order.
type WizardStep string

const (
	WizardStepSocket  WizardStep = "socket"
	WizardStepBagType WizardStep = "bag_type"
	WizardStepSubtype WizardStep = "subtype"
	WizardStepWeight  WizardStep = "weight"
	WizardStepSummary WizardStep = "summary"
)

// WizardDraft is the bag being entered across wizard steps.
type WizardDraft struct {
	ID string `json:"id"`

	SocketID   int64     `json:"socket_id,omitempty"`
	SocketCode string    `json:"socket_code,omitempty"`
	SocketName string    `json:"socket_name,omitempty"`
	BagSource  BagSource `json:"bag_source,omitempty"`

	BagTypeID   int64     `json:"bag_type_id,omitempty"`
	BagTypeName string    `json:"bag_type_name,omitempty"`
	Parameter   Parameter `json:"parameter,omitempty"`

	BagSubtypeID   *int64 `json:"bag_subtype_id,omitempty"`
	BagSubtypeName string `json:"bag_subtype_name,omitempty"`

	WeightKg decimal.NullDecimal `json:"weight_kg"`
	Notes    string              `json:"notes,omitempty"`

	// CommittedBagID is set by a successful commit and cleared by the next Continue.
	CommittedBagID string `json:"committed_bag_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (d *WizardDraft) HasSocket() bool  { return d.SocketID > 0 }
func (d *WizardDraft) HasBagType() bool { return d.HasSocket() && d.BagTypeID > 0 }

// SocketInfo renders "name (source)", or just the name without a source.
func (d *WizardDraft) SocketInfo() string {
	if d.BagSource != "" {
		return fmt.Sprintf("%s (%s)", d.SocketName, d.BagSource)
	}
	return d.SocketName
}

// BagTypeDisplay renders "type - subtype (parameter)" leaving out the absent parts.
func (d *WizardDraft) BagTypeDisplay() string {
	s := d.BagTypeName
	if d.BagSubtypeName != "" {
		s += " - " + d.BagSubtypeName
	}
	if d.Parameter != "" {
		s += fmt.Sprintf(" (%s)", d.Parameter)
	}
	return s
}

// ClearFromBagType drops the bag type and everything after it.
func (d *WizardDraft) ClearFromBagType() {
	d.BagTypeID = 0
	d.BagTypeName = ""
	d.Parameter = ""
	d.ClearFromSubtype()
}

func (d *WizardDraft) ClearFromSubtype() {
	d.BagSubtypeID = nil
	d.BagSubtypeName = ""
	d.WeightKg = decimal.NullDecimal{}
	d.Notes = ""
}

// CollapseToSocket keeps only the socket fields so the next bag starts at the same station.
func (d *WizardDraft) CollapseToSocket() {
	d.ClearFromBagType()
	d.CommittedBagID = ""
}

func (d *WizardDraft) Reset() {
	*d = WizardDraft{ID: d.ID}
}

// Extra reports whether the Extra parameter was chosen.
func (d *WizardDraft) Extra() bool {
	return d.Parameter == ParameterExtra
}
