package models

import (
	"encoding/json"
	"fmt"
)

// BagSource is the direction a bag moved through a station.
type BagSource string

const (
	BagSourceIn  BagSource = "IN"
	BagSourceOut BagSource = "OUT"
)

var validBagSources = []BagSource{BagSourceIn, BagSourceOut}

func (s BagSource) String() string { return string(s) }

func (s BagSource) IsValid() bool {
	for _, c := range validBagSources {
		if c == s {
			return true
		}
	}
	return false
}

func ParseBagSource(value string) (BagSource, error) {
	for _, c := range validBagSources {
		if string(c) == value {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid bag source %q", value)
}

// Parameter is a bag type option chosen at intake.
type Parameter string

const (
	ParameterStandard Parameter = "Standard"
	ParameterExtra    Parameter = "Extra"
)

func (p Parameter) IsValid() bool {
	return p == ParameterStandard || p == ParameterExtra
}

func ParseParameter(value string) (Parameter, error) {
	switch Parameter(value) {
	case ParameterStandard, ParameterExtra:
		return Parameter(value), nil
	}
	return "", fmt.Errorf("invalid parameter %q", value)
}

// ParameterSet is the set of parameters a bag type accepts.
type ParameterSet uint8

const (
	paramStandardBit ParameterSet = 1 << iota
	paramExtraBit
)

func NewParameterSet(ps ...Parameter) ParameterSet {
	var s ParameterSet
	for _, p := range ps {
		s = s.With(p)
	}
	return s
}

// ParseParameterSet accepts stored values like ["Standard", "Extra"].
func ParseParameterSet(values []string) (ParameterSet, error) {
	var s ParameterSet
	for _, v := range values {
		p, err := ParseParameter(v)
		if err != nil {
			return 0, err
		}
		s = s.With(p)
	}
	return s, nil
}

func (s ParameterSet) With(p Parameter) ParameterSet {
	switch p {
	case ParameterStandard:
		return s | paramStandardBit
	case ParameterExtra:
		return s | paramExtraBit
	}
	return s
}

func (s ParameterSet) Has(p Parameter) bool {
	switch p {
	case ParameterStandard:
		return s&paramStandardBit != 0
	case ParameterExtra:
		return s&paramExtraBit != 0
	}
	return false
}

// Strings returns the set in stable order for storage.
func (s ParameterSet) Strings() []string {
	out := make([]string, 0, 2)
	if s.Has(ParameterStandard) {
		out = append(out, string(ParameterStandard))
	}
	if s.Has(ParameterExtra) {
		out = append(out, string(ParameterExtra))
	}
	return out
}

// QualityGrade is an optional A/B/C grade; empty means ungraded.
type QualityGrade string

const (
	QualityGradeNone QualityGrade = ""
	QualityGradeA    QualityGrade = "A"
	QualityGradeB    QualityGrade = "B"
	QualityGradeC    QualityGrade = "C"
)

func (g QualityGrade) IsValid() bool {
	switch g {
	case QualityGradeNone, QualityGradeA, QualityGradeB, QualityGradeC:
		return true
	}
	return false
}

// Destination is where a sorted bag is shipped.
type Destination string

const (
	DestinationRetail    Destination = "retail"
	DestinationOutlet    Destination = "outlet"
	DestinationDonation  Destination = "donation"
	DestinationRecycling Destination = "recycling"
	DestinationDisposal  Destination = "disposal"
)

var validDestinations = []Destination{
	DestinationRetail,
	DestinationOutlet,
	DestinationDonation,
	DestinationRecycling,
	DestinationDisposal,
}

func (d Destination) IsValid() bool {
	for _, c := range validDestinations {
		if c == d {
			return true
		}
	}
	return false
}

func ParseDestination(value string) (Destination, error) {
	for _, c := range validDestinations {
		if string(c) == value {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid destination %q", value)
}

// ShipmentStatus labels a sorted bag. Transitions between labels are not restricted.
type ShipmentStatus string

const (
	ShipmentStatusPending   ShipmentStatus = "pending"
	ShipmentStatusShipped   ShipmentStatus = "shipped"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
	ShipmentStatusReturned  ShipmentStatus = "returned"
)

var validShipmentStatuses = []ShipmentStatus{
	ShipmentStatusPending,
	ShipmentStatusShipped,
	ShipmentStatusDelivered,
	ShipmentStatusReturned,
}

func (s ShipmentStatus) IsValid() bool {
	for _, c := range validShipmentStatuses {
		if c == s {
			return true
		}
	}
	return false
}

func ParseShipmentStatus(value string) (ShipmentStatus, error) {
	for _, c := range validShipmentStatuses {
		if string(c) == value {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid shipment status %q", value)
}

func (s ParameterSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

func (s *ParameterSet) UnmarshalJSON(b []byte) error {
	var values []string
	if err := json.Unmarshal(b, &values); err != nil {
		return err
	}
	ps, err := ParseParameterSet(values)
	if err != nil {
		return err
	}
	*s = ps
	return nil
}
