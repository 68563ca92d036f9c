package model

import (
	"fmt"
	"strings"
)

// Destination is where an outbound movement sends stock. The set is closed:
// values outside it can only be produced by ParseDestination, which rejects them.
type Destination uint8

const (
	DestinationSales Destination = iota + 1
	DestinationLent
	DestinationBroken
)

func (d Destination) String() string {
	switch d {
	case DestinationSales:
		return "sales"
	case DestinationLent:
		return "lent"
	case DestinationBroken:
		return "broken"
	}
	return fmt.Sprintf("destination(%d)", uint8(d))
}

// Valid reports whether d is one of the three destinations.
func (d Destination) Valid() bool {
	return d >= DestinationSales && d <= DestinationBroken
}

// Operation is the ledger operation written for a direct move to d.
func (d Destination) Operation() Operation {
	switch d {
	case DestinationSales:
		return OpSold
	case DestinationLent:
		return OpLent
	default:
		return OpBroken
	}
}

// ParseDestination accepts the wire names, case-insensitively.
func ParseDestination(s string) (Destination, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sales", "sale", "sold":
		return DestinationSales, nil
	case "lent", "lend", "loan":
		return DestinationLent, nil
	case "broken", "break":
		return DestinationBroken, nil
	}
	return 0, fmt.Errorf("unknown destination %q", s)
}

func (d Destination) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid destination %d", uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *Destination) UnmarshalText(b []byte) error {
	v, err := ParseDestination(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
