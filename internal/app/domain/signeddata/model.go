// Package signeddata models attested data points served by signed-data
// APIs and the value bounds they must satisfy.
package signeddata

import (
	"fmt"
	"math/big"
)

// Beacon values mirror an int224 on chain. Anything outside that range is
// treated as absent rather than wrapped.
var (
	maxBeaconValue = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 223), big.NewInt(1))
	minBeaconValue = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 223))
)

// Point is one attested value for one beacon. Immutable once accepted; a
// point is superseded only by a newer point for the same key.
type Point struct {
	Airnode    string
	TemplateID string
	Value      *big.Int
	Timestamp  int64
}

// Key returns the (airnode, template) identity the point is stored under.
func (p Point) Key() string {
	return p.Airnode + "-" + p.TemplateID
}

// InRange reports whether v fits the signed 224-bit beacon value range.
func InRange(v *big.Int) bool {
	return v != nil && v.Cmp(minBeaconValue) >= 0 && v.Cmp(maxBeaconValue) <= 0
}

// ParseValue decodes a string-encoded integer beacon value, enforcing the
// signed 224-bit range.
func ParseValue(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("value %q is not a base-10 integer", raw)
	}
	if !InRange(v) {
		return nil, fmt.Errorf("value %s outside int224 range", v)
	}
	return v, nil
}
