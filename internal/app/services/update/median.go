package update

import (
	"fmt"
	"math/big"
	"sort"
)

// CalculateMedian returns the median of the values. For even-length input
// the result is the integer mean of the two middle elements; big.Int.Quo
// truncates toward zero, which intentionally matches the feed contract's
// integer division. An empty input is an invariant violation.
func CalculateMedian(values []*big.Int) (*big.Int, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("median of empty set")
	}

	sorted := make([]*big.Int, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Cmp(sorted[j]) < 0
	})

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return new(big.Int).Set(sorted[mid]), nil
	}

	sum := new(big.Int).Add(sorted[mid-1], sorted[mid])
	return sum.Quo(sum, big.NewInt(2)), nil
}
