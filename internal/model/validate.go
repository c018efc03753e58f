package model

import (
	"errors"
	"fmt"
)

// ErrInvalidInstance is returned (wrapped) by Instance.Validate.
var ErrInvalidInstance = errors.New("invalid instance")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInstance, fmt.Sprintf(format, args...))
}

// Validate checks the structural invariants of an instance. Distances may be
// asymmetric; full-trip costs use both directions.
func (in *Instance) Validate() error {
	if in == nil {
		return invalid("nil instance")
	}
	if in.N < 0 {
		return invalid("N must be >= 0, got %d", in.N)
	}
	if in.Capacity <= 0 {
		return invalid("Capacity must be > 0, got %d", in.Capacity)
	}
	if in.BinCapacity <= 0 {
		return invalid("binCapacity must be > 0, got %d", in.BinCapacity)
	}
	if in.NbVehicles < 0 {
		return invalid("nbVehicles must be >= 0, got %d", in.NbVehicles)
	}
	if len(in.Distance) != in.N+1 {
		return invalid("Distance must have %d rows, got %d", in.N+1, len(in.Distance))
	}
	for i, row := range in.Distance {
		if len(row) != in.N+1 {
			return invalid("Distance row %d must have %d columns, got %d", i, in.N+1, len(row))
		}
		for j, d := range row {
			if d < 0 {
				return invalid("Distance[%d][%d] is negative", i, j)
			}
			if i == j && d != 0 {
				return invalid("Distance[%d][%d] must be 0", i, j)
			}
		}
	}
	if len(in.ItemsPerCustomer) != in.N {
		return invalid("ItemsPerCustomer must have %d entries, got %d", in.N, len(in.ItemsPerCustomer))
	}
	if len(in.SizesOfItems) != in.N {
		return invalid("SizesOfItems must have %d rows, got %d", in.N, len(in.SizesOfItems))
	}
	width := -1
	for c := 0; c < in.N; c++ {
		row := in.SizesOfItems[c]
		if width < 0 {
			width = len(row)
		} else if len(row) != width {
			return invalid("SizesOfItems is ragged: row %d has %d entries, expected %d", c+1, len(row), width)
		}
		k := in.ItemsPerCustomer[c]
		if k < 0 {
			return invalid("ItemsPerCustomer[%d] is negative", c+1)
		}
		if k > len(row) {
			return invalid("customer %d declares %d items but has %d sizes", c+1, k, len(row))
		}
		for i, s := range row {
			switch {
			case i < k && s <= 0:
				return invalid("customer %d item %d has non-positive size %d", c+1, i+1, s)
			case i < k && s > in.BinCapacity:
				return invalid("customer %d item %d size %d exceeds binCapacity %d", c+1, i+1, s, in.BinCapacity)
			case i >= k && s != 0:
				return invalid("customer %d padding entry %d must be 0, got %d", c+1, i+1, s)
			}
		}
	}
	return nil
}

// ItemSizes returns a copy of customer c's (1-based) non-padded item sizes.
func (in *Instance) ItemSizes(c int) []int {
	if c < 1 || c > len(in.SizesOfItems) || c > len(in.ItemsPerCustomer) {
		return nil
	}
	row := in.SizesOfItems[c-1]
	k := in.ItemsPerCustomer[c-1]
	if k > len(row) {
		k = len(row)
	}
	out := make([]int, 0, k)
	for _, s := range row[:k] {
		if s > 0 {
			out = append(out, s)
		}
	}
	return out
}

// MaxItemsPerCustomer is the padded width of SizesOfItems.
func (in *Instance) MaxItemsPerCustomer() int {
	m := 0
	for _, k := range in.ItemsPerCustomer {
		if k > m {
			m = k
		}
	}
	return m
}

// TotalItemSize sums customer c's item sizes.
func (in *Instance) TotalItemSize(c int) int {
	t := 0
	for _, s := range in.ItemSizes(c) {
		t += s
	}
	return t
}
