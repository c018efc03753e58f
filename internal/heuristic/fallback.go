package heuristic

import (
	"fmt"
	"strings"
)

// Fallback is the pallet count used for a customer when the packing solver
// gives no answer.
type Fallback int

const (
	// FallbackItemsUB puts every item on its own pallet. Always packable,
	// so the count is a true upper bound.
	FallbackItemsUB Fallback = iota
	// FallbackVolumeLB uses ceil(total size / bin capacity). This is a lower
	// bound that may not be packable; results using it are marked Estimated.
	FallbackVolumeLB
)

var fallbackNames = map[Fallback]string{
	FallbackItemsUB:  "items_ub",
	FallbackVolumeLB: "volume_lb",
}

// ParseFallback accepts items_ub (alias worst) and volume_lb.
func ParseFallback(s string) (Fallback, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "items_ub", "worst":
		return FallbackItemsUB, nil
	case "volume_lb":
		return FallbackVolumeLB, nil
	}
	return 0, fmt.Errorf("%w: unknown fallback %q (want items_ub or volume_lb)", ErrPrecondition, s)
}

func (f Fallback) String() string {
	if n, ok := fallbackNames[f]; ok {
		return n
	}
	return fmt.Sprintf("Fallback(%d)", int(f))
}

// Estimated reports whether counts from this fallback may be infeasible.
func (f Fallback) Estimated() bool { return f == FallbackVolumeLB }

// Pallets returns the fallback count for the given non-empty item list.
func (f Fallback) Pallets(sizes []int, binCapacity int) int {
	if len(sizes) == 0 {
		return 0
	}
	if f == FallbackVolumeLB {
		total := 0
		for _, s := range sizes {
			total += s
		}
		return (total + binCapacity - 1) / binCapacity
	}
	return len(sizes)
}

func (f Fallback) MarshalText() ([]byte, error) {
	if _, ok := fallbackNames[f]; !ok {
		return nil, fmt.Errorf("unknown fallback %d", int(f))
	}
	return []byte(f.String()), nil
}

func (f *Fallback) UnmarshalText(b []byte) error {
	v, err := ParseFallback(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}
