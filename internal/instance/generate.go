package instance

import (
	"fmt"
	"math"
	"math/rand"
	"slices"

	"palletroute/internal/model"
)

// Geometry controls how customers are placed in the square.
type Geometry string

const (
	Uniform   Geometry = "uniform"
	Clustered Geometry = "clustered"
	Mixed     Geometry = "mixed"
)

// GenerateOptions parameterizes Generate. Zero values take the defaults of
// DefaultGenerateOptions, except Customers, Seed and SplitFraction (zero
// means no forced splits).
type GenerateOptions struct {
	Name      string   `json:"name,omitempty"`
	Customers int      `json:"customers"`
	Seed      int64    `json:"seed"`
	AreaSize  float64  `json:"areaSize,omitempty"`
	Geometry  Geometry `json:"geometry,omitempty"`
	Clusters  int      `json:"clusters,omitempty"`
	// Cluster standard deviation as a fraction of AreaSize.
	ClusterStdFraction float64 `json:"clusterStdFraction,omitempty"`
	// Share of uniformly placed customers for Mixed geometry.
	MixedUniformFraction float64 `json:"mixedUniformFraction,omitempty"`

	// Vehicle capacity in pallets; 0 derives it from the volume lower bound
	// and TargetVehicles.
	Capacity       int     `json:"capacity,omitempty"`
	CapacityFactor float64 `json:"capacityFactor,omitempty"`
	TargetVehicles int     `json:"targetVehicles,omitempty"`
	NbVehicles     int     `json:"nbVehicles,omitempty"`
	MaxVisits      int     `json:"maxVisitsPerCustomer,omitempty"`

	BinCapacity  int     `json:"binCapacity,omitempty"`
	MinItemRatio float64 `json:"minItemRatio,omitempty"`
	MaxItemRatio float64 `json:"maxItemRatio,omitempty"`
	MinItems     int     `json:"minItems,omitempty"`
	MaxItems     int     `json:"maxItems,omitempty"`

	// Share of customers shaped so their volume bound exceeds Capacity.
	SplitFraction float64 `json:"splitFraction,omitempty"`
	// Forced customers need at least Capacity + SplitMinExtra pallets.
	SplitMinExtra int `json:"splitMinExtra,omitempty"`
}

func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		AreaSize:             100,
		Geometry:             Uniform,
		Clusters:             3,
		ClusterStdFraction:   0.1,
		MixedUniformFraction: 0.3,
		CapacityFactor:       1,
		MaxVisits:            3,
		BinCapacity:          50,
		MinItemRatio:         0.2,
		MaxItemRatio:         0.8,
		MinItems:             3,
		MaxItems:             10,
		SplitFraction:        0.25,
		SplitMinExtra:        1,
	}
}

func (o GenerateOptions) withDefaults() GenerateOptions {
	d := DefaultGenerateOptions()
	if o.AreaSize <= 0 {
		o.AreaSize = d.AreaSize
	}
	if o.Geometry == "" {
		o.Geometry = d.Geometry
	}
	if o.Clusters <= 0 {
		o.Clusters = d.Clusters
	}
	if o.ClusterStdFraction <= 0 {
		o.ClusterStdFraction = d.ClusterStdFraction
	}
	if o.MixedUniformFraction <= 0 {
		o.MixedUniformFraction = d.MixedUniformFraction
	}
	if o.CapacityFactor <= 0 {
		o.CapacityFactor = d.CapacityFactor
	}
	if o.MaxVisits <= 0 {
		o.MaxVisits = d.MaxVisits
	}
	if o.BinCapacity <= 0 {
		o.BinCapacity = d.BinCapacity
	}
	if o.MinItemRatio <= 0 {
		o.MinItemRatio = d.MinItemRatio
	}
	if o.MaxItemRatio <= 0 {
		o.MaxItemRatio = d.MaxItemRatio
	}
	if o.MinItems <= 0 {
		o.MinItems = d.MinItems
	}
	if o.MaxItems <= 0 {
		o.MaxItems = d.MaxItems
	}
	if o.SplitMinExtra <= 0 {
		o.SplitMinExtra = d.SplitMinExtra
	}
	return o
}

func (o GenerateOptions) validate() error {
	switch {
	case o.Customers < 0:
		return fmt.Errorf("customers must be >= 0, got %d", o.Customers)
	case o.Geometry != Uniform && o.Geometry != Clustered && o.Geometry != Mixed:
		return fmt.Errorf("unknown geometry %q", o.Geometry)
	case o.MinItems > o.MaxItems:
		return fmt.Errorf("minItems %d > maxItems %d", o.MinItems, o.MaxItems)
	case o.Capacity < 0 || o.NbVehicles < 0 || o.TargetVehicles < 0:
		return fmt.Errorf("capacity and vehicle counts must be >= 0")
	case o.SplitFraction < 0 || o.SplitFraction > 1:
		return fmt.Errorf("splitFraction must be in [0,1], got %g", o.SplitFraction)
	}
	return nil
}

// Generate builds a random instance. The same options and seed always yield
// the same instance. The depot sits at the centre of the square and
// distances are rounded Euclidean (EUC_2D).
func Generate(opts GenerateOptions) (model.Instance, error) {
	o := opts.withDefaults()
	if err := o.validate(); err != nil {
		return model.Instance{}, fmt.Errorf("generate instance: %w", err)
	}
	rng := rand.New(rand.NewSource(o.Seed))
	n := o.Customers
	binCap := o.BinCapacity

	minSize := max(1, int(math.Floor(o.MinItemRatio*float64(binCap))))
	maxSize := min(binCap, int(math.Ceil(o.MaxItemRatio*float64(binCap))))
	if minSize > maxSize {
		minSize, maxSize = 1, 1
	}

	items := make([]int, n)
	rows := make([][]int, n)
	for c := range n {
		k := randInt(rng, o.MinItems, o.MaxItems)
		items[c] = k
		row := make([]int, k)
		for i := range row {
			row[i] = randInt(rng, minSize, maxSize)
		}
		rows[c] = row
	}

	capacity := o.Capacity
	if capacity == 0 {
		target := o.TargetVehicles
		if target == 0 {
			target = defaultTargetVehicles(n)
		}
		base := float64(totalLowerBound(rows, binCap)) / float64(max(1, target))
		capacity = max(1, int(math.RoundToEven(o.CapacityFactor*base)))
	}

	forceSplits(rng, o, capacity, minSize, maxSize, items, rows)

	width := max(1, slices.Max(append([]int{0}, items...)))
	sizes := make([][]int, n)
	for c, row := range rows {
		slices.SortFunc(row, func(a, b int) int { return b - a })
		sizes[c] = make([]int, width)
		copy(sizes[c], row)
	}

	nb := o.NbVehicles
	if nb == 0 {
		if o.TargetVehicles > 0 {
			nb = o.TargetVehicles
		} else {
			nb = max(1, (totalLowerBound(rows, binCap)+capacity-1)/capacity)
		}
	}

	name := o.Name
	if name == "" {
		name = fmt.Sprintf("gen-%s-n%d-s%d", o.Geometry, n, o.Seed)
	}
	return model.Instance{
		Name:                 name,
		N:                    n,
		Capacity:             capacity,
		Distance:             distanceMatrix(rng, o),
		ItemsPerCustomer:     items,
		BinCapacity:          binCap,
		SizesOfItems:         sizes,
		NbVehicles:           nb,
		MaxVisitsPerCustomer: o.MaxVisits,
	}, nil
}

// forceSplits reshapes a share of customers so that their volume bound lies
// in [capacity+extra, maxVisits*capacity] pallets.
func forceSplits(rng *rand.Rand, o GenerateOptions, capacity, minSize, maxSize int, items []int, rows [][]int) {
	n := len(rows)
	count := min(n, max(0, int(math.RoundToEven(o.SplitFraction*float64(n)))))
	if count == 0 {
		return
	}
	binCap := o.BinCapacity
	lbMin := capacity + o.SplitMinExtra
	lbMax := o.MaxVisits * capacity
	if lbMin > lbMax {
		return
	}
	candidates := rng.Perm(n)[:count]
	for _, c := range candidates {
		desired := randInt(rng, lbMin, lbMax)
		k := randInt(rng, o.MinItems, o.MaxItems)
		target := (desired-1)*binCap + randInt(rng, 1, binCap)

		row := make([]int, 0, k)
		total := 0
		for len(row) < k && total < target {
			s := randInt(rng, minSize, maxSize)
			row = append(row, s)
			total += s
		}
		for len(row) < k {
			row = append(row, minSize)
			total += minSize
		}
		if diff := total - target; diff > 0 {
			row[k-1] = max(1, row[k-1]-diff)
		} else if diff < 0 {
			need := -diff
			for i := range row {
				add := min(need, binCap-row[i])
				row[i] += add
				need -= add
				if need == 0 {
					break
				}
			}
		}
		items[c] = k
		rows[c] = row
	}
}

func distanceMatrix(rng *rand.Rand, o GenerateOptions) [][]int {
	n := o.Customers
	area := o.AreaSize
	centers := make([][2]float64, o.Clusters)
	for i := range centers {
		centers[i] = [2]float64{0.2*area + rng.Float64()*0.6*area, 0.2*area + rng.Float64()*0.6*area}
	}
	std := o.ClusterStdFraction * area
	uniform := func() [2]float64 { return [2]float64{rng.Float64() * area, rng.Float64() * area} }
	clustered := func() [2]float64 {
		c := centers[rng.Intn(len(centers))]
		x := math.Max(0, math.Min(area, c[0]+rng.NormFloat64()*std))
		y := math.Max(0, math.Min(area, c[1]+rng.NormFloat64()*std))
		return [2]float64{x, y}
	}

	nodes := make([][2]float64, 0, n+1)
	nodes = append(nodes, [2]float64{area / 2, area / 2})
	for range n {
		switch {
		case o.Geometry == Uniform:
			nodes = append(nodes, uniform())
		case o.Geometry == Clustered:
			nodes = append(nodes, clustered())
		case rng.Float64() < o.MixedUniformFraction:
			nodes = append(nodes, uniform())
		default:
			nodes = append(nodes, clustered())
		}
	}

	d := make([][]int, n+1)
	for i := range d {
		d[i] = make([]int, n+1)
		for j := range d[i] {
			if i != j {
				d[i][j] = euc2D(nodes[i], nodes[j])
			}
		}
	}
	return d
}

func euc2D(p, q [2]float64) int {
	dx, dy := p[0]-q[0], p[1]-q[1]
	return int(math.Sqrt(dx*dx+dy*dy) + 0.5)
}

func totalLowerBound(rows [][]int, binCap int) int {
	total := 0
	for _, row := range rows {
		sum := 0
		for _, s := range row {
			sum += s
		}
		total += (sum + binCap - 1) / binCap
	}
	return total
}

func defaultTargetVehicles(n int) int {
	return max(1, int(math.RoundToEven(float64(n)/10)))
}

// randInt is uniform on [lo, hi].
func randInt(rng *rand.Rand, lo, hi int) int {
	return lo + rng.Intn(hi-lo+1)
}
