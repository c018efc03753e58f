package model

import "time"

// Instance is the integrated packing + routing instance. Customers are
// numbered 1..N; row/column 0 of Distance is the depot. SizesOfItems is
// zero-padded to a common width.
type Instance struct {
	Name             string  `json:"name,omitempty" yaml:"name,omitempty"`
	N                int     `json:"N" yaml:"N"`
	Capacity         int     `json:"Capacity" yaml:"Capacity"`
	Distance         [][]int `json:"Distance" yaml:"Distance"`
	ItemsPerCustomer []int   `json:"ItemsPerCustomer" yaml:"ItemsPerCustomer"`
	BinCapacity      int     `json:"binCapacity" yaml:"binCapacity"`
	SizesOfItems     [][]int `json:"SizesOfItems" yaml:"SizesOfItems"`
	// Optional; 0 lets the heuristic pick max(1, remaining customers).
	NbVehicles int `json:"nbVehicles,omitempty" yaml:"nbVehicles,omitempty"`
	// Informational for split-delivery variants; not used by the heuristic.
	MaxVisitsPerCustomer int `json:"maxVisitsPerCustomer,omitempty" yaml:"maxVisitsPerCustomer,omitempty"`
}

// CustomerPacking is the packing outcome for one customer.
type CustomerPacking struct {
	Customer  int     `json:"customer"`
	ItemSizes []int   `json:"itemSizes"`
	Pallets   int     `json:"pallets"`
	Status    string  `json:"status"`
	TimeSec   float64 `json:"timeSec"`
	// Fallback names the strategy used when the solver gave no count.
	Fallback string `json:"fallback,omitempty"`
	// Estimated is set when Pallets is a lower bound that may not be packable.
	Estimated   bool    `json:"estimated,omitempty"`
	Cached      bool    `json:"cached,omitempty"`
	BinOfItem   []int   `json:"binOfItem,omitempty"`
	PalletItems [][]int `json:"palletItems,omitempty"`
}

// FullTrip is a dedicated depot -> customer -> depot delivery of Capacity pallets.
type FullTrip struct {
	Customer       int   `json:"customer"`
	Trips          int   `json:"trips"`
	PalletsPerTrip int   `json:"palletsPerTrip"`
	TripCost       int   `json:"tripCost"`
	TotalCost      int   `json:"totalCost"`
	Route          []int `json:"route"`
}

// GroupingResult splits pallet counts into closed-form full trips and
// residual demands. RemainingCustomers is increasing in customer id and
// OrigCustomerOfNode[k-1] is the original customer of reduced node k.
type GroupingResult struct {
	FixedCost          int         `json:"fixedCost"`
	FullTrips          map[int]int `json:"fullTrips"`
	FullTripRoutes     []FullTrip  `json:"fullTripRoutes"`
	RemainingCustomers []int       `json:"remainingCustomers"`
	RemainingDemands   []int       `json:"remainingDemands"`
	OrigCustomerOfNode []int       `json:"origCustomerOfNode"`
}

// OrigCustomer maps reduced node k (1-based) back to its original customer id.
func (g GroupingResult) OrigCustomer(k int) (int, bool) {
	if k < 1 || k > len(g.OrigCustomerOfNode) {
		return 0, false
	}
	return g.OrigCustomerOfNode[k-1], true
}

// ReducedInstance is the capacitated routing instance over residual demand.
type ReducedInstance struct {
	N                  int     `json:"N"`
	Capacity           int     `json:"Capacity"`
	NbVehicles         int     `json:"nbVehicles"`
	Demand             []int   `json:"Demand"`
	Distance           [][]int `json:"Distance"`
	FixedCost          int     `json:"fixedCost"`
	OrigCustomerOfNode []int   `json:"origCustomerOfNode"`
}

// RoutingOutcome is the normalized record of the routing sub-solve.
type RoutingOutcome struct {
	Status      string         `json:"status"`
	HasSolution bool           `json:"hasSolution"`
	Objective   *float64       `json:"objective"`
	TimeSec     float64        `json:"timeSec"`
	Routes      [][]int        `json:"routes,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// ObjectiveBreakdown reports how the total objective was composed.
// TotalObjective is nil when the routing stage failed.
type ObjectiveBreakdown struct {
	FixedCost        int      `json:"fixedCost"`
	RoutingObjective *float64 `json:"routingObjective"`
	TotalObjective   *float64 `json:"totalObjective"`
}

// DeliveryAudit translates full trips and routed visits back into
// original-customer terms.
type DeliveryAudit struct {
	DeliveredPerCustomer []int   `json:"deliveredPerCustomer"`
	VisitsPerCustomer    []int   `json:"visitsPerCustomer"`
	ServedCustomers      int     `json:"servedCustomers"`
	SplitCustomers       int     `json:"splitCustomers"`
	MaxVisitsCustomer    int     `json:"maxVisitsCustomer"`
	AvgVisitsCustomer    float64 `json:"avgVisitsCustomer"`
	VehiclesUsed         int     `json:"vehiclesUsed"`
	TotalDemand          int     `json:"totalDemand"`
	TotalDelivered       int     `json:"totalDelivered"`
	DemandSatisfied      bool    `json:"demandSatisfied"`
	// CustomerRoutes are routed tours expressed in original customer ids.
	CustomerRoutes [][]int `json:"customerRoutes,omitempty"`
}

// HeuristicResult is the externally visible artifact of one heuristic run.
// Intermediate stages are retained for auditability.
type HeuristicResult struct {
	Instance  string             `json:"instance,omitempty"`
	Status    string             `json:"status"`
	Packing   []CustomerPacking  `json:"packing"`
	Grouping  GroupingResult     `json:"grouping"`
	Reduced   *ReducedInstance   `json:"reducedInstance,omitempty"`
	Routing   *RoutingOutcome    `json:"routing,omitempty"`
	Objective ObjectiveBreakdown `json:"objective"`
	Audit     *DeliveryAudit     `json:"audit,omitempty"`
	TimeSec   float64            `json:"timeSec"`
}

// HasSolution reports whether a total objective was composed.
func (r *HeuristicResult) HasSolution() bool {
	return r != nil && r.Objective.TotalObjective != nil
}

// RunOptions are per-run overrides of the heuristic configuration.
type RunOptions struct {
	Fallback                  string `json:"fallback,omitempty"`
	TreatEqualCapacityAsFixed *bool  `json:"treatEqualCapacityAsFixed,omitempty"`
	PackingTimeLimitMs        int    `json:"packingTimeLimitMs,omitempty"`
	RoutingTimeLimitMs        int    `json:"routingTimeLimitMs,omitempty"`
	NbVehicles                int    `json:"nbVehicles,omitempty"`
}

type RunRequest struct {
	Instance Instance    `json:"instance"`
	Options  *RunOptions `json:"options,omitempty"`
}

// Run statuses.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is a persisted heuristic execution.
type Run struct {
	ID         string           `json:"id"`
	Instance   string           `json:"instance,omitempty"`
	Status     string           `json:"status"`
	CreatedAt  time.Time        `json:"createdAt"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
	Options    *RunOptions      `json:"options,omitempty"`
	Result     *HeuristicResult `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// RunSummary is the list view of a run.
type RunSummary struct {
	ID             string    `json:"id"`
	Instance       string    `json:"instance,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	SolverStatus   string    `json:"solverStatus,omitempty"`
	TotalObjective *float64  `json:"totalObjective,omitempty"`
}

// Summary projects a run into its list view.
func (r Run) Summary() RunSummary {
	s := RunSummary{ID: r.ID, Instance: r.Instance, Status: r.Status, CreatedAt: r.CreatedAt}
	if r.Result != nil {
		s.SolverStatus = r.Result.Status
		s.TotalObjective = r.Result.Objective.TotalObjective
	}
	return s
}
