package stitch

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/san-kum/stitchsim/internal/maps"
	"github.com/san-kum/stitchsim/internal/simulation"
	"github.com/san-kum/stitchsim/internal/vec"
)

// Kind selects how a composite aggregates its pairings.
type Kind int

const (
	// KindConcat stacks the data of distinct simulations.
	KindConcat Kind = iota
	// KindSum adds the data of distinct simulations sharing one data space.
	KindSum
	// KindRepeated drives one shared simulation once per mapping and stacks
	// the data.
	KindRepeated
)

func (k Kind) String() string {
	switch k {
	case KindConcat:
		return "concat"
	case KindSum:
		return "sum"
	case KindRepeated:
		return "repeated"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "concat", "multi", "":
		return KindConcat, nil
	case "sum":
		return KindSum, nil
	case "repeated":
		return KindRepeated, nil
	}
	return 0, fmt.Errorf("%w: unknown variant %q", ErrInvalidType, s)
}

// Composite drives a list of (mapping, simulation) pairings as a single
// simulation. It implements [simulation.Simulation].
type Composite struct {
	kind Kind
	agg  aggregator

	mu       sync.Mutex
	sims     []simulation.Simulation
	shared   simulation.Simulation
	mappings []maps.Mapping
	nIn      int
	vnD      []int
	offsets  DataOffsets
	cache    modelCache

	workers int
	logger  *slog.Logger
	metrics *Metrics
}

var _ simulation.Simulation = (*Composite)(nil)

type Option func(*Composite)

// WithWorkers bounds how many pairings run concurrently in the concatenating
// and summing variants. n <= 1 runs pairings one after another. The repeated
// variant is always sequential.
func WithWorkers(n int) Option {
	return func(c *Composite) { c.workers = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Composite) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Composite) { c.metrics = m }
}

func newComposite(kind Kind, agg aggregator, opts []Option) *Composite {
	c := &Composite{
		kind:    kind,
		agg:     agg,
		workers: runtime.NumCPU(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("variant", kind.String()))
	return c
}

// NewMulti pairs each simulation with its mapping and concatenates their data.
// Every simulation must be a distinct instance.
func NewMulti(sims []simulation.Simulation, mappings []maps.Mapping, opts ...Option) (*Composite, error) {
	c := newComposite(KindConcat, concatenation{}, opts)
	if err := c.install(sims, mappings); err != nil {
		return nil, err
	}
	return c, nil
}

// NewSum pairs each simulation with its mapping and sums their data. Every
// simulation must be a distinct instance with the same data count.
func NewSum(sims []simulation.Simulation, mappings []maps.Mapping, opts ...Option) (*Composite, error) {
	c := newComposite(KindSum, summation{}, opts)
	if err := c.install(sims, mappings); err != nil {
		return nil, err
	}
	return c, nil
}

// NewRepeated pairs one shared simulation with every mapping. The shared
// instance is re-pointed at each mapping's submodel immediately before it is
// used, so pairings always run one at a time.
func NewRepeated(sim simulation.Simulation, mappings []maps.Mapping, opts ...Option) (*Composite, error) {
	c := newComposite(KindRepeated, concatenation{}, opts)
	if isNil(sim) {
		return nil, pairingErr(ErrInvalidType, -1, "shared simulation is nil")
	}
	c.shared = sim
	if err := c.install(repeat(sim, len(mappings)), mappings); err != nil {
		return nil, err
	}
	return c, nil
}

func repeat(sim simulation.Simulation, n int) []simulation.Simulation {
	sims := make([]simulation.Simulation, n)
	for i := range sims {
		sims[i] = sim
	}
	return sims
}

// install validates a full pairing list and commits it. Nothing changes when
// validation fails.
func (c *Composite) install(sims []simulation.Simulation, mappings []maps.Mapping) error {
	nIn, err := validatePairs(c.kind, sims, mappings)
	if err != nil {
		return err
	}

	vnD := make([]int, len(sims))
	for i, sim := range sims {
		vnD[i] = sim.NData()
	}

	c.sims = append([]simulation.Simulation(nil), sims...)
	c.mappings = append([]maps.Mapping(nil), mappings...)
	c.nIn = nIn
	c.vnD = vnD
	c.offsets = NewDataOffsets(vnD)
	c.cache.reset()
	return nil
}

// SetMappings replaces the mappings, keeping the simulations. For the
// repeated variant the number of mappings may change.
func (c *Composite) SetMappings(mappings []maps.Mapping) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sims := c.sims
	if c.kind == KindRepeated {
		sims = repeat(c.shared, len(mappings))
	}
	return c.install(sims, mappings)
}

// SetSimulations replaces the simulations of a concatenating or summing
// composite, keeping the mappings.
func (c *Composite) SetSimulations(sims []simulation.Simulation) error {
	if c.kind == KindRepeated {
		return fmt.Errorf("%w: repeated composite holds a single simulation, use SetSimulation", ErrInvalidType)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.install(sims, c.mappings)
}

// SetSimulation replaces the shared simulation of a repeated composite.
func (c *Composite) SetSimulation(sim simulation.Simulation) error {
	if c.kind != KindRepeated {
		return fmt.Errorf("%w: only a repeated composite holds a single simulation", ErrInvalidType)
	}
	if isNil(sim) {
		return pairingErr(ErrInvalidType, -1, "shared simulation is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.install(repeat(sim, len(c.mappings)), c.mappings); err != nil {
		return err
	}
	c.shared = sim
	return nil
}

func (c *Composite) Kind() Kind { return c.kind }

// Simulations returns the pairing view. For the repeated variant it holds
// the shared instance once per mapping.
func (c *Composite) Simulations() []simulation.Simulation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]simulation.Simulation(nil), c.sims...)
}

// Simulation returns the shared instance of a repeated composite and nil
// otherwise.
func (c *Composite) Simulation() simulation.Simulation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shared
}

func (c *Composite) Mappings() []maps.Mapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]maps.Mapping(nil), c.mappings...)
}

func (c *Composite) Offsets() DataOffsets {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(DataOffsets(nil), c.offsets...)
}

// Survey summarises the composite's data space.
type Survey struct {
	NData int
	// VnD holds the data count of each pairing.
	VnD []int
}

func (c *Composite) Survey() Survey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Survey{NData: c.agg.nData(c.vnD), VnD: append([]int(nil), c.vnD...)}
}

func (c *Composite) NData() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agg.nData(c.vnD)
}

// InputWidths reports the shared mapping input width, so a composite can be
// paired inside another composite.
func (c *Composite) InputWidths() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return []int{c.nIn}
}

// Model returns a copy of the accepted composite model, or nil.
func (c *Composite) Model() vec.Vector {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.model.Clone()
}
