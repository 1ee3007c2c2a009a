package stitch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/san-kum/stitchsim/internal/maps"
	"github.com/san-kum/stitchsim/internal/simulation"
	"github.com/san-kum/stitchsim/internal/stitch"
	"github.com/san-kum/stitchsim/internal/vec"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var _ = Describe("Composite", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("concatenating two simulations over identity mappings", func() {
		var (
			simA, simB *recordingSim
			c          *stitch.Composite
			m          vec.Vector
		)

		BeforeEach(func() {
			simA = newRecordingSim(4, 3, 1, nil)
			simB = newRecordingSim(4, 3, 2, nil)
			var err error
			c, err = stitch.NewMulti(
				[]simulation.Simulation{simA, simB},
				[]maps.Mapping{maps.NewIdentity(3), maps.NewIdentity(3)},
				stitch.WithLogger(quietLogger),
			)
			Expect(err).NotTo(HaveOccurred())
			m = vec.Vector{1, 2, 3}
		})

		It("reports the summed data count and offsets", func() {
			Expect(c.NData()).To(Equal(8))
			Expect(c.Offsets()).To(Equal(stitch.DataOffsets{0, 4, 8}))
			Expect(c.Survey().VnD).To(Equal([]int{4, 4}))
			Expect(c.InputWidths()).To(Equal([]int{3}))
			Expect(c.Kind()).To(Equal(stitch.KindConcat))
		})

		It("concatenates each simulation's predicted data", func() {
			d, err := c.Dpred(ctx, m, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(HaveLen(8))

			dA, err := simA.Linear.Dpred(ctx, m, nil)
			Expect(err).NotTo(HaveOccurred())
			dB, err := simB.Linear.Dpred(ctx, m, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(Equal(vec.Concat(dA, dB)))
		})

		It("sums each simulation's adjoint over its data block", func() {
			jt, err := c.Jtvec(ctx, m, vec.Ones(8), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(jt).To(HaveLen(3))

			jtA, err := simA.Linear.Jtvec(ctx, m, vec.Ones(4), nil)
			Expect(err).NotTo(HaveOccurred())
			jtB, err := simB.Linear.Jtvec(ctx, m, vec.Ones(4), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(maxAbsDiff(jt, jtA.Add(jtB))).To(BeNumerically("<", 1e-12))
		})

		It("returns one field handle per simulation in order", func() {
			f, err := c.Fields(ctx, m)
			Expect(err).NotTo(HaveOccurred())
			fl, ok := f.(stitch.FieldList)
			Expect(ok).To(BeTrue())
			Expect(fl).To(HaveLen(2))

			withFields, err := c.Dpred(ctx, m, f)
			Expect(err).NotTo(HaveOccurred())
			without, err := c.Dpred(ctx, m, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(withFields).To(Equal(without))

			dA, err := simA.Dpred(ctx, m, fl[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(withFields[:4]).To(Equal(dA))
		})

		It("falls back to the stored model", func() {
			_, err := c.Dpred(ctx, nil, nil)
			Expect(err).To(MatchError(stitch.ErrNoModel))

			Expect(c.SetModel(m)).To(Succeed())
			d, err := c.Dpred(ctx, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(HaveLen(8))
			Expect(c.Model()).To(Equal(m))
		})

		It("rejects fields from elsewhere", func() {
			_, err := c.Dpred(ctx, m, stitch.FieldList{nil})
			Expect(err).To(MatchError(stitch.ErrFieldsMismatch))

			_, err = c.Dpred(ctx, m, "not fields")
			Expect(err).To(MatchError(stitch.ErrFieldsMismatch))
		})

		It("rejects vectors of the wrong length", func() {
			_, err := c.Jvec(ctx, m, vec.Ones(2), nil)
			Expect(err).To(MatchError(stitch.ErrShape))

			_, err = c.Jtvec(ctx, m, vec.Ones(4), nil)
			Expect(err).To(MatchError(stitch.ErrShape))

			_, err = c.JtJDiag(ctx, m, vec.Ones(3))
			Expect(err).To(MatchError(stitch.ErrShape))

			Expect(c.SetModel(vec.Vector{1, 2})).To(MatchError(stitch.ErrShape))
			Expect(c.SetModel(vec.Vector{})).To(MatchError(stitch.ErrShape))
		})

		It("propagates simulation failures with the pairing index", func() {
			simB.failJvec = true
			_, err := c.Jvec(ctx, m, vec.Ones(3), nil)
			Expect(err).To(MatchError(errSolve))
			Expect(err.Error()).To(ContainSubstring("pairing 1"))
		})
	})

	Describe("construction and assignment", func() {
		It("rejects mappings with different input widths, naming the index", func() {
			sims := []simulation.Simulation{newRecordingSim(2, 2, 1, nil), newRecordingSim(2, 2, 2, nil)}
			_, err := stitch.NewMulti(sims, []maps.Mapping{mustSlice(4, 0, 2), mustSlice(5, 0, 2)})
			Expect(err).To(MatchError(stitch.ErrShape))

			var perr *stitch.PairingError
			Expect(errors.As(err, &perr)).To(BeTrue())
			Expect(perr.Index).To(Equal(1))
			Expect(err.Error()).To(ContainSubstring("5"))
			Expect(err.Error()).To(ContainSubstring("4"))
		})

		It("rejects a mapping whose output does not fit its simulation", func() {
			sims := []simulation.Simulation{newRecordingSim(2, 2, 1, nil), newRecordingSim(2, 3, 2, nil)}
			_, err := stitch.NewMulti(sims, []maps.Mapping{mustSlice(4, 0, 2), mustSlice(4, 0, 2)})
			Expect(err).To(MatchError(stitch.ErrShape))

			var perr *stitch.PairingError
			Expect(errors.As(err, &perr)).To(BeTrue())
			Expect(perr.Index).To(Equal(1))
		})

		It("lets wildcards match any width but still compares mapping inputs", func() {
			sims := []simulation.Simulation{
				newRecordingSim(2, 3, 1, maps.NewExp(0)),
				newRecordingSim(2, 2, 2, nil),
			}
			_, err := stitch.NewMulti(sims, []maps.Mapping{maps.NewIdentity(0), mustChain(maps.NewIdentity(0), mustSlice(3, 0, 2))})
			Expect(err).To(MatchError(stitch.ErrShape))

			c, err := stitch.NewMulti(sims[:1], []maps.Mapping{maps.NewIdentity(0)})
			Expect(err).NotTo(HaveOccurred())
			d, err := c.Dpred(context.Background(), vec.Vector{0, 0, 0}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(HaveLen(2))
		})

		It("rejects the same simulation twice", func() {
			sim := newRecordingSim(2, 2, 1, nil)
			_, err := stitch.NewMulti(
				[]simulation.Simulation{sim, sim},
				[]maps.Mapping{maps.NewIdentity(2), maps.NewIdentity(2)},
			)
			Expect(err).To(MatchError(stitch.ErrDuplicate))

			_, err = stitch.NewSum(
				[]simulation.Simulation{fixedWidthSim{id: 1, width: 2, nD: 1}, fixedWidthSim{id: 1, width: 2, nD: 1}},
				[]maps.Mapping{maps.NewIdentity(2), maps.NewIdentity(2)},
			)
			Expect(err).To(MatchError(stitch.ErrDuplicate))

			_, err = stitch.NewSum(
				[]simulation.Simulation{fixedWidthSim{id: 1, width: 2, nD: 1}, fixedWidthSim{id: 2, width: 2, nD: 1}},
				[]maps.Mapping{maps.NewIdentity(2), maps.NewIdentity(2)},
			)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects missing pieces and mismatched counts", func() {
			sim := newRecordingSim(2, 2, 1, nil)
			_, err := stitch.NewMulti([]simulation.Simulation{nil}, []maps.Mapping{maps.NewIdentity(2)})
			Expect(err).To(MatchError(stitch.ErrInvalidType))

			var typedNil *recordingSim
			_, err = stitch.NewMulti([]simulation.Simulation{typedNil}, []maps.Mapping{maps.NewIdentity(2)})
			Expect(err).To(MatchError(stitch.ErrInvalidType))

			_, err = stitch.NewMulti([]simulation.Simulation{sim}, []maps.Mapping{nil})
			Expect(err).To(MatchError(stitch.ErrInvalidType))

			_, err = stitch.NewMulti([]simulation.Simulation{sim}, nil)
			Expect(err).To(MatchError(stitch.ErrShape))

			_, err = stitch.NewMulti([]simulation.Simulation{sim}, []maps.Mapping{maps.NewIdentity(2), maps.NewIdentity(2)})
			Expect(err).To(MatchError(stitch.ErrShape))

			_, err = stitch.NewRepeated(nil, []maps.Mapping{maps.NewIdentity(2)})
			Expect(err).To(MatchError(stitch.ErrInvalidType))
		})

		It("requires equal data counts when summing", func() {
			_, err := stitch.NewSum(
				[]simulation.Simulation{newRecordingSim(3, 2, 1, nil), newRecordingSim(4, 2, 2, nil)},
				[]maps.Mapping{maps.NewIdentity(2), maps.NewIdentity(2)},
			)
			Expect(err).To(MatchError(stitch.ErrShape))
			Expect(err.Error()).To(ContainSubstring("index 1"))
		})

		It("leaves the previous pairing intact after an invalid assignment", func() {
			simA := newRecordingSim(2, 2, 1, nil)
			simB := newRecordingSim(2, 2, 2, nil)
			original := []maps.Mapping{mustSlice(4, 0, 2), mustSlice(4, 2, 4)}
			c, err := stitch.NewMulti([]simulation.Simulation{simA, simB}, original, stitch.WithLogger(quietLogger))
			Expect(err).NotTo(HaveOccurred())

			m := vec.Vector{1, 2, 3, 4}
			before, err := c.Dpred(context.Background(), m, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetMappings([]maps.Mapping{mustSlice(4, 0, 2), mustSlice(5, 0, 2)})).To(MatchError(stitch.ErrShape))
			Expect(c.SetSimulations([]simulation.Simulation{simA, simA})).To(MatchError(stitch.ErrDuplicate))
			Expect(c.SetSimulations([]simulation.Simulation{simA, newRecordingSim(2, 3, 3, nil)})).To(MatchError(stitch.ErrShape))
			Expect(c.SetSimulation(simA)).To(MatchError(stitch.ErrInvalidType))

			Expect(c.Mappings()).To(Equal(original))
			Expect(c.Simulations()).To(Equal([]simulation.Simulation{simA, simB}))
			after, err := c.Dpred(context.Background(), m, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
		})

		It("rebuilds offsets and re-pushes after a valid assignment", func() {
			simA := newRecordingSim(2, 2, 1, nil)
			simB := newRecordingSim(3, 2, 2, nil)
			c, err := stitch.NewMulti(
				[]simulation.Simulation{simA, simB},
				[]maps.Mapping{mustSlice(4, 0, 2), mustSlice(4, 2, 4)},
				stitch.WithLogger(quietLogger),
			)
			Expect(err).NotTo(HaveOccurred())
			m := vec.Vector{1, 2, 3, 4}
			Expect(c.SetModel(m)).To(Succeed())

			simC := newRecordingSim(5, 2, 3, nil)
			Expect(c.SetSimulations([]simulation.Simulation{simA, simC})).To(Succeed())
			Expect(c.Offsets()).To(Equal(stitch.DataOffsets{0, 2, 7}))
			Expect(c.Model()).To(BeNil())

			Expect(c.SetModel(m)).To(Succeed())
			Expect(simA.pushCount()).To(Equal(2))
			Expect(simC.pushCount()).To(Equal(1))
		})
	})

	Describe("model caching", func() {
		var (
			simA, simB *recordingSim
			c          *stitch.Composite
			metrics    *stitch.Metrics
		)

		BeforeEach(func() {
			simA = newRecordingSim(3, 2, 1, nil)
			simB = newRecordingSim(3, 2, 2, nil)
			metrics = stitch.NewMetrics(prometheus.NewRegistry())
			var err error
			c, err = stitch.NewMulti(
				[]simulation.Simulation{simA, simB},
				[]maps.Mapping{mustSlice(4, 0, 2), mustSlice(4, 2, 4)},
				stitch.WithMetrics(metrics),
				stitch.WithLogger(quietLogger),
			)
			Expect(err).NotTo(HaveOccurred())
		})

		It("pushes an identical model only once", func() {
			m := vec.Vector{1, 2, 3, 4}
			Expect(c.SetModel(m)).To(Succeed())
			Expect(c.SetModel(m.Clone())).To(Succeed())
			_, err := c.Dpred(ctx, m, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(simA.pushCount()).To(Equal(1))
			Expect(simB.pushCount()).To(Equal(1))
			Expect(testutil.ToFloat64(metrics.Pushes(stitch.KindConcat))).To(Equal(1.0))

			Expect(c.SetModel(vec.Vector{1, 2, 3, 5})).To(Succeed())
			Expect(simA.pushCount()).To(Equal(2))
			Expect(testutil.ToFloat64(metrics.Pushes(stitch.KindConcat))).To(Equal(2.0))
		})

		It("pushes each simulation its own submodel", func() {
			Expect(c.SetModel(vec.Vector{1, 2, 3, 4})).To(Succeed())
			Expect(simA.Model()).To(Equal(vec.Vector{1, 2}))
			Expect(simB.Model()).To(Equal(vec.Vector{3, 4}))
		})

		It("does not alias the caller's model", func() {
			m := vec.Vector{1, 2, 3, 4}
			Expect(c.SetModel(m)).To(Succeed())
			m[0] = 100
			Expect(c.Model()).To(Equal(vec.Vector{1, 2, 3, 4}))
			Expect(c.SetModel(m)).To(Succeed())
			Expect(simA.Model()).To(Equal(vec.Vector{100, 2}))
		})

		It("memoizes the sensitivity diagonal until the model changes", func() {
			m := vec.Vector{1, 2, 3, 4}
			first, err := c.JtJDiag(ctx, m, nil)
			Expect(err).NotTo(HaveOccurred())
			second, err := c.JtJDiag(ctx, m, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
			Expect(testutil.ToFloat64(metrics.Recomputes(stitch.KindConcat))).To(Equal(1.0))

			second[0] = -1
			third, err := c.JtJDiag(ctx, m, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(third).To(Equal(first))

			weighted, err := c.JtJDiag(ctx, m, vec.Vector{2, 2, 2, 2, 2, 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(maxAbsDiff(weighted, first.Scale(4))).To(BeNumerically("<", 1e-9))
			Expect(testutil.ToFloat64(metrics.Recomputes(stitch.KindConcat))).To(Equal(2.0))
		})

		It("recomputes the sensitivity diagonal after a model change", func() {
			nonlinear, err := stitch.NewMulti(
				[]simulation.Simulation{newRecordingSim(3, 2, 1, maps.NewExp(0)), newRecordingSim(3, 2, 2, maps.NewExp(0))},
				[]maps.Mapping{mustSlice(4, 0, 2), mustSlice(4, 2, 4)},
				stitch.WithMetrics(metrics),
				stitch.WithLogger(quietLogger),
			)
			Expect(err).NotTo(HaveOccurred())

			before, err := nonlinear.JtJDiag(ctx, vec.Vector{0, 0, 0, 0}, nil)
			Expect(err).NotTo(HaveOccurred())
			after, err := nonlinear.JtJDiag(ctx, vec.Vector{0.5, 0, 0, 0}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(after[0]).NotTo(Equal(before[0]))
			Expect(after[2]).To(Equal(before[2]))
			Expect(testutil.ToFloat64(metrics.Recomputes(stitch.KindConcat))).To(Equal(2.0))
		})
	})

	Describe("summing", func() {
		var (
			simA, simB *recordingSim
			c          *stitch.Composite
			m          vec.Vector
		)

		BeforeEach(func() {
			simA = newRecordingSim(4, 2, 1, nil)
			simB = newRecordingSim(4, 3, 2, maps.NewExp(0))
			var err error
			c, err = stitch.NewSum(
				[]simulation.Simulation{simA, simB},
				[]maps.Mapping{mustSlice(5, 0, 2), mustSlice(5, 2, 5)},
				stitch.WithLogger(quietLogger),
			)
			Expect(err).NotTo(HaveOccurred())
			m = vec.Vector{0.1, 0.2, -0.3, 0.4, 0.5}
		})

		It("exposes the shared data count", func() {
			Expect(c.NData()).To(Equal(4))
			Expect(c.Kind()).To(Equal(stitch.KindSum))
		})

		It("adds each simulation's predicted data", func() {
			d, err := c.Dpred(ctx, m, nil)
			Expect(err).NotTo(HaveOccurred())

			dA, err := simA.Linear.Dpred(ctx, m[0:2], nil)
			Expect(err).NotTo(HaveOccurred())
			dB, err := simB.Linear.Dpred(ctx, m[2:5], nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(maxAbsDiff(d, dA.Add(dB))).To(BeNumerically("<", 1e-12))
		})

		It("hands every simulation the full data vector in Jtvec", func() {
			u := vec.Vector{1, -1, 2, 0.5}
			jt, err := c.Jtvec(ctx, m, u, nil)
			Expect(err).NotTo(HaveOccurred())

			jtA, err := simA.Linear.Jtvec(ctx, m[0:2], u, nil)
			Expect(err).NotTo(HaveOccurred())
			jtB, err := simB.Linear.Jtvec(ctx, m[2:5], u, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(maxAbsDiff(jt, vec.Concat(jtA, jtB))).To(BeNumerically("<", 1e-12))
		})

		It("uses the same weights for every simulation", func() {
			w := vec.Vector{1, 2, 3, 4}
			diag, err := c.JtJDiag(ctx, m, w)
			Expect(err).NotTo(HaveOccurred())

			dA, err := simA.Linear.JtJDiag(ctx, m[0:2], w)
			Expect(err).NotTo(HaveOccurred())
			dB, err := simB.Linear.JtJDiag(ctx, m[2:5], w)
			Expect(err).NotTo(HaveOccurred())
			Expect(maxAbsDiff(diag, vec.Concat(dA, dB))).To(BeNumerically("<", 1e-12))
		})
	})

	Describe("repeated instance", func() {
		var (
			shared   *recordingSim
			mappings []maps.Mapping
			c        *stitch.Composite
			m        vec.Vector
		)

		BeforeEach(func() {
			shared = newRecordingSim(3, 2, 7, maps.NewExp(0))
			mappings = []maps.Mapping{mustSlice(6, 0, 2), mustSlice(6, 2, 4), mustSlice(6, 4, 6)}
			var err error
			c, err = stitch.NewRepeated(shared, mappings, stitch.WithWorkers(8), stitch.WithLogger(quietLogger))
			Expect(err).NotTo(HaveOccurred())
			m = vec.Vector{0.1, -0.2, 0.3, 0.0, -0.5, 0.25}
		})

		It("exposes the shared instance once per mapping", func() {
			Expect(c.Kind()).To(Equal(stitch.KindRepeated))
			Expect(c.Simulation()).To(BeIdenticalTo(shared))
			sims := c.Simulations()
			Expect(sims).To(HaveLen(3))
			for _, s := range sims {
				Expect(s).To(BeIdenticalTo(shared))
			}
			Expect(c.NData()).To(Equal(9))
			Expect(c.Offsets()).To(Equal(stitch.DataOffsets{0, 3, 6, 9}))
		})

		It("returns independent fields that reproduce each pass", func() {
			f, err := c.Fields(ctx, m)
			Expect(err).NotTo(HaveOccurred())
			fl := f.(stitch.FieldList)
			Expect(fl).To(HaveLen(3))

			d, err := c.Dpred(ctx, m, f)
			Expect(err).NotTo(HaveOccurred())

			for i, mapping := range mappings {
				sub, err := mapping.Apply(m)
				Expect(err).NotTo(HaveOccurred())
				direct, err := shared.Linear.Dpred(ctx, sub, nil)
				Expect(err).NotTo(HaveOccurred())
				fromFields, err := shared.Linear.Dpred(ctx, sub, fl[i])
				Expect(err).NotTo(HaveOccurred())

				Expect(fromFields).To(Equal(direct))
				Expect(d[3*i : 3*i+3]).To(Equal(direct))
			}
		})

		It("re-points the shared simulation before every pass and never overlaps passes", func() {
			_, err := c.Fields(ctx, m)
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Jvec(ctx, m, vec.Ones(6), nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = c.Jtvec(ctx, m, vec.Ones(9), nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = c.JtJDiag(ctx, m, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(shared.staleCount()).To(BeZero())
			Expect(shared.maxActive.Load()).To(Equal(int32(1)))
			// Four operations, three passes each.
			Expect(shared.pushCount()).To(Equal(12))
		})

		It("slices Jtvec by the repeated offsets", func() {
			u := randomVector(9, 3)
			jt, err := c.Jtvec(ctx, m, u, nil)
			Expect(err).NotTo(HaveOccurred())

			var expected vec.Vector
			for i, mapping := range mappings {
				sub, _ := mapping.Apply(m)
				part, err := shared.Linear.Jtvec(ctx, sub, u[3*i:3*i+3], nil)
				Expect(err).NotTo(HaveOccurred())
				expected = append(expected, part...)
			}
			Expect(maxAbsDiff(jt, expected)).To(BeNumerically("<", 1e-12))
		})

		It("accepts a different number of mappings", func() {
			Expect(c.SetMappings(mappings[:2])).To(Succeed())
			Expect(c.NData()).To(Equal(6))
			Expect(c.SetSimulations([]simulation.Simulation{shared})).To(MatchError(stitch.ErrInvalidType))

			replacement := newRecordingSim(3, 3, 8, nil)
			Expect(c.SetSimulation(replacement)).To(MatchError(stitch.ErrShape))
			Expect(c.Simulation()).To(BeIdenticalTo(shared))
		})
	})

	Describe("nesting", func() {
		It("treats a composite as a single simulation", func() {
			simA := newRecordingSim(2, 2, 1, nil)
			simB := newRecordingSim(2, 2, 2, nil)
			inner, err := stitch.NewMulti(
				[]simulation.Simulation{simA, simB},
				[]maps.Mapping{mustSlice(4, 0, 2), mustSlice(4, 2, 4)},
				stitch.WithLogger(quietLogger),
			)
			Expect(err).NotTo(HaveOccurred())
			simC := newRecordingSim(3, 2, 3, nil)

			outer, err := stitch.NewMulti(
				[]simulation.Simulation{inner, simC},
				[]maps.Mapping{mustSlice(6, 0, 4), mustSlice(6, 4, 6)},
				stitch.WithLogger(quietLogger),
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(outer.NData()).To(Equal(7))

			m := vec.Vector{1, 2, 3, 4, 5, 6}
			f, err := outer.Fields(ctx, m)
			Expect(err).NotTo(HaveOccurred())
			d, err := outer.Dpred(ctx, m, f)
			Expect(err).NotTo(HaveOccurred())

			innerD, err := inner.Dpred(ctx, m[0:4], nil)
			Expect(err).NotTo(HaveOccurred())
			cD, err := simC.Linear.Dpred(ctx, m[4:6], nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(Equal(vec.Concat(innerD, cD)))
		})
	})

	Describe("worker fan-out", func() {
		It("gives the same results serially and in parallel", func() {
			build := func(workers int) *stitch.Composite {
				sims := make([]simulation.Simulation, 6)
				mappings := make([]maps.Mapping, 6)
				for i := range sims {
					sims[i] = newRecordingSim(5, 2, int64(i+1), maps.NewExp(0))
					mappings[i] = mustSlice(12, 2*i, 2*i+2)
				}
				c, err := stitch.NewMulti(sims, mappings, stitch.WithWorkers(workers), stitch.WithLogger(quietLogger))
				Expect(err).NotTo(HaveOccurred())
				return c
			}
			serial, parallel := build(1), build(4)
			m := randomVector(12, 11).Scale(0.1)
			u := randomVector(30, 12)

			dS, err := serial.Dpred(ctx, m, nil)
			Expect(err).NotTo(HaveOccurred())
			dP, err := parallel.Dpred(ctx, m, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(dP).To(Equal(dS))

			jS, err := serial.Jtvec(ctx, m, u, nil)
			Expect(err).NotTo(HaveOccurred())
			jP, err := parallel.Jtvec(ctx, m, u, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(jP).To(Equal(jS))
		})
	})
})
