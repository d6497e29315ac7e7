package shortpulse

import (
	"errors"
	"math/rand"
	"sync"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/pulsec/flags"
	"github.com/sarchlab/pulsec/hooking"
	"github.com/sarchlab/pulsec/program"
	"github.com/sarchlab/pulsec/timeline"
	"github.com/sarchlab/pulsec/timing"
)

func cont(f flags.Flags, d timing.Ns) program.Instruction {
	return program.Cont(f, d)
}

func durations(p program.Program) []timing.Ns {
	out := make([]timing.Ns, len(p))
	for i, inst := range p {
		out[i] = inst.Duration
	}

	return out
}

var _ = ginkgo.Describe("Compiler", func() {
	var (
		clock  timing.Clock
		lookup *flags.Lookup
		c      *Compiler
	)

	ginkgo.BeforeEach(func() {
		clock = timing.MustNewClock(10, 5)
		lookup = flags.MustNewLookup(map[string]uint{"A": 0, "B": 1, "C": 2}, 24)
		c = MakeBuilder().WithClock(clock).WithWidth(24).Build()
	})

	ginkgo.It("should return an empty program for an empty input", func() {
		out, err := c.Compile(program.Program{})

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeEmpty())
	})

	ginkgo.It("should leave a compliant program unchanged", func() {
		p := program.Program{cont(0b101000, 50), cont(0b100000, 50)}

		out, err := c.Compile(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(p))
	})

	ginkgo.It("should merge a compliant program and do nothing else", func() {
		programs := []program.Program{
			{cont(1, 50)},
			{cont(1, 30), cont(1, 30), cont(2, 70)},
			{cont(1, 50), cont(2, 60), cont(2, 10), cont(4, 55)},
		}

		for _, p := range programs {
			out, err := c.Compile(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(program.MergeAdjacent(p)))
		}
	})

	ginkgo.It("should repair a short pulse between two neighbours", func() {
		p := program.Program{cont(0b001, 80), cont(0b011, 4), cont(0b001, 80)}

		out, report, err := c.CompileWithReport(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(len(out)).To(BeNumerically(">=", 3))
		for _, inst := range out {
			Expect(inst.Duration).To(BeNumerically(">=", 50))
		}
		Expect(program.TotalDuration(out)).To(BeNumerically("~", 164, 1e-9))
		Expect(out).To(Equal(program.Program{
			cont(0b001, 50), cont(0b011, 50), cont(0b001, 64),
		}))

		Expect(report.Runs).To(HaveLen(1))
		Expect(report.Runs[0].FromPreceding).To(BeNumerically("~", 30, 1e-9))
		Expect(report.Runs[0].FromFollowing).To(BeNumerically("~", 16, 1e-9))
		Expect(report.Runs[0].Resolved()).To(BeTrue())

		edges := timeline.Reconstruct(out, lookup).Edges("B")
		Expect(edges).To(HaveLen(2))
		Expect(edges[0]).To(BeNumerically(">=", 0))
		Expect(edges[1]).To(BeNumerically("<=", 164))
		Expect(edges[1] - edges[0]).To(BeNumerically("~", 50, 1e-9))
	})

	ginkgo.It("should fail on a lone short instruction", func() {
		out, err := c.Compile(program.Program{cont(0b1, 2)})

		Expect(errors.Is(err, ErrUnsatisfiableShortPulse)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("no neighbour"))
		Expect(out).To(BeNil())
	})

	ginkgo.It("should fail when a program is made of short instructions only", func() {
		_, err := c.Compile(program.Program{cont(1, 10), cont(2, 10), cont(1, 10)})

		Expect(errors.Is(err, ErrUnsatisfiableShortPulse)).To(BeTrue())
	})

	ginkgo.It("should prefer the preceding neighbour", func() {
		p := program.Program{cont(1, 200), cont(3, 4), cont(1, 200)}

		out, err := c.Compile(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(durations(out)).To(Equal([]timing.Ns{154, 50, 200}))
	})

	ginkgo.It("should fall back to the following neighbour", func() {
		p := program.Program{cont(1, 60), cont(3, 4), cont(1, 200)}

		out, err := c.Compile(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(durations(out)).To(Equal([]timing.Ns{60, 50, 154}))
	})

	ginkgo.It("should fail when neither neighbour can spare the deficit", func() {
		p := program.Program{cont(1, 55), cont(3, 4), cont(1, 55)}

		_, err := c.Compile(p)

		Expect(errors.Is(err, ErrUnsatisfiableShortPulse)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("neighbours can spare"))
	})

	ginkgo.It("should resolve consecutive short instructions as one run", func() {
		p := program.Program{cont(1, 100), cont(2, 10), cont(3, 10), cont(1, 100)}

		out, report, err := c.CompileWithReport(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Runs).To(HaveLen(1))
		Expect(report.Runs[0].Len()).To(Equal(2))
		Expect(report.Runs[0].Deficit).To(BeNumerically("~", 80, 1e-9))
		Expect(durations(out)).To(Equal([]timing.Ns{50, 50, 50, 70}))
	})

	ginkgo.It("should merge equal neighbours before looking for short pulses", func() {
		p := program.Program{cont(1, 80), cont(1, 20), cont(1, 30), cont(2, 50)}

		out, report, err := c.CompileWithReport(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Runs).To(BeEmpty())
		Expect(out).To(Equal(program.Program{cont(1, 130), cont(2, 50)}))
	})

	ginkgo.It("should handle a short instruction at the start", func() {
		p := program.Program{cont(2, 20), cont(1, 100)}

		out, err := c.Compile(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(durations(out)).To(Equal([]timing.Ns{50, 70}))
	})

	ginkgo.It("should handle a short instruction at the end", func() {
		p := program.Program{cont(1, 100), cont(2, 20)}

		out, err := c.Compile(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(durations(out)).To(Equal([]timing.Ns{70, 50}))
	})

	ginkgo.It("should not borrow twice from a shared neighbour beyond its surplus", func() {
		p := program.Program{
			cont(1, 100), cont(2, 10), cont(1, 60), cont(4, 10), cont(1, 100),
		}

		out, err := c.Compile(p)

		Expect(err).NotTo(HaveOccurred())
		for _, inst := range out {
			Expect(inst.Duration).To(BeNumerically(">=", 50))
		}
		Expect(program.TotalDuration(out)).To(BeNumerically("~", 280, 1e-9))
		Expect(durations(out)).To(Equal([]timing.Ns{60, 50, 60, 50, 60}))
	})

	ginkgo.It("should propagate validation errors", func() {
		_, err := c.Compile(program.Program{cont(flags.Bit(30), 50)})
		Expect(errors.Is(err, program.ErrFlagsOutOfRange)).To(BeTrue())

		_, err = c.Compile(program.Program{cont(1, 0)})
		Expect(errors.Is(err, program.ErrInvalidDuration)).To(BeTrue())

		_, err = c.Compile(program.Program{{Flags: 1, Opcode: program.Stop, Duration: 50}})
		Expect(errors.Is(err, program.ErrUnsupportedOpcode)).To(BeTrue())
	})

	ginkgo.It("should not modify its input", func() {
		p := program.Program{cont(0b001, 80), cont(0b011, 4), cont(0b001, 80)}
		before := p.Clone()

		_, err := c.Compile(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(before))
	})

	ginkgo.It("should keep edges within the reported shift", func() {
		p := program.Program{
			cont(0b001, 120), cont(0b011, 7), cont(0b001, 90),
			cont(0b100, 12), cont(0b000, 3), cont(0b100, 150),
		}

		out, report, err := c.CompileWithReport(p)
		Expect(err).NotTo(HaveOccurred())

		before := timeline.Reconstruct(p, lookup)
		after := timeline.Reconstruct(out, lookup)
		Expect(timeline.Equivalent(before, after, report.MaxEdgeShift)).To(Succeed())
	})

	ginkgo.It("should align edges to clock ticks when asked", func() {
		c = MakeBuilder().WithClock(clock).WithTickAlignment().Build()
		p := program.Program{cont(1, 81), cont(3, 18), cont(1, 66)}

		out, err := c.Compile(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(durations(out)).To(Equal([]timing.Ns{50, 50, 70}))
		Expect(program.TotalDuration(out)).To(
			BeNumerically("~", program.TotalDuration(p), float64(clock.Period)))
	})

	ginkgo.It("should be safe to use from many goroutines", func() {
		p := program.Program{cont(0b001, 80), cont(0b011, 4), cont(0b001, 80)}
		want, err := c.Compile(p)
		Expect(err).NotTo(HaveOccurred())

		var wg sync.WaitGroup
		results := make([]program.Program, 16)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer ginkgo.GinkgoRecover()

				out, err := c.Compile(p)
				Expect(err).NotTo(HaveOccurred())
				results[i] = out
			}(i)
		}
		wg.Wait()

		for _, r := range results {
			Expect(r).To(Equal(want))
		}
	})

	ginkgo.It("should conserve time and enforce the minimum on random programs", func() {
		rng := rand.New(rand.NewSource(42))

		for trial := 0; trial < 200; trial++ {
			n := 1 + rng.Intn(12)
			p := make(program.Program, n)
			for i := range p {
				d := timing.Ns(1 + rng.Intn(160))
				p[i] = cont(flags.Flags(rng.Intn(8)), d)
			}

			out, err := c.Compile(p)
			if err != nil {
				Expect(errors.Is(err, ErrUnsatisfiableShortPulse)).To(BeTrue())
				Expect(out).To(BeNil())
				continue
			}

			Expect(program.TotalDuration(out)).To(BeNumerically("~",
				program.TotalDuration(p), float64(clock.Period)))
			for _, inst := range out {
				Expect(timing.ShorterThan(inst.Duration,
					clock.MinInstructionDuration())).To(BeFalse())
			}
			Expect(program.MergeAdjacent(out)).To(Equal(out))
		}
	})

	ginkgo.Context("with hooks", func() {
		var (
			mockCtrl *gomock.Controller
			hook     *MockHook
		)

		ginkgo.BeforeEach(func() {
			mockCtrl = gomock.NewController(ginkgo.GinkgoT())
			hook = NewMockHook(mockCtrl)
			c.AcceptHook(hook)
		})

		ginkgo.AfterEach(func() {
			mockCtrl.Finish()
		})

		ginkgo.It("should report start, resolved runs and end", func() {
			var positions []string
			hook.EXPECT().Func(gomock.Any()).
				Do(func(ctx hooking.HookCtx) {
					Expect(ctx.Domain).To(BeIdenticalTo(c))
					positions = append(positions, ctx.Pos.Name)
				}).
				Times(3)

			_, err := c.Compile(program.Program{cont(1, 80), cont(3, 4), cont(1, 80)})

			Expect(err).NotTo(HaveOccurred())
			Expect(positions).To(Equal([]string{
				HookPosCompileStart.Name,
				HookPosRunResolved.Name,
				HookPosCompileEnd.Name,
			}))
		})

		ginkgo.It("should not report the end of a failed compilation", func() {
			hook.EXPECT().Func(gomock.Any()).
				Do(func(ctx hooking.HookCtx) {
					Expect(ctx.Pos).To(BeIdenticalTo(HookPosCompileStart))
				}).
				Times(1)

			_, err := c.Compile(program.Program{cont(1, 2)})

			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = ginkgo.Describe("Compiler with the short pulse field", func() {
	var (
		clock  timing.Clock
		lookup *flags.Lookup
		c      *Compiler
		shift  uint
	)

	ginkgo.BeforeEach(func() {
		clock = timing.MustNewClock(10, 5)
		lookup = flags.MustNewLookup(map[string]uint{"A": 0, "B": 1}, 24)
		shift = program.DefaultFieldShift
		c = MakeBuilder().
			WithClock(clock).
			WithStrategy(StrategyShortPulseField).
			Build()
	})

	ginkgo.It("should fold a short pulse followed by an all-low instruction", func() {
		p := program.Program{cont(0b10, 4), cont(0, 80), cont(0b10, 80)}

		out, report, err := c.CompileWithReport(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Folded).To(Equal(1))
		Expect(report.Runs).To(BeEmpty())
		Expect(out).To(Equal(program.Program{
			cont(program.WithFieldPeriods(0b10, shift, 1), 84),
			cont(program.WithFieldOn(0b10, shift), 80),
		}))

		before := timeline.Reconstruct(p, lookup)
		after := timeline.Reconstruct(out, lookup,
			timeline.WithShortPulseField(shift, clock.Period))
		Expect(timeline.Equivalent(before, after, clock.Tolerance())).To(Succeed())
	})

	ginkgo.It("should round the pulse to whole periods", func() {
		p := program.Program{cont(0b01, 27), cont(0, 60)}

		out, err := c.Compile(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(program.FieldPeriods(out[0].Flags, shift)).To(Equal(3))
	})

	ginkgo.It("should not merge two folded pulses", func() {
		p := program.Program{cont(1, 10), cont(0, 50), cont(1, 10), cont(0, 50)}

		out, report, err := c.CompileWithReport(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Folded).To(Equal(2))
		Expect(out).To(HaveLen(2))
	})

	ginkgo.It("should borrow for pulses that cannot be folded", func() {
		p := program.Program{cont(0b01, 80), cont(0b11, 4), cont(0b01, 80)}

		out, report, err := c.CompileWithReport(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Folded).To(Equal(0))
		Expect(report.Runs).To(HaveLen(1))
		Expect(durations(out)).To(Equal([]timing.Ns{50, 50, 64}))

		before := timeline.Reconstruct(p, lookup)
		after := timeline.Reconstruct(out, lookup,
			timeline.WithShortPulseField(shift, clock.Period))
		Expect(timeline.Equivalent(before, after, report.MaxEdgeShift)).
			To(Succeed())
	})

	ginkgo.It("should keep the outputs on outside short pulses", func() {
		p := program.Program{
			cont(0b01, 80), cont(0b11, 4), cont(0b01, 80),
			cont(0b10, 3), cont(0, 60), cont(0b11, 70),
		}

		out, report, err := c.CompileWithReport(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Folded).To(Equal(1))
		for _, inst := range out {
			v := program.FieldValue(inst.Flags, shift)
			Expect(v == program.FieldOn ||
				program.FieldPeriods(inst.Flags, shift) > 0).To(BeTrue())
		}

		before := timeline.Reconstruct(p, lookup)
		after := timeline.Reconstruct(out, lookup,
			timeline.WithShortPulseField(shift, clock.Period))
		Expect(timeline.Equivalent(before, after, report.MaxEdgeShift)).
			To(Succeed())
		Expect(after.Collect()["A"][0]).
			To(Equal(timeline.Sample{Time: 0, Level: timeline.High}))
	})

	ginkgo.It("should reject programs that use the field bits", func() {
		_, err := c.Compile(program.Program{cont(flags.Bit(22), 50)})

		Expect(errors.Is(err, program.ErrFlagsOutOfRange)).To(BeTrue())
	})

	ginkgo.It("should only switch the field on in compliant programs", func() {
		p := program.Program{cont(1, 50), cont(0, 60)}

		out, err := c.Compile(p)

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(program.Program{
			cont(program.WithFieldOn(1, shift), 50),
			cont(program.WithFieldOn(0, shift), 60),
		}))
	})
})

var _ = ginkgo.Describe("Builder", func() {
	ginkgo.It("should panic without a clock", func() {
		Expect(func() { MakeBuilder().Build() }).To(Panic())
	})

	ginkgo.It("should panic when the field does not fit", func() {
		Expect(func() {
			MakeBuilder().
				WithClock(timing.MustNewClock(2, 5)).
				WithWidth(16).
				WithStrategy(StrategyShortPulseField).
				Build()
		}).To(Panic())
	})

	ginkgo.It("should register hooks on the compiler", func() {
		var seen int
		c := MakeBuilder().
			WithClock(timing.MustNewClock(2, 5)).
			WithHook(hooking.HookFunc(func(hooking.HookCtx) { seen++ })).
			Build()

		Expect(c.NumHooks()).To(Equal(1))
		_, _ = c.Compile(program.Program{program.Cont(1, 20)})
		Expect(seen).To(Equal(2))
	})

	ginkgo.It("should expose its settings", func() {
		c := MakeBuilder().
			WithClock(timing.MustNewClock(2, 5)).
			WithWidth(32).
			WithFieldShift(28).
			WithStrategy(StrategyShortPulseField).
			Build()

		Expect(c.Width()).To(Equal(uint(32)))
		Expect(c.FieldShift()).To(Equal(uint(28)))
		Expect(c.Strategy()).To(Equal(StrategyShortPulseField))
		Expect(c.Clock().MinInstructionDuration()).To(BeNumerically("==", 10))
		Expect(c.HasShortPulses(program.Program{program.Cont(1, 8)})).To(BeTrue())
	})
})

var _ = ginkgo.Describe("Strategy", func() {
	ginkgo.It("should parse names", func() {
		s, err := ParseStrategy("FIELD")
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal(StrategyShortPulseField))
		Expect(s.String()).To(Equal("field"))

		_, err = ParseStrategy("magic")
		Expect(err).To(HaveOccurred())
	})
})

var _ = ginkgo.Describe("FindRuns", func() {
	ginkgo.It("should find maximal runs", func() {
		p := program.Program{
			cont(1, 10), cont(2, 60), cont(1, 10), cont(2, 20), cont(1, 50),
		}

		runs := FindRuns(p, 50)

		Expect(runs).To(HaveLen(2))
		Expect(runs[0].Start).To(Equal(0))
		Expect(runs[0].End).To(Equal(1))
		Expect(runs[0].Deficit).To(BeNumerically("~", 40, 1e-9))
		Expect(runs[1].Start).To(Equal(2))
		Expect(runs[1].End).To(Equal(4))
		Expect(runs[1].Deficit).To(BeNumerically("~", 70, 1e-9))
		Expect(runs[1].Resolved()).To(BeFalse())
		Expect(runs[1].String()).To(ContainSubstring("[2, 4)"))
	})
})
