package capture

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("State.Next", func() {
	DescribeTable("valid transitions",
		func(from State, ev Event, to State, effect Effect) {
			next, eff, err := from.Next(ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(next).To(Equal(to))
			Expect(eff).To(Equal(effect))
		},
		Entry("start acquires", State{Status: Idle}, EventStart, State{Status: Acquiring}, EffectAcquire),
		Entry("acquired image is extracted", State{Status: Acquiring}, EventSucceeded, State{Status: Extracting}, EffectExtract),
		Entry("cancelled acquisition returns to idle", State{Status: Acquiring}, EventCancelled, State{Status: Idle}, EffectNone),
		Entry("failed acquisition errors", State{Status: Acquiring}, EventFailed, State{Status: Errored, Stage: Acquiring}, EffectNone),
		Entry("extracted text is analyzed", State{Status: Extracting}, EventSucceeded, State{Status: Analyzing}, EffectAnalyze),
		Entry("failed extraction errors", State{Status: Extracting}, EventFailed, State{Status: Errored, Stage: Extracting}, EffectNone),
		Entry("analysis makes the result ready", State{Status: Analyzing}, EventSucceeded, State{Status: Ready}, EffectNone),
		Entry("failed analysis errors", State{Status: Analyzing}, EventFailed, State{Status: Errored, Stage: Analyzing}, EffectNone),
		Entry("save persists", State{Status: Ready}, EventSave, State{Status: Ready}, EffectPersist),
		Entry("persisted result is saved", State{Status: Ready}, EventSucceeded, State{Status: Saved}, EffectNone),
		Entry("failed save stays ready", State{Status: Ready}, EventFailed, State{Status: Ready}, EffectNone),
		Entry("discarding a result releases it", State{Status: Ready}, EventDiscard, State{Status: Discarded}, EffectRelease),
		Entry("retry re-acquires", State{Status: Errored, Stage: Acquiring}, EventRetry, State{Status: Acquiring}, EffectAcquire),
		Entry("retry re-extracts", State{Status: Errored, Stage: Extracting}, EventRetry, State{Status: Extracting}, EffectExtract),
		Entry("retry re-analyzes", State{Status: Errored, Stage: Analyzing}, EventRetry, State{Status: Analyzing}, EffectAnalyze),
		Entry("discarding an error returns to idle", State{Status: Errored, Stage: Extracting}, EventDiscard, State{Status: Idle}, EffectRelease),
	)

	DescribeTable("invalid transitions",
		func(from State, ev Event) {
			next, eff, err := from.Next(ev)
			Expect(err).To(MatchError(ErrInvalidTransition))
			Expect(next).To(Equal(from))
			Expect(eff).To(Equal(EffectNone))
		},
		Entry("save while idle", State{Status: Idle}, EventSave),
		Entry("retry while idle", State{Status: Idle}, EventRetry),
		Entry("discard while idle", State{Status: Idle}, EventDiscard),
		Entry("start while extracting", State{Status: Extracting}, EventStart),
		Entry("cancel while extracting", State{Status: Extracting}, EventCancelled),
		Entry("save while analyzing", State{Status: Analyzing}, EventSave),
		Entry("retry while ready", State{Status: Ready}, EventRetry),
		Entry("start while ready", State{Status: Ready}, EventStart),
		Entry("save while errored", State{Status: Errored, Stage: Analyzing}, EventSave),
		Entry("start while errored", State{Status: Errored, Stage: Analyzing}, EventStart),
		Entry("anything after saved", State{Status: Saved}, EventSave),
		Entry("discard after saved", State{Status: Saved}, EventDiscard),
		Entry("start after discarded", State{Status: Discarded}, EventStart),
		Entry("retry after discarded", State{Status: Discarded}, EventRetry),
	)

	It("should name errored states by stage", func() {
		Expect(State{Status: Errored, Stage: Extracting}.String()).To(Equal("Errored(Extracting)"))
		Expect(State{Status: Ready}.String()).To(Equal("Ready"))
	})

	It("should mark only saved and discarded as terminal", func() {
		for _, s := range []Status{Idle, Acquiring, Extracting, Analyzing, Ready, Errored} {
			Expect(s.Terminal()).To(BeFalse(), s.String())
		}
		Expect(Saved.Terminal()).To(BeTrue())
		Expect(Discarded.Terminal()).To(BeTrue())
	})
})
