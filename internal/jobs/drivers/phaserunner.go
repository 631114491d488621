package drivers

// Phase is one named slice of a driver's 0..100 progress range, matching
// the phase tables in the per-kind pipeline spec (e.g. framing's
// preparing/processing/encoding/finalizing).
type Phase struct {
	Name     string
	StartPct int
	EndPct   int
}

// PhaseRunner translates "fraction done within the current phase" into the
// whole-job percent the wire schema expects, and centralizes cancellation
// polling so every driver checks it the same way. It deliberately does not
// retry or persist anything — per-job retry is explicitly not part of this
// pipeline (errors propagate straight to the scheduler, which marks the
// job errored) and persistence is the scheduler's job, not the driver's.
type PhaseRunner struct {
	progress  ProgressFunc
	cancelled CancelChecker
	phase     Phase
}

func NewPhaseRunner(progress ProgressFunc, cancelled CancelChecker) *PhaseRunner {
	return &PhaseRunner{progress: progress, cancelled: cancelled}
}

// Enter starts a new phase, reporting its StartPct immediately so
// subscribers see the phase transition even before any work within it
// completes.
func (pr *PhaseRunner) Enter(phase Phase, message string) {
	pr.phase = phase
	pr.report(0, message)
}

// Step reports fractional completion (0..1) within the current phase.
func (pr *PhaseRunner) Step(frac float64, message string) {
	pr.report(frac, message)
}

// Done reports the phase's EndPct, i.e. frac=1.
func (pr *PhaseRunner) Done(message string) {
	pr.report(1, message)
}

func (pr *PhaseRunner) report(frac float64, message string) {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	span := pr.phase.EndPct - pr.phase.StartPct
	pct := pr.phase.StartPct + int(float64(span)*frac)
	if pr.progress != nil {
		pr.progress(pct, pr.phase.Name, message)
	}
}

// CheckCancelled returns ErrCancelled if the job's cooperative cancel flag
// has been observed set. Drivers call this between phases and between
// per-unit iterations (per clip, per region) so cancellation is observed
// at a natural boundary rather than mid-unit.
func (pr *PhaseRunner) CheckCancelled() error {
	if pr.cancelled != nil && pr.cancelled() {
		return ErrCancelled
	}
	return nil
}
