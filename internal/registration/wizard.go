package registration

import (
	"context"
	"sync"
	"time"
)

// flow is the step and submit bookkeeping shared by the driver and
// enterprise wizards. A is the application being filled in.
type flow[A any] struct {
	mu         sync.Mutex
	step       Step
	app        A
	submitting bool
	now        func() time.Time

	clone    func(A) A
	validate func(Step, *A) *ValidationError
	submit   func(context.Context, A) error
	complete func(*A, time.Time)
}

func (f *flow[A]) current() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

func (f *flow[A]) snapshot() A {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clone(f.app)
}

func (f *flow[A]) mutate(fn func(a *A) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step == StepComplete {
		return ErrSubmitted
	}
	if f.submitting {
		return ErrSubmitInProgress
	}
	next := f.clone(f.app)
	if err := fn(&next); err != nil {
		return err
	}
	f.app = next
	return nil
}

// next validates the current step and moves on. Leaving the last step
// submits the application.
func (f *flow[A]) next(ctx context.Context) (Step, error) {
	f.mu.Lock()
	switch {
	case f.step == StepComplete:
		f.mu.Unlock()
		return StepComplete, ErrSubmitted
	case f.submitting:
		f.mu.Unlock()
		return f.step, ErrSubmitInProgress
	}
	if verr := f.validate(f.step, &f.app); verr != nil {
		st := f.step
		f.mu.Unlock()
		return st, verr
	}
	if f.step != StepDocuments {
		f.step++
		st := f.step
		f.mu.Unlock()
		return st, nil
	}
	draft := f.clone(f.app)
	f.submitting = true
	f.mu.Unlock()

	err := f.submit(ctx, draft)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
	if err != nil {
		return f.step, &SubmitError{Err: err}
	}
	f.complete(&f.app, f.now())
	f.step = StepComplete
	return f.step, nil
}

func (f *flow[A]) back() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.step == StepComplete:
		return ErrSubmitted
	case f.submitting:
		return ErrSubmitInProgress
	case f.step == StepVehicleType:
		return ErrFirstStep
	}
	f.step--
	return nil
}
