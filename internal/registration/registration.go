// Package registration holds the three-step driver and enterprise sign-up wizards.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/sim"
)

const DefaultSubmitDelay = 2 * time.Second

type Step int

const (
	StepVehicleType Step = iota + 1
	StepDetails
	StepDocuments
	StepComplete
)

func (s Step) String() string {
	switch s {
	case StepVehicleType:
		return "vehicle-type"
	case StepDetails:
		return "details"
	case StepDocuments:
		return "documents"
	case StepComplete:
		return "complete"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

type Status string

const (
	StatusDraft       Status = "draft"
	StatusUnderReview Status = "under-review"
)

type Document string

const (
	DocLicenseFront        Document = "licenseFront"
	DocLicenseBack         Document = "licenseBack"
	DocVehicleRegistration Document = "vehicleRegistration"
	DocInsurance           Document = "insurance"
)

func (d Document) Valid() bool {
	switch d {
	case DocLicenseFront, DocLicenseBack, DocVehicleRegistration, DocInsurance:
		return true
	}
	return false
}

var (
	ErrFirstStep        = errors.New("already at the first step")
	ErrSubmitted        = errors.New("registration already submitted")
	ErrSubmitInProgress = errors.New("registration is being submitted")
	ErrUnknownDocument  = errors.New("unknown document type")
)

type ValidationError struct {
	Step    Step
	Stage   string // step name as the wizard reports it
	Message string
}

func newValidationError(step Step, stage, msg string) *ValidationError {
	return &ValidationError{Step: step, Stage: stage, Message: msg}
}

func (e *ValidationError) Error() string { return e.Message }

type SubmitError struct{ Err error }

func (e *SubmitError) Error() string {
	return fmt.Sprintf("Failed to submit registration. Please try again. (%v)", e.Err)
}
func (e *SubmitError) Unwrap() error   { return e.Err }
func (e *SubmitError) Retryable() bool { return true }

type DriverDetails struct {
	FullName      string `json:"full_name"`
	IDNumber      string `json:"id_number,omitempty"`
	LicenseNumber string `json:"license_number,omitempty"`
	Phone         string `json:"phone"`
	Email         string `json:"email,omitempty"`
}

type VehicleDetails struct {
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	Year         string `json:"year,omitempty"`
	LicensePlate string `json:"license_plate,omitempty"`
	Capacity     string `json:"capacity,omitempty"`
	Color        string `json:"color,omitempty"`
}

type Application struct {
	ID          string               `json:"id"`
	UserID      string               `json:"user_id,omitempty"`
	VehicleType models.TransportMode `json:"vehicle_type,omitempty"`
	Driver      DriverDetails        `json:"driver"`
	Vehicle     VehicleDetails       `json:"vehicle"`
	Documents   map[Document]string  `json:"documents"`
	Status      Status               `json:"status"`
	SubmittedAt time.Time            `json:"submitted_at,omitempty"`
}

func (a Application) clone() Application {
	docs := make(map[Document]string, len(a.Documents))
	for k, v := range a.Documents {
		docs[k] = v
	}
	a.Documents = docs
	return a
}

// Submitter delivers a completed application for review.
type Submitter interface {
	Submit(ctx context.Context, app Application) error
}

type SubmitterFunc func(ctx context.Context, app Application) error

func (f SubmitterFunc) Submit(ctx context.Context, app Application) error { return f(ctx, app) }

// Delayed accepts every application after d.
func Delayed(d time.Duration) Submitter {
	return SubmitterFunc(func(ctx context.Context, _ Application) error { return sim.Sleep(ctx, d) })
}

// Wizard is safe for concurrent use.
type Wizard struct {
	f *flow[Application]
}

func New(id, userID string, s Submitter) *Wizard {
	return &Wizard{f: &flow[Application]{
		step:     StepVehicleType,
		app:      Application{ID: id, UserID: userID, Documents: map[Document]string{}, Status: StatusDraft},
		now:      time.Now,
		clone:    Application.clone,
		validate: validate,
		submit:   s.Submit,
		complete: func(a *Application, at time.Time) {
			a.Status = StatusUnderReview
			a.SubmittedAt = at
		},
	}}
}

func (w *Wizard) Step() Step { return w.f.current() }

func (w *Wizard) Application() Application { return w.f.snapshot() }

func (w *Wizard) SetVehicleType(m models.TransportMode) error {
	if !m.Valid() {
		return newValidationError(StepVehicleType, StepVehicleType.String(), fmt.Sprintf("Unknown vehicle type %q", m))
	}
	return w.f.mutate(func(a *Application) error { a.VehicleType = m; return nil })
}

func (w *Wizard) SetDriverDetails(d DriverDetails) error {
	return w.f.mutate(func(a *Application) error { a.Driver = d; return nil })
}

func (w *Wizard) SetVehicleDetails(v VehicleDetails) error {
	return w.f.mutate(func(a *Application) error { a.Vehicle = v; return nil })
}

// AttachDocument stores a reference to an uploaded document.
func (w *Wizard) AttachDocument(doc Document, ref string) error {
	if !doc.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDocument, doc)
	}
	return w.f.mutate(func(a *Application) error {
		if strings.TrimSpace(ref) == "" {
			delete(a.Documents, doc)
			return nil
		}
		a.Documents[doc] = ref
		return nil
	})
}

// Next validates the current step and moves on. Leaving the documents step
// submits the application.
func (w *Wizard) Next(ctx context.Context) (Step, error) { return w.f.next(ctx) }

func (w *Wizard) Back() error { return w.f.back() }

func validate(step Step, a *Application) *ValidationError {
	switch step {
	case StepVehicleType:
		if !a.VehicleType.Valid() {
			return newValidationError(step, step.String(), "Please select a vehicle type to continue")
		}
	case StepDetails:
		if strings.TrimSpace(a.Driver.FullName) == "" || strings.TrimSpace(a.Driver.Phone) == "" {
			return newValidationError(step, step.String(), "Please fill in all required fields")
		}
	case StepDocuments:
		if a.Documents[DocLicenseFront] == "" || a.Documents[DocVehicleRegistration] == "" {
			return newValidationError(step, step.String(), "Please upload at least your driver's license and vehicle registration")
		}
	}
	return nil
}
