package registration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/sim"
)

// Enterprise steps share the driver wizard's numbering.
const (
	StepCompany = StepVehicleType
	StepFleet   = StepDetails
)

// EnterpriseStepName names a step of the enterprise wizard.
func EnterpriseStepName(s Step) string {
	switch s {
	case StepCompany:
		return "company"
	case StepFleet:
		return "fleet"
	}
	return s.String()
}

const (
	DocCompanyRegistration Document = "companyReg"
	DocTaxCertificate      Document = "taxCert"
	DocFleetInsurance      Document = "fleetInsurance"
)

func validEnterpriseDocument(d Document) bool {
	switch d {
	case DocCompanyRegistration, DocTaxCertificate, DocFleetInsurance:
		return true
	}
	return false
}

// FleetModes are the vehicle tiers an enterprise can declare.
var FleetModes = []models.TransportMode{models.ModeMediumTruck, models.ModeLargeTruck, models.ModeHeavyHaul}

type CompanyInfo struct {
	Name               string `json:"name"`
	RegistrationNumber string `json:"registration_number"`
	Email              string `json:"email,omitempty"`
	Phone              string `json:"phone,omitempty"`
	Address            string `json:"address,omitempty"`
	ContactPerson      string `json:"contact_person,omitempty"`
	Website            string `json:"website,omitempty"`
}

type FleetEntry struct {
	Type  models.TransportMode `json:"type"`
	Count int                  `json:"count"`
}

type EnterpriseApplication struct {
	ID          string              `json:"id"`
	UserID      string              `json:"user_id,omitempty"`
	Company     CompanyInfo         `json:"company"`
	Fleet       []FleetEntry        `json:"fleet"`
	Documents   map[Document]string `json:"documents"`
	Status      Status              `json:"status"`
	SubmittedAt time.Time           `json:"submitted_at,omitempty"`
}

func (a EnterpriseApplication) clone() EnterpriseApplication {
	a.Fleet = append([]FleetEntry(nil), a.Fleet...)
	docs := make(map[Document]string, len(a.Documents))
	for k, v := range a.Documents {
		docs[k] = v
	}
	a.Documents = docs
	return a
}

// VehicleCount sums the declared fleet.
func (a EnterpriseApplication) VehicleCount() int {
	n := 0
	for _, f := range a.Fleet {
		n += f.Count
	}
	return n
}

type EnterpriseSubmitter func(ctx context.Context, app EnterpriseApplication) error

// DelayedEnterprise accepts every enterprise application after d.
func DelayedEnterprise(d time.Duration) EnterpriseSubmitter {
	return func(ctx context.Context, _ EnterpriseApplication) error { return sim.Sleep(ctx, d) }
}

// EnterpriseWizard walks a fleet operator through company details, fleet
// size and company documents. It is safe for concurrent use.
type EnterpriseWizard struct {
	f *flow[EnterpriseApplication]
}

func NewEnterprise(id, userID string, submit EnterpriseSubmitter) *EnterpriseWizard {
	fleet := make([]FleetEntry, 0, len(FleetModes))
	for _, m := range FleetModes {
		fleet = append(fleet, FleetEntry{Type: m})
	}
	return &EnterpriseWizard{f: &flow[EnterpriseApplication]{
		step: StepCompany,
		app: EnterpriseApplication{
			ID:        id,
			UserID:    userID,
			Fleet:     fleet,
			Documents: map[Document]string{},
			Status:    StatusDraft,
		},
		now:      time.Now,
		clone:    EnterpriseApplication.clone,
		validate: validateEnterprise,
		submit:   submit,
		complete: func(a *EnterpriseApplication, at time.Time) {
			a.Status = StatusUnderReview
			a.SubmittedAt = at
		},
	}}
}

func (w *EnterpriseWizard) Step() Step { return w.f.current() }

func (w *EnterpriseWizard) Application() EnterpriseApplication { return w.f.snapshot() }

func (w *EnterpriseWizard) SetCompany(c CompanyInfo) error {
	return w.f.mutate(func(a *EnterpriseApplication) error { a.Company = c; return nil })
}

// SetFleetCount records how many vehicles of a tier the company runs.
// Values that are not whole numbers count as zero and negatives clamp to zero.
func (w *EnterpriseWizard) SetFleetCount(m models.TransportMode, value any) error {
	if s, ok := value.(string); ok {
		// cast reads a leading zero as octal
		if s = strings.TrimLeft(strings.TrimSpace(s), "0"); s == "" {
			s = "0"
		}
		value = s
	}
	n, err := cast.ToIntE(value)
	if err != nil || n < 0 {
		n = 0
	}
	return w.f.mutate(func(a *EnterpriseApplication) error {
		for i := range a.Fleet {
			if a.Fleet[i].Type == m {
				a.Fleet[i].Count = n
				return nil
			}
		}
		return newValidationError(StepFleet, EnterpriseStepName(StepFleet), fmt.Sprintf("Unknown fleet vehicle type %q", m))
	})
}

// AttachDocument stores a reference to an uploaded company document. An
// empty ref removes it.
func (w *EnterpriseWizard) AttachDocument(doc Document, ref string) error {
	if !validEnterpriseDocument(doc) {
		return fmt.Errorf("%w: %q", ErrUnknownDocument, doc)
	}
	return w.f.mutate(func(a *EnterpriseApplication) error {
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
func (w *EnterpriseWizard) Next(ctx context.Context) (Step, error) { return w.f.next(ctx) }

func (w *EnterpriseWizard) Back() error { return w.f.back() }

// Only the company step has required fields.
func validateEnterprise(step Step, a *EnterpriseApplication) *ValidationError {
	if step == StepCompany && (strings.TrimSpace(a.Company.Name) == "" || strings.TrimSpace(a.Company.RegistrationNumber) == "") {
		return newValidationError(step, EnterpriseStepName(step), "Please fill in all required company details")
	}
	return nil
}
