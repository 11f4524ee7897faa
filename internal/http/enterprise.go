package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/registration"
)

type enterpriseView struct {
	Step        registration.Step                  `json:"step"`
	StepName    string                             `json:"step_name"`
	Application registration.EnterpriseApplication `json:"application"`
}

func enterpriseViewOf(wz *registration.EnterpriseWizard) enterpriseView {
	st := wz.Step()
	return enterpriseView{Step: st, StepName: registration.EnterpriseStepName(st), Application: wz.Application()}
}

// Fleet counts are taken as typed, numbers or strings.
type enterprisePatch struct {
	Company   *registration.CompanyInfo        `json:"company"`
	Fleet     map[models.TransportMode]any     `json:"fleet"`
	Documents map[registration.Document]string `json:"documents"`
}

func (p enterprisePatch) apply(wz *registration.EnterpriseWizard) error {
	if p.Company != nil {
		if err := wz.SetCompany(*p.Company); err != nil {
			return err
		}
	}
	for mode, count := range p.Fleet {
		if err := wz.SetFleetCount(mode, count); err != nil {
			return err
		}
	}
	for doc, ref := range p.Documents {
		if err := wz.AttachDocument(doc, ref); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleNewEnterprise(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, enterpriseViewOf(s.svc.NewEnterpriseRegistration(owner(r))))
}

func (s *Server) enterprise(w http.ResponseWriter, r *http.Request) (*registration.EnterpriseWizard, bool) {
	wz, err := s.svc.EnterpriseRegistration(owner(r), mux.Vars(r)["registration_id"])
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return wz, true
}

func (s *Server) handleGetEnterprise(w http.ResponseWriter, r *http.Request) {
	if wz, ok := s.enterprise(w, r); ok {
		writeJSON(w, http.StatusOK, enterpriseViewOf(wz))
	}
}

func (s *Server) handlePatchEnterprise(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.enterprise(w, r)
	if !ok {
		return
	}
	var p enterprisePatch
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := p.apply(wz); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enterpriseViewOf(wz))
}

func (s *Server) handleNextEnterprise(w http.ResponseWriter, r *http.Request) {
	app, step, err := s.svc.NextEnterpriseStep(r.Context(), owner(r), mux.Vars(r)["registration_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enterpriseView{Step: step, StepName: registration.EnterpriseStepName(step), Application: app})
}

func (s *Server) handleBackEnterprise(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.enterprise(w, r)
	if !ok {
		return
	}
	if err := wz.Back(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enterpriseViewOf(wz))
}
