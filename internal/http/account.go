package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/nav"
	"github.com/Mutombe/cargo-space/internal/registration"
	"github.com/Mutombe/cargo-space/internal/session"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c session.Credentials
	if err := decode(r, &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.sessions.Login(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var c session.Credentials
	if err := decode(r, &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.sessions.Register(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	writeJSON(w, http.StatusOK, sess.User)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(bearerToken(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNavigation resolves ?path= against the screen table, or lists the
// table when no path is given. A valid bearer token counts as signed in.
func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusOK, map[string]any{"routes": nav.Routes})
		return
	}
	_, err := s.sessions.Verify(bearerToken(r))
	m, ok := nav.Resolve(path, err == nil)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no screen at " + path})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	convs := s.svc.Inbox().Search(owner(r), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Inbox().Open(owner(r), mux.Vars(r)["conversation_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.svc.Inbox().Send(owner(r), mux.Vars(r)["conversation_id"], req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type registrationView struct {
	Step        registration.Step        `json:"step"`
	StepName    string                   `json:"step_name"`
	Application registration.Application `json:"application"`
}

func viewOf(wz *registration.Wizard) registrationView {
	st := wz.Step()
	return registrationView{Step: st, StepName: st.String(), Application: wz.Application()}
}

type registrationPatch struct {
	VehicleType *models.TransportMode            `json:"vehicle_type"`
	Driver      *registration.DriverDetails      `json:"driver"`
	Vehicle     *registration.VehicleDetails     `json:"vehicle"`
	Documents   map[registration.Document]string `json:"documents"`
}

func (p registrationPatch) apply(wz *registration.Wizard) error {
	if p.VehicleType != nil {
		if err := wz.SetVehicleType(*p.VehicleType); err != nil {
			return err
		}
	}
	if p.Driver != nil {
		if err := wz.SetDriverDetails(*p.Driver); err != nil {
			return err
		}
	}
	if p.Vehicle != nil {
		if err := wz.SetVehicleDetails(*p.Vehicle); err != nil {
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

func (s *Server) handleNewRegistration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, viewOf(s.svc.NewRegistration(owner(r))))
}

func (s *Server) registration(w http.ResponseWriter, r *http.Request) (*registration.Wizard, bool) {
	wz, err := s.svc.Registration(owner(r), mux.Vars(r)["registration_id"])
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return wz, true
}

func (s *Server) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	if wz, ok := s.registration(w, r); ok {
		writeJSON(w, http.StatusOK, viewOf(wz))
	}
}

func (s *Server) handlePatchRegistration(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.registration(w, r)
	if !ok {
		return
	}
	var p registrationPatch
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := p.apply(wz); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(wz))
}

func (s *Server) handleNextRegistration(w http.ResponseWriter, r *http.Request) {
	app, step, err := s.svc.NextRegistrationStep(r.Context(), owner(r), mux.Vars(r)["registration_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registrationView{Step: step, StepName: step.String(), Application: app})
}

func (s *Server) handleBackRegistration(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.registration(w, r)
	if !ok {
		return
	}
	if err := wz.Back(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(wz))
}
