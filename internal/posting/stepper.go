package posting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/pricing"
)

type Stage int

const (
	StageCargoType Stage = iota + 1
	StageLocations
	StageDetails
	StageTransportMode
	StagePreview
)

const (
	firstStage = StageCargoType
	lastStage  = StagePreview

	MaxImages = 4
)

func (s Stage) String() string {
	switch s {
	case StageCargoType:
		return "cargo-type"
	case StageLocations:
		return "locations"
	case StageDetails:
		return "details"
	case StageTransportMode:
		return "transport-mode"
	case StagePreview:
		return "preview"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

var (
	ErrFirstStage       = errors.New("already at the first step")
	ErrLastStage        = errors.New("preview is the last step, submit the post instead")
	ErrNotAtPreview     = errors.New("cargo can only be posted from the preview step")
	ErrFinalized        = errors.New("cargo post already submitted")
	ErrSubmitInProgress = errors.New("cargo post is being submitted")
	ErrImageIndex       = errors.New("no image at that position")
)

// ValidationError is a user-facing message for a stage whose required fields are missing.
type ValidationError struct {
	Stage   Stage
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// SubmitError wraps a failed post operation. The stepper is left untouched so
// the caller may submit again.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("Failed to post cargo. Please try again. (%v)", e.Err)
}

func (e *SubmitError) Unwrap() error   { return e.Err }
func (e *SubmitError) Retryable() bool { return true }

// Poster performs the post of a completed cargo form.
type Poster interface {
	Post(ctx context.Context, post models.CargoPost) (models.CargoPost, error)
}

type PosterFunc func(ctx context.Context, post models.CargoPost) (models.CargoPost, error)

func (f PosterFunc) Post(ctx context.Context, post models.CargoPost) (models.CargoPost, error) {
	return f(ctx, post)
}

// Snapshot is a read-only view of a stepper.
type Snapshot struct {
	ID         string           `json:"id"`
	Stage      Stage            `json:"stage"`
	StageName  string           `json:"stage_name"`
	Post       models.CargoPost `json:"post"`
	Estimate   int64            `json:"estimate"`
	Submitting bool             `json:"submitting"`
	Finalized  bool             `json:"finalized"`
}

// Stepper is the cargo posting wizard. It is safe for concurrent use.
type Stepper struct {
	mu         sync.Mutex
	stage      Stage
	post       models.CargoPost
	poster     Poster
	submitting bool
	finalized  bool
	now        func() time.Time
}

func New(id, ownerID string, poster Poster) *Stepper {
	return &Stepper{
		stage:  firstStage,
		post:   models.CargoPost{ID: id, OwnerID: ownerID, Type: models.CargoGeneral},
		poster: poster,
		now:    time.Now,
	}
}

func (s *Stepper) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Stepper) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:         s.post.ID,
		Stage:      s.stage,
		StageName:  s.stage.String(),
		Post:       s.post.Clone(),
		Estimate:   pricing.EstimatePost(s.post),
		Submitting: s.submitting,
		Finalized:  s.finalized,
	}
}

// Advance moves to the next stage if the current one is complete.
func (s *Stepper) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ErrFinalized
	}
	if s.stage == lastStage {
		return ErrLastStage
	}
	if verr := validate(s.stage, &s.post); verr != nil {
		return verr
	}
	s.stage++
	if s.stage == StagePreview {
		s.post.EstimatedCost = pricing.EstimatePost(s.post)
	}
	return nil
}

func (s *Stepper) Retreat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ErrFinalized
	}
	if s.stage == firstStage {
		return ErrFirstStage
	}
	s.stage--
	return nil
}

// Submit posts the cargo from the preview stage. On success the post is
// finalized and returned; on failure a *SubmitError is returned and nothing changes.
func (s *Stepper) Submit(ctx context.Context) (models.CargoPost, error) {
	s.mu.Lock()
	switch {
	case s.finalized:
		s.mu.Unlock()
		return models.CargoPost{}, ErrFinalized
	case s.submitting:
		s.mu.Unlock()
		return models.CargoPost{}, ErrSubmitInProgress
	case s.stage != StagePreview:
		s.mu.Unlock()
		return models.CargoPost{}, ErrNotAtPreview
	}
	for st := firstStage; st < lastStage; st++ {
		if verr := validate(st, &s.post); verr != nil {
			s.mu.Unlock()
			return models.CargoPost{}, verr
		}
	}
	draft := s.post.Clone()
	draft.EstimatedCost = pricing.EstimatePost(draft)
	draft.PostedAt = s.now()
	s.submitting = true
	s.mu.Unlock()

	posted, err := s.poster.Post(ctx, draft)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if err != nil {
		return models.CargoPost{}, &SubmitError{Err: err}
	}
	s.post = posted.Clone()
	s.finalized = true
	return posted.Clone(), nil
}

func (s *Stepper) SetCargoType(t models.CargoType) error {
	if !t.Valid() {
		return &ValidationError{Stage: StageCargoType, Message: fmt.Sprintf("Unknown cargo type %q", t)}
	}
	return s.mutate(func(p *models.CargoPost) error { p.Type = t; return nil })
}

func (s *Stepper) SetPickup(loc models.Location) error {
	return s.mutate(func(p *models.CargoPost) error { p.Pickup = &loc; return nil })
}

func (s *Stepper) SetDropoff(loc models.Location) error {
	return s.mutate(func(p *models.CargoPost) error { p.Dropoff = &loc; return nil })
}

func (s *Stepper) SetTitle(title string) error {
	return s.mutate(func(p *models.CargoPost) error { p.Details.Title = title; return nil })
}

func (s *Stepper) SetDescription(desc string) error {
	return s.mutate(func(p *models.CargoPost) error { p.Details.Description = desc; return nil })
}

func (s *Stepper) SetWeight(kg float64) error {
	if kg < 0 {
		return &ValidationError{Stage: StageDetails, Message: "Weight cannot be negative"}
	}
	return s.mutate(func(p *models.CargoPost) error { p.Details.WeightKg = kg; return nil })
}

func (s *Stepper) SetDimensions(d models.Dimensions) error {
	if d.Length < 0 || d.Width < 0 || d.Height < 0 {
		return &ValidationError{Stage: StageDetails, Message: "Dimensions cannot be negative"}
	}
	return s.mutate(func(p *models.CargoPost) error { p.Details.Dimensions = d; return nil })
}

// AddImages appends image references, keeping at most MaxImages.
func (s *Stepper) AddImages(refs ...string) error {
	return s.mutate(func(p *models.CargoPost) error {
		imgs := append(p.Details.Images, refs...)
		if len(imgs) > MaxImages {
			imgs = imgs[:MaxImages]
		}
		p.Details.Images = imgs
		return nil
	})
}

func (s *Stepper) RemoveImage(i int) error {
	return s.mutate(func(p *models.CargoPost) error {
		if i < 0 || i >= len(p.Details.Images) {
			return ErrImageIndex
		}
		imgs := make([]string, 0, len(p.Details.Images)-1)
		imgs = append(imgs, p.Details.Images[:i]...)
		p.Details.Images = append(imgs, p.Details.Images[i+1:]...)
		return nil
	})
}

func (s *Stepper) SetFragile(v bool) error {
	return s.mutate(func(p *models.CargoPost) error { p.Details.Fragile = v; return nil })
}

func (s *Stepper) SetRequiresHandling(v bool) error {
	return s.mutate(func(p *models.CargoPost) error { p.Details.RequiresHandling = v; return nil })
}

func (s *Stepper) SetTransportMode(m models.TransportMode) error {
	if !m.Valid() {
		return &ValidationError{Stage: StageTransportMode, Message: fmt.Sprintf("Unknown transport mode %q", m)}
	}
	return s.mutate(func(p *models.CargoPost) error { p.TransportMode = m; return nil })
}

func (s *Stepper) mutate(fn func(p *models.CargoPost) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ErrFinalized
	}
	if s.submitting {
		return ErrSubmitInProgress
	}
	next := s.post.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	s.post = next
	return nil
}

func validate(stage Stage, p *models.CargoPost) *ValidationError {
	switch stage {
	case StageCargoType:
		if !p.Type.Valid() {
			return &ValidationError{Stage: stage, Message: "Please select a cargo type"}
		}
	case StageLocations:
		if p.Pickup == nil || p.Dropoff == nil {
			return &ValidationError{Stage: stage, Message: "Please select both pickup and dropoff locations"}
		}
	case StageDetails:
		if strings.TrimSpace(p.Details.Title) == "" || p.Details.WeightKg <= 0 {
			return &ValidationError{Stage: stage, Message: "Please fill in all required cargo details"}
		}
	case StageTransportMode:
		if !p.TransportMode.Valid() {
			return &ValidationError{Stage: stage, Message: "Please select a transport mode"}
		}
	}
	return nil
}
