// Package profile manages company tender profiles: onboarding, partial
// updates, and the static option catalogs the frontend renders.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/chereta-io/chereta/internal/model"
	"github.com/chereta-io/chereta/internal/storage"
)

var (
	ErrNotFound      = errors.New("profile: not found")
	ErrAlreadyExists = errors.New("profile: already exists")
	ErrInvalid       = errors.New("profile: invalid")
)

// Service owns profile reads and writes. Preference edits mark the
// embedding dirty so the next reembed pass picks them up.
type Service struct {
	db     *storage.DB
	logger *slog.Logger
}

func New(db *storage.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Create handles onboarding step 1: the required tier-1 fields. One profile
// per company.
func (s *Service) Create(ctx context.Context, companyID uuid.UUID, req model.CreateProfileRequest) (model.CompanyProfile, error) {
	p := model.CompanyProfile{
		CompanyID:        companyID,
		PrimarySector:    req.PrimarySector,
		ActiveSectors:    req.ActiveSectors,
		SubSectors:       req.SubSectors,
		PreferredRegions: req.PreferredRegions,
		Keywords:         req.Keywords,
		OnboardingStep:   1,
	}
	if err := model.ValidateProfileTier1(p); err != nil {
		return model.CompanyProfile{}, fmt.Errorf("%w: %s", ErrInvalid, err)
	}

	created, err := s.db.CreateProfile(ctx, p)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return model.CompanyProfile{}, ErrAlreadyExists
		}
		return model.CompanyProfile{}, err
	}
	s.logger.Info("profile created", "profile_id", created.ID, "company_id", companyID)
	return created, nil
}

// Get loads the company's profile.
func (s *Service) Get(ctx context.Context, companyID uuid.UUID) (model.CompanyProfile, error) {
	p, err := s.db.GetProfileByCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.CompanyProfile{}, ErrNotFound
		}
		return model.CompanyProfile{}, err
	}
	return p, nil
}

// Update applies a partial update. Nil request fields are left unchanged.
// Edits to matching-relevant preferences mark the embedding dirty; pure
// config changes (threshold, weights) do not.
func (s *Service) Update(ctx context.Context, companyID uuid.UUID, req model.UpdateProfileRequest) (model.CompanyProfile, error) {
	p, err := s.Get(ctx, companyID)
	if err != nil {
		return model.CompanyProfile{}, err
	}

	markDirty := applyUpdate(&p, req)
	if err := model.ValidateProfileTier1(p); err != nil {
		return model.CompanyProfile{}, fmt.Errorf("%w: %s", ErrInvalid, err)
	}
	advanceOnboarding(&p)

	updated, err := s.db.UpdateProfile(ctx, p, markDirty)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.CompanyProfile{}, ErrNotFound
		}
		return model.CompanyProfile{}, err
	}
	return updated, nil
}

// applyUpdate copies the non-nil request fields onto the profile and
// reports whether any of them affect the embedding text or matching
// dimensions.
func applyUpdate(p *model.CompanyProfile, req model.UpdateProfileRequest) bool {
	dirty := false
	set := func(apply func()) {
		apply()
		dirty = true
	}

	if req.PrimarySector != nil {
		set(func() { p.PrimarySector = *req.PrimarySector })
	}
	if req.ActiveSectors != nil {
		set(func() { p.ActiveSectors = *req.ActiveSectors })
	}
	if req.SubSectors != nil {
		set(func() { p.SubSectors = *req.SubSectors })
	}
	if req.PreferredRegions != nil {
		set(func() { p.PreferredRegions = *req.PreferredRegions })
	}
	if req.Keywords != nil {
		set(func() { p.Keywords = *req.Keywords })
	}
	if req.CompanySize != nil {
		set(func() { p.CompanySize = req.CompanySize })
	}
	if req.YearsInOperation != nil {
		set(func() { p.YearsInOperation = req.YearsInOperation })
	}
	if req.Certifications != nil {
		set(func() { p.Certifications = *req.Certifications })
	}
	if req.BudgetMin != nil {
		set(func() { p.BudgetMin = req.BudgetMin })
	}
	if req.BudgetMax != nil {
		set(func() { p.BudgetMax = req.BudgetMax })
	}
	if req.BudgetCurrency != nil {
		set(func() { p.BudgetCurrency = *req.BudgetCurrency })
	}
	if req.PreferredLanguages != nil {
		set(func() { p.PreferredLanguages = *req.PreferredLanguages })
	}
	if req.MinDeadlineDays != nil {
		set(func() { p.MinDeadlineDays = *req.MinDeadlineDays })
	}

	// Matching config does not change the embedding text.
	if req.MinMatchThreshold != nil {
		p.MinMatchThreshold = *req.MinMatchThreshold
	}
	if req.ScoringWeights != nil {
		p.ScoringWeights = *req.ScoringWeights
	}
	return dirty
}

// advanceOnboarding moves the step forward as tiers fill in. Steps never
// regress.
func advanceOnboarding(p *model.CompanyProfile) {
	step := p.OnboardingStep
	if p.Tier1Complete() && step < 1 {
		step = 1
	}
	if p.Tier2Complete() && step < 2 {
		step = 2
	}
	if step > p.OnboardingStep {
		p.OnboardingStep = step
	}
}
