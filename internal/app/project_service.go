package app

import (
	"context"
	"time"

	"ngoportal/internal/domain"
)

// ProjectService encapsulates fundraising-project use cases.
type ProjectService struct {
	repo      domain.ProjectRepository
	donations domain.DonationRepository
	now       func() time.Time
}

// NewProjectService creates a ProjectService backed by the given
// repositories.
func NewProjectService(repo domain.ProjectRepository, donations domain.DonationRepository) *ProjectService {
	return &ProjectService{repo: repo, donations: donations, now: time.Now}
}

// ProjectInput carries project fields from the admin dashboard.
type ProjectInput struct {
	Title       string `validate:"required,min=3,max=200"`
	Description string `validate:"max=5000"`
	Cause       string `validate:"required,max=100"`
	GoalPaise   int64  `validate:"required,gt=0"`
	Active      bool
}

// Create validates and stores a new project.
func (s *ProjectService) Create(ctx context.Context, in ProjectInput) (*domain.Project, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	p := &domain.Project{
		Title:       in.Title,
		Description: in.Description,
		Cause:       in.Cause,
		GoalPaise:   in.GoalPaise,
		Active:      in.Active,
		CreatedAt:   s.now(),
	}
	id, err := s.repo.Insert(ctx, p)
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "project insert failed")
	}
	p.ID = id
	return p, nil
}

// Get returns a project with its raised total refreshed from completed
// donations.
func (s *ProjectService) Get(ctx context.Context, id int64) (*domain.Project, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "project lookup failed")
	}
	if p == nil {
		return nil, domain.Errorf(domain.KindNotFound, "project not found")
	}
	if raised, err := s.donations.TotalRaised(ctx, p.Cause); err == nil {
		p.RaisedPaise = raised
	}
	return p, nil
}

// List returns projects, optionally only active ones.
func (s *ProjectService) List(ctx context.Context, activeOnly bool, limit int) ([]domain.Project, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	items, err := s.repo.List(ctx, activeOnly, limit)
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "project list failed")
	}
	return items, nil
}

// Update validates and stores changed project fields.
func (s *ProjectService) Update(ctx context.Context, id int64, in ProjectInput) (*domain.Project, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "project lookup failed")
	}
	if p == nil {
		return nil, domain.Errorf(domain.KindNotFound, "project not found")
	}
	p.Title = in.Title
	p.Description = in.Description
	p.Cause = in.Cause
	p.GoalPaise = in.GoalPaise
	p.Active = in.Active
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "project update failed")
	}
	return p, nil
}

// Delete removes a project.
func (s *ProjectService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return domain.WrapErr(domain.KindDependency, err, "project delete failed")
	}
	return nil
}
