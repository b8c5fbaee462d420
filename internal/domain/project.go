package domain

import (
	"context"
	"time"
)

// Project represents a fundraising project shown on the public site and
// managed from the admin dashboard.
type Project struct {
	ID          int64
	Title       string
	Description string
	Cause       string
	GoalPaise   int64
	RaisedPaise int64
	Active      bool
	CreatedAt   time.Time
}

// ProjectRepository defines the port for project persistence.
type ProjectRepository interface {
	Insert(ctx context.Context, p *Project) (int64, error)
	Get(ctx context.Context, id int64) (*Project, error)
	List(ctx context.Context, activeOnly bool, limit int) ([]Project, error)
	Update(ctx context.Context, p *Project) error
	Delete(ctx context.Context, id int64) error
}
