package ports

import (
	"context"

	"pairline/internal/core/domain"
)

type ReportRepository interface {
	Save(ctx context.Context, report *domain.Report) error
	ListByReported(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Report, error)
	CountByReported(ctx context.Context, userID domain.UserID) (int64, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id domain.UserID) (*domain.UserProfile, error)
	Upsert(ctx context.Context, profile *domain.UserProfile) error
	IncrementReportCount(ctx context.Context, id domain.UserID) (int64, error)
}
