package service

import (
	"context"

	"github.com/kjstillabower/smartstore-copilot/internal/models"
)

// DriverService serves the driver-risk snapshot.
type DriverService struct {
	path string
}

func NewDriverService(path string) *DriverService {
	return &DriverService{path: path}
}

// Risks returns every driver-risk record.
func (s *DriverService) Risks(ctx context.Context) (models.Snapshot, error) {
	return readSnapshot(ctx, "drivers", s.path, "Driver risk file not found")
}
