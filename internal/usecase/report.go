// Package usecase contains application business logic services.
package usecase

import (
	"fmt"
	"strings"

	"github.com/talentforge/assessor/internal/domain"
)

// ReportService creates and loads assessment reports.
type ReportService struct {
	Reports domain.ReportRepository
	Dicts   domain.DictionaryRepository
}

// NewReportService constructs a ReportService with its dependencies.
func NewReportService(r domain.ReportRepository, d domain.DictionaryRepository) ReportService {
	return ReportService{Reports: r, Dicts: d}
}

// Create validates the report against its dictionary and persists it. Every
// target level must name a competency the dictionary defines and stay within
// that competency's ladder.
func (s ReportService) Create(ctx domain.Context, r domain.Report) (string, error) {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return "", fmt.Errorf("op=report.create: %w: title required", domain.ErrInvalidArgument)
	}
	if r.DictionaryID == "" {
		return "", fmt.Errorf("op=report.create: %w: dictionary_id required", domain.ErrInvalidArgument)
	}
	dict, err := s.Dicts.Get(ctx, r.DictionaryID)
	if err != nil {
		return "", fmt.Errorf("op=report.create: dictionary %s: %w", r.DictionaryID, err)
	}
	for name, level := range r.TargetLevels {
		comp, ok := dict.Competency(name)
		if !ok {
			return "", fmt.Errorf("op=report.create: %w: competency %q not in dictionary", domain.ErrInvalidArgument, name)
		}
		if level < 1 || level > comp.MaxLevel() {
			return "", fmt.Errorf("op=report.create: %w: target level %d out of range for %q", domain.ErrInvalidArgument, level, name)
		}
	}
	return s.Reports.Create(ctx, r)
}

// Get loads a report by id.
func (s ReportService) Get(ctx domain.Context, id string) (domain.Report, error) {
	return s.Reports.Get(ctx, id)
}
