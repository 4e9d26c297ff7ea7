package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/talentforge/assessor/internal/domain"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
		return false
	}
	if err := getValidator().Struct(dst); err != nil {
		verrs := map[string]string{}
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				verrs[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
		return false
	}
	return true
}

// CreateReportHandler creates a report bound to a dictionary.
func (s *Server) CreateReportHandler() http.HandlerFunc {
	type request struct {
		Title           string         `json:"title" validate:"required,max=300"`
		ProjectID       string         `json:"project_id" validate:"max=100"`
		DictionaryID    string         `json:"dictionary_id" validate:"required"`
		TargetLevels    map[string]int `json:"target_levels"`
		SpecificContext string         `json:"specific_context" validate:"max=5000"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if !decodeAndValidate(w, r, &req) {
			return
		}
		id, err := s.Reports.Create(r.Context(), domain.Report{
			Title:           req.Title,
			ProjectID:       req.ProjectID,
			CreatedBy:       UserID(r),
			DictionaryID:    req.DictionaryID,
			TargetLevels:    req.TargetLevels,
			SpecificContext: req.SpecificContext,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id, "status": string(domain.ReportCreated)})
	}
}

type reportResponse struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	ProjectID       string         `json:"project_id,omitempty"`
	DictionaryID    string         `json:"dictionary_id"`
	Status          string         `json:"status"`
	TargetLevels    map[string]int `json:"target_levels,omitempty"`
	SpecificContext string         `json:"specific_context,omitempty"`
	ActiveJobID     string         `json:"active_job_id,omitempty"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// GetReportHandler returns one report with its lifecycle state.
func (s *Server) GetReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireParam(w, r, "id")
		if !ok {
			return
		}
		rep, err := s.Reports.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, reportResponse{
			ID: rep.ID, Title: rep.Title, ProjectID: rep.ProjectID,
			DictionaryID: rep.DictionaryID, Status: string(rep.Status),
			TargetLevels: rep.TargetLevels, SpecificContext: rep.SpecificContext,
			ActiveJobID: rep.ActiveJobID, Error: rep.Error,
			CreatedAt: rep.CreatedAt, UpdatedAt: rep.UpdatedAt,
		})
	}
}

type dictionaryRequest struct {
	Name         string              `json:"name" validate:"required,max=200"`
	Version      int                 `json:"version" validate:"gte=0"`
	Competencies []domain.Competency `json:"competencies" validate:"required"`
}

// CreateDictionaryHandler creates a competency dictionary.
func (s *Server) CreateDictionaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dictionaryRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		id, err := s.Dicts.Create(r.Context(), domain.Dictionary{
			Name: req.Name, Version: req.Version, Competencies: req.Competencies,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

// GetDictionaryHandler returns one dictionary.
func (s *Server) GetDictionaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireParam(w, r, "id")
		if !ok {
			return
		}
		d, err := s.Dicts.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id": d.ID, "name": d.Name, "version": d.Version,
			"competencies": d.Competencies, "created_at": d.CreatedAt,
		})
	}
}

// UpdateDictionaryHandler replaces a dictionary that no report uses yet;
// 409 once any report references it.
func (s *Server) UpdateDictionaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireParam(w, r, "id")
		if !ok {
			return
		}
		var req dictionaryRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		err := s.Dicts.Update(r.Context(), domain.Dictionary{
			ID: id, Name: req.Name, Version: req.Version, Competencies: req.Competencies,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id})
	}
}

// TriggerGenerateHandler starts a generation phase for the report.
func (s *Server) TriggerGenerateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireParam(w, r, "id")
		if !ok {
			return
		}
		phaseStr, ok := requireParam(w, r, "phase")
		if !ok {
			return
		}
		n, err := strconv.Atoi(phaseStr)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: phase must be 1, 2 or 3", domain.ErrInvalidArgument), nil)
			return
		}
		jobID, err := s.Generate.Trigger(r.Context(), id, UserID(r), r.Header.Get("X-Request-Id"), domain.Phase(n))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"report_id": id,
			"job_id":    jobID,
			"status":    string(domain.ReportProcessing),
		})
	}
}

// CancelGenerateHandler stops the running generation for the report.
func (s *Server) CancelGenerateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireParam(w, r, "id")
		if !ok {
			return
		}
		if err := s.Generate.Cancel(r.Context(), id, UserID(r)); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"report_id": id, "status": "cancelled"})
	}
}

// ListEvidenceHandler returns the phase-1 evidence rows for the report.
func (s *Server) ListEvidenceHandler() http.HandlerFunc {
	type row struct {
		ID          string `json:"id"`
		Competency  string `json:"competency"`
		Level       int    `json:"level"`
		KeyBehavior string `json:"key_behavior"`
		Quote       string `json:"quote"`
		SourceTag   string `json:"source_tag"`
		Reasoning   string `json:"reasoning,omitempty"`
		AIGenerated bool   `json:"is_ai_generated"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireParam(w, r, "id")
		if !ok {
			return
		}
		rows, err := s.Results.ListEvidence(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]row, 0, len(rows))
		for _, e := range rows {
			out = append(out, row{
				ID: e.ID, Competency: e.Competency, Level: e.Level,
				KeyBehavior: e.KeyBehavior, Quote: e.Quote, SourceTag: e.SourceTag,
				Reasoning: e.Reasoning, AIGenerated: e.AIGenerated,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"report_id": id, "evidence": out})
	}
}

// ListAnalysesHandler returns the phase-2 competency verdicts.
func (s *Server) ListAnalysesHandler() http.HandlerFunc {
	type row struct {
		Competency      string                     `json:"competency"`
		LevelAchieved   int                        `json:"level_achieved"`
		Explanation     string                     `json:"explanation"`
		Recommendations domain.Recommendations     `json:"recommendations"`
		KeyBehaviors    []domain.KeyBehaviorStatus `json:"key_behaviors"`
		Anomaly         bool                       `json:"anomaly"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireParam(w, r, "id")
		if !ok {
			return
		}
		rows, err := s.Results.ListAnalyses(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]row, 0, len(rows))
		for _, a := range rows {
			out = append(out, row{
				Competency: a.Competency, LevelAchieved: a.LevelAchieved,
				Explanation: a.Explanation, Recommendations: a.Recommendations,
				KeyBehaviors: a.KeyBehaviors, Anomaly: a.Anomaly,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"report_id": id, "analyses": out})
	}
}

// GetSummaryHandler returns the executive summary, 404 before phase 3.
func (s *Server) GetSummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireParam(w, r, "id")
		if !ok {
			return
		}
		sum, err := s.Results.Summary(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"report_id":       id,
			"overview":        sum.Overview,
			"strengths":       sum.Strengths,
			"weaknesses":      sum.Weaknesses,
			"recommendations": sum.Recommendations,
		})
	}
}
