package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/talentforge/assessor/internal/config"
	"github.com/talentforge/assessor/internal/domain"
)

// In-memory port implementations for orchestrator tests.

type memReports struct {
	mu      sync.Mutex
	rows    map[string]domain.Report
	updates []domain.ReportStatus
}

func newMemReports(rows ...domain.Report) *memReports {
	m := &memReports{rows: map[string]domain.Report{}}
	for _, r := range rows {
		m.rows[r.ID] = r
	}
	return m
}

func (m *memReports) Create(_ domain.Context, r domain.Report) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.ID] = r
	return r.ID, nil
}

func (m *memReports) Get(_ domain.Context, id string) (domain.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return domain.Report{}, fmt.Errorf("report %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

func (m *memReports) UpdateStatus(_ domain.Context, id string, status domain.ReportStatus, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rows[id]
	r.Status = status
	if errMsg != nil {
		r.Error = *errMsg
	}
	m.rows[id] = r
	m.updates = append(m.updates, status)
	return nil
}

func (m *memReports) SetActiveJob(_ domain.Context, id, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rows[id]
	r.ActiveJobID = jobID
	r.Status = domain.ReportProcessing
	m.rows[id] = r
	return nil
}

func (m *memReports) setStatus(id string, status domain.ReportStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rows[id]
	r.Status = status
	m.rows[id] = r
}

func (m *memReports) current(id string) domain.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

type memDicts struct {
	rows map[string]domain.Dictionary
}

func newMemDicts(rows ...domain.Dictionary) *memDicts {
	m := &memDicts{rows: map[string]domain.Dictionary{}}
	for _, d := range rows {
		m.rows[d.ID] = d
	}
	return m
}

func (m *memDicts) Create(_ domain.Context, d domain.Dictionary) (string, error) {
	m.rows[d.ID] = d
	return d.ID, nil
}

func (m *memDicts) Get(_ domain.Context, id string) (domain.Dictionary, error) {
	d, ok := m.rows[id]
	if !ok {
		return domain.Dictionary{}, fmt.Errorf("dictionary %s: %w", id, domain.ErrNotFound)
	}
	return d, nil
}

func (m *memDicts) Update(_ domain.Context, d domain.Dictionary) error {
	m.rows[d.ID] = d
	return nil
}

func (m *memDicts) InUse(domain.Context, string) (bool, error) { return false, nil }

type memDocs struct {
	mu   sync.Mutex
	rows map[string]domain.Document
}

func newMemDocs(rows ...domain.Document) *memDocs {
	m := &memDocs{rows: map[string]domain.Document{}}
	for _, d := range rows {
		m.rows[d.ID] = d
	}
	return m
}

func (m *memDocs) Create(_ domain.Context, d domain.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[d.ID] = d
	return d.ID, nil
}

func (m *memDocs) Get(_ domain.Context, id string) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return domain.Document{}, domain.ErrNotFound
	}
	return d, nil
}

func (m *memDocs) ListByReport(_ domain.Context, reportID string) ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Document
	for _, d := range m.rows {
		if d.ReportID == reportID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDocs) SetExtracted(_ domain.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.rows[id]
	d.Text = text
	d.Status = domain.DocumentExtracted
	m.rows[id] = d
	return nil
}

func (m *memDocs) SetFailed(_ domain.Context, id, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.rows[id]
	d.Status = domain.DocumentFailed
	m.rows[id] = d
	return nil
}

type memEvidence struct {
	mu   sync.Mutex
	rows []domain.Evidence
	seq  int
}

func newMemEvidence(rows ...domain.Evidence) *memEvidence {
	return &memEvidence{rows: rows}
}

func (m *memEvidence) ReplaceUnit(_ domain.Context, reportID string, unit domain.EvidenceUnit, rows []domain.Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, e := range m.rows {
		sameUnit := e.ReportID == reportID && e.Competency == unit.Competency &&
			e.Level == unit.Level && e.SourceTag == unit.SourceTag && e.AIGenerated
		if !sameUnit {
			kept = append(kept, e)
		}
	}
	m.rows = kept
	for _, e := range rows {
		m.seq++
		e.ID = fmt.Sprintf("ev-%d", m.seq)
		m.rows = append(m.rows, e)
	}
	return nil
}

func (m *memEvidence) Signatures(_ domain.Context, reportID string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]struct{}{}
	for _, e := range m.rows {
		if e.ReportID == reportID && e.AIGenerated {
			unit := domain.EvidenceUnit{Competency: e.Competency, Level: e.Level, SourceTag: e.SourceTag}
			out[unit.Signature()] = struct{}{}
		}
	}
	return out, nil
}

func (m *memEvidence) ListByReport(_ domain.Context, reportID string) ([]domain.Evidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Evidence
	for _, e := range m.rows {
		if e.ReportID == reportID && !e.Archived {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEvidence) CountByReport(_ domain.Context, reportID string) (int, error) {
	rows, _ := m.ListByReport(nil, reportID)
	return len(rows), nil
}

func (m *memEvidence) Create(_ domain.Context, e domain.Evidence) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	e.ID = fmt.Sprintf("ev-%d", m.seq)
	m.rows = append(m.rows, e)
	return e.ID, nil
}

func (m *memEvidence) all() []domain.Evidence {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Evidence(nil), m.rows...)
}

type memAnalyses struct {
	mu   sync.Mutex
	rows map[string][]domain.CompetencyAnalysis
}

func newMemAnalyses() *memAnalyses {
	return &memAnalyses{rows: map[string][]domain.CompetencyAnalysis{}}
}

func (m *memAnalyses) ReplaceForReport(_ domain.Context, reportID string, rows []domain.CompetencyAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[reportID] = append([]domain.CompetencyAnalysis(nil), rows...)
	return nil
}

func (m *memAnalyses) ListByReport(_ domain.Context, reportID string) ([]domain.CompetencyAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CompetencyAnalysis(nil), m.rows[reportID]...), nil
}

type memSummaries struct {
	mu   sync.Mutex
	rows map[string]domain.ExecutiveSummary
}

func newMemSummaries() *memSummaries {
	return &memSummaries{rows: map[string]domain.ExecutiveSummary{}}
}

func (m *memSummaries) Replace(_ domain.Context, s domain.ExecutiveSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.ReportID] = s
	return nil
}

func (m *memSummaries) GetByReport(_ domain.Context, reportID string) (domain.ExecutiveSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[reportID]
	if !ok {
		return domain.ExecutiveSummary{}, domain.ErrNotFound
	}
	return s, nil
}

type recordedEvent struct {
	UserID string
	Name   string
	Data   map[string]any
}

type memEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (m *memEvents) Publish(_ domain.Context, userID, event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := payload.(map[string]any)
	m.events = append(m.events, recordedEvent{UserID: userID, Name: event, Data: data})
	return nil
}

func (m *memEvents) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Name
	}
	return out
}

func (m *memEvents) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

func (m *memEvents) first(name string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.Name == name {
			return e.Data
		}
	}
	return nil
}

// stubAI scripts completion responses. The respond function receives the
// call kind ("complete" or "stream") and the request; streamed responses are
// chunked through onChunk in three pieces.
type stubAI struct {
	mu      sync.Mutex
	respond func(kind string, req domain.CompletionRequest) (string, error)
	calls   []domain.CompletionRequest
}

func (s *stubAI) record(req domain.CompletionRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
}

func (s *stubAI) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubAI) models() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Model
	}
	return out
}

func (s *stubAI) Complete(ctx domain.Context, req domain.CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.record(req)
	return s.respond("complete", req)
}

func (s *stubAI) CompleteStream(ctx domain.Context, req domain.CompletionRequest, onChunk func(string)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.record(req)
	out, err := s.respond("stream", req)
	if err != nil {
		return "", err
	}
	if onChunk != nil {
		third := len(out) / 3
		for _, chunk := range []string{out[:third], out[third : 2*third], out[2*third:]} {
			if chunk != "" {
				onChunk(chunk)
			}
		}
	}
	return out, nil
}

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) ExtractPath(domain.Context, string, string) (string, error) {
	return s.text, s.err
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:              "test",
		MainModel:           "main-model",
		BackupModel:         "backup-model",
		MainModelTries:      3,
		PassThreshold:       0.5,
		CancelPollInterval:  10 * time.Millisecond,
		CompletionMaxTokens: 2048,
		GenerateMaxAttempts: 6,
		ExtractTemperature:  0.2,
		JudgeTemperature:    0.1,
		NarrativeTemperature: 0.6,
	}
}

// problemSolvingDictionary is the three-level, two-key-behavior ladder used
// across the orchestrator tests.
func problemSolvingDictionary() domain.Dictionary {
	return domain.Dictionary{
		ID:   "dict-1",
		Name: "Leadership Framework",
		Competencies: []domain.Competency{
			{
				Name: "Problem Solving",
				Levels: []domain.CompetencyLevel{
					{Level: 1, Definition: "Recognizes problems", KeyBehaviors: []string{
						"Identifies the core problem",
						"Gathers relevant information",
					}},
					{Level: 2, Definition: "Analyzes problems", KeyBehaviors: []string{
						"Breaks problems into parts",
						"Weighs alternative solutions",
					}},
					{Level: 3, Definition: "Solves complex problems", KeyBehaviors: []string{
						"Anticipates second-order effects",
						"Designs novel solutions",
					}},
				},
			},
		},
	}
}

func testRunner(reports *memReports, dicts *memDicts, docs *memDocs, evidence *memEvidence, analyses *memAnalyses, summaries *memSummaries, ai *stubAI, events *memEvents) *Runner {
	return NewRunner(testConfig(), config.DefaultPrompts(), Deps{
		Reports:   reports,
		Dicts:     dicts,
		Docs:      docs,
		Evidence:  evidence,
		Analyses:  analyses,
		Summaries: summaries,
		AI:        ai,
		Events:    events,
		Extractor: &stubExtractor{},
	})
}
