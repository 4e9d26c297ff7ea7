package usecase

import (
	"fmt"
	"time"

	"github.com/talentforge/assessor/internal/domain"
)

type fakeReports struct {
	rows    map[string]domain.Report
	updates []domain.ReportStatus
	claimed []string
}

func newFakeReports(rows ...domain.Report) *fakeReports {
	f := &fakeReports{rows: map[string]domain.Report{}}
	for _, r := range rows {
		f.rows[r.ID] = r
	}
	return f
}

func (f *fakeReports) Create(_ domain.Context, r domain.Report) (string, error) {
	if r.ID == "" {
		r.ID = fmt.Sprintf("rep-%d", len(f.rows)+1)
	}
	f.rows[r.ID] = r
	return r.ID, nil
}

func (f *fakeReports) Get(_ domain.Context, id string) (domain.Report, error) {
	r, ok := f.rows[id]
	if !ok {
		return domain.Report{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeReports) UpdateStatus(_ domain.Context, id string, status domain.ReportStatus, errMsg *string) error {
	r := f.rows[id]
	r.Status = status
	if errMsg != nil {
		r.Error = *errMsg
	}
	f.rows[id] = r
	f.updates = append(f.updates, status)
	return nil
}

func (f *fakeReports) SetActiveJob(_ domain.Context, id, jobID string) error {
	r, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.ActiveJobID = jobID
	r.Status = domain.ReportProcessing
	f.rows[id] = r
	f.claimed = append(f.claimed, jobID)
	return nil
}

type fakeDicts struct {
	rows    map[string]domain.Dictionary
	inUse   bool
	updated int
}

func newFakeDicts(rows ...domain.Dictionary) *fakeDicts {
	f := &fakeDicts{rows: map[string]domain.Dictionary{}}
	for _, d := range rows {
		f.rows[d.ID] = d
	}
	return f
}

func (f *fakeDicts) Create(_ domain.Context, d domain.Dictionary) (string, error) {
	if d.ID == "" {
		d.ID = fmt.Sprintf("dict-%d", len(f.rows)+1)
	}
	f.rows[d.ID] = d
	return d.ID, nil
}

func (f *fakeDicts) Get(_ domain.Context, id string) (domain.Dictionary, error) {
	d, ok := f.rows[id]
	if !ok {
		return domain.Dictionary{}, domain.ErrNotFound
	}
	return d, nil
}

func (f *fakeDicts) Update(_ domain.Context, d domain.Dictionary) error {
	f.rows[d.ID] = d
	f.updated++
	return nil
}

func (f *fakeDicts) InUse(domain.Context, string) (bool, error) { return f.inUse, nil }

type fakeDocs struct {
	rows   map[string]domain.Document
	failed []string
}

func newFakeDocs(rows ...domain.Document) *fakeDocs {
	f := &fakeDocs{rows: map[string]domain.Document{}}
	for _, d := range rows {
		f.rows[d.ID] = d
	}
	return f
}

func (f *fakeDocs) Create(_ domain.Context, d domain.Document) (string, error) {
	if d.ID == "" {
		d.ID = fmt.Sprintf("doc-%d", len(f.rows)+1)
	}
	f.rows[d.ID] = d
	return d.ID, nil
}

func (f *fakeDocs) Get(_ domain.Context, id string) (domain.Document, error) {
	d, ok := f.rows[id]
	if !ok {
		return domain.Document{}, domain.ErrNotFound
	}
	return d, nil
}

func (f *fakeDocs) ListByReport(_ domain.Context, reportID string) ([]domain.Document, error) {
	var out []domain.Document
	for _, d := range f.rows {
		if d.ReportID == reportID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocs) SetExtracted(_ domain.Context, id, text string) error {
	d := f.rows[id]
	d.Text = text
	d.Status = domain.DocumentExtracted
	f.rows[id] = d
	return nil
}

func (f *fakeDocs) SetFailed(_ domain.Context, id, _ string) error {
	d := f.rows[id]
	d.Status = domain.DocumentFailed
	f.rows[id] = d
	f.failed = append(f.failed, id)
	return nil
}

type fakeEvidence struct {
	rows []domain.Evidence
}

func (f *fakeEvidence) ReplaceUnit(domain.Context, string, domain.EvidenceUnit, []domain.Evidence) error {
	return nil
}

func (f *fakeEvidence) Signatures(domain.Context, string) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (f *fakeEvidence) ListByReport(_ domain.Context, reportID string) ([]domain.Evidence, error) {
	var out []domain.Evidence
	for _, e := range f.rows {
		if e.ReportID == reportID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEvidence) CountByReport(_ domain.Context, reportID string) (int, error) {
	rows, _ := f.ListByReport(nil, reportID)
	return len(rows), nil
}

func (f *fakeEvidence) Create(_ domain.Context, e domain.Evidence) (string, error) {
	f.rows = append(f.rows, e)
	return e.ID, nil
}

type fakeAnalyses struct {
	rows map[string][]domain.CompetencyAnalysis
}

func (f *fakeAnalyses) ReplaceForReport(_ domain.Context, reportID string, rows []domain.CompetencyAnalysis) error {
	if f.rows == nil {
		f.rows = map[string][]domain.CompetencyAnalysis{}
	}
	f.rows[reportID] = rows
	return nil
}

func (f *fakeAnalyses) ListByReport(_ domain.Context, reportID string) ([]domain.CompetencyAnalysis, error) {
	return f.rows[reportID], nil
}

type fakeSummaries struct {
	rows map[string]domain.ExecutiveSummary
}

func (f *fakeSummaries) Replace(_ domain.Context, s domain.ExecutiveSummary) error {
	if f.rows == nil {
		f.rows = map[string]domain.ExecutiveSummary{}
	}
	f.rows[s.ReportID] = s
	return nil
}

func (f *fakeSummaries) GetByReport(_ domain.Context, reportID string) (domain.ExecutiveSummary, error) {
	s, ok := f.rows[reportID]
	if !ok {
		return domain.ExecutiveSummary{}, domain.ErrNotFound
	}
	return s, nil
}

type fakeQueue struct {
	generated []domain.GenerateTaskPayload
	ingested  []domain.IngestTaskPayload
	err       error
}

func (f *fakeQueue) EnqueueGenerate(_ domain.Context, p domain.GenerateTaskPayload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.generated = append(f.generated, p)
	return p.JobID, nil
}

func (f *fakeQueue) EnqueueIngest(_ domain.Context, p domain.IngestTaskPayload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.ingested = append(f.ingested, p)
	return p.DocumentID, nil
}

type fakeEvents struct {
	published []string
}

func (f *fakeEvents) Publish(_ domain.Context, _ string, event string, _ any) error {
	f.published = append(f.published, event)
	return nil
}

func twoLevelDictionary() domain.Dictionary {
	return domain.Dictionary{
		ID:   "dict-1",
		Name: "Core Framework",
		Competencies: []domain.Competency{
			{Name: "Problem Solving", Levels: []domain.CompetencyLevel{
				{Level: 1, Definition: "Recognizes problems", KeyBehaviors: []string{"Identifies the core problem"}},
				{Level: 2, Definition: "Analyzes problems", KeyBehaviors: []string{"Breaks problems into parts"}},
			}},
		},
		CreatedAt: time.Now().UTC(),
	}
}
