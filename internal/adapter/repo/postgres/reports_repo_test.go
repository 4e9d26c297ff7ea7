package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentforge/assessor/internal/adapter/repo/postgres"
	"github.com/talentforge/assessor/internal/domain"
)

func TestReportRepoCreate(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execTag: affected(1)}
	repo := postgres.NewReportRepo(pool)

	id, err := repo.Create(context.Background(), domain.Report{
		Title:        "Backend assessment",
		CreatedBy:    "user-1",
		DictionaryID: "dict-1",
		TargetLevels: map[string]int{"Problem Solving": 3},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, pool.execArgs, 1)
	assert.Equal(t, "Backend assessment", pool.execArgs[0][1])
	// A fresh report starts in created with no active job.
	assert.Equal(t, domain.ReportCreated, pool.execArgs[0][5])
}

func TestReportRepoCreateExecError(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execErr: assert.AnError}
	repo := postgres.NewReportRepo(pool)

	_, err := repo.Create(context.Background(), domain.Report{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=report.create")
}

func TestReportRepoGetNotFound(t *testing.T) {
	t.Parallel()
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewReportRepo(pool)

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReportRepoGetDecodesTargetLevels(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*dest[0].(*string) = "rep-1"
		*dest[1].(*string) = "Backend assessment"
		*dest[2].(*string) = "proj-1"
		*dest[3].(*string) = "user-1"
		*dest[4].(*string) = "dict-1"
		*dest[5].(*domain.ReportStatus) = domain.ReportProcessing
		*dest[6].(*[]byte) = []byte(`{"Problem Solving":3}`)
		*dest[7].(*string) = ""
		*dest[8].(*string) = "job-1"
		*dest[9].(*string) = ""
		*dest[10].(*time.Time) = now
		*dest[11].(*time.Time) = now
		return nil
	}}}
	repo := postgres.NewReportRepo(pool)

	rep, err := repo.Get(context.Background(), "rep-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReportProcessing, rep.Status)
	assert.Equal(t, "job-1", rep.ActiveJobID)
	assert.Equal(t, map[string]int{"Problem Solving": 3}, rep.TargetLevels)
}

func TestReportRepoUpdateStatusNotFound(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execTag: affected(0)}
	repo := postgres.NewReportRepo(pool)

	err := repo.UpdateStatus(context.Background(), "missing", domain.ReportFailed, nil)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReportRepoSetActiveJob(t *testing.T) {
	t.Parallel()
	pool := &poolStub{execTag: affected(1)}
	repo := postgres.NewReportRepo(pool)

	require.NoError(t, repo.SetActiveJob(context.Background(), "rep-1", "job-9"))
	require.Len(t, pool.execArgs, 1)
	assert.Equal(t, "job-9", pool.execArgs[0][1])
	assert.Equal(t, domain.ReportProcessing, pool.execArgs[0][2])
}

func TestReportRepoListStuckProcessing(t *testing.T) {
	t.Parallel()
	scanID := func(id string) func(dest ...any) error {
		return func(dest ...any) error {
			*dest[0].(*string) = id
			return nil
		}
	}
	pool := &poolStub{rows: &rowsStub{scans: []func(dest ...any) error{scanID("rep-1"), scanID("rep-2")}}}
	repo := postgres.NewReportRepo(pool)

	ids, err := repo.ListStuckProcessing(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"rep-1", "rep-2"}, ids)
}
