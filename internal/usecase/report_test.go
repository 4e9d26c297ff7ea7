package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentforge/assessor/internal/domain"
)

func TestReportCreate(t *testing.T) {
	t.Parallel()

	svc := NewReportService(newFakeReports(), newFakeDicts(twoLevelDictionary()))

	id, err := svc.Create(context.Background(), domain.Report{
		Title:        "Q3 Leadership Assessment",
		DictionaryID: "dict-1",
		TargetLevels: map[string]int{"Problem Solving": 2},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestReportCreateValidation(t *testing.T) {
	t.Parallel()

	svc := NewReportService(newFakeReports(), newFakeDicts(twoLevelDictionary()))

	cases := map[string]domain.Report{
		"empty title":         {DictionaryID: "dict-1"},
		"missing dictionary":  {Title: "t", DictionaryID: ""},
		"unknown competency":  {Title: "t", DictionaryID: "dict-1", TargetLevels: map[string]int{"Negotiation": 1}},
		"target above ladder": {Title: "t", DictionaryID: "dict-1", TargetLevels: map[string]int{"Problem Solving": 3}},
		"target below ladder": {Title: "t", DictionaryID: "dict-1", TargetLevels: map[string]int{"Problem Solving": 0}},
	}
	for name, report := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), report)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestReportCreateUnknownDictionary(t *testing.T) {
	t.Parallel()

	svc := NewReportService(newFakeReports(), newFakeDicts())
	_, err := svc.Create(context.Background(), domain.Report{Title: "t", DictionaryID: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
