package memory

import (
	"NCDEarlyDetect/internal/models"
	"NCDEarlyDetect/internal/storage"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SeedAndList(t *testing.T) {
	s := NewStore(true)

	all, err := s.ListCases("")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "CASE-002", all[0].ID, "較新的病例應排在前面")

	pending, err := s.ListCases(models.CaseStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "A. Nakato", pending[0].PatientName)

	empty := NewStore(false)
	none, err := empty.ListCases("")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_CaseLifecycle(t *testing.T) {
	s := NewStore(false)
	c := &models.PatientCase{ID: "CASE-100", PatientID: "UG-1", Modality: models.ModalityPNG, Status: models.CaseStatusPending, Timestamp: time.Now()}
	require.NoError(t, s.CreateCase(c))
	assert.Error(t, s.CreateCase(c), "重複 ID 應失敗")

	conf := 0.42
	require.NoError(t, s.UpdateCaseStatus("CASE-100", models.CaseStatusAnalyzed, models.NewJsonNullString("Normal"), &conf))
	got, err := s.GetCase("CASE-100")
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusAnalyzed, got.Status)
	assert.Equal(t, "Normal", got.Findings.String)
	assert.Equal(t, 0.42, *got.Confidence)

	_, err = s.GetCase("CASE-404")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.UpdateCaseStatus("CASE-404", models.CaseStatusFailed, models.JsonNullString{}, nil), storage.ErrNotFound)
}

func TestStore_AnalysisResultsAreCopied(t *testing.T) {
	s := NewStore(false)
	result := &models.AnalysisResult{CaseID: "CASE-1", Classification: "Normal", Confidence: 0.3, Recommendations: []string{"Rest"}}
	require.NoError(t, s.SaveAnalysisResult(result))
	result.Recommendations[0] = "mutated"

	got, err := s.GetAnalysisResult("CASE-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Rest"}, got.Recommendations)

	_, err = s.GetAnalysisResult("CASE-2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Error(t, s.SaveAnalysisResult(&models.AnalysisResult{}))
}
