package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/answer"
	"github.com/Aman-CERP/amanrag/internal/search"
)

func TestQueryCmd_RequiresQuery(t *testing.T) {
	_, err := execute(t, "", "query")

	require.Error(t, err)
}

func TestQueryCmd_MissingCorpus(t *testing.T) {
	// Given: an empty project directory
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	// When: querying
	_, err := execute(t, "", "query", "-C", dir, "anything")

	// Then: the corpus error surfaces
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no corpus source found")
}

func TestQueryCmd_JSON(t *testing.T) {
	// Given: a bm25-only project
	dir := setupProject(t)

	// When: querying with JSON output
	out, err := execute(t, "", "query", "-C", dir, "-k", "2", "--format", "json", "liveness", "probe")
	require.NoError(t, err)

	// Then: the ranked result is decodable
	var got queryOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "liveness probe", got.Query)
	assert.Equal(t, 2, got.TopK)
	assert.Equal(t, search.ModeBM25Only, got.Mode)
	require.NotEmpty(t, got.Hits)
	assert.LessOrEqual(t, len(got.Hits), 2)
	assert.Equal(t, "c1", got.Hits[0].ChunkID)
	assert.Empty(t, got.Degradation)
}

func TestQueryCmd_Text(t *testing.T) {
	dir := setupProject(t)

	out, err := execute(t, "", "query", "-C", dir, "vacuum")

	require.NoError(t, err)
	assert.Contains(t, out, `Results for "vacuum"`)
	assert.Contains(t, out, "mode bm25-only")
	assert.Contains(t, out, "c3")
	assert.NotContains(t, out, "\x1b[")
}

func TestQueryCmd_InvalidRange(t *testing.T) {
	dir := setupProject(t)

	_, err := execute(t, "", "query", "-C", dir, "--min-score", "1.5", "vacuum")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_score")
}

func TestQueryCmd_UnknownFormat(t *testing.T) {
	_, err := execute(t, "", "query", "--format", "xml", "vacuum")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestAskCmd_NoGenerateJSON(t *testing.T) {
	// Given: a project with generation disabled
	dir := setupProject(t)

	// When: asking
	out, err := execute(t, "", "ask", "-C", dir, "--format", "json", "why do pods restart on liveness probe failure")
	require.NoError(t, err)

	// Then: the generator is never called
	var got answer.Result
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Contains(t, []string{answer.GenerationDisabled, answer.InsufficientInformation}, got.Answer)
	assert.Equal(t, search.ModeBM25Only, got.Retrieval.Mode)
	if got.Retrieval.ShouldAnswer {
		assert.NotEmpty(t, got.Citations)
	}
}

func TestAskCmd_UnrelatedQuestionDeclines(t *testing.T) {
	dir := setupProject(t)

	out, err := execute(t, "", "ask", "-C", dir, "quantum chromodynamics")

	require.NoError(t, err)
	assert.Contains(t, out, answer.InsufficientInformation)
	assert.Contains(t, out, "gate decline")
}

func TestRequestOverrides_Apply(t *testing.T) {
	cfg := search.Config{TopK: 5, MinScore: 0.3, CandidatePool: 20}
	k, pool, minScore := 30, 40, 0.5

	tests := []struct {
		name     string
		o        requestOverrides
		wantK    int
		wantPool int
		wantMin  float64
	}{
		{"defaults", requestOverrides{}, 5, 20, 0.3},
		{"top_k lifts pool", requestOverrides{topK: &k}, 30, 30, 0.3},
		{"explicit pool wins", requestOverrides{topK: &k, candidatePool: &pool}, 30, 40, 0.3},
		{"min score", requestOverrides{minScore: &minScore}, 5, 20, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.o.apply(cfg, "q")
			assert.Equal(t, "q", req.Query)
			assert.Equal(t, tt.wantK, req.TopK)
			assert.Equal(t, tt.wantPool, req.CandidatePool)
			assert.Equal(t, tt.wantMin, req.MinScore)
		})
	}
}
