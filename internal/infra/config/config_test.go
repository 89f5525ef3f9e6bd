package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"audit-rag/internal/infra/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "9010", cfg.HTTPPort)
	assert.Equal(t, 150, cfg.FindingsTopKLex)
	assert.Equal(t, 300, cfg.ChunksFinalTopN)
	assert.Equal(t, 0.65, cfg.VectorScoreThresholdMulti)
	assert.Equal(t, 2, cfg.MaxBlocksPerDoc)
	assert.Equal(t, 4000, cfg.ContextTokenBudget)
	assert.True(t, cfg.ContextMergeAdjacent)
	assert.Equal(t, 90, cfg.QueryDeadlineSeconds)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("FINDINGS_TOP_K_LEX", "75")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.6")
	t.Setenv("CONTEXT_MERGE_ADJACENT", "false")
	t.Setenv("FINDINGS_RRF_K", "not-a-number")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 75, cfg.FindingsTopKLex)
	assert.Equal(t, 0.6, cfg.ConfidenceThreshold)
	assert.False(t, cfg.ContextMergeAdjacent)
	assert.Equal(t, 60.0, cfg.FindingsRRFK, "unparsable values fall back to the default")
}

func TestLoad_SecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical_pass")
	if err := os.WriteFile(path, []byte("s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEXICAL_PASS_FILE", path)

	cfg := config.Load()
	assert.Equal(t, "s3cret", cfg.LexicalPass)
}

func TestLoad_SecretEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical_pass")
	if err := os.WriteFile(path, []byte("from-file"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEXICAL_PASS", "from-env")
	t.Setenv("LEXICAL_PASS_FILE", path)

	cfg := config.Load()
	assert.Equal(t, "from-env", cfg.LexicalPass)
}
