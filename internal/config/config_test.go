package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRetrievalDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RETRIEVAL_TOP_K", "")
	t.Setenv("RETRIEVAL_CANDIDATE_POOL", "")
	t.Setenv("RETRIEVAL_MMR_LAMBDA", "")
	t.Setenv("RETRIEVAL_MIN_SCORE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetrievalTopK != 5 {
		t.Fatalf("expected default top k 5, got %d", cfg.RetrievalTopK)
	}
	if cfg.RetrievalCandidatePool != 30 {
		t.Fatalf("expected default candidate pool 30, got %d", cfg.RetrievalCandidatePool)
	}
	if cfg.RetrievalMMRLambda != 0.7 {
		t.Fatalf("expected default mmr lambda 0.7, got %v", cfg.RetrievalMMRLambda)
	}
	if cfg.RetrievalMinScore != 0.25 {
		t.Fatalf("expected default min score 0.25, got %v", cfg.RetrievalMinScore)
	}
}

func TestLoadParsesEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RETRIEVAL_TOP_K", "8")
	t.Setenv("RETRIEVAL_MMR_LAMBDA", "0.4")
	t.Setenv("RATE_LIMIT_RPS", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetrievalTopK != 8 {
		t.Fatalf("expected top k override 8, got %d", cfg.RetrievalTopK)
	}
	if cfg.RetrievalMMRLambda != 0.4 {
		t.Fatalf("expected mmr lambda override 0.4, got %v", cfg.RetrievalMMRLambda)
	}
	if cfg.RateLimitRPS != 10 {
		t.Fatalf("expected rate limit override 10, got %d", cfg.RateLimitRPS)
	}
}

func TestLoadAppliesFileOverlayUnderEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("retrieval_top_k: 9\ncontext_max_tokens: 2000\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RETRIEVAL_TOP_K", "3")
	t.Setenv("CONTEXT_MAX_TOKENS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetrievalTopK != 3 {
		t.Fatalf("environment must win over file, got %d", cfg.RetrievalTopK)
	}
	if cfg.ContextMaxTokens != 2000 {
		t.Fatalf("file must win over defaults, got %d", cfg.ContextMaxTokens)
	}
}

func TestLoadRejectsUnreadableConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
