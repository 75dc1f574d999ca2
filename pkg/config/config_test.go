package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_ScanConfig(t *testing.T) {
	// Setup environment variables
	os.Setenv("SCAN_MATCH_THRESHOLD", "0.5")
	os.Setenv("SCAN_TOP_K", "15")
	os.Setenv("SCAN_PACING_BETWEEN_TERMS", "250ms")
	defer func() {
		os.Unsetenv("SCAN_MATCH_THRESHOLD")
		os.Unsetenv("SCAN_TOP_K")
		os.Unsetenv("SCAN_PACING_BETWEEN_TERMS")
	}()

	// Load config
	cfg, err := Load()
	assert.NoError(t, err)

	// Verify scan config
	assert.Equal(t, 0.5, cfg.Scan.MatchThreshold)
	assert.Equal(t, 15, cfg.Scan.TopK)
	assert.Equal(t, 250*time.Millisecond, cfg.Scan.BetweenSearchTerms)
}

func TestLoad_Defaults(t *testing.T) {
	// Ensure env vars are cleared
	os.Unsetenv("SCAN_MATCH_THRESHOLD")
	os.Unsetenv("SCAN_MIN_SIMILARITY")
	os.Unsetenv("SCAN_CONTEXT_WEIGHT")
	os.Unsetenv("EMBEDDINGS_BATCH_SIZE")

	cfg, err := Load()
	assert.NoError(t, err)

	// Verify defaults
	assert.Equal(t, 0.45, cfg.Scan.MatchThreshold)
	assert.Equal(t, 0.25, cfg.Scan.MinSimilarity)
	assert.Equal(t, 0.20, cfg.Scan.ContextWeight)
	assert.Equal(t, 2*time.Second, cfg.Scan.BetweenUsers)
	assert.Equal(t, 100, cfg.Embeddings.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.TickInterval)
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	os.Setenv("SCAN_PACING_BETWEEN_USERS", "not-a-duration")
	defer os.Unsetenv("SCAN_PACING_BETWEEN_USERS")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Scan.BetweenUsers)
}
