// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0640))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.75, cfg.SimilarityThreshold)
	assert.Equal(t, 0.6, cfg.KeywordWeight)
	assert.Equal(t, 0.95, cfg.MinWordRatio)
	assert.Equal(t, PrioritizeHigh, cfg.ConflictResolution)
	assert.True(t, cfg.PreserveThesis)
	assert.False(t, cfg.AllowRestructure)
	assert.Equal(t, 5*time.Second, cfg.OracleTimeout)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
similarity_threshold: 0.6
conflict_resolution: manual
min_word_ratio: 0.9
augment_only_mode: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.SimilarityThreshold)
	assert.Equal(t, Manual, cfg.ConflictResolution)
	assert.Equal(t, 0.9, cfg.MinWordRatio)
	assert.True(t, cfg.AugmentOnlyMode)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.ContextWindow)
}

func TestLoad_UnknownKeyFails(t *testing.T) {
	path := writeConfig(t, "similarity_treshold: 0.6\n")
	_, err := Load(path)
	require.Error(t, err, "typoed keys must fail at load, not be ignored")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ratio above one", func(c *Config) { c.MinWordRatio = 1.2 }},
		{"ratio zero", func(c *Config) { c.MinWordRatio = 0 }},
		{"negative min total", func(c *Config) { c.MinTotalWords = -5 }},
		{"zero context window", func(c *Config) { c.ContextWindow = 0 }},
		{"zero parallel limit", func(c *Config) { c.ParallelLimit = 0 }},
		{"bad resolution", func(c *Config) { c.ConflictResolution = "loudest_wins" }},
		{"negative timeout", func(c *Config) { c.OracleTimeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEffectiveFloors(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 0.95, cfg.EffectiveMinRatio(0), "zero brief ratio keeps config")
	assert.Equal(t, 0.9, cfg.EffectiveMinRatio(0.9), "brief ratio wins")

	assert.Equal(t, 0, cfg.EffectiveMinTotal(0))
	assert.Equal(t, 5000, cfg.EffectiveMinTotal(5000))

	cfg.MinTotalWords = 3000
	assert.Equal(t, 3000, cfg.EffectiveMinTotal(0))
	assert.Equal(t, 5000, cfg.EffectiveMinTotal(5000))
}
