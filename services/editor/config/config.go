// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config defines the flat configuration surface consumed by
// every pipeline stage.
//
// All options are enumerated here with explicit defaults. YAML loading
// is strict: unknown keys fail at session start instead of being
// silently ignored at point of use.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Resolution selects the conflict resolution policy for intents that
// target the same span.
type Resolution string

const (
	// PrioritizeHigh keeps the conflicting intent with the highest
	// priority; ties break on alignment confidence, then comment id.
	PrioritizeHigh Resolution = "prioritize_high"

	// PrioritizeConfidence ranks by alignment confidence first.
	PrioritizeConfidence Resolution = "prioritize_confidence"

	// Manual rejects every conflicting intent for human review.
	Manual Resolution = "manual"
)

// Config is the complete option set for one revision session.
type Config struct {
	// SimilarityThreshold is the minimum blended score for a comment
	// to align to a span.
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gte=0,lte=1"`

	// KeywordWeight blends the lexical and semantic scores:
	// keyword_weight*lexical + (1-keyword_weight)*semantic.
	KeywordWeight float64 `yaml:"keyword_weight" validate:"gte=0,lte=1"`

	// ContextWindow is the maximum spans a comment may align to, so a
	// comment can affect a short contiguous neighborhood.
	ContextWindow int `yaml:"context_window" validate:"gte=1"`

	// MaxEditsPerSpan caps composed growth edits on one span.
	MaxEditsPerSpan int `yaml:"max_edits_per_span" validate:"gte=1"`

	// ConflictResolution selects the resolution policy.
	ConflictResolution Resolution `yaml:"conflict_resolution"`

	// MinWordRatio is the floor on final/original total word count.
	// The vision brief may override it per session.
	MinWordRatio float64 `yaml:"min_word_ratio" validate:"gt=0,lte=1"`

	// MinTotalWords, when > 0, is an absolute floor on the final word
	// count. Zero disables the absolute check; the ratio is always on.
	MinTotalWords int `yaml:"min_total_words" validate:"gte=0"`

	// SemanticSimilarityThreshold flags a modified span as risky when
	// original/new similarity falls below it.
	SemanticSimilarityThreshold float64 `yaml:"semantic_similarity_threshold" validate:"gte=0,lte=1"`

	// PreserveThesis enables rollback of risky edits on spans that
	// carry the thesis or a claim.
	PreserveThesis bool `yaml:"preserve_thesis"`

	// AugmentOnlyMode rejects every replace intent outright.
	AugmentOnlyMode bool `yaml:"augment_only_mode"`

	// AllowRestructure is the explicit override required before a
	// restructure comment may plan a replace; without it the planner
	// degrades restructure to expand with a restructuring note.
	AllowRestructure bool `yaml:"allow_restructure"`

	// InsertAsNewSpans models insert_after edits as new spans with
	// fractional order keys instead of trailing text on the target.
	InsertAsNewSpans bool `yaml:"insert_as_new_spans"`

	// OracleTimeout bounds each similarity oracle call; on timeout the
	// caller falls back to the lexical-only score.
	OracleTimeout time.Duration `yaml:"oracle_timeout"`

	// ParallelLimit bounds concurrent scoring workers per stage.
	ParallelLimit int `yaml:"parallel_limit" validate:"gte=1"`
}

// Default returns the documented defaults for every option.
func Default() Config {
	return Config{
		SimilarityThreshold:         0.75,
		KeywordWeight:               0.6,
		ContextWindow:               3,
		MaxEditsPerSpan:             3,
		ConflictResolution:          PrioritizeHigh,
		MinWordRatio:                0.95,
		MinTotalWords:               0,
		SemanticSimilarityThreshold: 0.8,
		PreserveThesis:              true,
		AugmentOnlyMode:             false,
		AllowRestructure:            false,
		InsertAsNewSpans:            false,
		OracleTimeout:               5 * time.Second,
		ParallelLimit:               8,
	}
}

// Load reads a YAML config file over the defaults.
//
// Decoding is strict: unknown keys are an error so typos surface at
// session start.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks option ranges and enum values.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("config field %s failed %s", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("validating config: %w", err)
	}
	switch c.ConflictResolution {
	case PrioritizeHigh, PrioritizeConfidence, Manual:
	default:
		return fmt.Errorf("unknown conflict_resolution %q", c.ConflictResolution)
	}
	if c.OracleTimeout < 0 {
		return fmt.Errorf("negative oracle_timeout")
	}
	return nil
}

// EffectiveMinRatio resolves the word-ratio floor for a session,
// preferring the brief's value when set.
func (c Config) EffectiveMinRatio(briefRatio float64) float64 {
	if briefRatio > 0 {
		return briefRatio
	}
	return c.MinWordRatio
}

// EffectiveMinTotal resolves the absolute word floor for a session.
func (c Config) EffectiveMinTotal(briefTotal int) int {
	if briefTotal > 0 {
		return briefTotal
	}
	return c.MinTotalWords
}
