package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/genre-sonar/pkg/audio/config"
	"github.com/RyanBlaney/genre-sonar/pkg/audio/extractors"
	"github.com/RyanBlaney/genre-sonar/pkg/common"
)

// Encoding is the on-disk serialization of an artifact
type Encoding string

const (
	EncodingJSON    Encoding = "json"
	EncodingYAML    Encoding = "yaml"
	EncodingMsgpack Encoding = "msgpack"
)

// EncodingForPath picks the encoding from the file extension
func EncodingForPath(path string) (Encoding, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return EncodingJSON, nil
	case ".yaml", ".yml":
		return EncodingYAML, nil
	case ".msgpack", ".mp":
		return EncodingMsgpack, nil
	}
	return "", fmt.Errorf("unknown artifact extension %q, expected .json, .yaml, .yml, .msgpack or .mp", filepath.Ext(path))
}

// ExtractorParams records the analysis parameters an artifact was fitted with
type ExtractorParams struct {
	SampleRate       int `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty" msgpack:"sample_rate,omitempty"`
	WindowSize       int `json:"window_size,omitempty" yaml:"window_size,omitempty" msgpack:"window_size,omitempty"`
	HopSize          int `json:"hop_size,omitempty" yaml:"hop_size,omitempty" msgpack:"hop_size,omitempty"`
	MFCCCoefficients int `json:"mfcc_coefficients,omitempty" yaml:"mfcc_coefficients,omitempty" msgpack:"mfcc_coefficients,omitempty"`
}

// Header is the schema block shared by the scaler and classifier artifacts
type Header struct {
	SchemaVersion int              `json:"schema_version" yaml:"schema_version" msgpack:"schema_version"`
	FeatureCount  int              `json:"feature_count" yaml:"feature_count" msgpack:"feature_count"`
	FeatureNames  []string         `json:"feature_names,omitempty" yaml:"feature_names,omitempty" msgpack:"feature_names,omitempty"`
	Extractor     *ExtractorParams `json:"extractor,omitempty" yaml:"extractor,omitempty" msgpack:"extractor,omitempty"`
}

// CurrentHeader returns a header describing the running feature schema
func CurrentHeader(cfg *config.FeatureConfig) Header {
	h := Header{
		SchemaVersion: extractors.SchemaVersion,
		FeatureCount:  extractors.FeatureCount,
		FeatureNames:  extractors.FeatureNames(),
	}
	if cfg != nil {
		h.Extractor = &ExtractorParams{
			SampleRate:       cfg.SampleRate,
			WindowSize:       cfg.WindowSize,
			HopSize:          cfg.HopSize,
			MFCCCoefficients: cfg.MFCCCoefficients,
		}
	}
	return h
}

// Validate checks the header against the running feature schema and config.
// Optional fields are only compared when present.
func (h Header) Validate(cfg *config.FeatureConfig) error {
	if h.SchemaVersion != extractors.SchemaVersion {
		return fmt.Errorf("schema version %d, expected %d", h.SchemaVersion, extractors.SchemaVersion)
	}
	if h.FeatureCount != extractors.FeatureCount {
		return fmt.Errorf("feature count %d, expected %d", h.FeatureCount, extractors.FeatureCount)
	}
	if len(h.FeatureNames) > 0 && !slices.Equal(h.FeatureNames, extractors.FeatureNames()) {
		return fmt.Errorf("feature names do not match schema v%d", extractors.SchemaVersion)
	}

	if h.Extractor == nil || cfg == nil {
		return nil
	}
	e := h.Extractor
	if e.SampleRate != 0 && e.SampleRate != cfg.SampleRate {
		return fmt.Errorf("fitted at sample rate %d, configured %d", e.SampleRate, cfg.SampleRate)
	}
	if e.WindowSize != 0 && e.WindowSize != cfg.WindowSize {
		return fmt.Errorf("fitted with window size %d, configured %d", e.WindowSize, cfg.WindowSize)
	}
	if e.HopSize != 0 && e.HopSize != cfg.HopSize {
		return fmt.Errorf("fitted with hop size %d, configured %d", e.HopSize, cfg.HopSize)
	}
	if e.MFCCCoefficients != 0 && e.MFCCCoefficients != cfg.MFCCCoefficients {
		return fmt.Errorf("fitted with %d MFCC coefficients, configured %d", e.MFCCCoefficients, cfg.MFCCCoefficients)
	}
	return nil
}

// ReadArtifact decodes the file at path into v, choosing the codec by
// extension. Every failure is a StartupError.
func ReadArtifact(path string, v any) error {
	enc, err := EncodingForPath(path)
	if err != nil {
		return common.NewStartupError(fmt.Sprintf("cannot load artifact %s", path), err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return common.NewStartupError(fmt.Sprintf("cannot read artifact %s", path), err)
	}

	if err := Unmarshal(enc, data, v); err != nil {
		return common.NewStartupError(fmt.Sprintf("cannot decode artifact %s", path), err)
	}
	return nil
}

// WriteArtifact encodes v to path using the codec implied by the extension
func WriteArtifact(path string, v any) error {
	enc, err := EncodingForPath(path)
	if err != nil {
		return err
	}

	data, err := Marshal(enc, v)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// Unmarshal decodes data with the given encoding. Unknown JSON fields are
// rejected so typos in hand-edited artifacts do not pass silently.
func Unmarshal(enc Encoding, data []byte, v any) error {
	switch enc {
	case EncodingJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	case EncodingYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		return dec.Decode(v)
	case EncodingMsgpack:
		return msgpack.Unmarshal(data, v)
	}
	return fmt.Errorf("unsupported encoding %q", enc)
}

// Marshal encodes v with the given encoding
func Marshal(enc Encoding, v any) ([]byte, error) {
	switch enc {
	case EncodingJSON:
		return json.MarshalIndent(v, "", "  ")
	case EncodingYAML:
		return yaml.Marshal(v)
	case EncodingMsgpack:
		return msgpack.Marshal(v)
	}
	return nil, fmt.Errorf("unsupported encoding %q", enc)
}
