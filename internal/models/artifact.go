package models

import (
	"fmt"
	"time"
)

// ArtifactKind distinguishes the two predictor families
type ArtifactKind string

const (
	KindTabular  ArtifactKind = "classifier"
	KindSequence ArtifactKind = "sequence"
)

// ArtifactKey identifies a trained artifact
type ArtifactKey struct {
	UserID string       `json:"user_id"`
	Target Target       `json:"target"`
	Kind   ArtifactKind `json:"kind"`
}

// Name is the artifact's file stem, e.g. classifier_gut
func (k ArtifactKey) Name() string {
	return fmt.Sprintf("%s_%s", k.Kind, k.Target)
}

func (k ArtifactKey) String() string {
	return fmt.Sprintf("%s/%s", k.UserID, k.Name())
}

// ArtifactMetadata travels with every saved artifact
type ArtifactMetadata struct {
	Key          ArtifactKey        `json:"key"`
	ModelType    string             `json:"model_type"`
	FeatureNames []string           `json:"feature_names"`
	Metrics      map[string]float64 `json:"metrics"`
	TrainRows    int                `json:"train_rows"`
	Positives    int                `json:"positives"`
	Version      string             `json:"version"`
	Checksum     string             `json:"checksum"`
	SizeBytes    int64              `json:"size_bytes"`
	TrainedAt    time.Time          `json:"trained_at"`
}

// ModelVersion mirrors a row of the model_versions table
type ModelVersion struct {
	ID        int64              `json:"id" db:"model_id"`
	UserID    string             `json:"user_id" db:"user_id"`
	ModelType ArtifactKind       `json:"model_type" db:"model_type"`
	Target    Target             `json:"target" db:"target"`
	Version   string             `json:"version" db:"version"`
	ModelPath string             `json:"model_path" db:"model_path"`
	Metrics   map[string]float64 `json:"metrics" db:"metrics_json"`
	IsActive  bool               `json:"is_active" db:"is_active"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
}
