package models

import "time"

// PredictionSet is the result of scoring one user for one day
type PredictionSet struct {
	UserID          string                        `json:"user_id"`
	Date            string                        `json:"date"`
	Kind            ArtifactKind                  `json:"model_type"`
	Predictions     map[Target]float64            `json:"predictions"`
	Explanations    map[Target]map[string]float64 `json:"explanations,omitempty"`
	Confidence      map[Target]float64            `json:"confidence,omitempty"`
	Recommendations []string                      `json:"recommendations,omitempty"`
	GeneratedAt     time.Time                     `json:"generated_at"`
}

// Empty reports whether no target could be scored
func (p *PredictionSet) Empty() bool {
	return p == nil || len(p.Predictions) == 0
}

// PredictionRecord mirrors a row of the predictions table
type PredictionRecord struct {
	ID          int64              `json:"id" db:"prediction_id"`
	UserID      string             `json:"user_id" db:"user_id"`
	Date        string             `json:"date" db:"date"`
	ModelType   ArtifactKind       `json:"model_type" db:"model_type"`
	Target      Target             `json:"target" db:"target"`
	Prediction  float64            `json:"prediction" db:"prediction"`
	Confidence  float64            `json:"confidence" db:"confidence"`
	Explanation map[string]float64 `json:"explanation,omitempty" db:"explanation_json"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
}

// TrainingJobStatus is the lifecycle state of a background training job
type TrainingJobStatus string

const (
	JobQueued    TrainingJobStatus = "queued"
	JobRunning   TrainingJobStatus = "running"
	JobCompleted TrainingJobStatus = "completed"
	JobFailed    TrainingJobStatus = "failed"
)

// TrainingJob describes a queued or finished training request
type TrainingJob struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Targets     []Target          `json:"targets"`
	Status      TrainingJobStatus `json:"status"`
	Error       string            `json:"error,omitempty"`
	Report      *TrainingReport   `json:"report,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
}

// TrainingReport lists what a training run produced and what it skipped
type TrainingReport struct {
	UserID    string             `json:"user_id"`
	Trained   []TrainedModel     `json:"trained"`
	Skipped   []SkippedTarget    `json:"skipped"`
	Rows      int                `json:"rows"`
	Sequences int                `json:"sequences"`
	Duration  time.Duration      `json:"duration_ns"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// TrainedModel is one persisted artifact from a training run
type TrainedModel struct {
	Key       ArtifactKey        `json:"key"`
	ModelType string             `json:"model_type"`
	Metrics   map[string]float64 `json:"metrics"`
}

// SkippedTarget records why a target produced no artifact
type SkippedTarget struct {
	Target Target       `json:"target"`
	Kind   ArtifactKind `json:"kind"`
	Reason string       `json:"reason"`
}
