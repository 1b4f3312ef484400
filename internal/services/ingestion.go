package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/irfndi/healthcast-go/internal/utils"
)

// Data types accepted by Ingest
const (
	DataTypeDailyLog = "daily_log"
	DataTypeSymptom  = "symptom"
	DataTypeMeal     = "meal"
	DataTypeSleep    = "sleep"
	DataTypeWorkout  = "workout"
	DataTypeVital    = "vital"
	DataTypeJournal  = "journal"
)

// futureTolerance absorbs client clock skew on event timestamps
const futureTolerance = 5 * time.Minute

// EventWriter persists raw telemetry
type EventWriter interface {
	UpsertDailyLog(ctx context.Context, log *models.DailyLog) error
	InsertSymptom(ctx context.Context, s *models.Symptom) error
	InsertMeal(ctx context.Context, m *models.Meal) error
	InsertSleepSession(ctx context.Context, s *models.SleepSession) error
	InsertWorkout(ctx context.Context, w *models.Workout) error
	UpsertVital(ctx context.Context, v *models.Vital) error
	InsertJournal(ctx context.Context, j *models.Journal) error
}

// UserEnsurer creates a user row on first contact
type UserEnsurer interface {
	EnsureUser(ctx context.Context, userID string) error
}

// IngestRequest is one raw telemetry record
type IngestRequest struct {
	UserID   string          `json:"user_id" binding:"required,max=128"`
	DataType string          `json:"data_type" binding:"required"`
	Data     json.RawMessage `json:"data" binding:"required"`
}

// IngestionService validates and stores raw telemetry
type IngestionService struct {
	events EventWriter
	users  UserEnsurer
	logger *logrus.Logger
	now    func() time.Time
}

// NewIngestionService creates an ingestion service
func NewIngestionService(events EventWriter, users UserEnsurer, logger *logrus.Logger) *IngestionService {
	if logger == nil {
		logger = logrus.New()
	}
	return &IngestionService{events: events, users: users, logger: logger, now: time.Now}
}

// Ingest validates req.Data for its data type and writes it. Invalid input
// is reported as a *utils.ValidationError.
func (s *IngestionService) Ingest(ctx context.Context, req IngestRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return utils.NewFieldError("user_id", "is required")
	}

	store, err := s.prepare(req)
	if err != nil {
		return err
	}

	if err := s.users.EnsureUser(ctx, req.UserID); err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	if err := store(ctx); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":   req.UserID,
		"data_type": req.DataType,
	}).Debug("Ingested record")
	return nil
}

// prepare decodes and validates the payload, returning the write to perform
func (s *IngestionService) prepare(req IngestRequest) (func(context.Context) error, error) {
	switch req.DataType {
	case DataTypeDailyLog:
		var v models.DailyLog
		if err := s.decode(req, &v); err != nil {
			return nil, err
		}
		v.UserID = req.UserID
		return func(ctx context.Context) error { return s.events.UpsertDailyLog(ctx, &v) }, nil

	case DataTypeSymptom:
		var v models.Symptom
		if err := s.decode(req, &v); err != nil {
			return nil, err
		}
		v.UserID = req.UserID
		return func(ctx context.Context) error { return s.events.InsertSymptom(ctx, &v) }, nil

	case DataTypeMeal:
		var v models.Meal
		if err := s.decode(req, &v); err != nil {
			return nil, err
		}
		if err := s.notFuture("ts", v.Timestamp); err != nil {
			return nil, err
		}
		v.UserID = req.UserID
		return func(ctx context.Context) error { return s.events.InsertMeal(ctx, &v) }, nil

	case DataTypeSleep:
		var v models.SleepSession
		if err := s.decode(req, &v); err != nil {
			return nil, err
		}
		if !v.EndTime.After(v.StartTime) {
			return nil, utils.NewFieldError("end_time", "must be after start_time")
		}
		if err := s.notFuture("end_time", v.EndTime); err != nil {
			return nil, err
		}
		v.UserID = req.UserID
		return func(ctx context.Context) error { return s.events.InsertSleepSession(ctx, &v) }, nil

	case DataTypeWorkout:
		var v models.Workout
		if err := s.decode(req, &v); err != nil {
			return nil, err
		}
		if err := s.notFuture("ts", v.Timestamp); err != nil {
			return nil, err
		}
		v.UserID = req.UserID
		return func(ctx context.Context) error { return s.events.InsertWorkout(ctx, &v) }, nil

	case DataTypeVital:
		var v models.Vital
		if err := s.decode(req, &v); err != nil {
			return nil, err
		}
		v.UserID = req.UserID
		return func(ctx context.Context) error { return s.events.UpsertVital(ctx, &v) }, nil

	case DataTypeJournal:
		var v models.Journal
		if err := s.decode(req, &v); err != nil {
			return nil, err
		}
		if err := s.notFuture("ts", v.Timestamp); err != nil {
			return nil, err
		}
		v.UserID = req.UserID
		return func(ctx context.Context) error { return s.events.InsertJournal(ctx, &v) }, nil

	default:
		return nil, utils.NewFieldError("data_type", fmt.Sprintf("unsupported value %q", req.DataType))
	}
}

// decode strictly unmarshals data into dst and runs the binding validator
func (s *IngestionService) decode(req IngestRequest, dst interface{}) error {
	if len(req.Data) == 0 {
		return utils.NewFieldError("data", "is required")
	}
	dec := json.NewDecoder(bytes.NewReader(req.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return utils.NewFieldError("data", fmt.Sprintf("invalid %s payload: %v", req.DataType, err))
	}
	if err := binding.Validator.ValidateStruct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func (s *IngestionService) notFuture(field string, t time.Time) error {
	if t.After(s.now().Add(futureTolerance)) {
		return utils.NewFieldError(field, "must not be in the future")
	}
	return nil
}

// validationError turns validator output into a field error on the first failure
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := fmt.Sprintf("failed %q check", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %q check (%s)", fe.Tag(), fe.Param())
		}
		return utils.NewFieldError(fe.Field(), msg)
	}
	return utils.NewValidationError(err.Error())
}
