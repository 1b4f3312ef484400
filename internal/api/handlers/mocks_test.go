package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/irfndi/healthcast-go/internal/features"
	"github.com/irfndi/healthcast-go/internal/middleware"
	"github.com/irfndi/healthcast-go/internal/ml"
	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/irfndi/healthcast-go/internal/services"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// serve runs one request through a router built by register
func serve(register func(r *gin.Engine), method, path string, body interface{}) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	register(router)

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// asUser pretends RequireAuth accepted a token for userID
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetAuthenticatedUser(c, userID)
		c.Next()
	}
}

type mockHealth struct{ mock.Mock }

func (m *mockHealth) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockAnalytics struct{ mock.Mock }

func (m *mockAnalytics) Summary(ctx context.Context, userID string) (*services.UserSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.UserSummary), args.Error(1)
}

func (m *mockAnalytics) Trends(ctx context.Context, userID string, days int) (*services.UserTrends, error) {
	args := m.Called(ctx, userID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.UserTrends), args.Error(1)
}

type mockIngester struct{ mock.Mock }

func (m *mockIngester) Ingest(ctx context.Context, req services.IngestRequest) error {
	return m.Called(ctx, req).Error(0)
}

type mockFeatureStore struct{ mock.Mock }

func (m *mockFeatureStore) Rebuild(ctx context.Context, userID string, start, end time.Time) (*features.RebuildResult, error) {
	args := m.Called(ctx, userID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*features.RebuildResult), args.Error(1)
}

func (m *mockFeatureStore) GetDaily(ctx context.Context, userID string, date time.Time) (*models.DailyFeatureRow, error) {
	args := m.Called(ctx, userID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DailyFeatureRow), args.Error(1)
}

type mockPredictionInvalidator struct{ mock.Mock }

func (m *mockPredictionInvalidator) InvalidatePredictions(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type mockQueue struct{ mock.Mock }

func (m *mockQueue) Submit(ctx context.Context, userID string, targets []models.Target) (*models.TrainingJob, bool, error) {
	args := m.Called(ctx, userID, targets)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*models.TrainingJob), args.Bool(1), args.Error(2)
}

func (m *mockQueue) Job(ctx context.Context, id string) (*models.TrainingJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TrainingJob), args.Error(1)
}

func (m *mockQueue) LatestJob(ctx context.Context, userID string) (*models.TrainingJob, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TrainingJob), args.Error(1)
}

type mockVersions struct{ mock.Mock }

func (m *mockVersions) ListModelVersions(ctx context.Context, userID string, activeOnly bool) ([]models.ModelVersion, error) {
	args := m.Called(ctx, userID, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ModelVersion), args.Error(1)
}

type mockPredictor struct{ mock.Mock }

func (m *mockPredictor) PredictDaily(ctx context.Context, userID string, date time.Time) (*models.PredictionSet, error) {
	args := m.Called(ctx, userID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PredictionSet), args.Error(1)
}

func (m *mockPredictor) PredictSequence(ctx context.Context, userID string, date time.Time) (*models.PredictionSet, error) {
	args := m.Called(ctx, userID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PredictionSet), args.Error(1)
}

func (m *mockPredictor) Explain(ctx context.Context, userID string, date time.Time) (map[models.Target][]ml.Importance, error) {
	args := m.Called(ctx, userID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.Target][]ml.Importance), args.Error(1)
}

type mockInvalidator struct{ mock.Mock }

func (m *mockInvalidator) Invalidate(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

