package services

import (
	"context"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/mock"

	"github.com/irfndi/healthcast-go/internal/artifacts"
	"github.com/irfndi/healthcast-go/internal/models"
)

type fakeHistory struct {
	rows    []models.DailyFeatureRow
	windows []models.SequenceWindow
	err     error
}

func (f *fakeHistory) DailyHistory(ctx context.Context, userID string) ([]models.DailyFeatureRow, error) {
	return f.rows, f.err
}

func (f *fakeHistory) SequenceHistory(ctx context.Context, userID string) ([]models.SequenceWindow, error) {
	return f.windows, f.err
}

type mockVersionRecorder struct {
	mock.Mock
}

func (m *mockVersionRecorder) RecordModelVersion(ctx context.Context, meta *models.ArtifactMetadata, path string) (*models.ModelVersion, error) {
	args := m.Called(ctx, meta, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ModelVersion), args.Error(1)
}

// fakeFeatures serves one daily row and one window; a zero date returns them too
type fakeFeatures struct {
	daily  *models.DailyFeatureRow
	window *models.SequenceWindow
	err    error
	calls  int
}

func (f *fakeFeatures) GetDaily(ctx context.Context, userID string, date time.Time) (*models.DailyFeatureRow, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.daily == nil || (!date.IsZero() && !date.Equal(f.daily.Date)) {
		return nil, nil
	}
	return f.daily, nil
}

func (f *fakeFeatures) GetSequence(ctx context.Context, userID string, date time.Time) (*models.SequenceWindow, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.window == nil || (!date.IsZero() && !date.Equal(f.window.EndDate)) {
		return nil, nil
	}
	return f.window, nil
}

// countingLoader wraps a loader and counts Load calls
type countingLoader struct {
	inner ArtifactLoader
	mu    sync.Mutex
	loads int
}

func (c *countingLoader) Load(ctx context.Context, key models.ArtifactKey) (*artifacts.Artifact, error) {
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()
	return c.inner.Load(ctx, key)
}

func (c *countingLoader) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) SavePredictions(ctx context.Context, set *models.PredictionSet) error {
	return m.Called(ctx, set).Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyHighRisk(ctx context.Context, set *models.PredictionSet) error {
	return m.Called(ctx, set).Error(0)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tgmodels.Message), args.Error(1)
}

type fakeUsers struct {
	users   map[string]*models.User
	ensured []string
	err     error
}

func (f *fakeUsers) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, assertUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) EnsureUser(ctx context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.ensured = append(f.ensured, userID)
	return nil
}

type userNotFound struct{}

func (userNotFound) Error() string { return "user not found" }

var assertUserNotFound error = userNotFound{}

// blockingRunner trains by waiting on release, recording who ran
type blockingRunner struct {
	mu      sync.Mutex
	ran     []string
	started chan string
	release chan struct{}
	err     error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan string, 16), release: make(chan struct{})}
}

func (r *blockingRunner) TrainUser(ctx context.Context, userID string, targets []models.Target) (*models.TrainingReport, error) {
	r.started <- userID
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r.mu.Lock()
	r.ran = append(r.ran, userID)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &models.TrainingReport{UserID: userID, Trained: []models.TrainedModel{}, Skipped: []models.SkippedTarget{}}, nil
}

type mockInvalidator struct {
	mock.Mock
}

func (m *mockInvalidator) Invalidate(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}
