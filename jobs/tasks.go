package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/accounts/internal/jobmetrics"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStampLastLogin records a successful login on a user row.
	TaskStampLastLogin = "users:stamp_last_login"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StampLastLoginPayload identifies the user and the instant of the login.
type StampLastLoginPayload struct {
	UserID int64     `json:"user_id"`
	At     time.Time `json:"at"`
}

// NewStampLastLoginTask constructs an Asynq task.
func NewStampLastLoginTask(payload StampLastLoginPayload) (*asynq.Task, error) {
	if payload.UserID <= 0 {
		return nil, fmt.Errorf("stamp last login: invalid user id %d", payload.UserID)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStampLastLogin, data), nil
}

// LoginStamper applies a last-login timestamp.
type LoginStamper interface {
	StampLastLogin(ctx context.Context, id int64, at time.Time) error
}

// StampLastLoginJob applies queued last-login stamps through the user store.
type StampLastLoginJob struct {
	Store   LoginStamper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStampLastLoginJob initialises the handler.
func NewStampLastLoginJob(store LoginStamper, logger *slog.Logger, metrics *jobmetrics.Metrics) *StampLastLoginJob {
	return &StampLastLoginJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskStampLastLogin tasks. Unreadable payloads are dropped
// without retry; store failures are returned so Asynq retries them.
func (j *StampLastLoginJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("stamp last login: handler not configured")
	}
	tracker := j.metrics().Track(TaskStampLastLogin)
	var payload StampLastLoginPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.UserID <= 0 {
		tracker.Skip()
		j.logger().Warn("dropping malformed task", slog.Any("error", err))
		return fmt.Errorf("stamp last login: bad payload: %w", asynq.SkipRetry)
	}
	if payload.At.IsZero() {
		payload.At = time.Now()
	}

	err := j.Store.StampLastLogin(ctx, payload.UserID, payload.At)
	if err != nil {
		j.logger().Error("stamp failed", slog.Int64("user_id", payload.UserID), slog.Any("error", err))
	}
	return tracker.End(err)
}

func (j *StampLastLoginJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStampLastLogin))
	}
	return slog.Default().With(slog.String("job", TaskStampLastLogin))
}

func (j *StampLastLoginJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
