package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/hra-case-service/internal/events"
	"github.com/spec-kit/hra-case-service/internal/persistence"
)

// NotificationService listens to domain events, writes job progress
// snapshots to the Redis cache, and emits the operational log lines
// reviewers and dashboards rely on.
type NotificationService struct {
	logger *zap.Logger
	cache  *persistence.JobProgressCache
}

// NewNotificationService wires the listeners into the dispatcher.
func NewNotificationService(dispatcher events.Dispatcher, cache *persistence.JobProgressCache, logger *zap.Logger) *NotificationService {
	s := &NotificationService{logger: logger, cache: cache}

	dispatcher.Subscribe(events.EventCaseCreated, s.onCaseCreated)
	dispatcher.Subscribe(events.EventCaseAssigned, s.onCaseAssigned)
	dispatcher.Subscribe(events.EventCaseStatusChanged, s.onStatusChanged)
	dispatcher.Subscribe(events.EventCaseCompleted, s.onCaseCompleted)
	dispatcher.Subscribe(events.EventJobSubmitted, s.onJobProgress)
	dispatcher.Subscribe(events.EventJobProgress, s.onJobProgress)
	dispatcher.Subscribe(events.EventJobFinished, s.onJobProgress)
	dispatcher.Subscribe(events.EventJobStalled, s.onJobStalled)

	return s
}

func (s *NotificationService) onCaseCreated(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CaseCreatedPayload)
	if !ok {
		return nil
	}
	s.logger.Info("case created",
		zap.String("case_id", event.SubjectID),
		zap.String("lob", payload.LOB),
		zap.String("status", string(payload.Status)),
		zap.Strings("review_reasons", payload.ReviewReasons))
	return nil
}

func (s *NotificationService) onCaseAssigned(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CaseAssignedPayload)
	if !ok {
		return nil
	}
	s.logger.Info("case assigned",
		zap.String("case_id", event.SubjectID),
		zap.String("assignee_id", payload.AssigneeID),
		zap.Bool("override", payload.Override))
	return nil
}

func (s *NotificationService) onStatusChanged(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CaseStatusChangedPayload)
	if !ok {
		return nil
	}
	s.logger.Info("case status changed",
		zap.String("case_id", event.SubjectID),
		zap.String("from", string(payload.OldStatus)),
		zap.String("to", string(payload.NewStatus)),
		zap.String("actor_id", event.Actor.UserID))
	return nil
}

func (s *NotificationService) onCaseCompleted(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CaseCompletedPayload)
	if !ok {
		return nil
	}
	s.logger.Info("case completed",
		zap.String("case_id", event.SubjectID),
		zap.String("outcome", string(payload.Outcome)))
	return nil
}

func (s *NotificationService) onJobProgress(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.JobProgressPayload)
	if !ok {
		return nil
	}
	snapshot := persistence.JobSnapshot{
		JobID:          event.SubjectID,
		Status:         payload.Status,
		TotalCases:     payload.TotalCases,
		ProcessedCases: payload.ProcessedCases,
		AutoCompleted:  payload.AutoCompleted,
		ManualReview:   payload.ManualReview,
		ErrorCount:     payload.ErrorCount,
		Paused:         payload.Paused,
	}
	if err := s.cache.Store(ctx, snapshot); err != nil {
		s.logger.Warn("job snapshot cache write failed",
			zap.String("job_id", event.SubjectID),
			zap.Error(err))
	}
	if event.Type == events.EventJobFinished {
		s.logger.Info("bulk job finished",
			zap.String("job_id", event.SubjectID),
			zap.String("status", string(payload.Status)),
			zap.Int("processed", payload.ProcessedCases),
			zap.Int("errors", payload.ErrorCount))
	}
	return nil
}

func (s *NotificationService) onJobStalled(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.JobStalledPayload)
	if !ok {
		return nil
	}
	s.logger.Warn("bulk job stalled",
		zap.String("job_id", event.SubjectID),
		zap.Int("processed", payload.ProcessedCases),
		zap.Duration("idle", payload.Idle))
	return nil
}
