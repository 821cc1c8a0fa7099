package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	csotel "github.com/codescope/codescope/internal/adapter/otel"
	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/codefile"
	"github.com/codescope/codescope/internal/domain/reviewresult"
	"github.com/codescope/codescope/internal/domain/reviewtask"
	"github.com/codescope/codescope/internal/port/database"
	"github.com/codescope/codescope/internal/port/membership"
	"github.com/codescope/codescope/internal/port/messagequeue"
	"github.com/codescope/codescope/internal/resilience"
)

// TaskService handles review tasks and their dispatch to the worker fleet.
type TaskService struct {
	store   database.Store
	members membership.Checker
	queue   messagequeue.Queue
	breaker *resilience.Breaker
	metrics *csotel.Metrics
	log     *slog.Logger
}

// NewTaskService creates a new TaskService.
func NewTaskService(store database.Store, members membership.Checker, queue messagequeue.Queue, log *slog.Logger) *TaskService {
	return &TaskService{
		store:   store,
		members: members,
		queue:   queue,
		breaker: resilience.NewBreaker(5, 30*time.Second),
		log:     log,
	}
}

// SetMetrics attaches optional metric instruments.
func (s *TaskService) SetMetrics(m *csotel.Metrics) {
	s.metrics = m
}

// Create launches a review task and announces it to the workers. The task
// is durable before the announcement: a failed publish is logged, not
// surfaced, and the worker fleet can re-poll pending tasks.
func (s *TaskService) Create(ctx context.Context, actor string, req reviewtask.CreateRequest) (*reviewtask.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.members, req.ProjectID, actor); err != nil {
		return nil, err
	}

	t, err := s.store.CreateTask(ctx, actor, req)
	if err != nil {
		return nil, err
	}
	s.log.Info("review task created", "task_id", t.ID, "project_id", t.ProjectID, "scope", t.Scope)
	if s.metrics != nil {
		s.metrics.ReviewsCreated.Add(ctx, 1, metric.WithAttributes(
			attribute.String("review.scope", string(t.Scope)),
			attribute.String("review.type", string(t.Type)),
		))
	}

	s.announce(ctx, t)
	return t, nil
}

func (s *TaskService) announce(ctx context.Context, t *reviewtask.Task) {
	ctx, span := csotel.StartDispatchSpan(ctx, t.ID, t.ProjectID)
	defer span.End()

	payload, err := json.Marshal(messagequeue.ReviewCreatedPayload{
		TaskID:       t.ID,
		ProjectID:    t.ProjectID,
		Scope:        string(t.Scope),
		TaskType:     string(t.Type),
		Requirements: t.Requirements,
	})
	if err != nil {
		s.log.Error("marshal review dispatch", "task_id", t.ID, "error", err)
		return
	}

	err = s.breaker.Execute(func() error {
		return s.queue.Publish(ctx, messagequeue.SubjectReviewCreated, payload)
	})
	if err != nil {
		s.log.Warn("review dispatch publish failed, task stays pending",
			"task_id", t.ID, "error", err)
	}
}

// Get returns a task the actor may see.
func (s *TaskService) Get(ctx context.Context, actor, id string) (*reviewtask.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.members, t.ProjectID, actor); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns a project's tasks, newest first.
func (s *TaskService) List(ctx context.Context, actor, projectID string) ([]reviewtask.Task, error) {
	if err := requireMember(ctx, s.members, projectID, actor); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, projectID)
}

// BindVersions associates versions with a non-terminal task under a tag.
func (s *TaskService) BindVersions(ctx context.Context, actor, taskID string, versionIDs []string, tag reviewtask.VersionTag) error {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := requireMember(ctx, s.members, t.ProjectID, actor); err != nil {
		return err
	}
	if !reviewtask.ValidTag(tag) {
		return fmt.Errorf("unknown version_type %q: %w", tag, domain.ErrValidation)
	}
	return s.store.BindVersions(ctx, taskID, versionIDs, tag)
}

// UnbindVersions removes version associations from a non-terminal task.
func (s *TaskService) UnbindVersions(ctx context.Context, actor, taskID string, versionIDs []string) error {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := requireMember(ctx, s.members, t.ProjectID, actor); err != nil {
		return err
	}
	return s.store.UnbindVersions(ctx, taskID, versionIDs)
}

// Versions returns the versions currently bound to a task.
func (s *TaskService) Versions(ctx context.Context, actor, taskID string) ([]codefile.Version, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.members, t.ProjectID, actor); err != nil {
		return nil, err
	}
	return s.store.GetTaskVersions(ctx, taskID)
}

// Delete removes a task, reclaiming versions nothing else references.
func (s *TaskService) Delete(ctx context.Context, actor, taskID string) error {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := requireMember(ctx, s.members, t.ProjectID, actor); err != nil {
		return err
	}
	return s.store.DeleteTask(ctx, taskID)
}

// StartResultSubscriber consumes worker progress off the queue: started
// messages move tasks to running, completed messages record the result
// and finish the task. Returned stop functions cancel the subscriptions.
func (s *TaskService) StartResultSubscriber(ctx context.Context) (stop func(), err error) {
	stopStarted, err := s.queue.Subscribe(ctx, messagequeue.SubjectReviewStarted, s.onReviewStarted)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectReviewStarted, err)
	}

	stopCompleted, err := s.queue.Subscribe(ctx, messagequeue.SubjectReviewCompleted, s.onReviewCompleted)
	if err != nil {
		stopStarted()
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectReviewCompleted, err)
	}

	return func() {
		stopStarted()
		stopCompleted()
	}, nil
}

func (s *TaskService) onReviewStarted(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.ReviewStartedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode started payload: %w", err)
	}
	if err := s.store.UpdateTaskStatus(ctx, p.TaskID, reviewtask.StatusRunning); err != nil {
		return fmt.Errorf("task %s to running: %w", p.TaskID, err)
	}
	s.log.Info("review started", "task_id", p.TaskID)
	return nil
}

func (s *TaskService) onReviewCompleted(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.ReviewCompletedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode completed payload: %w", err)
	}

	ctx, span := csotel.StartFindingsSpan(ctx, p.TaskID)
	defer span.End()

	if !p.Succeeded {
		if err := s.store.UpdateTaskStatus(ctx, p.TaskID, reviewtask.StatusFailed); err != nil {
			return fmt.Errorf("task %s to failed: %w", p.TaskID, err)
		}
		s.log.Warn("review failed", "task_id", p.TaskID)
		if s.metrics != nil {
			s.metrics.ReviewsFailed.Add(ctx, 1)
		}
		return nil
	}

	_, err := s.store.CreateResult(ctx, reviewresult.RecordRequest{
		TaskID:           p.TaskID,
		Scope:            reviewtask.Scope(p.Scope),
		VersionID:        p.VersionID,
		CountsBySeverity: p.CountsBySeverity,
		CountsByCategory: p.CountsByCategory,
		Metadata:         p.Metadata,
		Elapsed:          time.Duration(p.ElapsedMS) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("record result for task %s: %w", p.TaskID, err)
	}

	if err := s.store.UpdateTaskStatus(ctx, p.TaskID, reviewtask.StatusCompleted); err != nil {
		return fmt.Errorf("task %s to completed: %w", p.TaskID, err)
	}
	s.log.Info("review completed", "task_id", p.TaskID, "elapsed_ms", p.ElapsedMS)
	if s.metrics != nil {
		s.metrics.ReviewsCompleted.Add(ctx, 1)
		s.metrics.ReviewDuration.Record(ctx, float64(p.ElapsedMS)/1000)
	}
	return nil
}
