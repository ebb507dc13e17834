package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ragingest/features/ingest"
	"ragingest/internal/config"
	"ragingest/internal/ingesterr"
)

const defaultPublishTimeout = 5 * time.Second

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	publishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub, publishTimeout: defaultPublishTimeout}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Record stores a task whose ingestion failed.
func (s *Service) Record(ctx context.Context, task ingest.Task, cause error) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	j := &Job{
		IngestionID: task.IngestionID,
		Stage:       string(ingesterr.StageOf(cause)),
		Payload:     payload,
		Error:       cause.Error(),
		Retries:     task.Retries,
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return fmt.Errorf("save failed job: %w", err)
	}
	slog.InfoContext(ctx, "failed ingest task recorded", "job_id", j.ID, "stage", j.Stage, "retries", j.Retries)
	return nil
}

// Retry removes the job and republishes the stored task with its retry
// counter bumped. The row is gone before the task is published, so a replay
// that fails again records a fresh job. A failed publish restores the row.
func (s *Service) Retry(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	var task ingest.Task
	if err := json.Unmarshal(j.Payload, &task); err != nil {
		return fmt.Errorf("decode job payload: %w", err)
	}
	task.Retries++
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.publish(ctx, config.TopicIngestTask, body); err != nil {
		if serr := s.repo.Save(context.WithoutCancel(ctx), j); serr != nil {
			slog.ErrorContext(ctx, "failed to restore job after publish error", "job_id", id, "error", serr)
		}
		return err
	}
	return nil
}

func (s *Service) publish(ctx context.Context, topic string, body []byte) error {
	done := make(chan error, 1)
	go func() { done <- s.pub.Publish(topic, body) }()

	select {
	case err := <-done:
		return err
	case <-time.After(s.publishTimeout):
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
