package indexer

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bblohar/MyBook-project/internal/models"
)

// RebuildAsync starts a full rebuild on a background goroutine and returns its
// job id. While a rebuild is running, further triggers return the running job's id.
func (s *Synchronizer) RebuildAsync(trigger string) string {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if s.lastJob != nil && s.lastJob.Status == models.JobRunning {
		s.logger.Debug("rebuild already running; coalescing trigger",
			zap.String("job_id", s.lastJob.ID), zap.String("trigger", trigger))
		return s.lastJob.ID
	}
	job := &models.RebuildJob{
		ID:        uuid.New().String(),
		Status:    models.JobRunning,
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	s.lastJob = job
	s.logger.Info("rebuild started", zap.String("job_id", job.ID), zap.String("trigger", trigger))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.Rebuild(s.baseCtx)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		now := time.Now()
		job.FinishedAt = &now
		if err != nil {
			job.Status = models.JobFailed
			job.Error = err.Error()
			s.logger.Error("rebuild failed", zap.String("job_id", job.ID), zap.Error(err))
			return
		}
		job.Status = models.JobSucceeded
		job.Result = res
	}()
	return job.ID
}

// LastRebuild returns a copy of the most recent background rebuild job.
func (s *Synchronizer) LastRebuild() (models.RebuildJob, bool) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.lastJob == nil {
		return models.RebuildJob{}, false
	}
	job := *s.lastJob
	if job.Result != nil {
		res := *job.Result
		job.Result = &res
	}
	return job, true
}
