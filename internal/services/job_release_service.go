package services

import (
	"context"
	"errors"
	"time"

	"github.com/gigmesh/marketplace/internal/constants"
	"github.com/gigmesh/marketplace/internal/repositories"
	"github.com/gigmesh/marketplace/internal/utils"
)

// JobReleaseService runs the periodic auto-release sweep: any job still
// DELIVERED after the approval window is completed with trigger "timeout".
// The sweep holds no state of its own; each candidate goes through the same
// atomic completion path as a requester approval, so a sweep racing a
// concurrent approval or dispute simply loses and moves on.
type JobReleaseService struct {
	jobRepo    repositories.JobRepository
	jobService *JobService
}

func NewJobReleaseService(jobRepo repositories.JobRepository, jobService *JobService) *JobReleaseService {
	return &JobReleaseService{
		jobRepo:    jobRepo,
		jobService: jobService,
	}
}

// RunSweep finds every job delivered before now minus the approval window and
// auto-releases it. Errors on individual jobs are logged and do not stop the
// sweep.
func (s *JobReleaseService) RunSweep(ctx context.Context) {
	cutoff := time.Now().Add(-constants.AutoReleaseAfter)
	jobs, err := s.jobRepo.ListDeliveredBefore(ctx, cutoff)
	if err != nil {
		utils.Logger.WithError(err).Error("Auto-release sweep: listing delivered jobs failed")
		return
	}
	if len(jobs) == 0 {
		return
	}

	utils.Logger.Infof("Auto-release sweep: %d job(s) past the approval window", len(jobs))
	released := 0
	for _, job := range jobs {
		if _, err := s.jobService.AutoRelease(ctx, job.UUID); err != nil {
			var ite *utils.InvalidTransitionError
			if errors.As(err, &ite) {
				// A requester action won the race since the listing; fine.
				utils.Logger.Debugf("Auto-release skipped job %s, now %s", job.UUID, ite.Current)
				continue
			}
			utils.Logger.WithError(err).Errorf("Auto-release failed for job %s", job.UUID)
			continue
		}
		released++
	}
	if released > 0 {
		utils.Logger.Infof("Auto-release sweep: released payment for %d job(s)", released)
	}
}
