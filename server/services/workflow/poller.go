package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/common/util"
	"github.com/accella/accella/server/services"
	"github.com/accella/accella/server/store"
)

const defaultInstantiationPollInterval = 2 * time.Second

// instantiationPass is an object that can be sent to the poller to request that all currently
// queued jobs are instantiated immediately, instead of waiting for the next poll.
type instantiationPass struct {
	completedChan chan int // returns the number of tasks created
}

func newInstantiationPass() *instantiationPass {
	return &instantiationPass{
		completedChan: make(chan int),
	}
}

// InstantiationPoller implements a Service that periodically expands queued jobs into tasks.
// Jobs normally have their tasks created synchronously when they are enqueued; the poller picks
// up jobs whose scheduled time was still in the future at enqueue time, jobs inserted directly
// into the database, and jobs whose enqueuing process died between creating and instantiating.
type InstantiationPoller struct {
	*util.StatefulService
	workflowService services.WorkflowService
	jobStore        store.JobStore
	pollInterval    time.Duration
	passRequestChan chan *instantiationPass
	logger.Log
}

func NewInstantiationPoller(
	workflowService services.WorkflowService,
	jobStore store.JobStore,
	logFactory logger.LogFactory,
) *InstantiationPoller {
	s := &InstantiationPoller{
		workflowService: workflowService,
		jobStore:        jobStore,
		pollInterval:    defaultInstantiationPollInterval,
		passRequestChan: make(chan *instantiationPass),
		Log:             logFactory("InstantiationPoller"),
	}
	s.StatefulService = util.NewStatefulService(context.Background(), s.Log, s.loop)
	return s
}

func (s *InstantiationPoller) loop() {
	s.Tracef("Starting job instantiation polling loop...")
	for {
		select {
		case <-s.StatefulService.Ctx().Done():
			s.Tracef("Job instantiation poller closed; exiting...")
			return

		case pass := <-s.passRequestChan:
			// This channel is designed for use in testing; instantiate queued jobs right away
			created, err := s.instantiateQueuedJobs()
			if err != nil {
				s.Errorf("Error instantiating queued jobs: %s", err.Error())
			}
			pass.completedChan <- created

		case <-time.After(s.pollInterval):
			created, err := s.instantiateQueuedJobs()
			if err != nil {
				s.Errorf("Error instantiating queued jobs: %s", err.Error())
			}
			if created > 0 {
				s.Infof("Instantiated %d task(s) from queued jobs", created)
			}
		}
	}
}

// instantiateQueuedJobs scans for jobs in status queued and expands each one's workflow into
// tasks. Jobs scheduled for the future stay queued and will be found again on a later pass.
// Returns the number of tasks created across all jobs.
func (s *InstantiationPoller) instantiateQueuedJobs() (int, error) {
	var (
		ctx        = s.Ctx()
		queuedJobs []*models.Job
	)

	// Gather the full list of queued jobs first, then instantiate each in its own
	// transaction so one bad job does not hold up the others.
	pagination := models.NewPagination(models.DefaultPaginationLimit, nil)
	for moreResults := true; moreResults; {
		jobs, cursor, err := s.jobStore.ListByStatus(ctx, nil, models.JobStatusQueued, pagination)
		if err != nil {
			return 0, fmt.Errorf("error listing queued jobs: %w", err)
		}
		queuedJobs = append(queuedJobs, jobs...)
		if cursor != nil && cursor.Next != nil {
			pagination.Cursor = cursor.Next // move on to next page of results
		} else {
			moreResults = false
		}
	}

	created := 0
	errorCount := 0
	for _, job := range queuedJobs {
		count, err := s.workflowService.Instantiate(ctx, nil, job.ID)
		if err != nil {
			// Log error and continue with the remaining jobs
			s.Errorf("error instantiating job with ID %s: %v", job.ID, err.Error())
			errorCount++
		} else {
			created += count
		}
	}
	if errorCount > 0 {
		return created, fmt.Errorf("error instantiating jobs: failed to instantiate %d out of %d queued jobs", errorCount, len(queuedJobs))
	}

	return created, nil
}

// InstantiateQueuedJobs instructs the poller to instantiate all currently queued jobs
// without waiting for the next poll, and blocks until the pass has completed.
// Returns the number of tasks created.
func (s *InstantiationPoller) InstantiateQueuedJobs() int {
	pass := newInstantiationPass()
	s.passRequestChan <- pass
	return <-pass.completedChan
}
