package agent

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/common/util"
	"github.com/accella/accella/server/dto"
)

const (
	DefaultPollInterval      = time.Second * 5
	DefaultHeartbeatInterval = time.Second * 30
	DefaultParallelTasks     = 2
	pollTimeout              = time.Second * 30
	heartbeatTimeout         = time.Second * 30
	taskTimeout              = time.Hour * 2
	// statusUpdateTimeout is the maximum time to spend reporting a task's
	// terminal state. Keep trying for a while; an unreported outcome leaves
	// the task stuck until an external reaper intervenes.
	statusUpdateTimeout = time.Minute * 5
	// pollBackoffInitial and pollBackoffMax pace retries after a failed
	// dequeue transaction.
	pollBackoffInitial = time.Second
	pollBackoffMax     = time.Second * 30
)

// getStatusUpdateContext returns a context with a timeout to use when reporting
// task outcomes. Derived from the background context so that results of work
// already performed are still reported while the agent is shutting down.
func getStatusUpdateContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), statusUpdateTimeout)
}

type AgentConfig struct {
	// NodeName is the stable identity this agent claims tasks under.
	NodeName models.ResourceName
	// Service is the worker service whose tasks this agent executes.
	Service models.ResourceName
	// Labels are free-form strings describing the node to operators.
	Labels models.StringList
	// ParallelTasks caps the number of tasks executed concurrently. This cap
	// is declared to the engine on every heartbeat.
	ParallelTasks int
	// PollInterval is how long to wait between polls when the previous poll
	// returned no work.
	PollInterval time.Duration
	// HeartbeatInterval is how often the agent refreshes its node registration
	// and journals liveness for in-flight tasks.
	HeartbeatInterval time.Duration
}

// AgentStats counts what an agent has done since it started. Values only grow.
type AgentStats struct {
	SuccessfulPollCount int64
	FailedPollCount     int64
	TasksStarted        int64
	TasksSucceeded      int64
	TasksFailed         int64
}

// Agent polls the engine for tasks belonging to one service and drives each
// claimed task through its lifecycle using an executor pool. Any number of
// agents may run against the same datastore; the engine's claim transaction
// guarantees a task is handed to at most one of them per attempt.
type Agent struct {
	client   APIClient
	executor Executor
	config   AgentConfig

	service   *util.StatefulService
	taskDoneC chan struct{}

	mu       sync.Mutex
	inFlight map[models.JobTaskID]models.ResourceName

	stats      AgentStats
	statsMutex sync.RWMutex

	log logger.Log
}

func NewAgent(
	client APIClient,
	executor Executor,
	config AgentConfig,
	logFactory logger.LogFactory,
) *Agent {
	if config.ParallelTasks <= 0 {
		config.ParallelTasks = DefaultParallelTasks
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}
	a := &Agent{
		client:    client,
		executor:  executor,
		config:    config,
		taskDoneC: make(chan struct{}, config.ParallelTasks),
		inFlight:  make(map[models.JobTaskID]models.ResourceName),
		log:       logFactory("Agent").WithField("node", config.NodeName.String()),
	}
	a.service = util.NewStatefulService(context.Background(), a.log, a.loop)
	return a
}

// Start polling for tasks. Panics if called more than once.
func (a *Agent) Start() {
	a.service.Start()
}

// Stop polling and return once all in-flight tasks have finished and been
// reported. Idempotent.
func (a *Agent) Stop() {
	a.service.Stop()
}

func (a *Agent) GetStats() *AgentStats {
	a.statsMutex.RLock()
	defer a.statsMutex.RUnlock()

	statsCopy := a.stats
	return &statsCopy
}

func (a *Agent) loop() {
	ctx := a.service.Ctx()

	// Register the node up front so its declared limits count towards the
	// service's capacity before the first claim.
	a.heartbeat(ctx)

	// Task errors are reported to the engine, never to the pool, so the pool
	// only arbitrates concurrency.
	pool := &errgroup.Group{}
	pool.SetLimit(a.config.ParallelTasks)

	heartbeat := time.NewTicker(a.config.HeartbeatInterval)
	defer heartbeat.Stop()

	pollDelay := time.Duration(0) // first poll happens immediately
	pollBackoff := pollBackoffInitial
	for {
		var pollC <-chan time.Time
		if a.freeSlots() > 0 {
			pollC = time.After(pollDelay)
		}

		select {
		case <-ctx.Done():
			a.log.Infof("Exit signal received; waiting for %d task(s) to finish", a.inFlightCount())
			pool.Wait()
			a.log.Info("All tasks complete; exiting")
			return

		case <-heartbeat.C:
			a.heartbeat(ctx)

		case <-a.taskDoneC:
			// Capacity freed up; check for more work straight away.
			pollDelay = 0

		case <-pollC:
			tasks, err := a.poll(ctx)
			if err != nil {
				a.recordFailedPoll()
				if ctx.Err() == nil {
					a.log.Errorf("Will retry error during poll: %s", err)
				}
				pollDelay = pollBackoff
				pollBackoff *= 2
				if pollBackoff > pollBackoffMax {
					pollBackoff = pollBackoffMax
				}
				continue
			}
			a.recordSuccessfulPoll()
			pollBackoff = pollBackoffInitial
			for _, task := range tasks {
				task := task
				a.trackStarted(task)
				pool.Go(func() error {
					defer a.trackFinished(task)
					a.runTask(ctx, task)
					return nil
				})
			}
			if len(tasks) > 0 {
				// A full queue probably has more; poll again immediately.
				pollDelay = 0
			} else {
				pollDelay = a.config.PollInterval
			}
		}
	}
}

// poll asks the engine for as many tasks as the agent has free executor slots.
func (a *Agent) poll(ctx context.Context) ([]*dto.DequeuedTask, error) {
	limit := a.freeSlots()
	if limit <= 0 {
		return nil, nil
	}
	pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()
	return a.client.Dequeue(pollCtx, a.config.Service, a.config.NodeName, limit)
}

// runTask drives a single claimed task through acknowledge, execute and report.
func (a *Agent) runTask(ctx context.Context, task *dto.DequeuedTask) {
	log := a.log.WithFields(logger.Fields{"task_id": task.ID.String(), "task_key": task.TaskKey.String()})

	taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	err := a.client.MarkRunning(taskCtx, task.ID, a.config.NodeName)
	if err != nil {
		// The claim no longer belongs to this agent; the task is someone
		// else's to report on now.
		log.Errorf("Error acknowledging claimed task; abandoning attempt: %s", err)
		a.recordTaskFailed()
		return
	}
	log.Infof("Running task %s (attempt %d); %d task(s) now in progress", task.TaskKey, task.Attempt+1, a.inFlightCount())

	reporter := NewTaskReporter(a.client, a.config.NodeName, task)
	results, execErr := a.executor.Execute(taskCtx, task, reporter)

	// Report the outcome on a fresh context; taskCtx may have expired or been
	// cancelled by shutdown.
	updateCtx, updateCancel := getStatusUpdateContext()
	defer updateCancel()

	if execErr != nil {
		code, message := taskErrorDetails(execErr)
		_, err := a.client.ReportFailure(updateCtx, task.ID, code, message)
		if err != nil {
			log.Errorf("Error reporting task failure (%s: %s): %s", code, message, err)
		}
		a.recordTaskFailed()
		return
	}
	_, err = a.client.MarkDone(updateCtx, task.ID, results)
	if err != nil {
		log.Errorf("Error marking task done: %s", err)
		a.recordTaskFailed()
		return
	}
	a.recordTaskSucceeded()
}

// heartbeat refreshes the node's registration and journals liveness for every
// task currently being worked on, for the benefit of external reapers.
func (a *Agent) heartbeat(ctx context.Context) {
	hbCtx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
	defer cancel()

	_, err := a.client.Heartbeat(hbCtx, &dto.NodeHeartbeat{
		Name:   a.config.NodeName,
		Labels: a.config.Labels,
		MaxConcurrency: models.ServiceLimits{
			a.config.Service.String(): a.config.ParallelTasks,
		},
	})
	if err != nil {
		if ctx.Err() == nil {
			a.log.Errorf("Will retry error sending heartbeat: %s", err)
		}
		return
	}

	for id, taskKey := range a.inFlightTasks() {
		id := id
		_, err := a.client.AppendEvent(hbCtx, &dto.AppendEvent{
			JobTaskID: &id,
			Source:    "node:" + a.config.NodeName.String(),
			Level:     models.EventLevelDebug,
			Type:      models.EventTypeHeartbeat,
			Data: models.JSONMap{
				"node":     a.config.NodeName.String(),
				"task_key": taskKey.String(),
			},
		})
		if err != nil && ctx.Err() == nil {
			a.log.Errorf("Error journaling heartbeat for task %q: %s", id, err)
		}
	}
}

func (a *Agent) freeSlots() int {
	return a.config.ParallelTasks - a.inFlightCount()
}

func (a *Agent) inFlightCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inFlight)
}

func (a *Agent) inFlightTasks() map[models.JobTaskID]models.ResourceName {
	a.mu.Lock()
	defer a.mu.Unlock()
	tasks := make(map[models.JobTaskID]models.ResourceName, len(a.inFlight))
	for id, key := range a.inFlight {
		tasks[id] = key
	}
	return tasks
}

func (a *Agent) trackStarted(task *dto.DequeuedTask) {
	a.mu.Lock()
	a.inFlight[task.ID] = task.TaskKey
	a.mu.Unlock()
	a.statsMutex.Lock()
	a.stats.TasksStarted++
	a.statsMutex.Unlock()
}

func (a *Agent) trackFinished(task *dto.DequeuedTask) {
	a.mu.Lock()
	delete(a.inFlight, task.ID)
	a.mu.Unlock()
	select {
	case a.taskDoneC <- struct{}{}:
	default:
	}
}

func (a *Agent) recordSuccessfulPoll() {
	a.statsMutex.Lock()
	defer a.statsMutex.Unlock()
	a.stats.SuccessfulPollCount++
}

func (a *Agent) recordFailedPoll() {
	a.statsMutex.Lock()
	defer a.statsMutex.Unlock()
	a.stats.FailedPollCount++
}

func (a *Agent) recordTaskSucceeded() {
	a.statsMutex.Lock()
	defer a.statsMutex.Unlock()
	a.stats.TasksSucceeded++
}

func (a *Agent) recordTaskFailed() {
	a.statsMutex.Lock()
	defer a.statsMutex.Unlock()
	a.stats.TasksFailed++
}
