package dispatch_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/app/server_test"
	"github.com/accella/accella/server/dto"
	"github.com/accella/accella/server/dto/dto_test/referencedata"
	"github.com/accella/accella/server/services/dispatch"
)

// dequeue claims up to limit runnable tasks for the specified service on
// behalf of node. Any errors will cause failure of the test.
func dequeue(t *testing.T, app *server_test.TestEngine, service models.ResourceName, node models.ResourceName, limit int) []*dto.DequeuedTask {
	tasks, err := app.DispatchService.Dequeue(context.Background(), service, node, limit)
	require.Nil(t, err)
	return tasks
}

// finishTask drives a claimed task through running to done so that its
// dependents become runnable and its capacity slot is released.
func finishTask(t *testing.T, app *server_test.TestEngine, id models.JobTaskID) {
	ctx := context.Background()
	err := app.LifecycleService.MarkRunning(ctx, id, "")
	require.Nil(t, err)
	_, err = app.LifecycleService.MarkDone(ctx, id, nil)
	require.Nil(t, err)
}

func TestDispatch(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	// Nothing is queued yet
	tasks := dequeue(t, app, referencedata.TestServiceName, referencedata.TestNodeName, 10)
	require.Empty(t, tasks)

	jobOne, _ := server_test.CreateAndInstantiateJob(t, ctx, app, "")
	jobTwo, _ := server_test.CreateAndInstantiateJob(t, ctx, app, "")

	// Only the entry step of each pipeline is runnable, and jobs are served
	// in the order they were enqueued
	tasks = dequeue(t, app, referencedata.TestServiceName, referencedata.TestNodeName, 10)
	require.Len(t, tasks, 2)
	require.Equal(t, jobOne.ID, tasks[0].JobID)
	require.Equal(t, jobTwo.ID, tasks[1].JobID)
	for _, task := range tasks {
		assert.Equal(t, models.ResourceName("extract"), task.TaskKey)
		assert.Equal(t, models.TaskStatusStarting, task.Status)
		assert.Equal(t, models.ResourceName(referencedata.TestNodeName), task.AssignedNode)
		assert.Equal(t, models.ResourceName(referencedata.TestNodeName), task.ClaimedBy)
		assert.NotNil(t, task.ClaimedAt)
		require.NotNil(t, task.Job)
		assert.Equal(t, task.JobID, task.Job.ID)
	}
	jobOneExtract := tasks[0].ID

	// Claimed tasks are not handed out twice, and downstream steps stay
	// gated behind their dependencies
	tasks = dequeue(t, app, referencedata.TestServiceName, referencedata.TestNodeName, 10)
	require.Empty(t, tasks)

	// Each claim is journaled against its task
	events, err := app.JournalService.FetchEvents(ctx, nil, jobOne.ID, 0, 100)
	require.Nil(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, dispatch.EventSource, events[0].Source)
	assert.Equal(t, models.EventTypeStatus, events[0].Type)
	assert.Equal(t, models.TaskStatusStarting.String(), events[0].Data["status"])

	// Finishing the entry step unblocks its dependent in the same job only
	finishTask(t, app, jobOneExtract)

	tasks = dequeue(t, app, referencedata.TestServiceName, referencedata.TestNodeName, 10)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.ResourceName("transform"), tasks[0].TaskKey)
	assert.Equal(t, jobOne.ID, tasks[0].JobID)
}

func TestDispatchDiamondGating(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	workflow := server_test.CreateDiamondWorkflow(t, ctx, app, "", 0)
	job := server_test.EnqueueJob(t, ctx, app, workflow.Name, workflow.Version)
	server_test.InstantiateJob(t, ctx, app, job.ID, len(workflow.Steps))

	// Only the root of the diamond is runnable
	tasks := dequeue(t, app, referencedata.TestServiceName, referencedata.TestNodeName, 10)
	require.Len(t, tasks, 1)
	require.Equal(t, models.ResourceName("fetch"), tasks[0].TaskKey)
	finishTask(t, app, tasks[0].ID)

	// Both branches become runnable together once the root is done, but the
	// join stays gated until both branches complete
	tasks = dequeue(t, app, referencedata.TestServiceName, referencedata.TestNodeName, 10)
	require.Len(t, tasks, 2)
	keys := []string{tasks[0].TaskKey.String(), tasks[1].TaskKey.String()}
	sort.Strings(keys)
	assert.Equal(t, []string{"parse-a", "parse-b"}, keys)
	finishTask(t, app, tasks[0].ID)

	moreTasks := dequeue(t, app, referencedata.TestServiceName, referencedata.TestNodeName, 10)
	require.Empty(t, moreTasks)
	finishTask(t, app, tasks[1].ID)

	tasks = dequeue(t, app, referencedata.TestServiceName, referencedata.TestNodeName, 10)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.ResourceName("merge"), tasks[0].TaskKey)
}

func TestDispatchCapacity(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	service := referencedata.GenerateName("svc-")
	workflow := referencedata.GenerateSingleStepWorkflow("", service)
	err = app.WorkflowService.Create(ctx, nil, workflow)
	require.Nil(t, err)
	for i := 0; i < 3; i++ {
		job := server_test.EnqueueJob(t, ctx, app, workflow.Name, workflow.Version)
		server_test.InstantiateJob(t, ctx, app, job.ID, 1)
	}

	// A service no node declares a limit for is capped only by the caller
	capacity, err := app.DispatchService.EffectiveCapacity(ctx, nil, service, 10)
	require.Nil(t, err)
	assert.Equal(t, 10, capacity)

	// One node declaring a limit of 2 caps the service at 2
	server_test.CreateNode(t, ctx, app, "", service, 2)
	capacity, err = app.DispatchService.EffectiveCapacity(ctx, nil, service, 10)
	require.Nil(t, err)
	assert.Equal(t, 2, capacity)

	tasks := dequeue(t, app, service, referencedata.TestNodeName, 10)
	require.Len(t, tasks, 2)

	// Capacity is exhausted while the claimed tasks are active
	tasks = dequeue(t, app, service, referencedata.TestNodeName, 10)
	require.Empty(t, tasks)

	// A second node's declared limit adds headroom
	server_test.CreateNode(t, ctx, app, referencedata.TestNode2Name, service, 1)
	tasks = dequeue(t, app, service, referencedata.TestNode2Name, 10)
	require.Len(t, tasks, 1)

	// Finishing a task releases its slot
	finishTask(t, app, tasks[0].ID)
	capacity, err = app.DispatchService.EffectiveCapacity(ctx, nil, service, 10)
	require.Nil(t, err)
	assert.Equal(t, 1, capacity)

	// A node lowering its declared limit below the number of active tasks
	// floors capacity at zero
	server_test.CreateNode(t, ctx, app, "", service, 0)
	capacity, err = app.DispatchService.EffectiveCapacity(ctx, nil, service, 10)
	require.Nil(t, err)
	assert.Equal(t, 0, capacity)
}

func TestDispatchBackoffExclusion(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	service := referencedata.GenerateName("svc-")
	workflow := referencedata.GenerateSingleStepWorkflow("", service)
	err = app.WorkflowService.Create(ctx, nil, workflow)
	require.Nil(t, err)
	job := server_test.EnqueueJob(t, ctx, app, workflow.Name, workflow.Version)
	server_test.InstantiateJob(t, ctx, app, job.ID, 1)

	tasks := dequeue(t, app, service, referencedata.TestNodeName, 10)
	require.Len(t, tasks, 1)

	// The first failure returns the task to the queue with a back-off window
	failed, err := app.LifecycleService.ReportFailure(ctx, tasks[0].ID, "net_timeout", "connection timed out")
	require.Nil(t, err)
	assert.Equal(t, models.TaskStatusQueued, failed.Status)
	assert.Equal(t, 1, failed.Attempt)
	require.NotNil(t, failed.NextAttemptAt)

	// The window is one initial interval with up to 20% jitter either way
	delay := failed.NextAttemptAt.Time.Sub(time.Now())
	assert.Greater(t, delay, 47*time.Second)
	assert.Less(t, delay, 73*time.Second)

	// The task is not dispatchable while inside its back-off window
	tasks = dequeue(t, app, service, referencedata.TestNodeName, 10)
	require.Empty(t, tasks)
}

// TestDispatchClaimExclusivity checks that racing nodes never claim the same
// task: every task is handed out exactly once across all dequeuers.
func TestDispatchClaimExclusivity(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	service := referencedata.GenerateName("svc-")
	workflow := referencedata.GenerateSingleStepWorkflow("", service)
	err = app.WorkflowService.Create(ctx, nil, workflow)
	require.Nil(t, err)

	const totalTasks = 12
	for i := 0; i < totalTasks; i++ {
		job := server_test.EnqueueJob(t, ctx, app, workflow.Name, workflow.Version)
		server_test.InstantiateJob(t, ctx, app, job.ID, 1)
	}

	var (
		claimedMutex sync.Mutex
		claimed      = make(map[models.JobTaskID]models.ResourceName)
		wg           sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		node := models.ResourceName(fmt.Sprintf("race-node-%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				tasks, err := app.DispatchService.Dequeue(ctx, service, node, 3)
				if err != nil {
					t.Errorf("Error dequeuing for node %q: %v", node, err)
					return
				}
				if len(tasks) == 0 {
					return
				}
				claimedMutex.Lock()
				for _, task := range tasks {
					if otherNode, ok := claimed[task.ID]; ok {
						t.Errorf("Task %q claimed by both %q and %q", task.ID, otherNode, node)
					}
					claimed[task.ID] = node
				}
				claimedMutex.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, claimed, totalTasks)
}
