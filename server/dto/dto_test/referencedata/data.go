package referencedata

import (
	"fmt"
	"time"

	"github.com/accella/accella/common/models"
	"github.com/accella/accella/common/util"
	"github.com/accella/accella/server/dto"
)

const (
	TestWorkflowName = "nightly-reconcile"
	TestServiceName  = "default"
	TestService2Name = "render"
	TestNodeName     = "test-node-1"
	TestNode2Name    = "test-node-2"
)

func GenerateName(prefix string) models.ResourceName {
	return models.ResourceName(fmt.Sprintf("%s%s", prefix, util.RandAlphaString(32)))
}

// GenerateWorkflow returns a three step pipeline (extract -> transform -> load)
// with every task executed by TestServiceName. If name is empty a random name
// is used; if version is zero the workflow is version 1.
func GenerateWorkflow(name models.ResourceName, version int) *models.Workflow {
	if name == "" {
		name = GenerateName("workflow-")
	}
	if version == 0 {
		version = 1
	}
	now := models.NewTime(time.Now())
	return models.NewWorkflow(now, name, version, models.WorkflowSteps{
		{
			Key:         "extract",
			ServiceName: TestServiceName,
			Params:      models.JSONMap{"source": "warehouse/input"},
		},
		{
			Key:         "transform",
			ServiceName: TestServiceName,
			DependsOn:   models.StringList{"extract"},
		},
		{
			Key:         "load",
			ServiceName: TestServiceName,
			DependsOn:   models.StringList{"transform"},
			Params:      models.JSONMap{"destination": "warehouse/output"},
		},
	}, models.OnErrorSkipDescendants)
}

// GenerateDiamondWorkflow returns a diamond: fetch fans out to two parse
// steps which join at merge.
func GenerateDiamondWorkflow(name models.ResourceName, version int) *models.Workflow {
	if name == "" {
		name = GenerateName("workflow-")
	}
	if version == 0 {
		version = 1
	}
	now := models.NewTime(time.Now())
	return models.NewWorkflow(now, name, version, models.WorkflowSteps{
		{
			Key:         "fetch",
			ServiceName: TestServiceName,
		},
		{
			Key:         "parse-a",
			ServiceName: TestServiceName,
			DependsOn:   models.StringList{"fetch"},
		},
		{
			Key:         "parse-b",
			ServiceName: TestServiceName,
			DependsOn:   models.StringList{"fetch"},
		},
		{
			Key:         "merge",
			ServiceName: TestServiceName,
			DependsOn:   models.StringList{"parse-a", "parse-b"},
		},
	}, models.OnErrorSkipDescendants)
}

// GenerateSingleStepWorkflow returns a workflow with one step executed by the
// specified service.
func GenerateSingleStepWorkflow(name models.ResourceName, serviceName models.ResourceName) *models.Workflow {
	if name == "" {
		name = GenerateName("workflow-")
	}
	if serviceName == "" {
		serviceName = TestServiceName
	}
	now := models.NewTime(time.Now())
	return models.NewWorkflow(now, name, 1, models.WorkflowSteps{
		{
			Key:         "run",
			ServiceName: serviceName,
		},
	}, models.OnErrorSkipDescendants)
}

func GenerateEnqueueJob(workflowName models.ResourceName, version int) *dto.EnqueueJob {
	return &dto.EnqueueJob{
		WorkflowName:    workflowName,
		WorkflowVersion: version,
		Options:         models.JSONMap{"trace_id": util.RandAlphaString(16)},
	}
}

func GenerateNodeHeartbeat(name models.ResourceName, service models.ResourceName, capacity int) *dto.NodeHeartbeat {
	if name == "" {
		name = GenerateName("node-")
	}
	if service == "" {
		service = TestServiceName
	}
	return &dto.NodeHeartbeat{
		Name:           name,
		Labels:         models.StringList{"test"},
		MaxConcurrency: models.ServiceLimits{service.String(): capacity},
	}
}
