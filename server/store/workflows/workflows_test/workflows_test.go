package workflows_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/app/server_test"
	"github.com/accella/accella/server/dto/dto_test/referencedata"
	"github.com/accella/accella/server/store"
)

func TestWorkflow(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()

	workflow := referencedata.GenerateWorkflow("", 1)

	t.Run("Create", testWorkflowCreate(app.WorkflowStore, workflow))
	t.Run("CreateDuplicate", testWorkflowCreateDuplicate(app.WorkflowStore, workflow))
	t.Run("ReadLatestByName", testWorkflowReadLatestByName(app.WorkflowStore, workflow))
	t.Run("Update", testWorkflowUpdate(app.WorkflowStore, workflow))
}

func testWorkflowCreate(workflowStore store.WorkflowStore, workflow *models.Workflow) func(t *testing.T) {
	return func(t *testing.T) {
		err := workflowStore.Create(context.Background(), nil, workflow)
		require.Nil(t, err)
		t.Run("Read", testWorkflowRead(workflowStore, workflow.ID, workflow))
		t.Run("ReadByNameAndVersion", testWorkflowReadByNameAndVersion(workflowStore, workflow))
	}
}

func testWorkflowRead(workflowStore store.WorkflowStore, testWorkflowID models.WorkflowID, referenceWorkflow *models.Workflow) func(t *testing.T) {
	return func(t *testing.T) {
		workflow, err := workflowStore.Read(context.Background(), nil, testWorkflowID)
		require.Nil(t, err)

		if workflow.ID != referenceWorkflow.ID {
			t.Error("Unexpected ID")
		}

		if workflow.CreatedAt != referenceWorkflow.CreatedAt {
			t.Error("Unexpected CreatedAt")
		}

		if workflow.Name != referenceWorkflow.Name {
			t.Error("Unexpected Name")
		}

		if workflow.Version != referenceWorkflow.Version {
			t.Error("Unexpected Version")
		}

		if workflow.OnError != referenceWorkflow.OnError {
			t.Error("Unexpected OnError")
		}

		if workflow.IsActive != referenceWorkflow.IsActive {
			t.Error("Unexpected IsActive")
		}

		if len(workflow.Steps) != len(referenceWorkflow.Steps) {
			t.Error("Mismatched Steps")
		} else {
			for i := 0; i < len(workflow.Steps); i++ {
				step := workflow.Steps[i]
				testStep := referenceWorkflow.Steps[i]
				if step.Key != testStep.Key {
					t.Error("Mismatched Key")
				}
				if step.ServiceName != testStep.ServiceName {
					t.Error("Mismatched ServiceName")
				}
				if len(step.DependsOn) != len(testStep.DependsOn) {
					t.Error("Mismatched DependsOn")
				}
				if step.MaxAttempts != testStep.MaxAttempts {
					t.Error("Mismatched MaxAttempts")
				}
			}
		}
	}
}

func testWorkflowReadByNameAndVersion(workflowStore store.WorkflowStore, referenceWorkflow *models.Workflow) func(t *testing.T) {
	return func(t *testing.T) {
		workflow, err := workflowStore.ReadByNameAndVersion(context.Background(), nil, referenceWorkflow.Name, referenceWorkflow.Version)
		require.Nil(t, err)
		require.Equal(t, referenceWorkflow.ID, workflow.ID)

		_, err = workflowStore.ReadByNameAndVersion(context.Background(), nil, referenceWorkflow.Name, referenceWorkflow.Version+100)
		require.NotNil(t, err)
		require.True(t, gerror.IsNotFound(err))
	}
}

func testWorkflowCreateDuplicate(workflowStore store.WorkflowStore, existingWorkflow *models.Workflow) func(t *testing.T) {
	return func(t *testing.T) {
		duplicate := referencedata.GenerateWorkflow(existingWorkflow.Name, existingWorkflow.Version)
		err := workflowStore.Create(context.Background(), nil, duplicate)
		require.NotNil(t, err)
		require.True(t, gerror.IsAlreadyExists(err))

		// The same name with a different version is a new workflow
		nextVersion := referencedata.GenerateWorkflow(existingWorkflow.Name, existingWorkflow.Version+1)
		err = workflowStore.Create(context.Background(), nil, nextVersion)
		require.Nil(t, err)
	}
}

func testWorkflowReadLatestByName(workflowStore store.WorkflowStore, workflow *models.Workflow) func(t *testing.T) {
	return func(t *testing.T) {
		latest, err := workflowStore.ReadLatestByName(context.Background(), nil, workflow.Name)
		require.Nil(t, err)
		require.Equal(t, workflow.Version+1, latest.Version)

		_, err = workflowStore.ReadLatestByName(context.Background(), nil, referencedata.GenerateName("no-such-workflow"))
		require.NotNil(t, err)
		require.True(t, gerror.IsNotFound(err))
	}
}

func testWorkflowUpdate(workflowStore store.WorkflowStore, workflow *models.Workflow) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()

		workflow.IsActive = false
		err := workflowStore.Update(ctx, nil, workflow)
		require.Nil(t, err)

		updated, err := workflowStore.Read(ctx, nil, workflow.ID)
		require.Nil(t, err)
		require.False(t, updated.IsActive)

		t.Run("ListActive", testWorkflowListActive(workflowStore, workflow.ID))
	}
}

func testWorkflowListActive(workflowStore store.WorkflowStore, inactiveID models.WorkflowID) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()

		var listed []*models.Workflow
		pagination := models.NewPagination(1, nil)
		for moreResults := true; moreResults; {
			page, cursor, err := workflowStore.ListActive(ctx, nil, pagination)
			require.Nil(t, err)
			listed = append(listed, page...)
			if cursor != nil && cursor.Next != nil {
				pagination.Cursor = cursor.Next // move on to next page of results
			} else {
				moreResults = false
			}
		}

		for _, workflow := range listed {
			if workflow.ID == inactiveID {
				t.Error("Inactive workflow listed as active")
			}
			if !workflow.IsActive {
				t.Error("ListActive returned an inactive workflow")
			}
		}
	}
}
