package nodes_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/app/server_test"
	"github.com/accella/accella/server/dto/dto_test/referencedata"
)

func TestNode(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	node := models.NewNode(referencedata.TestNodeName, models.StringList{"test"}, models.ServiceLimits{"default": 2})
	now := models.NewTime(time.Now())
	node.LastSeen = &now
	node.AwakeState = models.AwakeStateAwake

	// First upsert creates
	created, updated, err := app.NodeStore.Upsert(ctx, nil, node)
	require.Nil(t, err)
	require.True(t, created)
	require.False(t, updated)

	// An identical upsert is a no-op
	read, err := app.NodeStore.Read(ctx, nil, node.Name)
	require.Nil(t, err)
	created, updated, err = app.NodeStore.Upsert(ctx, nil, read)
	require.Nil(t, err)
	require.False(t, created)
	require.False(t, updated)

	// Changed limits update in place
	read.MaxConcurrency = models.ServiceLimits{"default": 4, "render": 1}
	created, updated, err = app.NodeStore.Upsert(ctx, nil, read)
	require.Nil(t, err)
	require.False(t, created)
	require.True(t, updated)

	refreshed, err := app.NodeStore.Read(ctx, nil, node.Name)
	require.Nil(t, err)
	require.Equal(t, 4, refreshed.MaxConcurrency["default"])
	require.Equal(t, 1, refreshed.MaxConcurrency["render"])

	t.Run("SumServiceLimit", testNodeSumServiceLimit(app))
	t.Run("List", testNodeList(app))
	t.Run("Delete", testNodeDelete(app, node.Name))
}

func testNodeSumServiceLimit(app *server_test.TestEngine) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()

		// Add a second node declaring capacity for the same service
		second := models.NewNode(referencedata.TestNode2Name, nil, models.ServiceLimits{"default": 3})
		created, _, err := app.NodeStore.Upsert(ctx, nil, second)
		require.Nil(t, err)
		require.True(t, created)

		limit, declared, err := app.NodeStore.SumServiceLimit(ctx, nil, "default")
		require.Nil(t, err)
		require.True(t, declared)
		require.Equal(t, 7, limit)

		limit, declared, err = app.NodeStore.SumServiceLimit(ctx, nil, "render")
		require.Nil(t, err)
		require.True(t, declared)
		require.Equal(t, 1, limit)

		// No node declares a limit for this service, so capacity is unconstrained
		_, declared, err = app.NodeStore.SumServiceLimit(ctx, nil, "undeclared-service")
		require.Nil(t, err)
		require.False(t, declared)
	}
}

func testNodeList(app *server_test.TestEngine) func(t *testing.T) {
	return func(t *testing.T) {
		nodes, err := app.NodeStore.List(context.Background(), nil)
		require.Nil(t, err)
		require.Len(t, nodes, 2)

		// Ordered by name
		require.Equal(t, models.ResourceName(referencedata.TestNodeName), nodes[0].Name)
		require.Equal(t, models.ResourceName(referencedata.TestNode2Name), nodes[1].Name)
	}
}

func testNodeDelete(app *server_test.TestEngine, name models.ResourceName) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()

		err := app.NodeStore.Delete(ctx, nil, name)
		require.Nil(t, err)

		_, err = app.NodeStore.Read(ctx, nil, name)
		require.NotNil(t, err)
		require.True(t, gerror.IsNotFound(err))

		// Deleting again is fine
		err = app.NodeStore.Delete(ctx, nil, name)
		require.Nil(t, err)
	}
}
