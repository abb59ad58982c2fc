package node_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/app/server_test"
	"github.com/accella/accella/server/dto"
	"github.com/accella/accella/server/dto/dto_test/referencedata"
)

func TestNodeHeartbeat(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	// First contact registers the node
	node, err := app.NodeService.Heartbeat(ctx, nil, &dto.NodeHeartbeat{
		Name:           referencedata.TestNodeName,
		Labels:         models.StringList{"gpu", "zone-a"},
		MaxConcurrency: models.ServiceLimits{"render": 2},
		WakeMethod:     models.WakeMethodWOL,
		MAC:            "02:42:ac:11:00:02",
	})
	require.Nil(t, err)
	assert.Equal(t, models.AwakeStateAwake, node.AwakeState)
	require.NotNil(t, node.LastSeen)

	stored, err := app.NodeService.Read(ctx, nil, referencedata.TestNodeName)
	require.Nil(t, err)
	assert.Equal(t, models.StringList{"gpu", "zone-a"}, stored.Labels)
	assert.Equal(t, models.ServiceLimits{"render": 2}, stored.MaxConcurrency)
	assert.Equal(t, models.WakeMethodWOL, stored.WakeMethod)
	assert.Equal(t, "02:42:ac:11:00:02", stored.MAC)
	firstSeen := stored.LastSeen

	// Subsequent heartbeats refresh the node's declared capabilities and
	// last-seen time
	_, err = app.NodeService.Heartbeat(ctx, nil, &dto.NodeHeartbeat{
		Name:           referencedata.TestNodeName,
		Labels:         models.StringList{"gpu"},
		MaxConcurrency: models.ServiceLimits{"render": 4, "default": 1},
	})
	require.Nil(t, err)
	stored, err = app.NodeService.Read(ctx, nil, referencedata.TestNodeName)
	require.Nil(t, err)
	assert.Equal(t, models.StringList{"gpu"}, stored.Labels)
	assert.Equal(t, models.ServiceLimits{"render": 4, "default": 1}, stored.MaxConcurrency)
	require.NotNil(t, stored.LastSeen)
	assert.False(t, stored.LastSeen.Time.Before(firstSeen.Time))
}

func TestNodeHeartbeatValidation(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		name      string
		heartbeat *dto.NodeHeartbeat
	}{
		{"InvalidName", &dto.NodeHeartbeat{Name: "Not A Valid Name!"}},
		{"NegativeLimit", &dto.NodeHeartbeat{Name: referencedata.TestNodeName, MaxConcurrency: models.ServiceLimits{"default": -1}}},
		{"InvalidLimitServiceName", &dto.NodeHeartbeat{Name: referencedata.TestNodeName, MaxConcurrency: models.ServiceLimits{"bad service!": 1}}},
		{"UnknownWakeMethod", &dto.NodeHeartbeat{Name: referencedata.TestNodeName, WakeMethod: "shout"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := app.NodeService.Heartbeat(ctx, nil, test.heartbeat)
			require.NotNil(t, err)
			require.True(t, gerror.IsValidationFailed(err), "Expected a validation error, got %v", err)
		})
	}

	// Nothing was registered by the rejected heartbeats
	nodes, err := app.NodeService.List(ctx, nil)
	require.Nil(t, err)
	assert.Empty(t, nodes)
}

func TestNodeListAndDelete(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	server_test.CreateNode(t, ctx, app, referencedata.TestNode2Name, "", 1)
	server_test.CreateNode(t, ctx, app, referencedata.TestNodeName, "", 2)

	// Nodes list in name order
	nodes, err := app.NodeService.List(ctx, nil)
	require.Nil(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, models.ResourceName(referencedata.TestNodeName), nodes[0].Name)
	assert.Equal(t, models.ResourceName(referencedata.TestNode2Name), nodes[1].Name)

	// Deleting a node removes it from the pool; deleting again is a no-op
	err = app.NodeService.Delete(ctx, nil, referencedata.TestNodeName)
	require.Nil(t, err)
	_, err = app.NodeService.Read(ctx, nil, referencedata.TestNodeName)
	require.NotNil(t, err)
	require.True(t, gerror.IsNotFound(err))
	err = app.NodeService.Delete(ctx, nil, referencedata.TestNodeName)
	require.Nil(t, err)

	nodes, err = app.NodeService.List(ctx, nil)
	require.Nil(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, models.ResourceName(referencedata.TestNode2Name), nodes[0].Name)
}
