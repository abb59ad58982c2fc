package app

import (
	"fmt"

	"github.com/accella/accella/agent"
	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/services"
)

// Node is the standalone worker node daemon. It connects to the engine's
// database directly and runs one polling agent per configured service. Each
// agent registers as "<node_name>-<service>" so that its declared concurrency
// limit is tracked independently of the node's other services.
type Node struct {
	config           *NodeConfig
	dispatchService  services.DispatchService
	lifecycleService services.LifecycleService
	journalService   services.JournalService
	nodeService      services.NodeService
	logFactory       logger.LogFactory

	agents []*agent.Agent

	logger.Log
}

func NewNode(
	config *NodeConfig,
	dispatchService services.DispatchService,
	lifecycleService services.LifecycleService,
	journalService services.JournalService,
	nodeService services.NodeService,
	logFactory logger.LogFactory,
) *Node {
	return &Node{
		config:           config,
		dispatchService:  dispatchService,
		lifecycleService: lifecycleService,
		journalService:   journalService,
		nodeService:      nodeService,
		logFactory:       logFactory,
		Log:              logFactory("Node"),
	}
}

func (n *Node) Start() error {
	client := agent.NewEngineClient(n.dispatchService, n.lifecycleService, n.journalService, n.nodeService)

	for _, service := range n.config.Services {
		nodeName := models.ResourceName(models.NormalizeResourceName(fmt.Sprintf("%s-%s", n.config.NodeName, service)))
		a := agent.NewAgent(client, agent.EchoExecutor{}, agent.AgentConfig{
			NodeName:          nodeName,
			Service:           service,
			Labels:            n.config.Labels,
			ParallelTasks:     n.config.ParallelTasks,
			PollInterval:      n.config.PollInterval,
			HeartbeatInterval: n.config.HeartbeatInterval,
		}, n.logFactory)

		n.Infof("Starting agent %q for service %q", nodeName, service)
		a.Start()
		n.agents = append(n.agents, a)
	}

	return nil
}

// Stop shuts the agents down and returns once all in-flight tasks have
// finished and been reported.
func (n *Node) Stop() {
	n.Infof("Stopping %d agent(s)...", len(n.agents))
	for _, a := range n.agents {
		a.Stop()
	}
	n.agents = nil
}
