package app

import (
	"fmt"
	"os"
	"sync"

	"github.com/accella/accella/agent"
	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/services"
)

const defaultInternalNodeServices = "default"

type InternalNodeConfig struct {
	// StartInternalNodes starts an embedded worker node for each entry in
	// Services when the engine starts.
	StartInternalNodes bool
	// Services lists the worker services to start an internal node for.
	Services []models.ResourceName
	// ParallelTasks caps the number of tasks each internal node executes concurrently.
	ParallelTasks int
}

// InternalNodeManager runs worker nodes embedded inside the engine process.
// Internal nodes poll the engine's services directly rather than going through
// an external transport, and execute tasks with the echo executor. They exist
// so a development engine can move workflows end to end without any real
// workers deployed.
type InternalNodeManager struct {
	dispatchService  services.DispatchService
	lifecycleService services.LifecycleService
	journalService   services.JournalService
	nodeService      services.NodeService
	config           InternalNodeConfig
	logFactory       logger.LogFactory

	startStopMutex sync.Mutex

	// allNodes maps service name to the internal node for that service.
	// This field is only accessed with startStopMutex held.
	allNodes map[models.ResourceName]*agent.Agent

	logger.Log
}

func NewInternalNodeManager(
	dispatchService services.DispatchService,
	lifecycleService services.LifecycleService,
	journalService services.JournalService,
	nodeService services.NodeService,
	config InternalNodeConfig,
	logFactory logger.LogFactory,
) *InternalNodeManager {
	return &InternalNodeManager{
		dispatchService:  dispatchService,
		lifecycleService: lifecycleService,
		journalService:   journalService,
		nodeService:      nodeService,
		config:           config,
		logFactory:       logFactory,
		allNodes:         make(map[models.ResourceName]*agent.Agent),
		Log:              logFactory("InternalNodeManager"),
	}
}

func (m *InternalNodeManager) Start() error {
	m.startStopMutex.Lock()
	defer m.startStopMutex.Unlock()

	if len(m.allNodes) > 0 {
		return nil
	}
	m.Info("Starting internal nodes...")

	client := agent.NewEngineClient(m.dispatchService, m.lifecycleService, m.journalService, m.nodeService)
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	for _, service := range m.config.Services {
		if _, nodeFound := m.allNodes[service]; nodeFound {
			continue
		}
		// Node names must be stable across engine restarts so the node's
		// declared capacity replaces, rather than adds to, its previous one.
		nodeName := models.ResourceName(models.NormalizeResourceName(fmt.Sprintf("internal-%s-%s", hostname, service)))
		node := agent.NewAgent(client, agent.EchoExecutor{}, agent.AgentConfig{
			NodeName:      nodeName,
			Service:       service,
			Labels:        models.StringList{"internal"},
			ParallelTasks: m.config.ParallelTasks,
		}, m.logFactory)

		m.Infof("Starting internal node %q for service %q", nodeName, service)
		node.Start()
		m.allNodes[service] = node
	}

	return nil
}

func (m *InternalNodeManager) Stop() {
	m.startStopMutex.Lock()
	defer m.startStopMutex.Unlock()

	m.Tracef("Stopping %d internal node(s)...", len(m.allNodes))
	for service, node := range m.allNodes {
		m.Infof("Stopping internal node for service %q", service)
		node.Stop()
	}
	// Clear the list of nodes after they have all been shut down
	m.allNodes = make(map[models.ResourceName]*agent.Agent)
}
