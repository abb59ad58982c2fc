package util

import (
	"context"
	"sync"

	"github.com/accella/accella/common/logger"
)

// StatefulService runs a long-lived loop function on a background goroutine and
// gives it a standard start/stop lifecycle. The loop is expected to watch Ctx()
// and return when it is cancelled.
type StatefulService struct {
	mu        sync.Mutex
	started   bool
	ctx       context.Context
	ctxCancel context.CancelFunc
	doneC     chan struct{}
	fn        func()
	log       logger.Log
}

func NewStatefulService(ctx context.Context, log logger.Log, fn func()) *StatefulService {
	ctx, cancel := context.WithCancel(ctx)
	return &StatefulService{
		ctx:       ctx,
		ctxCancel: cancel,
		doneC:     make(chan struct{}),
		fn:        fn,
		log:       log,
	}
}

// Ctx returns the context the loop function should watch for cancellation.
func (s *StatefulService) Ctx() context.Context {
	return s.ctx
}

// Done is closed once the loop function has returned.
func (s *StatefulService) Done() <-chan struct{} {
	return s.doneC
}

// Start launches the loop function. Panics if called more than once.
func (s *StatefulService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.log.Panic("start can only be called once")
	}
	s.started = true
	s.log.Info("Starting...")
	go func() {
		defer close(s.doneC)
		s.log.Info("Started")
		s.fn()
		// TODO if fn() returns before Stop() is called we should cancel the context too
	}()
}

// Stop cancels the service's context and blocks until the loop function has
// returned. Stop is idempotent, and a no-op if the service was never started.
func (s *StatefulService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.log.Info("Stopping...")
	s.ctxCancel()
	<-s.doneC
	s.log.Info("Stopped")
}
