package monitor

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hexrealm/projector/internal/dispatcher"
	"github.com/hexrealm/projector/internal/sink/memory"
)

// Subscriptions is the part of the dispatcher the monitor reads.
type Subscriptions interface {
	Active() int
	Backlog() int
	Subscriptions() []dispatcher.Info
}

// Scene is the part of the in-memory view the monitor reads.
type Scene interface {
	Counts() memory.Counts
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Dispatcher Subscriptions
	Scene      Scene
	Logger     *slog.Logger
	StatusPath string
	Interval   time.Duration
}

// Status is a point-in-time snapshot of the projection pipeline.
type Status struct {
	Time          time.Time         `json:"time"`
	Active        int               `json:"active"`
	Backlog       int               `json:"backlog"`
	Subscriptions []dispatcher.Info `json:"subscriptions"`
	Scene         memory.Counts     `json:"scene"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current pipeline status
func (s *Service) GetStatus() Status {
	st := Status{
		Time:          time.Now().UTC(),
		Active:        s.deps.Dispatcher.Active(),
		Backlog:       s.deps.Dispatcher.Backlog(),
		Subscriptions: s.deps.Dispatcher.Subscriptions(),
	}
	if s.deps.Scene != nil {
		st.Scene = s.deps.Scene.Counts()
	}
	return st
}

// WriteStatus replaces the status file with the current status.
func (s *Service) WriteStatus() error {
	if s.deps.StatusPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		return err
	}
	tmp := s.deps.StatusPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.deps.StatusPath)
}

// Start starts the status monitor goroutine
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "interval", s.deps.Interval, "path", s.deps.StatusPath)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}(s.stopChan, s.done)
}

// Stop stops the status monitor and writes a final status.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
	if err := s.WriteStatus(); err != nil {
		s.deps.Logger.Error("Error writing status file", "error", err)
	}
}
