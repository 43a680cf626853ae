package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/editorqa/uidriver/api"
	"github.com/editorqa/uidriver/browserprocess"
	"github.com/editorqa/uidriver/log"
	"github.com/editorqa/uidriver/trace"
)

// Harness owns the one session shared by a group of tests. The session
// is created on first use and lives until Quit.
type Harness struct {
	factory  api.SessionFactory
	opts     *Options
	logger   *log.Logger
	observer Observer
	tracer   *trace.Tracer
	runID    string

	mu     sync.Mutex
	driver *Driver
}

// NewHarness returns a Harness creating its session with factory.
func NewHarness(factory api.SessionFactory, opts *Options, logger *log.Logger) *Harness {
	if opts == nil {
		opts = NewOptions()
	}
	return &Harness{
		factory: factory,
		opts:    opts,
		logger:  logger,
		runID:   uuid.NewString(),
	}
}

// RunID identifies the browser processes started by the harness.
func (h *Harness) RunID() string {
	return h.runID
}

// SetObserver sets the observer of the drivers the harness creates.
func (h *Harness) SetObserver(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.observer = o
	if h.driver != nil {
		h.driver.SetObserver(o)
	}
}

// SetTracer sets the tracer of the drivers the harness creates.
func (h *Harness) SetTracer(t *trace.Tracer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.tracer = t
	if h.driver != nil {
		h.driver.SetTracer(t)
	}
}

// GetDriver returns the group's driver, creating its session if needed.
func (h *Harness) GetDriver(ctx context.Context) (*Driver, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.driver != nil {
		return h.driver, nil
	}

	s, err := h.factory.NewSession(browserprocess.WithRunID(ctx, h.runID))
	if err != nil {
		return nil, fmt.Errorf("creating browser session: %w", err)
	}
	h.logger.Debugf("Harness:GetDriver", "runID:%s new session", h.runID)

	h.driver = New(s, h.opts, h.logger)
	h.driver.SetObserver(h.observer)
	h.driver.SetTracer(h.tracer)

	return h.driver, nil
}

// Quit ends the group's session, if any. Browser processes of the run
// are killed when the session does not quit cleanly.
func (h *Harness) Quit(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.quit(ctx)
}

// Reset quits the current session and returns a driver over a new one.
func (h *Harness) Reset(ctx context.Context) (*Driver, error) {
	h.mu.Lock()
	err := h.quit(ctx)
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return h.GetDriver(ctx)
}

func (h *Harness) quit(ctx context.Context) error {
	if h.driver == nil {
		return nil
	}
	s := h.driver.Session()
	h.driver.tracer.EndSession(h.driver.ID())
	h.driver = nil

	if err := s.Quit(ctx); err != nil {
		h.logger.Warnf("Harness:quit", "runID:%s err:%v, killing browser processes", h.runID, err)
		browserprocess.ForceProcessShutdown(browserprocess.WithRunID(ctx, h.runID))
		return fmt.Errorf("quitting browser session: %w", err)
	}
	h.logger.Debugf("Harness:quit", "runID:%s session closed", h.runID)

	return nil
}
