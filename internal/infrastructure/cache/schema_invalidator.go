package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// SchemaChangedChannel is the NOTIFY channel fired by the attribute_definitions trigger
const SchemaChangedChannel = "attribute_definitions_changed"

// Invalidator drops cached schemas
type Invalidator interface {
	// Invalidate drops the cached schema of one entity type
	Invalidate(ctx context.Context, entityType string) error
	// InvalidateAll drops every cached schema
	InvalidateAll(ctx context.Context) error
}

// SchemaInvalidator keeps schema caches consistent across gateway instances.
// It uses PostgreSQL LISTEN/NOTIFY: every change to attribute_definitions
// notifies with the entity type as payload.
type SchemaInvalidator struct {
	mu       sync.Mutex
	target   Invalidator
	connStr  string
	listener *pq.Listener
	logger   *logrus.Entry
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopped  bool
}

// NewSchemaInvalidator creates a new SchemaInvalidator.
// connStr is the PostgreSQL connection string used for LISTEN.
func NewSchemaInvalidator(target Invalidator, connStr string, logger *logrus.Logger) *SchemaInvalidator {
	return &SchemaInvalidator{
		target:  target,
		connStr: connStr,
		logger:  logger.WithField("component", "schema_invalidator"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins listening and processing notifications in the background
func (s *SchemaInvalidator) Start() error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.logger.WithError(err).Warn("listener connection problem")
		}
	}

	s.listener = pq.NewListener(s.connStr, 10*time.Second, time.Minute, reportProblem)
	if err := s.listener.Listen(SchemaChangedChannel); err != nil {
		s.listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", SchemaChangedChannel, err)
	}

	go s.run(s.listener.Notify)
	return nil
}

// Stop stops the listener and waits for the processing goroutine
func (s *SchemaInvalidator) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	<-s.doneCh
	return s.listener.Close()
}

func (s *SchemaInvalidator) run(notifications <-chan *pq.Notification) {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		case n := <-notifications:
			s.handle(n)
		case <-time.After(90 * time.Second):
			go func() {
				if err := s.listener.Ping(); err != nil {
					s.logger.WithError(err).Warn("listener ping failed")
				}
			}()
		}
	}
}

// handle applies one notification. A nil notification means the
// connection was re-established and events may have been missed.
func (s *SchemaInvalidator) handle(n *pq.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if n == nil {
		if err := s.target.InvalidateAll(ctx); err != nil {
			s.logger.WithError(err).Error("failed to clear schema cache after reconnect")
		}
		return
	}

	if err := s.target.Invalidate(ctx, n.Extra); err != nil {
		s.logger.WithError(err).WithField("entity_type", n.Extra).Error("failed to invalidate schema")
		return
	}
	s.logger.WithField("entity_type", n.Extra).Debug("schema invalidated")
}
