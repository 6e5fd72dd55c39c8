package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Soumit27/eazzgrievnce/internal/logger"
	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/internal/repository"
	"github.com/Soumit27/eazzgrievnce/pkg/apperror"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SLAMonitor handles background SLA breach detection
type SLAMonitor interface {
	Start(ctx context.Context)
	Stop()
	RunOnce(ctx context.Context) (*ScanReport, error)
}

// ScanLock keeps passes from overlapping across instances. release must be
// called once the pass is over.
type ScanLock interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// BreachEscalator is the part of ComplaintService the monitor drives.
type BreachEscalator interface {
	EscalateBreached(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

type ScanReport struct {
	Candidates int  `json:"candidates"`
	Escalated  int  `json:"escalated"`
	Unchanged  int  `json:"unchanged"`
	Failed     int  `json:"failed"`
	Skipped    bool `json:"skipped"`
}

type slaMonitor struct {
	complaints repository.ComplaintRepository
	escalator  BreachEscalator
	lock       ScanLock
	interval   time.Duration
	timeout    time.Duration
	clock      func() time.Time

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
	running  bool
	scanning atomic.Bool
}

// NewSLAMonitor creates a new SLA monitor. lock may be nil for a single
// instance deployment.
func NewSLAMonitor(complaints repository.ComplaintRepository, escalator BreachEscalator, lock ScanLock, checkInterval, storeTimeout time.Duration) SLAMonitor {
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}

	return &slaMonitor{
		complaints: complaints,
		escalator:  escalator,
		lock:       lock,
		interval:   checkInterval,
		timeout:    storeTimeout,
		clock:      time.Now,
	}
}

// Start begins the background SLA monitoring
func (m *slaMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	m.running = true
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})
	logger.Log.WithField("interval", m.interval.String()).Info("SLA Monitor started")

	go m.loop(ctx, m.stopChan, m.done)
}

func (m *slaMonitor) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	m.tick(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick(ctx)
		case <-stop:
			logger.Log.Info("SLA Monitor stopped")
			return
		case <-ctx.Done():
			logger.Log.Info("SLA Monitor context cancelled")
			return
		}
	}
}

func (m *slaMonitor) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.WithField("panic", r).Error("SLA check panicked")
		}
	}()

	report, err := m.RunOnce(ctx)
	if err != nil {
		logger.Log.WithError(err).Error("SLA check failed")
		return
	}
	if report.Skipped {
		logger.Log.Debug("SLA check skipped, another pass is running")
		return
	}
	entry := logger.Log.WithFields(logrus.Fields{
		"candidates": report.Candidates,
		"escalated":  report.Escalated,
		"unchanged":  report.Unchanged,
		"failed":     report.Failed,
	})
	if report.Escalated > 0 || report.Failed > 0 {
		entry.Info("SLA check completed")
	} else {
		entry.Debug("SLA check completed")
	}
}

// Stop halts the background monitoring and waits for an in-flight pass.
func (m *slaMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	done := m.done
	m.mu.Unlock()

	<-done
}

// RunOnce performs a single pass: every complaint whose current assignment
// is still open past its deadline is escalated. Failures on one complaint
// are counted and the pass moves on.
func (m *slaMonitor) RunOnce(ctx context.Context) (*ScanReport, error) {
	if !m.scanning.CompareAndSwap(false, true) {
		return &ScanReport{Skipped: true}, nil
	}
	defer m.scanning.Store(false)

	if m.lock != nil {
		release, ok, err := m.lock.TryAcquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire scan lock: %w", err)
		}
		if !ok {
			return &ScanReport{Skipped: true}, nil
		}
		defer release()
	}

	now := m.clock()
	qctx, cancel := storeContext(ctx, m.timeout)
	candidates, _, err := m.complaints.Find(qctx, &models.ComplaintFilter{
		CurrentAssignmentStatuses: models.OpenAssignmentStatuses,
		DeadlineBefore:            &now,
		Unpaged:                   true,
	})
	cancel()
	if err != nil {
		return nil, apperror.FromStore(err, "find breached complaints")
	}

	report := &ScanReport{Candidates: len(candidates)}
	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		id := candidates[i].ID
		escalated, err := m.escalator.EscalateBreached(ctx, id, now)
		switch {
		case err != nil:
			report.Failed++
			logger.WithComplaint(id.String(), "sla_escalate").
				WithField("code", apperror.CodeOf(err)).
				WithError(err).
				Warn("SLA escalation failed")
		case escalated:
			report.Escalated++
		default:
			report.Unchanged++
		}
	}
	return report, nil
}
