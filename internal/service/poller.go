package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"cbsent/internal/domain"
	"cbsent/internal/port"
)

// PollerConfig holds the status polling loop settings.
type PollerConfig struct {
	Interval time.Duration
	// MaxTransportErrors is how many consecutive failed status queries are
	// tolerated before Next gives up on a job.
	MaxTransportErrors int
}

// StatusEvent is the outcome of one Next call. The poller never touches the
// ledger; callers persist the event themselves.
type StatusEvent struct {
	Snapshot *domain.JobSnapshot
	Previous domain.ChunkStatus
	Status   domain.ChunkStatus
	Changed  bool
	TimedOut bool
}

// Poller waits for a remote job to change status with a bounded
// sleep-and-retry loop.
type Poller struct {
	client port.JobClient
	cfg    PollerConfig
	logger *zap.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a Poller.
func NewPoller(client port.JobClient, cfg PollerConfig, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MaxTransportErrors < 0 {
		cfg.MaxTransportErrors = 0
	}
	return &Poller{
		client: client,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// SetClock replaces the time source and sleep function.
func (p *Poller) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	p.now = now
	p.sleep = sleep
}

// Next queries the job until its status differs from last, it reaches a
// terminal state, or deadline passes. A NotFoundError is returned at once; a
// TransportError only after more than MaxTransportErrors consecutive failures.
func (p *Poller) Next(ctx context.Context, jobID string, last domain.ChunkStatus, deadline time.Time) (StatusEvent, error) {
	failures := 0
	var latest *domain.JobSnapshot

	for {
		snap, err := p.client.GetStatus(ctx, jobID)
		switch {
		case err == nil:
			failures = 0
			latest = snap
			status, known := domain.ChunkStatusFromRemote(snap.Status)
			if !known {
				p.logger.Warn("unknown remote job status",
					zap.String("job_id", jobID),
					zap.String("remote_status", string(snap.Status)),
				)
			}
			if status != last || status.IsTerminal() {
				return StatusEvent{Snapshot: snap, Previous: last, Status: status, Changed: status != last}, nil
			}
		case errors.Is(err, domain.ErrTransport):
			failures++
			if failures > p.cfg.MaxTransportErrors {
				return StatusEvent{}, err
			}
			p.logger.Warn("status query failed, retrying",
				zap.String("job_id", jobID),
				zap.Int("consecutive_failures", failures),
				zap.Error(err),
			)
		default:
			return StatusEvent{}, err
		}

		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			ev := StatusEvent{Previous: last, Status: last, TimedOut: true, Snapshot: latest}
			return ev, nil
		}
		wait := p.cfg.Interval
		if wait > remaining {
			wait = remaining
		}
		if err := p.sleep(ctx, wait); err != nil {
			return StatusEvent{}, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
