package negsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/nostrsync/relay/log"
	"github.com/nostrsync/relay/nip77"
	"github.com/nostrsync/relay/sync2/negentropy"
)

const closeTimeout = 5 * time.Second

// SyncerOption specifies an option for the Syncer.
type SyncerOption func(s *Syncer)

// WithLogger specifies the logger for the Syncer.
func WithLogger(logger *zap.Logger) SyncerOption {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// WithClock specifies the clock for the Syncer.
func WithClock(clock clockwork.Clock) SyncerOption {
	return func(s *Syncer) {
		s.clock = clock
	}
}

// WithConfig specifies the config for the Syncer.
func WithConfig(cfg Config) SyncerOption {
	return func(s *Syncer) {
		s.cfg = cfg
	}
}

// WithTimeout sets the maximum duration of a reconciliation.
func WithTimeout(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		s.cfg.Timeout = d
	}
}

// WithWaitSlice sets the maximum time between the deadline checks.
func WithWaitSlice(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		s.cfg.WaitSlice = d
	}
}

// Request describes a single reconciliation.
type Request struct {
	// SubscriptionID identifies the reconciliation on the connection.
	// A random id is used if it's empty.
	SubscriptionID string
	// Filter selects the records on the peer side.
	Filter nip77.Filter
	// Items is the local record snapshot that matches the Filter.
	Items []negentropy.Item
}

// Result is the outcome of a successful reconciliation.
type Result struct {
	// Have contains the ids of the local records the peer doesn't have.
	Have []negentropy.ID
	// Need contains the ids of the peer's records missing locally.
	Need []negentropy.ID
	// Rounds is the number of messages received from the peer.
	Rounds int
}

// Syncer runs the initiator side of the reconciliation against a peer as a single
// blocking call.
type Syncer struct {
	logger    *zap.Logger
	clock     clockwork.Clock
	cfg       Config
	transport Transport
}

// NewSyncer creates a new Syncer that talks to the peer over the transport.
func NewSyncer(transport Transport, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		logger:    zap.NewNop(),
		clock:     clockwork.NewRealClock(),
		cfg:       DefaultConfig(),
		transport: transport,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		panic("BUG: bad syncer config: " + err.Error())
	}
	return s
}

// Sync reconciles the request items with the peer's records matching the request
// filter. It returns *SyncTimeoutError if the reconciliation doesn't complete within
// the configured timeout, and *RemoteReconciliationError if the peer aborts it.
func (s *Syncer) Sync(ctx context.Context, req Request) (*Result, error) {
	start := s.clock.Now()
	subID := req.SubscriptionID
	if subID == "" {
		subID = uuid.NewString()
	}
	logger := s.logger.With(log.ZSubscription(subID))
	storage, err := negentropy.NewStorage(req.Items...)
	if err != nil {
		return nil, fmt.Errorf("create storage: %w", err)
	}
	rec := negentropy.NewReconciler(storage, s.cfg.ReconcilerOptions(logger)...)
	initial, err := rec.InitiateHex()
	if err != nil {
		return nil, fmt.Errorf("initiate: %w", err)
	}
	sess := newSession(subID, rec, logger)
	if err := s.transport.RegisterHandler(subID, sess.handleFrame); err != nil {
		return nil, fmt.Errorf("register handler: %w", err)
	}
	defer s.transport.UnregisterHandler(subID)

	logger.Debug("starting reconciliation",
		zap.Int("items", len(req.Items)),
		zap.Duration("timeout", s.cfg.Timeout))
	res, err := s.run(ctx, sess, nip77.Open(subID, req.Filter, initial), start.Add(s.cfg.Timeout))
	var remoteErr *RemoteReconciliationError
	if !errors.As(err, &remoteErr) {
		s.close(ctx, logger, subID)
	}
	elapsed := s.clock.Since(start)
	switch {
	case err == nil:
		syncDurationOK.Observe(elapsed.Seconds())
		initiatedReconciliations.Inc()
		syncRounds.Observe(float64(res.Rounds))
		syncHaveIDs.Add(float64(len(res.Have)))
		syncNeedIDs.Add(float64(len(res.Need)))
		logger.Debug("reconciliation complete",
			zap.Int("have", len(res.Have)),
			zap.Int("need", len(res.Need)),
			zap.Int("rounds", res.Rounds),
			zap.Duration("elapsed", elapsed))
	case errors.Is(err, &SyncTimeoutError{}):
		syncDurationTimeout.Observe(elapsed.Seconds())
	case remoteErr != nil:
		syncDurationRemote.Observe(elapsed.Seconds())
	default:
		syncDurationFail.Observe(elapsed.Seconds())
	}
	if err != nil {
		logger.Debug("reconciliation failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return nil, err
	}
	return res, nil
}

func (s *Syncer) run(ctx context.Context, sess *session, open nip77.Frame, deadline time.Time) (*Result, error) {
	if err := s.transport.Send(ctx, open); err != nil {
		return nil, fmt.Errorf("send NEG-OPEN: %w", err)
	}
	for {
		outgoing, complete, err := sess.state()
		for _, payload := range outgoing {
			if err := s.transport.Send(ctx, nip77.Msg(sess.subID, payload)); err != nil {
				return nil, fmt.Errorf("send NEG-MSG: %w", err)
			}
		}
		switch {
		case err != nil:
			return nil, err
		case complete:
			return sess.result(), nil
		}
		// the deadline is re-checked after every wakeup, including the spurious ones
		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			return nil, &SyncTimeoutError{
				SubscriptionID: sess.subID,
				Timeout:        s.cfg.Timeout,
				Rounds:         sess.numRounds(),
			}
		}
		timer := s.clock.NewTimer(min(remaining, s.cfg.WaitSlice))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-sess.notify:
			timer.Stop()
		case <-timer.Chan():
		}
	}
}

// close sends a best-effort NEG-CLOSE so that the peer can release the session.
func (s *Syncer) close(ctx context.Context, logger *zap.Logger, subID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := s.transport.Send(ctx, nip77.Close(subID)); err != nil {
		logger.Debug("failed to send NEG-CLOSE", zap.Error(err))
	}
}
