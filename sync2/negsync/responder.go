package negsync

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/nostrsync/relay/log"
	"github.com/nostrsync/relay/nip77"
	"github.com/nostrsync/relay/sync2/negentropy"
)

const (
	// DefaultMaxSessions is the default number of reconciliation sessions that can be
	// open on a single connection.
	DefaultMaxSessions = 16
	// DefaultMaxRecords is the default maximum number of records in a snapshot.
	DefaultMaxRecords = 1_000_000
)

// ResponderOption specifies an option for the Responder.
type ResponderOption func(r *Responder)

// WithResponderLogger specifies the logger for the Responder.
func WithResponderLogger(logger *zap.Logger) ResponderOption {
	return func(r *Responder) {
		r.logger = logger
	}
}

// WithMaxSessions sets the maximum number of sessions. When it's reached, the least
// recently used session is dropped.
func WithMaxSessions(n int) ResponderOption {
	return func(r *Responder) {
		r.maxSessions = n
	}
}

// WithMaxRecords sets the maximum number of records in a snapshot. NEG-OPEN requests
// matching more records are rejected. Zero means no limit.
func WithMaxRecords(n int) ResponderOption {
	return func(r *Responder) {
		r.maxRecords = n
	}
}

// WithResponderConfig specifies the reconciliation settings for the Responder.
func WithResponderConfig(cfg Config) ResponderOption {
	return func(r *Responder) {
		r.cfg = cfg
	}
}

// Responder handles the reconciliation requests of a single peer connection.
// Each NEG-OPEN creates a session with its own snapshot of the records, and the
// following NEG-MSG frames with the same subscription id are processed against it.
type Responder struct {
	logger      *zap.Logger
	source      SnapshotSource
	cfg         Config
	maxSessions int
	maxRecords  int
	sessions    *lru.Cache[string, *negentropy.Reconciler]
}

// NewResponder creates a new Responder that takes the snapshots from the source.
func NewResponder(source SnapshotSource, opts ...ResponderOption) *Responder {
	r := &Responder{
		logger:      zap.NewNop(),
		source:      source,
		cfg:         DefaultConfig(),
		maxSessions: DefaultMaxSessions,
		maxRecords:  DefaultMaxRecords,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.cfg.Validate(); err != nil {
		panic("BUG: bad responder config: " + err.Error())
	}
	var err error
	r.sessions, err = lru.NewWithEvict(r.maxSessions, func(subID string, _ *negentropy.Reconciler) {
		responderSessions.Dec()
		r.logger.Debug("session dropped", log.ZSubscription(subID))
	})
	if err != nil {
		panic("BUG: bad max sessions: " + err.Error())
	}
	return r
}

// Handle handles a frame received from the peer and returns the reply frame, if any.
func (r *Responder) Handle(ctx context.Context, f nip77.Frame) *nip77.Frame {
	var reply *nip77.Frame
	switch f.Type {
	case nip77.TypeNegOpen:
		reply = r.handleOpen(ctx, f)
	case nip77.TypeNegMsg:
		reply = r.handleMsg(f)
	case nip77.TypeNegClose:
		r.sessions.Remove(f.SubscriptionID)
	default:
		notice := nip77.Notice(fmt.Sprintf("unsupported frame type %q", f.Type))
		reply = &notice
	}
	outcome := "ok"
	if reply != nil && reply.Type != nip77.TypeNegMsg {
		outcome = "error"
	}
	responderFrames.WithLabelValues(string(f.Type), outcome).Inc()
	return reply
}

// Sessions returns the number of open sessions.
func (r *Responder) Sessions() int {
	return r.sessions.Len()
}

// Close drops all of the sessions.
func (r *Responder) Close() {
	r.sessions.Purge()
}

func (r *Responder) fail(subID, reason string) *nip77.Frame {
	r.sessions.Remove(subID)
	f := nip77.Err(subID, reason)
	return &f
}

func (r *Responder) handleOpen(ctx context.Context, f nip77.Frame) *nip77.Frame {
	logger := r.logger.With(log.ZSubscription(f.SubscriptionID))
	// NEG-OPEN with an existing subscription id replaces the session
	r.sessions.Remove(f.SubscriptionID)
	if f.Filter == nil {
		return r.fail(f.SubscriptionID, "error: missing filter")
	}
	maxItems := 0
	if r.maxRecords > 0 {
		// one more record than allowed is enough to reject the snapshot
		maxItems = r.maxRecords + 1
	}
	items, err := r.source.Snapshot(ctx, *f.Filter, maxItems)
	if err != nil {
		logger.Warn("failed to load snapshot", zap.Error(err))
		return r.fail(f.SubscriptionID, "error: failed to load records")
	}
	if r.maxRecords > 0 && len(items) > r.maxRecords {
		logger.Debug("snapshot too big",
			zap.Int("count", len(items)),
			zap.Int("max", r.maxRecords))
		return r.fail(f.SubscriptionID, "blocked: too many query results")
	}
	storage, err := negentropy.NewStorage(items...)
	if err != nil {
		logger.Warn("failed to build storage", zap.Error(err))
		return r.fail(f.SubscriptionID, "error: "+err.Error())
	}
	rec := negentropy.NewReconciler(storage, r.cfg.ReconcilerOptions(logger)...)
	reply := r.process(f.SubscriptionID, rec, f.Payload)
	if reply.Type == nip77.TypeNegMsg {
		r.sessions.Add(f.SubscriptionID, rec)
		responderSessions.Inc()
		answeredReconciliations.Inc()
		logger.Debug("session opened", zap.Int("items", len(items)))
	}
	return reply
}

func (r *Responder) handleMsg(f nip77.Frame) *nip77.Frame {
	rec, found := r.sessions.Get(f.SubscriptionID)
	if !found {
		r.logger.Debug("NEG-MSG for unknown session", log.ZSubscription(f.SubscriptionID))
		return r.fail(f.SubscriptionID, "closed: unknown subscription")
	}
	return r.process(f.SubscriptionID, rec, f.Payload)
}

func (r *Responder) process(subID string, rec *negentropy.Reconciler, payload string) *nip77.Frame {
	resp, _, err := rec.ProcessRequestHex(payload)
	if err != nil {
		r.logger.Debug("bad reconciliation message", log.ZSubscription(subID), zap.Error(err))
		return r.fail(subID, "error: "+err.Error())
	}
	f := nip77.Msg(subID, resp)
	return &f
}
