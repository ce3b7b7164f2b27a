package negsync

import (
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/nostrsync/relay/nip77"
	"github.com/nostrsync/relay/sync2/negentropy"
)

// session is the initiator side of a single reconciliation. The frames are delivered
// to it by the transport on arbitrary goroutines, and the syncer waits for the
// session to complete.
type session struct {
	subID  string
	rec    *negentropy.Reconciler
	logger *zap.Logger
	// notify is signalled after each change of the session state.
	notify chan struct{}

	mu       sync.Mutex
	have     map[negentropy.ID]struct{}
	need     map[negentropy.ID]struct{}
	outgoing []string
	rounds   int
	complete bool
	err      error
}

func newSession(subID string, rec *negentropy.Reconciler, logger *zap.Logger) *session {
	return &session{
		subID:  subID,
		rec:    rec,
		logger: logger,
		notify: make(chan struct{}, 1),
		have:   make(map[negentropy.ID]struct{}),
		need:   make(map[negentropy.ID]struct{}),
	}
}

func (s *session) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// handleFrame is the FrameHandler of the session.
func (s *session) handleFrame(f nip77.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.signal()
	if s.complete || s.err != nil {
		s.logger.Debug("ignoring frame for a finished session", zap.String("type", string(f.Type)))
		return
	}
	switch f.Type {
	case nip77.TypeNegMsg:
		s.handleMessage(f.Payload)
	case nip77.TypeNegErr, nip77.TypeClosed:
		s.logger.Debug("peer aborted reconciliation", zap.String("reason", f.Reason))
		s.err = &RemoteReconciliationError{SubscriptionID: s.subID, Reason: f.Reason}
	default:
		s.logger.Debug("unexpected frame", zap.Stringer("frame", f))
	}
}

func (s *session) handleMessage(payload string) {
	msg, err := negentropy.DecodeMessageHex(payload)
	if err != nil {
		s.err = fmt.Errorf("decode message: %w", err)
		return
	}
	res, err := s.rec.ProcessResponse(msg)
	if err != nil {
		s.err = fmt.Errorf("process message: %w", err)
		return
	}
	s.rounds++
	for _, id := range res.Have {
		s.have[id] = struct{}{}
	}
	for _, id := range res.Need {
		s.need[id] = struct{}{}
	}
	s.logger.Debug("processed message",
		zap.Int("round", s.rounds),
		zap.Int("have", len(res.Have)),
		zap.Int("need", len(res.Need)),
		zap.Bool("done", res.Done()))
	if res.Done() {
		s.complete = true
		return
	}
	out, err := res.Response.EncodeHex()
	if err != nil {
		s.err = fmt.Errorf("encode message: %w", err)
		return
	}
	s.outgoing = append(s.outgoing, out)
}

// state returns the pending outgoing messages along with the session status.
func (s *session) state() (outgoing []string, complete bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	outgoing, s.outgoing = s.outgoing, nil
	return outgoing, s.complete, s.err
}

func (s *session) numRounds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rounds
}

func (s *session) result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Result{
		Have:   sortedIDs(s.have),
		Need:   sortedIDs(s.need),
		Rounds: s.rounds,
	}
}

func sortedIDs(m map[negentropy.ID]struct{}) []negentropy.ID {
	ids := make([]negentropy.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, negentropy.ID.Compare)
	return ids
}
