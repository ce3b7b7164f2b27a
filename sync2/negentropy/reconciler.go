package negentropy

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nostrsync/relay/log"
)

// Interactions:
//
// A: empty set; B: empty set
// A -> B:
//
//	(no ranges)
//
// B -> A:
//
//	(no ranges)
//
// A: empty set; B: non-empty set
// A -> B:
//
//	(no ranges)
//
// B -> A:
//
//	IdList [min, max)
//
// A -> B: done, A needs all of the ids in B's IdList.
//
// A: non-empty set; B: non-empty set, count <= idListThreshold
// A -> B:
//
//	Fingerprint [min, max)
//
// B -> A:
//
//	IdList [min, max)   (or nothing, if the fingerprints match)
//
// A -> B: done.
//
// A: non-empty set; B: non-empty set, count > idListThreshold
// A -> B:
//
//	Fingerprint [min, max)
//
// B -> A:
//
//	Fingerprint [min, m)
//	Fingerprint [m, max)
//
// A -> B:
//
//	Skip [min, m)         (matching fingerprint)
//	IdList [m, max)
//
// B -> A:
//
//	IdList [m, max)
//
// A -> B: done.

const (
	// DefaultIDListThreshold is the maximum number of items in a mismatched range that
	// are sent as an IdList instead of splitting the range further.
	DefaultIDListThreshold = 32
	// MinFrameSizeLimit is the minimum non-zero frame size limit.
	MinFrameSizeLimit = 4096
	// remainderRangeSize is the encoded size of a fingerprint range ending at
	// infinity, which is used to continue the reconciliation in the next round when
	// the frame size limit is reached.
	remainderRangeSize = 2 + 1 + FingerprintSize
	// idListChunkSize is the maximum number of ids in a single IdList range.
	// 100 ids take 3200 bytes, less than MinFrameSizeLimit.
	idListChunkSize = 100
)

type role int

const (
	roleResponder role = iota
	roleInitiator
)

func (r role) String() string {
	if r == roleInitiator {
		return "initiator"
	}
	return "responder"
}

// ReconcilerOption specifies an option for the Reconciler.
type ReconcilerOption func(r *Reconciler)

// WithIDListThreshold sets the maximum number of local items in a mismatched range
// for which an IdList is sent instead of splitting the range in two.
func WithIDListThreshold(n int) ReconcilerOption {
	return func(r *Reconciler) {
		r.idListThreshold = n
	}
}

// WithFrameSizeLimit sets the soft limit on the size of the outgoing messages.
// Zero means no limit.
func WithFrameSizeLimit(n int) ReconcilerOption {
	return func(r *Reconciler) {
		r.frameSizeLimit = n
	}
}

// WithLogger specifies the logger for the Reconciler.
func WithLogger(logger *zap.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// Result is the result of processing a single incoming message.
type Result struct {
	// Response is the message to be sent back to the peer. An empty Response
	// means that the reconciliation is complete.
	Response *Message
	// Have contains the ids that are present locally but not on the peer.
	Have []ID
	// Need contains the ids that are present on the peer but not locally.
	Need []ID
}

// Done returns true if the reconciliation is complete.
func (r *Result) Done() bool {
	return r.Response.Empty()
}

// Reconciler implements the range-based set reconciliation protocol against a sealed
// Storage. It doesn't keep any state between the rounds: each call processes one
// incoming message and produces one outgoing message.
type Reconciler struct {
	storage         *Storage
	frameSizeLimit  int
	idListThreshold int
	logger          *zap.Logger
}

// NewReconciler creates a new Reconciler for the storage.
func NewReconciler(s *Storage, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		storage:         s,
		idListThreshold: DefaultIDListThreshold,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.idListThreshold < 1 {
		panic("BUG: bad idListThreshold")
	}
	if r.frameSizeLimit != 0 && r.frameSizeLimit < MinFrameSizeLimit {
		panic("BUG: frameSizeLimit too small")
	}
	return r
}

// Initiate returns the opening message of the reconciliation.
// If the local set is empty, the message has no ranges, which tells the peer to send
// all of its ids. Otherwise, the message contains the fingerprint of the whole set.
func (r *Reconciler) Initiate() (*Message, error) {
	if err := r.storage.checkSealed(); err != nil {
		return nil, err
	}
	if len(r.storage.items) == 0 {
		r.logger.Debug("initiate: empty set")
		return &Message{}, nil
	}
	fp := itemsFingerprint(r.storage.items)
	r.logger.Debug("initiate: whole set fingerprint",
		zap.Int("count", len(r.storage.items)),
		log.ZShortStringer("fingerprint", fp))
	return &Message{
		Ranges: []Range{{UpperBound: MaxBound(), Mode: ModeFingerprint, Fingerprint: fp}},
	}, nil
}

// InitiateHex returns the hex-encoded opening message of the reconciliation.
func (r *Reconciler) InitiateHex() (string, error) {
	msg, err := r.Initiate()
	if err != nil {
		return "", err
	}
	return msg.EncodeHex()
}

// ProcessRequest processes a message received by the responder side of the
// reconciliation.
func (r *Reconciler) ProcessRequest(msg *Message) (*Result, error) {
	return r.process(msg, roleResponder)
}

// ProcessResponse processes a message received by the initiator side of the
// reconciliation. It runs the same range comparison as ProcessRequest. The only
// difference is that the initiator settles IdList ranges instead of echoing its own
// ids back, which eventually makes the exchange terminate.
func (r *Reconciler) ProcessResponse(msg *Message) (*Result, error) {
	return r.process(msg, roleInitiator)
}

// ProcessRequestHex is the same as ProcessRequest, but accepts and returns
// hex-encoded messages.
func (r *Reconciler) ProcessRequestHex(query string) (string, *Result, error) {
	return r.processHex(query, roleResponder)
}

// ProcessResponseHex is the same as ProcessResponse, but accepts and returns
// hex-encoded messages.
func (r *Reconciler) ProcessResponseHex(query string) (string, *Result, error) {
	return r.processHex(query, roleInitiator)
}

func (r *Reconciler) processHex(query string, rl role) (string, *Result, error) {
	msg, err := DecodeMessageHex(query)
	if err != nil {
		return "", nil, err
	}
	res, err := r.process(msg, rl)
	if err != nil {
		return "", nil, err
	}
	out, err := res.Response.EncodeHex()
	if err != nil {
		return "", nil, err
	}
	return out, res, nil
}

func (r *Reconciler) process(msg *Message, rl role) (*Result, error) {
	if err := r.storage.checkSealed(); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	r.logger.Debug("process message",
		zap.Stringer("role", rl),
		zap.Array("ranges", msg))
	res := &Result{Response: &Message{}}
	if msg.Empty() {
		if rl == roleResponder {
			// The peer has nothing to compare, send it everything we have.
			r.handleMissingRange(res, MinBound(), MaxBound())
		}
		return r.finish(res)
	}
	lower := MinBound()
	for _, rng := range msg.Ranges {
		switch rng.Mode {
		case ModeSkip:
			r.skip(res, rng.UpperBound)
		case ModeFingerprint:
			r.handleFingerprint(res, lower, rng.UpperBound, rng.Fingerprint)
		case ModeIDList:
			r.handleIDList(res, lower, rng.UpperBound, rng.IDs, rl)
		default:
			return nil, fmt.Errorf("%w: unknown mode %d", ErrProtocol, uint64(rng.Mode))
		}
		lower = rng.UpperBound
	}
	return r.finish(res)
}

func (r *Reconciler) skip(res *Result, upper Bound) {
	res.Response.Ranges = append(res.Response.Ranges, Range{UpperBound: upper, Mode: ModeSkip})
}

// sendIDList sends the items as IdList ranges of at most idListChunkSize ids. Each
// chunk except the last one ends at the bound of the next item, so that the frame
// size limit can cut the response between the chunks.
func (r *Reconciler) sendIDList(res *Result, upper Bound, items []Item) {
	for {
		n := min(len(items), idListChunkSize)
		chunkUpper := upper
		if n < len(items) {
			chunkUpper = items[n].Bound()
		}
		ids := make([]ID, n)
		for i := range ids {
			ids[i] = items[i].ID
		}
		res.Response.Ranges = append(res.Response.Ranges,
			Range{UpperBound: chunkUpper, Mode: ModeIDList, IDs: ids})
		items = items[n:]
		if len(items) == 0 {
			return
		}
	}
}

// handleMissingRange handles a range for which the peer has no items.
func (r *Reconciler) handleMissingRange(res *Result, lower, upper Bound) {
	items := r.storage.rangeItems(lower, upper)
	if len(items) == 0 {
		r.skip(res, upper)
		return
	}
	r.logger.Debug("peer range is empty, sending all items",
		zap.Stringer("lower", lower), zap.Stringer("upper", upper),
		zap.Int("count", len(items)))
	for i := range items {
		res.Have = append(res.Have, items[i].ID)
	}
	r.sendIDList(res, upper, items)
}

func (r *Reconciler) handleFingerprint(res *Result, lower, upper Bound, fp Fingerprint) {
	items := r.storage.rangeItems(lower, upper)
	localFP := itemsFingerprint(items)
	switch {
	case localFP == fp:
		r.logger.Debug("fingerprints match",
			zap.Stringer("lower", lower), zap.Stringer("upper", upper))
		r.skip(res, upper)
	case len(items) <= r.idListThreshold:
		r.logger.Debug("fingerprint mismatch: send id list",
			zap.Stringer("lower", lower), zap.Stringer("upper", upper),
			zap.Int("count", len(items)))
		r.sendIDList(res, upper, items)
	default:
		middle := r.storage.midpoint(lower, upper)
		fp0 := r.storage.fingerprint(lower, middle)
		fp1 := r.storage.fingerprint(middle, upper)
		r.logger.Debug("fingerprint mismatch: split range",
			zap.Stringer("lower", lower), zap.Stringer("upper", upper),
			zap.Stringer("middle", middle),
			zap.Int("count", len(items)))
		res.Response.Ranges = append(res.Response.Ranges,
			Range{UpperBound: middle, Mode: ModeFingerprint, Fingerprint: fp0},
			Range{UpperBound: upper, Mode: ModeFingerprint, Fingerprint: fp1})
	}
}

func (r *Reconciler) handleIDList(res *Result, lower, upper Bound, theirs []ID, rl role) {
	items := r.storage.rangeItems(lower, upper)
	remote := make(map[ID]struct{}, len(theirs))
	for _, id := range theirs {
		remote[id] = struct{}{}
	}
	nHave, nNeed := len(res.Have), len(res.Need)
	for i := range items {
		if _, found := remote[items[i].ID]; found {
			delete(remote, items[i].ID)
		} else {
			res.Have = append(res.Have, items[i].ID)
		}
	}
	for _, id := range theirs {
		if _, found := remote[id]; found {
			res.Need = append(res.Need, id)
			delete(remote, id)
		}
	}
	r.logger.Debug("id list compared",
		zap.Stringer("role", rl),
		zap.Stringer("lower", lower), zap.Stringer("upper", upper),
		zap.Int("local", len(items)),
		zap.Int("remote", len(theirs)),
		zap.Int("have", len(res.Have)-nHave),
		zap.Int("need", len(res.Need)-nNeed))
	if rl == roleInitiator {
		r.skip(res, upper)
		return
	}
	r.sendIDList(res, upper, items)
}

// finish normalizes the response and applies the frame size limit to it.
func (r *Reconciler) finish(res *Result) (*Result, error) {
	res.Response.Ranges = res.Response.trimmed()
	if r.frameSizeLimit == 0 {
		return res, nil
	}
	var (
		buf     []byte
		prev    uint64
		err     error
		size    = 1
		limit   = r.frameSizeLimit - remainderRangeSize
		payload = false
	)
	for n, rng := range res.Response.Ranges {
		if buf, err = rng.appendEncoded(buf[:0], prev); err != nil {
			return nil, err
		}
		// At least one range with payload is always sent so that each round makes
		// progress.
		if payload && size+len(buf) > limit {
			lower := res.Response.Ranges[n-1].UpperBound
			fp := r.storage.fingerprint(lower, MaxBound())
			r.logger.Debug("frame size limit reached",
				zap.Int("size", size),
				zap.Int("sentRanges", n),
				zap.Int("deferredRanges", len(res.Response.Ranges)-n),
				zap.Stringer("lower", lower))
			res.Response.Ranges = append(res.Response.Ranges[:n],
				Range{UpperBound: MaxBound(), Mode: ModeFingerprint, Fingerprint: fp})
			break
		}
		size += len(buf)
		prev = rng.UpperBound.Timestamp
		payload = payload || rng.Mode != ModeSkip
	}
	return res, nil
}
