package negsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nostrsync/relay/nip77"
	"github.com/nostrsync/relay/sync2/negentropy"
)

// staticSource is a SnapshotSource that ignores the filter.
type staticSource []negentropy.Item

func (s staticSource) Snapshot(context.Context, nip77.Filter, int) ([]negentropy.Item, error) {
	return s, nil
}

// pipeTransport connects a Syncer directly to a Responder. The frames are passed
// through their JSON encoding in both directions.
type pipeTransport struct {
	tb        testing.TB
	responder *Responder

	mu       sync.Mutex
	handlers map[string]FrameHandler
	sent     []nip77.Frame
}

var _ Transport = &pipeTransport{}

func newPipeTransport(tb testing.TB, responder *Responder) *pipeTransport {
	return &pipeTransport{
		tb:        tb,
		responder: responder,
		handlers:  make(map[string]FrameHandler),
	}
}

func (p *pipeTransport) RegisterHandler(subID string, h FrameHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, found := p.handlers[subID]; found {
		return errors.New("duplicate handler")
	}
	p.handlers[subID] = h
	return nil
}

func (p *pipeTransport) UnregisterHandler(subID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, subID)
}

func (p *pipeTransport) numHandlers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers)
}

func (p *pipeTransport) sentFrames() []nip77.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]nip77.Frame(nil), p.sent...)
}

func (p *pipeTransport) wire(f nip77.Frame) nip77.Frame {
	data, err := json.Marshal(f)
	require.NoError(p.tb, err)
	parsed, err := nip77.ParseFrame(data)
	require.NoError(p.tb, err)
	return parsed
}

func (p *pipeTransport) Send(ctx context.Context, f nip77.Frame) error {
	f = p.wire(f)
	p.mu.Lock()
	p.sent = append(p.sent, f)
	p.mu.Unlock()
	reply := p.responder.Handle(ctx, f)
	if reply == nil {
		return nil
	}
	r := p.wire(*reply)
	p.mu.Lock()
	h := p.handlers[r.SubscriptionID]
	p.mu.Unlock()
	if h != nil {
		h(r)
	}
	return nil
}
