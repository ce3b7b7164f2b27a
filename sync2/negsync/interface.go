package negsync

import (
	"context"

	"github.com/nostrsync/relay/nip77"
	"github.com/nostrsync/relay/sync2/negentropy"
)

//go:generate mockgen -typed -package=negsync -destination=./mocks.go -source=./interface.go

// FrameHandler receives the frames addressed to a subscription.
// It may be called from any goroutine.
type FrameHandler func(nip77.Frame)

// Transport is a relay connection that routes the incoming frames to the handlers by
// subscription id.
type Transport interface {
	// RegisterHandler registers the handler for the frames with the subscription id.
	RegisterHandler(subID string, h FrameHandler) error
	// UnregisterHandler removes the handler for the subscription id, if any.
	UnregisterHandler(subID string)
	// Send sends the frame to the peer.
	Send(ctx context.Context, f nip77.Frame) error
}

// SnapshotSource provides the snapshot of the records matching a filter.
type SnapshotSource interface {
	// Snapshot returns the records matching the filter. If maxItems is positive, at
	// most maxItems records are loaded.
	Snapshot(ctx context.Context, filter nip77.Filter, maxItems int) ([]negentropy.Item, error)
}
