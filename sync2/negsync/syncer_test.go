package negsync

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/nostrsync/relay/log/logtest"
	"github.com/nostrsync/relay/nip77"
	"github.com/nostrsync/relay/sync2/negentropy"
)

func randomItems(n int) []negentropy.Item {
	items := make([]negentropy.Item, n)
	for i := range items {
		items[i] = negentropy.Item{Timestamp: rand.Uint64N(1 << 20), ID: negentropy.RandomID()}
	}
	return items
}

func ids(items []negentropy.Item) []negentropy.ID {
	r := make([]negentropy.ID, len(items))
	for i, it := range items {
		r[i] = it.ID
	}
	slices.SortFunc(r, negentropy.ID.Compare)
	return r
}

func TestSyncWithResponder(t *testing.T) {
	for _, tc := range []struct {
		name                  string
		common, local, remote int
		cfg                   Config
	}{
		{
			name:   "small",
			common: 10,
			local:  2,
			remote: 3,
			cfg:    DefaultConfig(),
		},
		{
			name:   "large",
			common: 3000,
			local:  100,
			remote: 200,
			cfg:    DefaultConfig(),
		},
		{
			name:   "frame size limit",
			common: 1000,
			local:  500,
			remote: 500,
			cfg: Config{
				Timeout:         time.Minute,
				WaitSlice:       time.Second,
				IDListThreshold: 8,
				FrameSizeLimit:  negentropy.MinFrameSizeLimit,
			},
		},
		{
			name:   "local empty",
			remote: 100,
			cfg:    DefaultConfig(),
		},
		{
			name:  "remote empty",
			local: 100,
			cfg:   DefaultConfig(),
		},
		{
			name: "both empty",
			cfg:  DefaultConfig(),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logger := logtest.New(t)
			common := randomItems(tc.common)
			local := randomItems(tc.local)
			remote := randomItems(tc.remote)
			responder := NewResponder(
				staticSource(append(slices.Clone(common), remote...)),
				WithResponderLogger(logger.Named("responder")),
				WithResponderConfig(tc.cfg))
			transport := newPipeTransport(t, responder)
			syncer := NewSyncer(transport,
				WithLogger(logger.Named("syncer")),
				WithConfig(tc.cfg))

			res, err := syncer.Sync(context.Background(), Request{
				SubscriptionID: "sub1",
				Items:          append(slices.Clone(common), local...),
			})
			require.NoError(t, err)
			require.Equal(t, ids(local), res.Have)
			require.Equal(t, ids(remote), res.Need)
			require.NotZero(t, res.Rounds)

			require.Zero(t, transport.numHandlers())
			require.Zero(t, responder.Sessions())
			sent := transport.sentFrames()
			require.Equal(t, nip77.TypeNegOpen, sent[0].Type)
			require.Equal(t, nip77.TypeNegClose, sent[len(sent)-1].Type)
			for _, f := range sent {
				require.Equal(t, "sub1", f.SubscriptionID)
			}
		})
	}
}

func TestSyncRandomSubscriptionID(t *testing.T) {
	transport := newPipeTransport(t, NewResponder(staticSource(nil)))
	res, err := NewSyncer(transport).Sync(context.Background(), Request{})
	require.NoError(t, err)
	require.Empty(t, res.Have)
	require.Empty(t, res.Need)
	require.Equal(t, 1, res.Rounds)
	sent := transport.sentFrames()
	require.Len(t, sent, 2)
	require.Len(t, sent[0].SubscriptionID, 36)
}

func TestSyncRemoteError(t *testing.T) {
	responder := NewResponder(staticSource(randomItems(10)), WithMaxRecords(5))
	transport := newPipeTransport(t, responder)
	_, err := NewSyncer(transport).Sync(context.Background(), Request{SubscriptionID: "sub1"})
	require.ErrorIs(t, err, &RemoteReconciliationError{})
	require.NotErrorIs(t, err, &SyncTimeoutError{})
	var remoteErr *RemoteReconciliationError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, "blocked: too many query results", remoteErr.Reason)
	require.Zero(t, transport.numHandlers())
	// the peer has already dropped the session, so no NEG-CLOSE is sent
	sent := transport.sentFrames()
	require.Len(t, sent, 1)
	require.Equal(t, nip77.TypeNegOpen, sent[0].Type)
}

func expectSession(tb testing.TB, tr *MockTransport, subID string, sent chan<- nip77.Frame) *FrameHandler {
	var handler FrameHandler
	tr.EXPECT().RegisterHandler(subID, gomock.Any()).
		DoAndReturn(func(_ string, h FrameHandler) error {
			handler = h
			return nil
		})
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, f nip77.Frame) error {
			require.Equal(tb, subID, f.SubscriptionID)
			if sent != nil {
				sent <- f
			}
			return nil
		}).AnyTimes()
	tr.EXPECT().UnregisterHandler(subID)
	return &handler
}

func TestSyncTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	sent := make(chan nip77.Frame, 10)
	expectSession(t, tr, "sub1", sent)
	clock := clockwork.NewFakeClock()
	syncer := NewSyncer(tr,
		WithLogger(logtest.New(t)),
		WithClock(clock),
		WithTimeout(50*time.Second),
		WithWaitSlice(20*time.Second))

	errCh := make(chan error, 1)
	go func() {
		_, err := syncer.Sync(context.Background(), Request{
			SubscriptionID: "sub1",
			Items:          randomItems(10),
		})
		errCh <- err
	}()
	require.Equal(t, nip77.TypeNegOpen, (<-sent).Type)
	for _, step := range []time.Duration{20 * time.Second, 20 * time.Second} {
		clock.BlockUntil(1)
		clock.Advance(step)
		select {
		case err := <-errCh:
			require.FailNow(t, "sync finished early", "error: %v", err)
		default:
		}
	}
	clock.BlockUntil(1)
	clock.Advance(10 * time.Second)
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, &SyncTimeoutError{})
		var timeoutErr *SyncTimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		require.Equal(t, "sub1", timeoutErr.SubscriptionID)
		require.Equal(t, 50*time.Second, timeoutErr.Timeout)
	case <-time.After(10 * time.Second):
		require.FailNow(t, "timed out waiting for sync to finish")
	}
	require.Equal(t, nip77.TypeNegClose, (<-sent).Type)
}

func TestSyncTimeoutRealClock(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	expectSession(t, tr, "sub1", nil)
	syncer := NewSyncer(tr,
		WithTimeout(100*time.Millisecond),
		WithWaitSlice(30*time.Millisecond))
	start := time.Now()
	_, err := syncer.Sync(context.Background(), Request{SubscriptionID: "sub1"})
	require.ErrorIs(t, err, &SyncTimeoutError{})
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	require.Less(t, elapsed, 5*time.Second)
}

func TestSyncContextCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	sent := make(chan nip77.Frame, 10)
	expectSession(t, tr, "sub1", sent)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := NewSyncer(tr).Sync(ctx, Request{SubscriptionID: "sub1"})
		errCh <- err
	}()
	require.Equal(t, nip77.TypeNegOpen, (<-sent).Type)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.Equal(t, nip77.TypeNegClose, (<-sent).Type)
}

func TestSyncTransportErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	errRegister := errors.New("register failed")
	tr.EXPECT().RegisterHandler("sub1", gomock.Any()).Return(errRegister)
	_, err := NewSyncer(tr).Sync(context.Background(), Request{SubscriptionID: "sub1"})
	require.ErrorIs(t, err, errRegister)

	errSend := errors.New("send failed")
	tr.EXPECT().RegisterHandler("sub1", gomock.Any()).Return(nil)
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errSend).Times(2)
	tr.EXPECT().UnregisterHandler("sub1")
	_, err = NewSyncer(tr).Sync(context.Background(), Request{SubscriptionID: "sub1"})
	require.ErrorIs(t, err, errSend)

	item := negentropy.Item{Timestamp: 1, ID: negentropy.RandomID()}
	_, err = NewSyncer(tr).Sync(context.Background(), Request{
		SubscriptionID: "sub1",
		Items:          []negentropy.Item{item, item},
	})
	require.ErrorIs(t, err, negentropy.ErrStorage)
}

func TestSyncBadMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	sent := make(chan nip77.Frame, 10)
	handler := expectSession(t, tr, "sub1", sent)
	errCh := make(chan error, 1)
	go func() {
		_, err := NewSyncer(tr).Sync(context.Background(), Request{SubscriptionID: "sub1"})
		errCh <- err
	}()
	require.Equal(t, nip77.TypeNegOpen, (<-sent).Type)
	(*handler)(nip77.Msg("sub1", "60"))
	require.ErrorIs(t, <-errCh, negentropy.ErrProtocol)
	require.Equal(t, nip77.TypeNegClose, (<-sent).Type)
}

func TestSyncConcurrentDeliveries(t *testing.T) {
	const numDeliveries, idsPerDelivery = 20, 50
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	sent := make(chan nip77.Frame, numDeliveries+10)
	handler := expectSession(t, tr, "sub1", sent)
	type syncResult struct {
		res *Result
		err error
	}
	resCh := make(chan syncResult, 1)
	go func() {
		res, err := NewSyncer(tr, WithLogger(logtest.New(t))).
			Sync(context.Background(), Request{SubscriptionID: "sub1"})
		resCh <- syncResult{res: res, err: err}
	}()
	require.Equal(t, nip77.TypeNegOpen, (<-sent).Type)

	var (
		wg       sync.WaitGroup
		expected []negentropy.ID
	)
	for range numDeliveries {
		partial := make([]negentropy.ID, idsPerDelivery)
		for i := range partial {
			partial[i] = negentropy.RandomID()
		}
		expected = append(expected, partial...)
		// a message that reports the ids but leaves a mismatched range open
		msg := negentropy.Message{Ranges: []negentropy.Range{
			{
				UpperBound: negentropy.Bound{Timestamp: 1000},
				Mode:       negentropy.ModeIDList,
				IDs:        partial,
			},
			{
				UpperBound:  negentropy.MaxBound(),
				Mode:        negentropy.ModeFingerprint,
				Fingerprint: negentropy.ComputeFingerprint(partial),
			},
		}}
		payload, err := msg.EncodeHex()
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			(*handler)(nip77.Msg("sub1", payload))
		}()
	}
	wg.Wait()
	// the empty message completes the reconciliation
	(*handler)(nip77.Msg("sub1", "61"))

	select {
	case r := <-resCh:
		require.NoError(t, r.err)
		res := r.res
		slices.SortFunc(expected, negentropy.ID.Compare)
		require.Equal(t, expected, res.Need)
		require.Empty(t, res.Have)
		require.Equal(t, numDeliveries+1, res.Rounds)
	case <-time.After(10 * time.Second):
		require.FailNow(t, "timed out waiting for sync to finish")
	}
}
