package negsync

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/nostrsync/relay/log/logtest"
	"github.com/nostrsync/relay/nip77"
	"github.com/nostrsync/relay/sync2/negentropy"
)

func initialMessage(tb testing.TB, items ...negentropy.Item) string {
	tb.Helper()
	s, err := negentropy.NewStorage(items...)
	require.NoError(tb, err)
	msg, err := negentropy.NewReconciler(s).InitiateHex()
	require.NoError(tb, err)
	return msg
}

func TestResponderOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := NewMockSnapshotSource(ctrl)
	since := int64(100)
	filter := nip77.Filter{Kinds: []int{1}, Since: &since}
	items := randomItems(5)
	src.EXPECT().Snapshot(gomock.Any(), filter, 0).Return(items, nil)
	r := NewResponder(src, WithResponderLogger(logtest.New(t)))

	reply := r.Handle(context.Background(), nip77.Open("sub1", filter, initialMessage(t)))
	require.NotNil(t, reply)
	require.Equal(t, nip77.TypeNegMsg, reply.Type)
	require.Equal(t, "sub1", reply.SubscriptionID)
	msg, err := negentropy.DecodeMessageHex(reply.Payload)
	require.NoError(t, err)
	require.Len(t, msg.Ranges, 1)
	require.Equal(t, negentropy.ModeIDList, msg.Ranges[0].Mode)
	require.ElementsMatch(t, ids(items), msg.Ranges[0].IDs)
	require.Equal(t, 1, r.Sessions())

	require.Nil(t, r.Handle(context.Background(), nip77.Close("sub1")))
	require.Zero(t, r.Sessions())
}

func TestResponderEmptyReply(t *testing.T) {
	items := randomItems(5)
	r := NewResponder(staticSource(items))
	// matching fingerprint, nothing to do
	reply := r.Handle(context.Background(), nip77.Open("sub1", nip77.Filter{}, initialMessage(t, items...)))
	require.Equal(t, nip77.TypeNegMsg, reply.Type)
	require.Equal(t, "61", reply.Payload)
}

func TestResponderReplaceSession(t *testing.T) {
	r := NewResponder(staticSource(randomItems(5)))
	for range 3 {
		reply := r.Handle(context.Background(), nip77.Open("sub1", nip77.Filter{}, initialMessage(t)))
		require.Equal(t, nip77.TypeNegMsg, reply.Type)
		require.Equal(t, 1, r.Sessions())
	}
}

func TestResponderMaxSessions(t *testing.T) {
	r := NewResponder(staticSource(randomItems(5)), WithMaxSessions(2))
	for _, subID := range []string{"a", "b", "c"} {
		reply := r.Handle(context.Background(), nip77.Open(subID, nip77.Filter{}, initialMessage(t)))
		require.Equal(t, nip77.TypeNegMsg, reply.Type)
	}
	require.Equal(t, 2, r.Sessions())
	// the least recently used session is dropped
	reply := r.Handle(context.Background(), nip77.Msg("a", "61"))
	require.Equal(t, nip77.TypeNegErr, reply.Type)
	require.True(t, strings.HasPrefix(reply.Reason, "closed:"), reply.Reason)
	reply = r.Handle(context.Background(), nip77.Msg("c", "61"))
	require.Equal(t, nip77.TypeNegMsg, reply.Type)

	r.Close()
	require.Zero(t, r.Sessions())
}

func TestResponderErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := NewMockSnapshotSource(ctrl)
	r := NewResponder(src, WithMaxRecords(3))
	ctx := context.Background()

	src.EXPECT().Snapshot(gomock.Any(), gomock.Any(), 4).Return(nil, errors.New("db error"))
	reply := r.Handle(ctx, nip77.Open("sub1", nip77.Filter{}, initialMessage(t)))
	require.Equal(t, nip77.Err("sub1", "error: failed to load records"), *reply)

	src.EXPECT().Snapshot(gomock.Any(), gomock.Any(), 4).Return(randomItems(4), nil)
	reply = r.Handle(ctx, nip77.Open("sub1", nip77.Filter{}, initialMessage(t)))
	require.Equal(t, nip77.Err("sub1", "blocked: too many query results"), *reply)

	item := negentropy.Item{Timestamp: 1, ID: negentropy.RandomID()}
	src.EXPECT().Snapshot(gomock.Any(), gomock.Any(), 4).Return([]negentropy.Item{item, item}, nil)
	reply = r.Handle(ctx, nip77.Open("sub1", nip77.Filter{}, initialMessage(t)))
	require.Equal(t, nip77.TypeNegErr, reply.Type)
	require.True(t, strings.HasPrefix(reply.Reason, "error:"), reply.Reason)

	src.EXPECT().Snapshot(gomock.Any(), gomock.Any(), 4).Return(randomItems(2), nil)
	reply = r.Handle(ctx, nip77.Open("sub1", nip77.Filter{}, "60"))
	require.Equal(t, nip77.TypeNegErr, reply.Type)
	require.True(t, strings.HasPrefix(reply.Reason, "error:"), reply.Reason)
	require.Zero(t, r.Sessions())

	// a bad message closes the session
	src.EXPECT().Snapshot(gomock.Any(), gomock.Any(), 4).Return(randomItems(2), nil)
	reply = r.Handle(ctx, nip77.Open("sub1", nip77.Filter{}, initialMessage(t)))
	require.Equal(t, nip77.TypeNegMsg, reply.Type)
	reply = r.Handle(ctx, nip77.Msg("sub1", "not hex"))
	require.Equal(t, nip77.TypeNegErr, reply.Type)
	require.Zero(t, r.Sessions())

	reply = r.Handle(ctx, nip77.Notice("hello"))
	require.Equal(t, nip77.TypeNotice, reply.Type)
}

func TestResponderMissingFilter(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewResponder(NewMockSnapshotSource(ctrl))

	reply := r.Handle(context.Background(), nip77.Frame{
		Type:           nip77.TypeNegOpen,
		SubscriptionID: "sub1",
		Payload:        initialMessage(t),
	})
	require.NotNil(t, reply)
	require.Equal(t, nip77.Err("sub1", "error: missing filter"), *reply)
	require.Zero(t, r.Sessions())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Timeout = 0
	cfg.IDListThreshold = 0
	cfg.FrameSizeLimit = 100
	err := cfg.Validate()
	require.ErrorContains(t, err, "timeout")
	require.ErrorContains(t, err, "id-list-threshold")
	require.ErrorContains(t, err, "frame-size-limit")

	require.Panics(t, func() { NewSyncer(nil, WithConfig(cfg)) })
	require.Panics(t, func() { NewResponder(nil, WithResponderConfig(cfg)) })
}
