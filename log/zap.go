package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ShortString is implemented by the types that have a compact representation for
// the logs.
type ShortString interface {
	ShortString() string
}

type shortStringer struct {
	s ShortString
}

func (s shortStringer) String() string {
	return s.s.ShortString()
}

// ZShortStringer returns a field that logs the short representation of the value.
// The representation is only computed when the entry is actually written.
func ZShortStringer(name string, val ShortString) zap.Field {
	return zap.Stringer(name, shortStringer{val})
}

// ZSubscription returns the subscription id field.
func ZSubscription(subID string) zap.Field {
	return zap.String("subscription", subID)
}

// ZRemote returns the remote peer address field.
func ZRemote(addr string) zap.Field {
	return zap.String("remote", addr)
}

// Nop is an option that disables this logger.
var Nop = zap.WrapCore(func(zapcore.Core) zapcore.Core {
	return zapcore.NewNopCore()
})
