// pkg/dev/context.go

package dev

import (
	"context"
	"time"
)

// Context carries the caller identity for the access log, plus the
// cancellation signal the store's guard waits on.
type Context interface {
	context.Context
	Uid() uint32
	Gid() uint32
	Pid() uint32
	Duration() time.Duration
	Canceled() bool
}

type emptyContext struct {
	context.Context
}

func (emptyContext) Uid() uint32             { return 0 }
func (emptyContext) Gid() uint32             { return 0 }
func (emptyContext) Pid() uint32             { return 1 }
func (emptyContext) Duration() time.Duration { return 0 }
func (emptyContext) Canceled() bool          { return false }

var Background Context = emptyContext{context.Background()}

type opContext struct {
	context.Context
	start time.Time
	pid   uint32
	uid   uint32
	gid   uint32
}

func (c *opContext) Uid() uint32 {
	return c.uid
}
func (c *opContext) Gid() uint32 {
	return c.gid
}
func (c *opContext) Pid() uint32 {
	return c.pid
}
func (c *opContext) Duration() time.Duration {
	return time.Since(c.start)
}
func (c *opContext) Canceled() bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

// NewContext creates a Context for the given caller.
func NewContext(pid, uid, gid uint32) Context {
	return WrapContext(context.Background(), pid, uid, gid)
}

// WrapContext attaches caller identity to an existing context so its
// cancellation interrupts guard waits.
func WrapContext(ctx context.Context, pid, uid, gid uint32) Context {
	return &opContext{ctx, time.Now(), pid, uid, gid}
}
