// pkg/dev/handle.go

package dev

import (
	"io"
	"sync/atomic"

	"MemDev/pkg/store"
	"github.com/pkg/errors"
)

// Handle is one open of a Device. Its cursor is owned by the handle
// alone and needs no locking; only the shared Store is guarded.
type Handle struct {
	id  string
	d   *Device
	s   atomic.Pointer[store.Store] // cleared on close
	pos int64
}

// ID returns the session id used in the access log.
func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) store() (*store.Store, error) {
	if s := h.s.Load(); s != nil {
		return s, nil
	}
	return nil, errors.Wrapf(store.ErrFault, "handle %s is closed", h.id)
}

// Pread reads at an explicit offset without moving the cursor. The
// FUSE binding uses it with kernel-supplied offsets.
func (h *Handle) Pread(ctx Context, p []byte, off int64) (n int, err error) {
	defer func() { h.d.logit(ctx, "read (%s,%d,%d): %s (%d)", h.id[:8], len(p), off, strerr(err), n) }()
	s, err := h.store()
	if err != nil {
		return 0, err
	}
	n, err = s.ReadAt(ctx, p, off)
	if n > 0 && h.d.downLimit != nil {
		// throttle outside the guard so a slow reader can not stall writers
		h.d.downLimit.Wait(int64(n))
	}
	return n, err
}

// Pwrite writes at an explicit offset without moving the cursor.
func (h *Handle) Pwrite(ctx Context, data []byte, off int64) (n int, err error) {
	defer func() { h.d.logit(ctx, "write (%s,%d,%d): %s (%d)", h.id[:8], len(data), off, strerr(err), n) }()
	s, err := h.store()
	if err != nil {
		return 0, err
	}
	if h.d.conf.ReadOnly {
		return 0, errors.Wrapf(store.ErrInvalidArgument, "%s is read-only", h.d.conf.Name)
	}
	if len(data) > 0 && h.d.upLimit != nil {
		h.d.upLimit.Wait(int64(len(data)))
	}
	return s.WriteAt(ctx, data, off)
}

// Read transfers up to len(p) bytes from the cursor position and
// advances the cursor by the bytes actually returned.
func (h *Handle) Read(ctx Context, p []byte) (int, error) {
	n, err := h.Pread(ctx, p, h.pos)
	h.pos += int64(n)
	return n, err
}

// Write transfers data at the cursor position and advances the cursor
// by the bytes actually accepted, which may be fewer than len(data)
// when the write is clamped at capacity.
func (h *Handle) Write(ctx Context, data []byte) (int, error) {
	n, err := h.Pwrite(ctx, data, h.pos)
	h.pos += int64(n)
	return n, err
}

// Seek moves the cursor. The target must land in [0, capacity]; an
// out-of-range target fails with ErrInvalidArgument and leaves the
// cursor where it was.
func (h *Handle) Seek(ctx Context, offset int64, whence int) (npos int64, err error) {
	defer func() { h.d.logit(ctx, "seek (%s,%d,%d): %s (%d)", h.id[:8], offset, whence, strerr(err), npos) }()
	s, err := h.store()
	if err != nil {
		return h.pos, err
	}
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = h.pos + offset
	case io.SeekEnd:
		length, err := s.Length(ctx)
		if err != nil {
			return h.pos, err
		}
		pos = int64(length) + offset
	default:
		return h.pos, errors.Wrapf(store.ErrInvalidArgument, "whence %d", whence)
	}
	if pos < 0 || pos > int64(s.Capacity()) {
		return h.pos, errors.Wrapf(store.ErrInvalidArgument, "seek to %d, capacity %d", pos, s.Capacity())
	}
	h.pos = pos
	return pos, nil
}

// Close releases the handle. Further operations fail with ErrFault;
// closing twice is a no-op.
func (h *Handle) Close(ctx Context) error {
	if h.s.Swap(nil) == nil {
		return nil
	}
	atomic.AddInt32(&h.d.opens, -1)
	h.d.logit(ctx, "close (%s): OK", h.id[:8])
	return nil
}
