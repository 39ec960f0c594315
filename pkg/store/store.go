// pkg/store/store.go

package store

import (
	"context"

	"MemDev/pkg/utils"
	"github.com/pkg/errors"
)

var logger = utils.GetLogger("memdev")

// DefaultCapacity is the buffer size of the classic tutorial drivers.
const DefaultCapacity = 1024

// Store is a fixed-capacity in-memory byte buffer. length is the
// high-water mark: the number of leading bytes holding valid data.
// Reads never go beyond length, writes may extend it up to capacity.
//
// buf and length are only touched while the guard is held; the guard
// is kept for the whole operation (bound computation, copy and length
// update together), so concurrent readers can never observe a length
// that runs ahead of the bytes actually in place.
type Store struct {
	guard    chan struct{}
	buf      []byte
	length   int
	capacity int
}

// New creates a Store with the given capacity. Non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		guard:    make(chan struct{}, 1),
		buf:      make([]byte, capacity),
		capacity: capacity,
	}
}

// Lock acquires the exclusive guard. The wait is interruptible: when
// ctx is cancelled before the guard is free, Lock fails with
// ErrInterrupted and nothing is left locked.
func (s *Store) Lock(ctx context.Context) error {
	select {
	case s.guard <- struct{}{}:
		return nil
	default:
	}
	select {
	case s.guard <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ErrInterrupted, "waiting for buffer lock")
	}
}

// Unlock releases the guard acquired by Lock.
func (s *Store) Unlock() {
	<-s.guard
}

// Capacity returns the fixed buffer size.
func (s *Store) Capacity() int {
	return s.capacity
}

// Length returns the current high-water mark.
func (s *Store) Length(ctx context.Context) (int, error) {
	if err := s.Lock(ctx); err != nil {
		return 0, err
	}
	defer s.Unlock()
	return s.length, nil
}

// ReadAt copies up to len(p) bytes starting at off into p. Reading at
// or past the high-water mark returns 0 bytes and no error, like a
// read at EOF. The high-water mark is never changed by a read.
func (s *Store) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Wrapf(ErrInvalidArgument, "read at %d", off)
	}
	if err := s.Lock(ctx); err != nil {
		return 0, err
	}
	defer s.Unlock()
	if off >= int64(s.length) {
		return 0, nil
	}
	n := copy(p, s.buf[off:s.length])
	logger.Debugf("read %d bytes at offset %d (length %d)", n, off, s.length)
	return n, nil
}

// WriteAt copies data into the buffer starting at off, truncating the
// input to the room left before capacity. Writing at or past capacity
// fails with ErrNoSpace. A zero-length write at a valid offset is a
// successful no-op. The high-water mark is advanced to the end of the
// written range when it grows, in the same critical section as the
// copy itself.
func (s *Store) WriteAt(ctx context.Context, data []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Wrapf(ErrInvalidArgument, "write at %d", off)
	}
	if err := s.Lock(ctx); err != nil {
		return 0, err
	}
	defer s.Unlock()
	if off >= int64(s.capacity) {
		return 0, errors.Wrapf(ErrNoSpace, "write at %d, capacity %d", off, s.capacity)
	}
	n := copy(s.buf[off:], data)
	if end := int(off) + n; end > s.length {
		s.length = end
	}
	logger.Debugf("written %d bytes at offset %d (length %d)", n, off, s.length)
	return n, nil
}

// Truncate lowers the high-water mark to n; data beyond it becomes
// unreadable but is not cleared. Raising the mark is not possible, a
// larger n only fails when it exceeds capacity.
func (s *Store) Truncate(ctx context.Context, n int) error {
	if n < 0 || n > s.capacity {
		return errors.Wrapf(ErrInvalidArgument, "truncate to %d, capacity %d", n, s.capacity)
	}
	if err := s.Lock(ctx); err != nil {
		return err
	}
	defer s.Unlock()
	if n < s.length {
		s.length = n
	}
	return nil
}
