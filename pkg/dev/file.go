// pkg/dev/file.go

package dev

import "io"

// File adapts a Handle to the standard io interfaces so callers can
// drive the device with io.Copy and friends.
type File struct {
	h   *Handle
	ctx Context
}

func (h *Handle) File(ctx Context) *File {
	return &File{h, ctx}
}

func (f *File) Read(p []byte) (int, error) {
	n, err := f.h.Read(f.ctx, p)
	if err == nil && n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, err
}

func (f *File) Write(p []byte) (int, error) {
	n, err := f.h.Write(f.ctx, p)
	if err == nil && n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, err
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	return f.h.Seek(f.ctx, offset, whence)
}

func (f *File) Close() error {
	return f.h.Close(f.ctx)
}
