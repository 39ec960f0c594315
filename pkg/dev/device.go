// pkg/dev/device.go

package dev

import (
	"sync/atomic"

	"MemDev/pkg/store"
	"MemDev/pkg/utils"
	"github.com/google/uuid"
	"github.com/juju/ratelimit"
	"github.com/pkg/errors"
)

var logger = utils.GetLogger("memdev")

// Device exposes one Store through independently positioned handles.
// The Store is owned by the Device for its whole lifetime; handles
// come and go with open/close.
type Device struct {
	conf  *Config
	store *store.Store
	opens int32

	upLimit   *ratelimit.Bucket
	downLimit *ratelimit.Bucket

	alog accessLog
}

// NewDevice creates a Device with a fresh empty Store.
func NewDevice(conf *Config) *Device {
	if conf.Name == "" {
		conf.Name = "mychardev"
	}
	if conf.Capacity <= 0 {
		conf.Capacity = store.DefaultCapacity
	}
	d := &Device{conf: conf, store: store.New(conf.Capacity)}
	if conf.UploadLimit > 0 {
		// there are overheads coming from the transport
		d.upLimit = ratelimit.NewBucketWithRate(float64(conf.UploadLimit)*0.85, conf.UploadLimit)
	}
	if conf.DownloadLimit > 0 {
		d.downLimit = ratelimit.NewBucketWithRate(float64(conf.DownloadLimit)*0.85, conf.DownloadLimit)
	}
	logger.Debugf("device %s created, capacity %d bytes", conf.Name, conf.Capacity)
	return d
}

func (d *Device) Name() string {
	return d.conf.Name
}

func (d *Device) Capacity() int {
	return d.store.Capacity()
}

// Length returns the current high-water mark of the underlying Store.
func (d *Device) Length(ctx Context) (int, error) {
	return d.store.Length(ctx)
}

// Opens returns the number of handles currently open.
func (d *Device) Opens() int {
	return int(atomic.LoadInt32(&d.opens))
}

// Open creates a handle with its cursor at position 0. On an exclusive
// device a second concurrent open fails with ErrBusy instead of
// blocking.
func (d *Device) Open(ctx Context) (h *Handle, err error) {
	defer func() { d.logit(ctx, "open %s: %s", d.conf.Name, strerr(err)) }()
	if d.conf.Exclusive {
		if !atomic.CompareAndSwapInt32(&d.opens, 0, 1) {
			return nil, errors.Wrapf(store.ErrBusy, "%s is opened exclusively", d.conf.Name)
		}
	} else {
		atomic.AddInt32(&d.opens, 1)
	}
	h = &Handle{id: uuid.New().String(), d: d}
	h.s.Store(d.store)
	return h, nil
}

// Truncate lowers the high-water mark, used by the FUSE binding for
// O_TRUNC and explicit size changes.
func (d *Device) Truncate(ctx Context, n int) (err error) {
	defer func() { d.logit(ctx, "truncate %s (%d): %s", d.conf.Name, n, strerr(err)) }()
	if d.conf.ReadOnly {
		return errors.Wrapf(store.ErrInvalidArgument, "%s is read-only", d.conf.Name)
	}
	return d.store.Truncate(ctx, n)
}

func strerr(err error) string {
	if err == nil {
		return "OK"
	}
	return err.Error()
}
