// pkg/fuse/fuse.go

package fuse

import (
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"MemDev/pkg/dev"
	"MemDev/pkg/utils"
	"github.com/hanwen/go-fuse/v2/fuse"
)

var logger = utils.GetLogger("memdev")

// The tree is fixed: a root directory holding the device file and,
// when enabled, the access log.
const (
	rootIno = 1
	devIno  = 2
	logIno  = 3
)

const accessLogName = ".accesslog"

type fileSystem struct {
	fuse.RawFileSystem

	conf    *dev.Config
	dev     *dev.Device
	mounted time.Time

	sync.Mutex
	handles map[uint64]*dev.Handle
	nextFh  uint64
}

func newFileSystem(conf *dev.Config, d *dev.Device) *fileSystem {
	return &fileSystem{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		conf:          conf,
		dev:           d,
		mounted:       time.Now(),
		handles:       make(map[uint64]*dev.Handle),
		nextFh:        1,
	}
}

func (fs *fileSystem) String() string {
	return "memdev"
}

func (fs *fileSystem) newFh(h *dev.Handle) uint64 {
	fs.Lock()
	defer fs.Unlock()
	fh := fs.nextFh
	fs.nextFh++
	fs.handles[fh] = h
	return fh
}

func (fs *fileSystem) handle(fh uint64) *dev.Handle {
	fs.Lock()
	defer fs.Unlock()
	return fs.handles[fh]
}

func (fs *fileSystem) releaseFh(fh uint64) *dev.Handle {
	fs.Lock()
	defer fs.Unlock()
	h := fs.handles[fh]
	delete(fs.handles, fh)
	return h
}

func (fs *fileSystem) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	if header.NodeId != rootIno {
		return fuse.ENOENT
	}
	var ino uint64
	switch {
	case name == fs.conf.Name:
		ino = devIno
	case name == accessLogName && fs.conf.AccessLog:
		ino = logIno
	default:
		return fuse.ENOENT
	}
	ctx := newContext(cancel, header)
	defer releaseContext(ctx)
	if st := fs.fillAttr(ctx, ino, &out.Attr); st != fuse.OK {
		return st
	}
	out.NodeId = ino
	out.SetEntryTimeout(time.Second)
	return fuse.OK
}

func (fs *fileSystem) GetAttr(cancel <-chan struct{}, in *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	ctx := newContext(cancel, &in.InHeader)
	defer releaseContext(ctx)
	return fs.fillAttr(ctx, in.NodeId, &out.Attr)
}

func (fs *fileSystem) SetAttr(cancel <-chan struct{}, in *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	ctx := newContext(cancel, &in.InHeader)
	defer releaseContext(ctx)
	if in.NodeId != devIno {
		return fuse.EPERM
	}
	if in.Valid&fuse.FATTR_SIZE != 0 {
		// shell truncation (`> devfile`) rewinds the high-water mark
		if err := fs.dev.Truncate(ctx, int(in.Size)); err != nil {
			return errno(err)
		}
	}
	return fs.fillAttr(ctx, in.NodeId, &out.Attr)
}

func (fs *fileSystem) Open(cancel <-chan struct{}, in *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	ctx := newContext(cancel, &in.InHeader)
	defer releaseContext(ctx)
	switch in.NodeId {
	case devIno:
		if fs.conf.ReadOnly && in.Flags&uint32(syscall.O_ACCMODE) != uint32(os.O_RDONLY) {
			return fuse.EROFS
		}
		h, err := fs.dev.Open(ctx)
		if err != nil {
			return errno(err)
		}
		out.Fh = fs.newFh(h)
	case logIno:
		if !fs.conf.AccessLog {
			return fuse.ENOENT
		}
		fs.Lock()
		fh := fs.nextFh
		fs.nextFh++
		fs.Unlock()
		out.Fh = fs.dev.OpenAccessLog(fh)
	default:
		return fuse.EPERM
	}
	// the file size changes underneath the kernel, bypass the page cache
	out.OpenFlags |= fuse.FOPEN_DIRECT_IO
	return fuse.OK
}

func (fs *fileSystem) Read(cancel <-chan struct{}, in *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	ctx := newContext(cancel, &in.InHeader)
	defer releaseContext(ctx)
	if in.NodeId == logIno {
		n := fs.dev.ReadAccessLog(in.Fh, buf)
		return fuse.ReadResultData(buf[:n]), fuse.OK
	}
	h := fs.handle(in.Fh)
	if h == nil {
		return nil, fuse.EBADF
	}
	n, err := h.Pread(ctx, buf, int64(in.Offset))
	if err != nil {
		return nil, errno(err)
	}
	return fuse.ReadResultData(buf[:n]), fuse.OK
}

func (fs *fileSystem) Write(cancel <-chan struct{}, in *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	ctx := newContext(cancel, &in.InHeader)
	defer releaseContext(ctx)
	h := fs.handle(in.Fh)
	if h == nil {
		return 0, fuse.EBADF
	}
	n, err := h.Pwrite(ctx, data, int64(in.Offset))
	if err != nil {
		return 0, errno(err)
	}
	return uint32(n), fuse.OK
}

func (fs *fileSystem) Lseek(cancel <-chan struct{}, in *fuse.LseekIn, out *fuse.LseekOut) fuse.Status {
	ctx := newContext(cancel, &in.InHeader)
	defer releaseContext(ctx)
	if in.NodeId != devIno {
		return fuse.ENOTSUP
	}
	length, err := fs.dev.Length(ctx)
	if err != nil {
		return errno(err)
	}
	// the kernel handles SEEK_SET/CUR/END itself and only forwards the
	// hole/data probes; the valid prefix is all data, the rest one hole
	const seekData, seekHole = 3, 4
	switch in.Whence {
	case seekData:
		if in.Offset >= uint64(length) {
			return fuse.Status(syscall.ENXIO)
		}
		out.Offset = in.Offset
	case seekHole:
		if in.Offset > uint64(length) {
			return fuse.Status(syscall.ENXIO)
		}
		out.Offset = uint64(length)
	default:
		h := fs.handle(in.Fh)
		if h == nil {
			return fuse.EBADF
		}
		pos, err := h.Seek(ctx, int64(in.Offset), int(in.Whence))
		if err != nil {
			return errno(err)
		}
		out.Offset = uint64(pos)
	}
	return fuse.OK
}

func (fs *fileSystem) Flush(cancel <-chan struct{}, in *fuse.FlushIn) fuse.Status {
	return fuse.OK
}

func (fs *fileSystem) Release(cancel <-chan struct{}, in *fuse.ReleaseIn) {
	if in.NodeId == logIno {
		fs.dev.CloseAccessLog(in.Fh)
		return
	}
	if h := fs.releaseFh(in.Fh); h != nil {
		ctx := newContext(nil, &in.InHeader)
		defer releaseContext(ctx)
		_ = h.Close(ctx)
	}
}

func (fs *fileSystem) OpenDir(cancel <-chan struct{}, in *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if in.NodeId != rootIno {
		return fuse.ENOTDIR
	}
	return fuse.OK
}

func (fs *fileSystem) entries() []fuse.DirEntry {
	es := []fuse.DirEntry{
		{Mode: syscall.S_IFDIR, Name: ".", Ino: rootIno},
		{Mode: syscall.S_IFDIR, Name: "..", Ino: rootIno},
		{Mode: syscall.S_IFREG, Name: fs.conf.Name, Ino: devIno},
	}
	if fs.conf.AccessLog {
		es = append(es, fuse.DirEntry{Mode: syscall.S_IFREG, Name: accessLogName, Ino: logIno})
	}
	return es
}

func (fs *fileSystem) ReadDir(cancel <-chan struct{}, in *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	if in.NodeId != rootIno {
		return fuse.ENOTDIR
	}
	entries := fs.entries()
	for i := int(in.Offset); i < len(entries); i++ {
		if !out.AddDirEntry(entries[i]) {
			break
		}
	}
	return fuse.OK
}

func (fs *fileSystem) ReadDirPlus(cancel <-chan struct{}, in *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	if in.NodeId != rootIno {
		return fuse.ENOTDIR
	}
	ctx := newContext(cancel, &in.InHeader)
	defer releaseContext(ctx)
	entries := fs.entries()
	for i := int(in.Offset); i < len(entries); i++ {
		e := entries[i]
		eo := out.AddDirLookupEntry(e)
		if eo == nil {
			break
		}
		if e.Name == "." || e.Name == ".." {
			continue
		}
		if st := fs.fillAttr(ctx, e.Ino, &eo.Attr); st != fuse.OK {
			return st
		}
		eo.NodeId = e.Ino
		eo.SetEntryTimeout(time.Second)
	}
	return fuse.OK
}

func (fs *fileSystem) StatFs(cancel <-chan struct{}, in *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	ctx := newContext(cancel, in)
	defer releaseContext(ctx)
	length, err := fs.dev.Length(ctx)
	if err != nil {
		return errno(err)
	}
	out.Bsize = 512
	out.Blocks = (uint64(fs.dev.Capacity()) + 511) / 512
	out.Bfree = (uint64(fs.dev.Capacity()-length) + 511) / 512
	out.Bavail = out.Bfree
	out.Files = 1
	out.NameLen = 255
	return fuse.OK
}

// Serve mounts the device at mp and runs the request loop until the
// filesystem is unmounted.
func Serve(conf *dev.Config, d *dev.Device, mp string, options string) error {
	fs := newFileSystem(conf, d)
	var opt fuse.MountOptions
	opt.FsName = "memdev:" + conf.Name
	opt.Name = "memdev"
	opt.SingleThreaded = false
	opt.MaxBackground = 50
	opt.EnableLocks = false
	opt.DisableXAttrs = true
	opt.IgnoreSecurityLabels = true
	opt.MaxWrite = 1 << 20
	opt.AllowOther = os.Getuid() == 0
	for _, n := range strings.Split(options, ",") {
		n = strings.TrimSpace(n)
		if n == "allow_other" || n == "allow_root" {
			opt.AllowOther = true
		} else if n == "debug" {
			opt.Debug = true
		} else if n != "" {
			opt.Options = append(opt.Options, n)
		}
	}
	srv, err := fuse.NewServer(fs, mp, &opt)
	if err != nil {
		return err
	}
	logger.Infof("device %s (capacity %d bytes) is ready at %s", conf.Name, d.Capacity(), mp)
	srv.Serve()
	return nil
}
