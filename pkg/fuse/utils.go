// pkg/fuse/utils.go

package fuse

import (
	"syscall"

	"MemDev/pkg/store"
	"github.com/hanwen/go-fuse/v2/fuse"
)

func errno(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	return fuse.Status(store.Errno(err))
}

// fillAttr describes one of the three fixed inodes: the root
// directory, the device file and the optional access log.
func (fs *fileSystem) fillAttr(ctx *fuseContext, ino uint64, out *fuse.Attr) fuse.Status {
	switch ino {
	case rootIno:
		out.Mode = syscall.S_IFDIR | 0755
		out.Nlink = 2
	case devIno:
		mode := uint32(0666)
		if fs.conf.ReadOnly {
			mode = 0444
		}
		out.Mode = syscall.S_IFREG | mode
		out.Nlink = 1
		length, err := fs.dev.Length(ctx)
		if err != nil {
			return errno(err)
		}
		out.Size = uint64(length)
	case logIno:
		out.Mode = syscall.S_IFREG | 0400
		out.Nlink = 1
	default:
		return fuse.ENOENT
	}
	out.Ino = ino
	out.Blocks = (out.Size + 511) / 512
	secs := uint64(fs.mounted.Unix())
	out.Atime = secs
	out.Mtime = secs
	out.Ctime = secs
	return fuse.OK
}
