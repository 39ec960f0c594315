// pkg/dev/accesslog.go

package dev

import (
	"fmt"
	"sync"
	"time"

	"MemDev/pkg/utils"
)

type logReader struct {
	sync.Mutex
	buffer chan []byte
	last   []byte
}

// accessLog broadcasts one line per device operation to the readers of
// the access log file. With no readers attached, logging is skipped
// except for slow operations, which always reach the regular logger.
type accessLog struct {
	sync.Mutex
	readers map[uint64]*logReader
}

func (d *Device) logit(ctx Context, format string, args ...interface{}) {
	used := ctx.Duration()
	al := &d.alog
	al.Lock()
	defer al.Unlock()
	if len(al.readers) == 0 && used < time.Second*10 {
		return
	}

	cmd := fmt.Sprintf(format, args...)
	t := utils.Now()
	ts := t.Format("2006.01.02 15:04:05.000000")
	cmd += fmt.Sprintf(" <%.6f>", used.Seconds())
	if ctx.Pid() != 0 && used >= time.Second*10 {
		logger.Infof("slow operation: %s", cmd)
	}
	line := []byte(fmt.Sprintf("%s [uid:%d,gid:%d,pid:%d] %s\n", ts, ctx.Uid(), ctx.Gid(), ctx.Pid(), cmd))

	for _, r := range al.readers {
		select {
		case r.buffer <- line:
		default:
		}
	}
}

// OpenAccessLog attaches a reader identified by fh.
func (d *Device) OpenAccessLog(fh uint64) uint64 {
	al := &d.alog
	al.Lock()
	defer al.Unlock()
	if al.readers == nil {
		al.readers = make(map[uint64]*logReader)
	}
	al.readers[fh] = &logReader{buffer: make(chan []byte, 10240)}
	return fh
}

// CloseAccessLog detaches the reader; buffered lines are dropped.
func (d *Device) CloseAccessLog(fh uint64) {
	al := &d.alog
	al.Lock()
	defer al.Unlock()
	delete(al.readers, fh)
}

// ReadAccessLog fills buf with whole log lines, waiting up to a second
// for new ones. An idle period yields a comment line so tailing the
// log shows liveness.
func (d *Device) ReadAccessLog(fh uint64, buf []byte) int {
	al := &d.alog
	al.Lock()
	r, ok := al.readers[fh]
	al.Unlock()
	if !ok {
		return 0
	}
	r.Lock()
	defer r.Unlock()
	var n int
	if len(r.last) > 0 {
		n = copy(buf, r.last)
		r.last = r.last[n:]
	}
	var t = time.NewTimer(time.Second)
	defer t.Stop()
	for n < len(buf) {
		select {
		case line := <-r.buffer:
			l := copy(buf[n:], line)
			n += l
			if l < len(line) {
				r.last = line[l:]
				return n
			}
		case <-t.C:
			if n == 0 {
				n = copy(buf, []byte("#\n"))
			}
			return n
		}
	}
	return n
}
