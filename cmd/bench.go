// cmd/bench.go

package main

import (
	"MemDev/pkg/dev"
	"MemDev/pkg/utils"
	"bytes"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"
)

func benchFlags() *cli.Command {
	return &cli.Command{
		Name:   "bench",
		Usage:  "exercise an in-process device with concurrent readers and writers",
		Action: bench,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "capacity",
				Value: 1024,
				Usage: "size of the buffer in bytes",
			},
			&cli.IntFlag{
				Name:  "writers",
				Value: 2,
				Usage: "number of concurrent writers",
			},
			&cli.IntFlag{
				Name:  "readers",
				Value: 2,
				Usage: "number of concurrent readers",
			},
			&cli.IntFlag{
				Name:  "rounds",
				Value: 10000,
				Usage: "operations per worker",
			},
		},
	}
}

// Every writer stamps the whole buffer with its own byte pattern, so a
// reader observing two patterns in one read has caught a torn write.
func bench(c *cli.Context) error {
	setLoggerLevel(c)
	writers := c.Int("writers")
	readers := c.Int("readers")
	rounds := c.Int("rounds")
	if writers < 1 || writers > 26 {
		logger.Fatalf("writers must be in 1..26, got %d", writers)
	}

	conf := &dev.Config{Name: "bench", Capacity: c.Int("capacity")}
	d := dev.NewDevice(conf)
	ctx := dev.NewContext(uint32(os.Getpid()), uint32(os.Getuid()), uint32(os.Getgid()))

	progress, bar := utils.NewDynProgressBar("benchmark: ", c.Bool("quiet"))
	bar.SetTotal(int64((writers+readers)*rounds), false)

	var wg sync.WaitGroup
	var torn int64
	start := time.Now()
	for i := 0; i < writers; i++ {
		wg.Add(1)
		pattern := bytes.Repeat([]byte{byte('A' + i)}, conf.Capacity)
		go func(p []byte) {
			defer wg.Done()
			h, err := d.Open(ctx)
			if err != nil {
				logger.Errorf("open: %s", err)
				return
			}
			defer func() { _ = h.Close(ctx) }()
			for r := 0; r < rounds; r++ {
				if _, err := h.Pwrite(ctx, p, 0); err != nil {
					logger.Errorf("write: %s", err)
					return
				}
				bar.Increment()
			}
		}(pattern)
	}
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := d.Open(ctx)
			if err != nil {
				logger.Errorf("open: %s", err)
				return
			}
			defer func() { _ = h.Close(ctx) }()
			buf := make([]byte, conf.Capacity)
			for r := 0; r < rounds; r++ {
				n, err := h.Pread(ctx, buf, 0)
				if err != nil {
					logger.Errorf("read: %s", err)
					return
				}
				for j := 1; j < n; j++ {
					if buf[j] != buf[0] {
						atomic.AddInt64(&torn, 1)
						break
					}
				}
				bar.Increment()
			}
		}()
	}
	wg.Wait()
	used := time.Since(start)
	bar.SetTotal(0, true)
	progress.Wait()

	if n := atomic.LoadInt64(&torn); n > 0 {
		logger.Fatalf("found %d torn reads, buffer serialization is broken", n)
	}
	ru := utils.GetRusage()
	moved := float64(writers*rounds*conf.Capacity) / (1 << 20)
	logger.Infof("%d writers and %d readers moved %.1f MiB in %.2fs (%.1f MiB/s), utime %.2fs, stime %.2fs, no torn reads",
		writers, readers, moved, used.Seconds(), moved/used.Seconds(), ru.GetUtime(), ru.GetStime())
	return nil
}
