// cmd/mount_unix.go

package main

import (
	"MemDev/pkg/dev"
	"MemDev/pkg/fuse"
	"MemDev/pkg/utils"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/gops/agent"
	"github.com/juicedata/godaemon"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"
)

func checkMountpoint(name, mp string) {
	for i := 0; i < 20; i++ {
		time.Sleep(time.Millisecond * 500)
		var st unix.Stat_t
		if err := unix.Stat(mp, &st); err == nil && st.Ino == 1 {
			logger.Infof("\033[92mOK\033[0m, %s is ready at %s", name, mp)
			return
		}
		os.Stdout.WriteString(".")
		os.Stdout.Sync()
	}
	os.Stdout.WriteString("\n")
	logger.Fatalf("fail to mount after 10 seconds, please mount in foreground")
}

func makeDaemon(c *cli.Context, name, mp string) error {
	var attrs godaemon.DaemonAttr
	attrs.OnExit = func(stage int) error {
		if stage != 0 {
			return nil
		}
		checkMountpoint(name, mp)
		return nil
	}

	// the current dir will be changed to root in daemon,
	// so the mount point has to be an absolute path.
	if godaemon.Stage() == 0 {
		for i, a := range os.Args {
			if a == mp {
				amp, err := filepath.Abs(mp)
				if err == nil {
					os.Args[i] = amp
				} else {
					logger.Warnf("abs of %s: %s", mp, err)
				}
			}
		}
		var err error
		logfile := c.String("log")
		attrs.Stdout, err = os.OpenFile(logfile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			logger.Errorf("open log file %s: %s", logfile, err)
		}
	}
	_, _, err := godaemon.MakeDaemon(&attrs)
	return err
}

func mountFlags() *cli.Command {
	var defaultLogDir = "/var/log"
	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Fatalf("%v", err)
			return nil
		}
		defaultLogDir = path.Join(homeDir, ".memdev")
	}
	return &cli.Command{
		Name:      "mount",
		Usage:     "mount the device",
		ArgsUsage: "MOUNTPOINT",
		Action:    mount,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Value: "mychardev",
				Usage: "name of the device file",
			},
			&cli.IntFlag{
				Name:  "capacity",
				Value: 1024,
				Usage: "size of the buffer in bytes",
			},
			&cli.BoolFlag{
				Name:  "exclusive",
				Usage: "allow only one open at a time",
			},
			&cli.BoolFlag{
				Name:  "read-only",
				Usage: "reject all writes",
			},
			&cli.BoolFlag{
				Name:  "access-log",
				Usage: "expose operations in .accesslog",
			},
			&cli.Int64Flag{
				Name:  "upload-limit",
				Usage: "write bandwidth limit in KiB/s",
			},
			&cli.Int64Flag{
				Name:  "download-limit",
				Usage: "read bandwidth limit in KiB/s",
			},
			&cli.BoolFlag{
				Name:    "d",
				Aliases: []string{"background"},
				Usage:   "run in background",
			},
			&cli.StringFlag{
				Name:  "log",
				Value: path.Join(defaultLogDir, "memdev.log"),
				Usage: "path of log file when running in background",
			},
			&cli.BoolFlag{
				Name:  "no-agent",
				Usage: "disable the gops diagnostic agent",
			},
			&cli.StringFlag{
				Name:  "o",
				Usage: "other FUSE options",
			},
		},
	}
}

func mount(c *cli.Context) error {
	setLoggerLevel(c)
	if c.Args().Len() < 1 {
		logger.Fatalf("MOUNTPOINT is required")
	}
	mp := c.Args().Get(0)
	fi, err := os.Stat(mp)
	if err != nil {
		if err := os.MkdirAll(mp, 0777); err != nil {
			logger.Fatalf("create %s: %s", mp, err)
		}
	} else if !fi.IsDir() {
		logger.Fatalf("%s is not a directory", mp)
	}

	conf := &dev.Config{
		Name:          c.String("name"),
		Capacity:      c.Int("capacity"),
		Exclusive:     c.Bool("exclusive"),
		ReadOnly:      c.Bool("read-only"),
		AccessLog:     c.Bool("access-log"),
		UploadLimit:   c.Int64("upload-limit") << 10,
		DownloadLimit: c.Int64("download-limit") << 10,
	}

	if c.Bool("d") {
		if err := makeDaemon(c, conf.Name, mp); err != nil {
			logger.Fatalf("make daemon: %s", err)
		}
		if godaemon.Stage() > 0 {
			utils.SetOutFile(c.String("log"))
		}
	}

	if !c.Bool("no-agent") {
		go func() {
			if err := agent.Listen(agent.Options{}); err != nil {
				logger.Warnf("gops agent: %s", err)
			}
		}()
	}

	d := dev.NewDevice(conf)
	logger.Infof("mounting device %s at %s ...", conf.Name, mp)
	if err := fuse.Serve(conf, d, mp, c.String("o")); err != nil {
		logger.Fatalf("fuse: %s", err)
	}
	return nil
}
