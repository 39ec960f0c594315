// pkg/dev/config.go

package dev

// Config describes one device instance.
type Config struct {
	Name      string
	Capacity  int
	Exclusive bool // reject a second concurrent open with EBUSY
	ReadOnly  bool
	AccessLog bool // expose the access log file in the mount

	// bandwidth limits in bytes per second, 0 means unlimited
	UploadLimit   int64
	DownloadLimit int64
}
