// Package systemd reports service state to the systemd service manager when
// the process runs as a Type=notify unit. Outside systemd every call is a
// no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notify is swapped by tests.
var notify = daemon.SdNotify

// Ready tells systemd start-up finished. sent is false outside systemd.
func Ready() (sent bool, err error) { return notify(false, daemon.SdNotifyReady) }

// Stopping tells systemd shutdown began.
func Stopping() (sent bool, err error) { return notify(false, daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(s string) (sent bool, err error) { return notify(false, "STATUS="+s) }

// WatchdogInterval returns the keep-alive period when WatchdogSec is set
// for this process, else 0.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}

// Watchdog pings systemd at half the configured interval until ctx ends.
// It returns immediately when the watchdog is off.
func Watchdog(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := notify(false, daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
