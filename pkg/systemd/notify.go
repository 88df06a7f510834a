package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notify sends one sd_notify state. It reports false, without error, when
// the process was not started by systemd with Type=notify.
func Notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

func Ready() (bool, error)     { return Notify(daemon.SdNotifyReady) }
func Stopping() (bool, error)  { return Notify(daemon.SdNotifyStopping) }
func Reloading() (bool, error) { return Notify(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func Status(msg string) (bool, error) { return Notify("STATUS=" + msg) }

// Watchdog pings the service manager at half the configured WatchdogSec
// until ctx is done. It returns immediately when no watchdog is set.
func Watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := Notify(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
