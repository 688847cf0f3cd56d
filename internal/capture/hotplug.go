package capture

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"voxbrief/internal/logging"
)

// HotplugWatcher listens for udev netlink events and reports when a sound card
// is removed while a recording holds it.
type HotplugWatcher struct {
	logger  *slog.Logger
	connect func() (ueventConn, error)
}

type ueventConn interface {
	Monitor(queue chan netlink.UEvent, errs chan error, matcher netlink.Matcher) chan struct{}
	Close() error
}

// NewHotplugWatcher creates a watcher bound to the kernel udev socket.
func NewHotplugWatcher(logger *slog.Logger) *HotplugWatcher {
	return &HotplugWatcher{
		logger: logging.NewComponentLogger(logger, "hotplug"),
		connect: func() (ueventConn, error) {
			conn := new(netlink.UEventConn)
			if err := conn.Connect(netlink.UdevEvent); err != nil {
				return nil, err
			}
			return conn, nil
		},
	}
}

// Watch calls onRemove for each removal of the card backing device until the
// returned stop function runs or ctx ends. A netlink connection failure is
// logged and leaves the recording unwatched.
func (w *HotplugWatcher) Watch(ctx context.Context, device string, onRemove func(devpath string)) func() {
	if w == nil {
		return func() {}
	}
	conn, err := w.connect()
	if err != nil {
		w.logger.Warn("failed to connect to netlink socket; device removal will not be detected",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the process may open netlink sockets"),
			logging.String(logging.FieldImpact, "unplugging the microphone will not abort the recording"),
		)
		return func() {}
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildRemovalMatcher())
	quit := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(quit)
			close(monitorQuit)
			_ = conn.Close()
		})
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-quit:
				return
			case uevent := <-queue:
				devpath := uevent.Env["DEVPATH"]
				if !matchesCard(device, devpath) {
					w.logger.Debug("ignoring sound removal for other card",
						logging.String("devpath", devpath),
						logging.String("device", device),
					)
					continue
				}
				w.logger.Info("sound card removed during capture",
					logging.String(logging.FieldEventType, "sound_card_removed"),
					logging.String("devpath", devpath),
				)
				if onRemove != nil {
					onRemove(devpath)
				}
			case err := <-errs:
				w.logger.Warn("netlink monitor error",
					logging.Error(err),
					logging.String(logging.FieldEventType, "netlink_monitor_error"),
					logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
					logging.String(logging.FieldImpact, "device removal may go unnoticed"),
				)
			}
		}
	}()
	return stop
}

// buildRemovalMatcher matches SUBSYSTEM=sound, ACTION=remove.
func buildRemovalMatcher() netlink.Matcher {
	action := "remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
		},
	})
	return rules
}

var alsaCardPattern = regexp.MustCompile(`^(?:plug)?(?:hw|dsnoop|sysdefault|front):(?:CARD=)?(\d+)`)

// matchesCard reports whether a removed DEVPATH belongs to the card behind an
// ALSA device name. Names without a numeric card (default, pulse) match any
// card removal.
func matchesCard(device, devpath string) bool {
	idx := strings.Index(devpath, "/sound/card")
	if idx < 0 {
		return false
	}
	m := alsaCardPattern.FindStringSubmatch(strings.TrimSpace(device))
	if m == nil {
		return true
	}
	rest := devpath[idx+len("/sound/card"):]
	card := rest
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		card = rest[:slash]
	}
	return card == m[1]
}
