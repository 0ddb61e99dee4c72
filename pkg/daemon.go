package pkg

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/commonarch/system/internal/paths"
)

// greeterUser is the account the display manager runs the login greeter
// as; the update-check daemon must never run under it (§4.9).
const greeterUser = "gdm-greeter"

// UpdateCheckDaemon is the long-running background loop that polls for
// image updates and prompts the user via desktop notifications (§4.9).
type UpdateCheckDaemon struct {
	Reporter Reporter
	Client   *ImageClient
	Notifier Notifier
	Runner   ProcessRunner
}

// NewUpdateCheckDaemon wires a daemon using the real subprocess runner and
// a dbus-backed notifier, falling back to notify-send.
func NewUpdateCheckDaemon(reporter Reporter) *UpdateCheckDaemon {
	runner := NewProcessRunner()
	return &UpdateCheckDaemon{
		Reporter: reporter,
		Client:   NewImageClient(runner),
		Notifier: NewNotifier(),
		Runner:   runner,
	}
}

// Run loops forever, sleeping the configured interval between iterations.
// It exits immediately, without looping, if running as the greeter
// account or if auto-update is explicitly disabled in config.
func (d *UpdateCheckDaemon) Run(ctx context.Context) error {
	if os.Getenv("USER") == greeterUser {
		return nil
	}

	cfg, err := LoadSystemConfig()
	if err == nil && cfg.AutoUpdateSet && !cfg.AutoUpdate {
		return nil
	}

	interval := defaultAutoUpdateInterval
	if err == nil {
		interval = cfg.AutoUpdateInterval
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.tick(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(interval) * time.Second):
		}
	}
}

// tick runs a single guarded iteration of the loop body. Any failure is
// reported and swallowed so a bad iteration never kills the daemon.
func (d *UpdateCheckDaemon) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.Reporter.Warning("update-check iteration panicked: %v", r)
		}
	}()

	if _, err := os.Stat(paths.UpdateRootfs); err == nil {
		return
	}

	cfg, err := LoadSystemConfig()
	if err != nil {
		d.Reporter.Warning("could not read system config: %v", err)
		return
	}

	latest, err := d.Client.IsAlreadyLatest(ctx, cfg.Image)
	if err != nil {
		d.Reporter.Warning("could not check for updates: %v", err)
		return
	}
	if latest {
		return
	}

	accepted, err := d.Notifier.Confirm("Update available", "A system update is available", "update", "Update in the background")
	if err != nil || !accepted {
		return
	}

	result, err := d.Runner.Run(ctx, "pkexec", "system", "update")
	if err != nil || !result.Succeeded() {
		return
	}

	action, err := d.Notifier.Prompt("System updated", "Reboot to apply update?", map[string]string{
		"reboot": "Reboot now",
		"later":  "Later",
	})
	if err != nil {
		return
	}
	if action == "reboot" {
		_, _ = d.Runner.Run(ctx, "reboot")
	}
}

// Notifier displays desktop notifications and returns the action the user
// selected, if any.
type Notifier interface {
	// Prompt shows a notification with the given actions (key -> label)
	// and returns the selected action's key, or "" if dismissed.
	Prompt(title, body string, actions map[string]string) (string, error)
	// Confirm shows a single-action notification and reports whether the
	// user invoked it.
	Confirm(title, body, actionKey, actionLabel string) (bool, error)
}

// dbusNotifier speaks org.freedesktop.Notifications directly; when no
// session bus is reachable it falls back to the notify-send binary,
// matching the original's subprocess-only notify_prompt.
type dbusNotifier struct{}

// NewNotifier returns the real desktop Notifier.
func NewNotifier() Notifier { return dbusNotifier{} }

func (dbusNotifier) Prompt(title, body string, actions map[string]string) (string, error) {
	if action, err := dbusPrompt(title, body, actions); err == nil {
		return action, nil
	}
	return notifySendPrompt(title, body, actions)
}

func (n dbusNotifier) Confirm(title, body, actionKey, actionLabel string) (bool, error) {
	action, err := n.Prompt(title, body, map[string]string{actionKey: actionLabel})
	if err != nil {
		return false, err
	}
	return action == actionKey, nil
}

// dbusPrompt sends an org.freedesktop.Notifications.Notify call over the
// session bus and waits for the ActionInvoked signal naming one of actions,
// returning "" if the notification is closed without one.
func dbusPrompt(title, body string, actions map[string]string) (string, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	obj := conn.Object("org.freedesktop.Notifications", dbus.ObjectPath("/org/freedesktop/Notifications"))

	actionArgs := make([]string, 0, len(actions)*2)
	for key, label := range actions {
		actionArgs = append(actionArgs, key, label)
	}

	call := obj.Call("org.freedesktop.Notifications.Notify", 0,
		"System", uint32(0), "", title, body, actionArgs, map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(2))}, int32(0))
	if call.Err != nil {
		return "", call.Err
	}

	var notificationID uint32
	if err := call.Store(&notificationID); err != nil {
		return "", err
	}

	signals := make(chan *dbus.Signal, 1)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath("/org/freedesktop/Notifications"),
		dbus.WithMatchInterface("org.freedesktop.Notifications"),
		dbus.WithMatchMember("ActionInvoked"),
	); err != nil {
		return "", err
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath("/org/freedesktop/Notifications"),
		dbus.WithMatchInterface("org.freedesktop.Notifications"),
		dbus.WithMatchMember("NotificationClosed"),
	); err != nil {
		return "", err
	}

	for sig := range signals {
		if len(sig.Body) < 1 {
			continue
		}
		id, ok := sig.Body[0].(uint32)
		if !ok || id != notificationID {
			continue
		}
		if sig.Name == "org.freedesktop.Notifications.NotificationClosed" {
			return "", nil
		}
		if sig.Name != "org.freedesktop.Notifications.ActionInvoked" || len(sig.Body) < 2 {
			continue
		}
		action, _ := sig.Body[1].(string)
		return action, nil
	}
	return "", nil
}

// notifySendPrompt falls back to the notify-send CLI when no session bus
// is reachable, mirroring utils/helpers.notify_prompt's subprocess call.
func notifySendPrompt(title, body string, actions map[string]string) (string, error) {
	argv := []string{"--app-name=System", "--urgency=critical", title, body}
	for key, label := range actions {
		argv = append(argv, "--action="+key+"="+label)
	}
	out, err := exec.Command("notify-send", argv...).Output()
	if err != nil {
		return "", err
	}
	action := string(out)
	for len(action) > 0 && (action[len(action)-1] == '\n' || action[len(action)-1] == '\r') {
		action = action[:len(action)-1]
	}
	return action, nil
}
