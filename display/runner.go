package display

import (
	"context"
	"log/slog"
	"time"

	"github.com/airpulse/console/api/client"
	"github.com/airpulse/console/store"
)

// Runner keeps a kiosk's cycler synced with the console. It polls the
// machine's schedule and display settings and pushes changes into the
// cycler. A failed poll leaves the last known schedule running; the
// screen falls back to HVAC only when the server says so.
type Runner struct {
	timeline  *client.Timeline
	console   *client.Client
	cycler    *Cycler
	machineID int64
	interval  time.Duration

	lastAds []store.TimelineEntry
}

func NewRunner(c *client.Client, cycler *Cycler, machineID int64, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{
		timeline:  client.NewTimeline(c),
		console:   c,
		cycler:    cycler,
		machineID: machineID,
		interval:  interval,
	}
}

func (r *Runner) Run(ctx context.Context) {
	r.sync()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sync()
		}
	}
}

func (r *Runner) sync() {
	settings, err := r.console.DisplaySettings(r.machineID)
	if err != nil {
		slog.Error("failed to fetch display settings", "machine", r.machineID, "error", err)
	} else {
		r.cycler.SetEnabled(settings.Enabled)
		r.cycler.SetHVACDwell(time.Duration(settings.HVACDurationSeconds) * time.Second)
	}

	if err := r.timeline.Select(r.machineID); err != nil {
		slog.Error("failed to fetch schedule", "machine", r.machineID, "error", err)
		return
	}

	ads := r.timeline.Entries()
	if schedulesEqual(r.lastAds, ads) {
		return
	}
	r.lastAds = ads
	r.cycler.SetAds(ads)
	slog.Info("schedule updated", "machine", r.machineID, "entries", len(ads))
}

// schedulesEqual avoids resetting the cycle when a poll returns the
// same schedule.
func schedulesEqual(a, b []store.TimelineEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].MediaID != b[i].MediaID ||
			a[i].Duration != b[i].Duration || a[i].Position != b[i].Position {
			return false
		}
	}
	return true
}
