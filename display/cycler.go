// Package display drives the kiosk screen, alternating between the
// HVAC status view and the advertisement loop.
package display

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/airpulse/console/store"
)

// View identifies which surface the screen is showing.
type View int

const (
	ViewHVAC View = iota
	ViewAd
)

func (v View) String() string {
	if v == ViewAd {
		return "ad"
	}
	return "hvac"
}

// Effects applied for one second at the start of each ad slot.
var transitionEffects = []string{"diagonal", "particles", "mosaic", "zoom"}

const (
	defaultHVACDwell = 10 * time.Second

	// The safety ticker fires well inside a dwell period and forces the
	// transition once the deadline has slipped by at least lateGrace.
	safetyInterval = 500 * time.Millisecond
	lateGrace      = 50 * time.Millisecond
)

// Frame is what the screen should render right now.
type Frame struct {
	View        View
	Ad          *store.TimelineEntry
	Effect      string
	EffectUntil time.Time
}

// Cycler is the two-state machine behind the alternating display. The
// HVAC view holds for the configured dwell, then one ad holds for its
// own duration, then back. Exactly one transition timer is pending at
// any moment; a 500ms safety tick forces the switch if that timer is
// lost or late.
type Cycler struct {
	mu sync.Mutex

	ads       []store.TimelineEntry
	adIndex   int
	view      View
	effect    string
	effectEnd time.Time

	hvacDwell time.Duration
	enabled   bool
	paused    bool

	deadline time.Time
	timer    *time.Timer

	// disables the transition timer so tests can exercise the safety
	// tick in isolation
	suppressTimer bool

	onFrame func(Frame)
	rng     *rand.Rand
}

type CyclerOption func(*Cycler)

// WithFrameFunc registers the render callback invoked on every
// transition, under the cycler lock.
func WithFrameFunc(fn func(Frame)) CyclerOption {
	return func(c *Cycler) {
		c.onFrame = fn
	}
}

func WithHVACDwell(d time.Duration) CyclerOption {
	return func(c *Cycler) {
		if d > 0 {
			c.hvacDwell = d
		}
	}
}

func NewCycler(opts ...CyclerOption) *Cycler {
	c := &Cycler{
		adIndex:   -1,
		view:      ViewHVAC,
		hvacDwell: defaultHVACDwell,
		enabled:   true,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run drives the safety net until the context ends.
func (c *Cycler) Run(ctx context.Context) {
	ticker := time.NewTicker(safetyInterval)
	defer ticker.Stop()
	defer c.stop()

	c.mu.Lock()
	c.armLocked(time.Now())
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.mu.Lock()
			if c.runningLocked() && !c.deadline.IsZero() && now.Sub(c.deadline) >= lateGrace {
				slog.Warn("display transition timer missed deadline", "late", now.Sub(c.deadline))
				c.advanceLocked(now)
			}
			c.mu.Unlock()
		}
	}
}

// Frame reports the current render state.
func (c *Cycler) Frame() Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameLocked()
}

// SetAds replaces the ad list. Any change resets the cycle to the HVAC
// view with the ad cursor rewound, so the next ad slot shows the first
// entry of the new list.
func (c *Cycler) SetAds(ads []store.TimelineEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ads = ads
	c.adIndex = -1
	c.view = ViewHVAC
	c.effect = ""
	c.armLocked(time.Now())
	c.emitLocked()
}

// SetEnabled turns ad rotation on or off. Disabled means the HVAC view
// holds the screen with no pending transitions.
func (c *Cycler) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	c.view = ViewHVAC
	c.adIndex = -1
	c.effect = ""
	c.armLocked(time.Now())
	c.emitLocked()
}

// SetHVACDwell adjusts how long the HVAC view holds between ads. Takes
// effect from the next HVAC period.
func (c *Cycler) SetHVACDwell(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hvacDwell = d
}

// Pause freezes the cycle on the current view.
func (c *Cycler) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.paused = true
	c.clearTimerLocked()
}

// Resume restarts the cycle. The current view gets a full dwell period
// again rather than the remainder it had when paused.
func (c *Cycler) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	c.armLocked(time.Now())
}

func (c *Cycler) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearTimerLocked()
}

// runningLocked reports whether transitions should be happening at all.
func (c *Cycler) runningLocked() bool {
	return c.enabled && !c.paused && len(c.ads) > 0
}

func (c *Cycler) frameLocked() Frame {
	f := Frame{View: c.view}
	if c.view == ViewAd && c.adIndex >= 0 && c.adIndex < len(c.ads) {
		ad := c.ads[c.adIndex]
		f.Ad = &ad
		f.Effect = c.effect
		f.EffectUntil = c.effectEnd
	}
	return f
}

func (c *Cycler) emitLocked() {
	if c.onFrame != nil {
		c.onFrame(c.frameLocked())
	}
}

// advanceLocked performs one transition and arms the timer for the
// next. Both the primary timer and the safety tick funnel through here,
// so the state machine has a single place transitions happen.
func (c *Cycler) advanceLocked(now time.Time) {
	if !c.runningLocked() {
		c.clearTimerLocked()
		return
	}

	if c.view == ViewHVAC {
		c.adIndex = (c.adIndex + 1) % len(c.ads)
		c.view = ViewAd
		c.effect = transitionEffects[c.rng.Intn(len(transitionEffects))]
		c.effectEnd = now.Add(time.Second)
	} else {
		// Returning to HVAC keeps the cursor so the loop resumes where
		// it left off.
		c.view = ViewHVAC
		c.effect = ""
	}

	c.armLocked(now)
	c.emitLocked()
}

// armLocked schedules the next transition, replacing any pending timer.
// When the cycle should not run the deadline is cleared instead.
func (c *Cycler) armLocked(now time.Time) {
	c.clearTimerLocked()

	if !c.runningLocked() {
		c.deadline = time.Time{}
		return
	}

	dwell := c.hvacDwell
	if c.view == ViewAd {
		if c.adIndex < 0 || c.adIndex >= len(c.ads) {
			c.adIndex = 0
		}
		dwell = time.Duration(c.ads[c.adIndex].Duration) * time.Second
		if dwell <= 0 {
			dwell = time.Second
		}
	}

	deadline := now.Add(dwell)
	c.deadline = deadline

	if c.suppressTimer {
		return
	}
	c.timer = time.AfterFunc(dwell, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		// A reset may have replaced this timer while it was in flight.
		if !c.deadline.Equal(deadline) {
			return
		}
		c.advanceLocked(time.Now())
	})
}

func (c *Cycler) clearTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
