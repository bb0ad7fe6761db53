package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/member-qa/internal/config"
)

// CheckResult summarizes one evaluation of answer health.
type CheckResult struct {
	Answers    int
	Triggered  []AlertType
	Suppressed []AlertType
	Sent       int
}

// Checker evaluates answer health on a ticker and posts alerts to the
// webhook. An alert that keeps firing is posted again only after it has
// cleared or one lookback window has passed since it was last posted.
// A Checker is driven by a single goroutine.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	repeat    time.Duration
	now       func() time.Time

	lastSent map[AlertType]time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	lookback := cfg.LookbackWindowHours
	if lookback <= 0 {
		lookback = 24
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  lookback,
		repeat:    time.Duration(lookback) * time.Hour,
		now:       time.Now,
		lastSent:  make(map[AlertType]time.Time),
	}
}

// Run checks answer health every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting answer health checker",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("answer health checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check evaluates the lookback window once and posts alerts that are new
// or due for a repeat.
func (c *Checker) Check(ctx context.Context) CheckResult {
	snap := c.collector.Collect(c.lookback)
	res := CheckResult{Answers: snap.Total}
	now := c.now()

	firing := make(map[AlertType]bool)
	var due []Alert
	for _, a := range c.alerter.Evaluate(snap) {
		firing[a.Type] = true
		res.Triggered = append(res.Triggered, a.Type)
		if last, ok := c.lastSent[a.Type]; ok && now.Sub(last) < c.repeat {
			res.Suppressed = append(res.Suppressed, a.Type)
			continue
		}
		due = append(due, a)
	}
	for t := range c.lastSent {
		if !firing[t] {
			delete(c.lastSent, t)
		}
	}

	if len(due) > 0 {
		res.Sent = c.alerter.SendAlerts(ctx, due)
		// A partial failure leaves every due alert unmarked so the next tick retries.
		if res.Sent == len(due) {
			for _, a := range due {
				c.lastSent[a.Type] = now
			}
		}
	}

	zap.L().Info("monitoring: answer health",
		zap.Int("answers", snap.Total),
		zap.Float64("unresolved_rate", snap.UnresolvedRate),
		zap.Float64("fallback_rate", snap.FallbackRate),
		zap.Strings("top_reasons", snap.TopReasons(3)),
		zap.Int("alerts_triggered", len(res.Triggered)),
		zap.Int("alerts_suppressed", len(res.Suppressed)),
		zap.Int("alerts_sent", res.Sent),
	)
	return res
}
