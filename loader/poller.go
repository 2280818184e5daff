package loader

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultPollInterval is used when NewPoller is given a non-positive
// interval.
const DefaultPollInterval = 15 * time.Minute

// Poller starts a background load immediately and then once per interval.
type Poller struct {
	loader   *Loader
	url      string
	interval time.Duration
	deliver  func(*Result)
	log      logrus.FieldLogger

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewPoller creates a poller that delivers results through deliver.
func NewPoller(l *Loader, url string, interval time.Duration, deliver func(*Result)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Poller{
		loader:   l,
		url:      url,
		interval: interval,
		deliver:  deliver,
		log:      l.log,
		stopChan: make(chan struct{}),
	}
}

// Run loads until Stop is called or ctx is cancelled. On exit it cancels the
// in-flight load and waits for it to finish. No load is started once Stop
// has been called.
func (p *Poller) Run(ctx context.Context) error {
	p.log.WithFields(logrus.Fields{
		"url":      p.url,
		"interval": p.interval.String(),
	}).Info("Poller starting")

	if !p.stopped(ctx) {
		p.loader.Start(ctx, p.url, p.deliver)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Poller stopping (context cancelled)")
			p.loader.Wait()
			return ctx.Err()
		case <-p.stopChan:
			p.log.Info("Poller stopping")
			p.loader.Cancel()
			p.loader.Wait()
			return nil
		case <-ticker.C:
			// select picks among ready cases at random, so a tick can
			// arrive together with a stop
			if p.stopped(ctx) {
				continue
			}
			p.loader.Start(ctx, p.url, p.deliver)
		}
	}
}

func (p *Poller) stopped(ctx context.Context) bool {
	select {
	case <-p.stopChan:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Stop signals Run to return. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
}
