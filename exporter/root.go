// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package exporter runs an IPFIX exporting session as a daemon
// component. Flows are queued by any goroutine and encoded by a single
// worker owning the session.
package exporter

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
	"gopkg.in/tomb.v2"

	"flowexporter/common/daemon"
	"flowexporter/common/httpserver"
	"flowexporter/common/record"
	"flowexporter/common/reporter"
	"flowexporter/exporter/ipfix"
)

// Component represents the exporter component.
type Component struct {
	r         *reporter.Reporter
	d         *Dependencies
	t         tomb.Tomb
	config    Configuration
	errLogger reporter.Logger

	session  *ipfix.Exporter
	queue    chan *record.Flow
	limiter  *rate.Limiter
	healthy  chan reporter.ChannelHealthcheckFunc
	statusCh chan chan Status

	metrics metrics
}

// Dependencies define the dependencies of the exporter component.
type Dependencies struct {
	Daemon daemon.Component
	Clock  clock.Clock
	HTTP   *httpserver.Component
}

// New creates a new exporter component.
func New(r *reporter.Reporter, configuration Configuration, dependencies Dependencies) (*Component, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	c := Component{
		r:         r,
		d:         &dependencies,
		config:    configuration,
		errLogger: r.Sample(reporter.BurstSampler(30*time.Second, 3)),

		queue:    make(chan *record.Flow, configuration.QueueSize),
		healthy:  make(chan reporter.ChannelHealthcheckFunc),
		statusCh: make(chan chan Status),
	}
	if configuration.RateLimit > 0 {
		burst := configuration.RateBurst
		if burst == 0 {
			burst = max(int(configuration.RateLimit), 1)
		}
		c.limiter = rate.NewLimiter(rate.Limit(configuration.RateLimit), burst)
	}
	c.d.Daemon.Track(&c.t, "exporter")
	c.initMetrics()
	return &c, nil
}

// Start starts the exporter component. The IPFIX session is created
// here. Being unable to reach the collector is not fatal.
func (c *Component) Start() error {
	c.r.Info().
		Str("target", c.config.Target).
		Stringer("protocol", c.config.Protocol).
		Msg("starting exporter component")
	session, err := ipfix.New(c.r, c.config.Configuration, ipfix.Dependencies{Clock: c.d.Clock})
	if err != nil {
		return fmt.Errorf("unable to create IPFIX session: %w", err)
	}
	c.session = session

	c.r.RegisterHealthcheck("exporter", reporter.ChannelHealthcheck(c.t.Context(nil), c.healthy))
	if c.d.HTTP != nil {
		c.d.HTTP.GinRouter.GET("/api/v0/exporter/status", c.statusHTTPHandler)
	}

	ticker := c.d.Clock.Ticker(c.config.FlushInterval)
	c.t.Go(func() error {
		defer ticker.Stop()
		return c.run(ticker.C)
	})
	return nil
}

// run is the worker owning the IPFIX session.
func (c *Component) run(flushes <-chan time.Time) error {
	for {
		select {
		case <-c.t.Dying():
			c.drain()
			c.session.Shutdown()
			return nil
		case cb, ok := <-c.healthy:
			if ok {
				if c.session.Connected() {
					cb(reporter.HealthcheckOK, "connected")
				} else {
					cb(reporter.HealthcheckWarning, "reconnect pending")
				}
			}
		case answer := <-c.statusCh:
			answer <- c.status()
		case flow := <-c.queue:
			c.encode(flow)
		case <-flushes:
			c.flush()
		}
	}
}

// encode encodes one flow in the session.
func (c *Component) encode(flow *record.Flow) {
	if err := c.session.Encode(flow); err != nil {
		c.errLogger.Err(err).Uint64("flow", flow.ID).Msg("cannot encode flow")
	}
}

// flush sends pending templates and all buffered records.
func (c *Component) flush() {
	c.session.Flush()
	for c.session.Pending() > 0 {
		c.session.Flush()
	}
}

// drain encodes flows still in the queue and sends them.
func (c *Component) drain() {
	count := 0
	for {
		select {
		case flow := <-c.queue:
			c.encode(flow)
			count++
		default:
			if count > 0 {
				c.r.Debug().Int("flows", count).Msg("queue drained")
			}
			c.flush()
			return
		}
	}
}

// Send queues a flow for export. It returns false if the flow was
// dropped because of the rate limit or because the queue is full. The
// flow should not be modified once sent.
func (c *Component) Send(flow *record.Flow) bool {
	if c.limiter != nil && !c.limiter.AllowN(c.d.Clock.Now(), 1) {
		c.metrics.flowsDropped.WithLabelValues("rate-limit").Inc()
		return false
	}
	select {
	case c.queue <- flow:
		c.metrics.flowsQueued.Inc()
		return true
	default:
		c.metrics.flowsDropped.WithLabelValues("queue-full").Inc()
		return false
	}
}

// Stop stops the exporter component. Queued flows are exported before
// closing the session.
func (c *Component) Stop() error {
	defer c.r.Info().Msg("exporter component stopped")
	c.r.Info().Msg("stopping exporter component")
	c.t.Kill(nil)
	return c.t.Wait()
}
