// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package generator produces synthetic flows with application
// extensions and hands them to a sink, usually the exporter component.
package generator

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"gopkg.in/tomb.v2"

	"flowexporter/common/daemon"
	"flowexporter/common/record"
	"flowexporter/common/reporter"
)

// Sink receives generated flows. Send returns false when the flow was
// not accepted.
type Sink interface {
	Send(flow *record.Flow) bool
}

// Component represents the generator component.
type Component struct {
	r      *reporter.Reporter
	d      *Dependencies
	t      tomb.Tomb
	config Configuration

	nextID uint64

	metrics struct {
		generated *reporter.CounterVec
		rejected  reporter.Counter
	}
}

// Dependencies define the dependencies of the generator component.
type Dependencies struct {
	Daemon daemon.Component
	Clock  clock.Clock
	Sink   Sink
}

// New creates a new generator component.
func New(r *reporter.Reporter, config Configuration, dependencies Dependencies) (*Component, error) {
	if dependencies.Sink == nil {
		return nil, errors.New("generator needs a sink")
	}
	for idx, flow := range config.Flows {
		if flow.SrcNet.Addr().Is4() != flow.DstNet.Addr().Is4() {
			return nil, fmt.Errorf("flow %d: %s and %s are not of the same family",
				idx, flow.SrcNet, flow.DstNet)
		}
	}
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	c := Component{
		r:      r,
		d:      &dependencies,
		config: config,
	}

	c.metrics.generated = c.r.CounterVec(
		reporter.CounterOpts{
			Name: "flows_total",
			Help: "Number of generated flows.",
		},
		[]string{"kind"},
	)
	c.metrics.rejected = c.r.Counter(
		reporter.CounterOpts{
			Name: "rejected_flows_total",
			Help: "Number of generated flows rejected by the sink.",
		},
	)

	c.d.Daemon.Track(&c.t, "generator")
	return &c, nil
}

// Start starts the generator component.
func (c *Component) Start() error {
	c.r.Info().Int("flows", len(c.config.Flows)).Msg("starting generator component")
	ticker := c.d.Clock.Ticker(time.Second)
	c.t.Go(func() error {
		defer ticker.Stop()
		for {
			select {
			case <-c.t.Dying():
				return nil
			case now := <-ticker.C:
				c.emit(now)
			}
		}
	})
	return nil
}

// emit generates one second worth of flows and sends them to the sink.
func (c *Component) emit(now time.Time) {
	flows := generateFlows(c.config.Flows, c.config.Seed, now)
	for _, flow := range flows {
		c.nextID++
		flow.ID = c.nextID
		kind := record.KindBasic
		if len(flow.Extensions) > 0 {
			kind = flow.Extensions[0].Kind()
		}
		c.metrics.generated.WithLabelValues(kind.String()).Inc()
		if !c.d.Sink.Send(flow) {
			c.metrics.rejected.Inc()
		}
	}
	c.r.Debug().Int("flows", len(flows)).Msg("flows generated")
}

// Stop stops the generator component.
func (c *Component) Stop() error {
	defer c.r.Info().Msg("generator component stopped")
	c.r.Info().Msg("stopping the generator component")
	c.t.Kill(nil)
	return c.t.Wait()
}
