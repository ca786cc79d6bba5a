// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package exporter

import "flowexporter/common/reporter"

type metrics struct {
	flowsQueued  reporter.Counter
	flowsDropped *reporter.CounterVec
}

func (c *Component) initMetrics() {
	c.metrics.flowsQueued = c.r.Counter(
		reporter.CounterOpts{
			Name: "flows_queued_total",
			Help: "Number of flows accepted in the queue.",
		},
	)
	c.metrics.flowsDropped = c.r.CounterVec(
		reporter.CounterOpts{
			Name: "flows_dropped_total",
			Help: "Number of flows dropped before encoding.",
		},
		[]string{"reason"},
	)
	c.r.GaugeFunc(
		reporter.GaugeOpts{
			Name: "queue_length",
			Help: "Number of flows waiting in the queue.",
		},
		func() float64 {
			return float64(len(c.queue))
		},
	)
	c.r.GaugeFunc(
		reporter.GaugeOpts{
			Name: "queue_capacity",
			Help: "Maximum number of flows in the queue.",
		},
		func() float64 {
			return float64(cap(c.queue))
		},
	)
}
