// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Factory allow registration of new metrics and returns existing
// metrics if they were already registered.
type Factory struct {
	prefix   string
	registry *prometheus.Registry
}

func (f *Factory) prefixWith(name string) string {
	return fmt.Sprintf("%s%s", f.prefix, name)
}

// register registers a collector. If an identical collector is already
// registered, it is returned instead.
func register[C prometheus.Collector](f *Factory, c C) C {
	if err := f.registry.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(C)
		}
		panic(err)
	}
	return c
}

// NewCounter works like the function of the same name in the prometheus
// package but it registers the counter with the prefixed name.
func (f *Factory) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Name = f.prefixWith(opts.Name)
	return register(f, prometheus.NewCounter(opts))
}

// NewCounterVec works like the function of the same name in the prometheus
// package but it registers the counter vector with the prefixed name.
func (f *Factory) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	opts.Name = f.prefixWith(opts.Name)
	return register(f, prometheus.NewCounterVec(opts, labelNames))
}

// NewCounterFunc works like the function of the same name in the prometheus
// package but it registers the counter function with the prefixed name.
func (f *Factory) NewCounterFunc(opts prometheus.CounterOpts, function func() float64) prometheus.CounterFunc {
	opts.Name = f.prefixWith(opts.Name)
	return register(f, prometheus.NewCounterFunc(opts, function))
}

// NewGauge works like the function of the same name in the prometheus
// package but it registers the gauge with the prefixed name.
func (f *Factory) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Name = f.prefixWith(opts.Name)
	return register(f, prometheus.NewGauge(opts))
}

// NewGaugeVec works like the function of the same name in the prometheus
// package but it registers the gauge vector with the prefixed name.
func (f *Factory) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	opts.Name = f.prefixWith(opts.Name)
	return register(f, prometheus.NewGaugeVec(opts, labelNames))
}

// NewGaugeFunc works like the function of the same name in the prometheus
// package but it registers the gauge function with the prefixed name.
func (f *Factory) NewGaugeFunc(opts prometheus.GaugeOpts, function func() float64) prometheus.GaugeFunc {
	opts.Name = f.prefixWith(opts.Name)
	return register(f, prometheus.NewGaugeFunc(opts, function))
}

// NewHistogram works like the function of the same name in the prometheus
// package but it registers the histogram with the prefixed name.
func (f *Factory) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Name = f.prefixWith(opts.Name)
	return register(f, prometheus.NewHistogram(opts))
}

// NewHistogramVec works like the function of the same name in the prometheus
// package but it registers the histogram vector with the prefixed name.
func (f *Factory) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	opts.Name = f.prefixWith(opts.Name)
	return register(f, prometheus.NewHistogramVec(opts, labelNames))
}
