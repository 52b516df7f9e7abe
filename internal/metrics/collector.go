// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package metrics holds the optional Prometheus instrumentation for
// netflowcore's circular buffer and bag overflow events. It wraps the
// core cbuf/bag packages from the outside — neither package imports
// this one — so they stay usable with no transitive dependency when a
// caller doesn't need metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "netflowcore"

// Label names shared across the collector's vectors.
const (
	labelField = "field"
)

// Collector holds the Prometheus metrics the CLI registers when a
// subcommand is run with --metrics-addr.
type Collector struct {
	// CircularBufferHighWater tracks the largest total_used observed on
	// any circular buffer the CLI created, in bytes.
	CircularBufferHighWater prometheus.Gauge

	// CircularBufferStopped counts how many times a circular buffer was
	// stopped, split by whether it still held unread blocks.
	CircularBufferStopped *prometheus.CounterVec

	// BagOverflows counts counter-add operations that failed (such as
	// a result above CounterMax) while the CLI built a bag, labeled by
	// the bag's field name.
	BagOverflows *prometheus.CounterVec

	// BagPromotions counts key-width promotions, labeled by field name.
	BagPromotions *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		CircularBufferHighWater: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cbuf",
			Name:      "high_water_bytes",
			Help:      "Largest total_used observed on any circular buffer created by this process.",
		}),
		CircularBufferStopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cbuf",
			Name:      "stopped_total",
			Help:      "Circular buffers stopped, labeled by whether unread blocks remained.",
		}, []string{"drained"}),
		BagOverflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bag",
			Name:      "counter_overflows_total",
			Help:      "Counter-add operations that failed, such as by exceeding CounterMax.",
		}, []string{labelField}),
		BagPromotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bag",
			Name:      "key_width_promotions_total",
			Help:      "Key-width promotions triggered by inserting a wider key.",
		}, []string{labelField}),
	}

	reg.MustRegister(
		c.CircularBufferHighWater,
		c.CircularBufferStopped,
		c.BagOverflows,
		c.BagPromotions,
	)

	return c
}

// ObserveHighWater sets the high-water gauge to used. It does not
// compare used with the value already recorded, so a smaller
// observation replaces a larger one.
func (c *Collector) ObserveHighWater(used int) {
	c.CircularBufferHighWater.Set(float64(used))
}

// RecordStop increments the stopped counter, labeled by whether the
// buffer was still holding unread blocks at the moment Stop was called.
func (c *Collector) RecordStop(drained bool) {
	label := "true"
	if !drained {
		label = "false"
	}
	c.CircularBufferStopped.WithLabelValues(label).Inc()
}

// RecordOverflow increments the overflow counter for field.
func (c *Collector) RecordOverflow(field string) {
	c.BagOverflows.WithLabelValues(field).Inc()
}

// RecordPromotion increments the promotion counter for field.
func (c *Collector) RecordPromotion(field string) {
	c.BagPromotions.WithLabelValues(field).Inc()
}
