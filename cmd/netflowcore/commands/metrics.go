// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package commands

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/karlgrep/netflowcore/internal/metrics"
)

// serveMetrics registers the netflowcore collector against a fresh
// registry and starts an HTTP server exposing /metrics on addr in the
// background. Failures after startup are logged, not returned, since
// the subcommand's own work must not be blocked by a scrape client.
func serveMetrics(addr string) error {
	reg := prometheus.NewRegistry()
	metricsCollector = metrics.NewCollector(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ln, err := newListener(addr)
	if err != nil {
		return err
	}

	go func() {
		if err := http.Serve(ln, mux); err != nil {
			logger.Error().Err(err).Msg("metrics endpoint stopped")
		}
	}()

	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
	return nil
}
