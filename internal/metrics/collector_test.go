// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/karlgrep/netflowcore/internal/metrics"
)

func TestNewCollectorRegistersEveryMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.ObserveHighWater(4096)
	c.RecordStop(true)
	c.RecordOverflow("sip")
	c.RecordPromotion("sip")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
