// Copyright ©2024 The rigol Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scopedaq

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rigol_daq"

type metrics struct {
	shots    prometheus.Counter
	timeouts prometheus.Counter
	failures *prometheus.CounterVec
	wait     prometheus.Histogram
	samples  prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		shots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shots_total",
			Help:      "Number of captured and stored shots.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_timeouts_total",
			Help:      "Number of trigger waits that timed out.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Number of failed shots, by stage.",
		}, []string{"stage"}),
		wait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trigger_wait_seconds",
			Help:      "Time between arming the scope and the end of the acquisition.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		samples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_shot_samples",
			Help:      "Number of samples of the last captured shot.",
		}),
	}
}

func (m *metrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.shots, m.timeouts, m.failures, m.wait, m.samples,
	} {
		err := reg.Register(c)
		if err != nil {
			return err
		}
	}
	return nil
}
