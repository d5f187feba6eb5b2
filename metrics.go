// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	replies  *prometheus.CounterVec
	dispatch prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unirpc",
			Name:      "replies_total",
			Help:      "Replies sent, by envelope tag and error kind.",
		}, []string{"tag", "exception"}),
		dispatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "unirpc",
			Name:      "dispatch_seconds",
			Help:      "Time from receiving a request to having its reply encoded.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
	for _, c := range []prometheus.Collector{m.replies, m.dispatch} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// observe records one reply. It is a no-op on a nil receiver.
func (m *metrics) observe(tag, exception string, d time.Duration) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(tag, exception).Inc()
	m.dispatch.Observe(d.Seconds())
}
