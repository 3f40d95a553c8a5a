//
// Copyright (c) SAS Institute Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package signedapk

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSignSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "apkseal_sign_seconds",
		Help:    "Time spent producing each signature scheme",
		Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
	}, []string{"scheme"})
	metricSignTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apkseal_sign_total",
		Help: "Signatures produced by scheme and result",
	}, []string{"scheme", "result"})
)

func observe(scheme string, start time.Time, err error) {
	metricSignSeconds.WithLabelValues(scheme).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	metricSignTotal.WithLabelValues(scheme, result).Inc()
}
