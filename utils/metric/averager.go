// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utilmetric

import (
	"github.com/luxfi/metric"

	"github.com/luxfi/futarchy/utils/wrappers"
)

// Averager tracks the count and sum of observations, from which their
// running average can be derived.
type Averager interface {
	Observe(float64)
}

type averager struct {
	count metric.Counter
	sum   metric.Gauge
}

func NewAveragerWithErrs(name, desc string, registerer metric.Registerer, errs *wrappers.Errs) Averager {
	a := averager{
		count: metric.NewCounter(metric.CounterOpts{
			Name: AppendNamespace(name, "count"),
			Help: "Total # of observations of " + desc,
		}),
		sum: metric.NewGauge(metric.GaugeOpts{
			Name: AppendNamespace(name, "sum"),
			Help: "Sum of " + desc,
		}),
	}
	errs.Add(
		registerer.Register(metric.AsCollector(a.count)),
		registerer.Register(metric.AsCollector(a.sum)),
	)
	return &a
}

func (a *averager) Observe(v float64) {
	a.count.Inc()
	a.sum.Add(v)
}

// AppendNamespace joins prefix and suffix with an underscore, dropping
// either when empty.
func AppendNamespace(prefix, suffix string) string {
	switch {
	case len(prefix) == 0:
		return suffix
	case len(suffix) == 0:
		return prefix
	default:
		return prefix + "_" + suffix
	}
}
