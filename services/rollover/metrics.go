package rollover

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cyclesClosedTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "rollover_cycles_closed_total"})
