package submission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal    = promauto.NewCounterVec(prometheus.CounterOpts{Name: "intake_submissions_total"}, []string{"status"})
	pointsAwardedTotal  = promauto.NewCounter(prometheus.CounterOpts{Name: "intake_points_awarded_total"})
	oracleFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "intake_oracle_failures_total"})
)
