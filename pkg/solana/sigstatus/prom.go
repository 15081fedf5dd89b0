package sigstatus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var promSignaturesTracked = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "lite_rpc_signatures_tracked",
	Help: "Number of signatures held in the status table",
})
