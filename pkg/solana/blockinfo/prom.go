package blockinfo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smartcontractkit/solana-lite-rpc/pkg/solana/commitment"
)

var (
	promBlockInfoSlot = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Name: "lite_rpc_block_info_slot", Help: "Slot of the cached block information"},
		[]string{"commitment"},
	)
	promBlockInfoHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Name: "lite_rpc_block_info_height", Help: "Block height of the cached block information"},
		[]string{"commitment"},
	)
	promBlockInfoUpdateFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "lite_rpc_block_info_update_failures_total", Help: "Failed block information refreshes"},
		[]string{"commitment"},
	)
)

func updateProm(info BlockInformation) {
	promBlockInfoSlot.WithLabelValues(info.Commitment.String()).Set(float64(info.Slot))
	promBlockInfoHeight.WithLabelValues(info.Commitment.String()).Set(float64(info.BlockHeight))
}

func incUpdateFailure(level commitment.Level) {
	promBlockInfoUpdateFailures.WithLabelValues(level.String()).Inc()
}
