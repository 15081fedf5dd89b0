package subscription

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lite_rpc_events_received_total",
		Help: "Upstream events drained by the dispatcher",
	}, []string{"kind"})
	promNotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lite_rpc_notifications_sent_total",
		Help: "Notification envelopes published to connections",
	}, []string{"method"})
	promEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lite_rpc_events_dropped_total",
		Help: "Events that produced no notification",
	}, []string{"reason"})
	promSubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lite_rpc_subscriptions_active",
		Help: "Distinct subscription keys currently registered",
	})
	promReceiverLagged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lite_rpc_receiver_lagged_total",
		Help: "Times a connection fell behind the notification stream",
	})
)

const (
	dropNoSubscriber = "no_subscriber"
	dropEncode       = "encode"
	dropInvalid      = "invalid"
	dropClosed       = "closed"
)
