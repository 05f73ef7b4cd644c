// Package metrics holds the Prometheus collectors for the inbox pipeline.
// HTTP metrics live in the middleware package.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// InboundMessages counts recorded inbound messages by message type.
	InboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_inbound_messages_total",
			Help: "Inbound WhatsApp messages recorded.",
		},
		[]string{"type"},
	)

	// DroppedEvents counts webhook messages that were not recorded.
	DroppedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_dropped_events_total",
			Help: "Inbound webhook events dropped, by reason.",
		},
		[]string{"reason"},
	)

	// OutboundSends counts dispatcher results: ok, demo or error.
	OutboundSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_outbound_sends_total",
			Help: "Outbound WhatsApp sends by result.",
		},
		[]string{"result"},
	)

	// AutomationFirings counts automation firings by trigger kind and outcome.
	AutomationFirings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_automation_firings_total",
			Help: "Automation firings by trigger kind and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	// StripeEvents counts verified Stripe webhook events by type.
	StripeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_stripe_events_total",
			Help: "Verified Stripe webhook events by type.",
		},
		[]string{"type"},
	)

	// BroadcastRecipients counts broadcast deliveries by result.
	BroadcastRecipients = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_broadcast_recipients_total",
			Help: "Broadcast deliveries by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(InboundMessages, DroppedEvents, OutboundSends, AutomationFirings, StripeEvents, BroadcastRecipients)
}
