package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Mail dispatch metrics
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prelax_mail_send_success_total",
		Help: "Total number of successful mail sends",
	}, []string{"account"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prelax_mail_send_failure_total",
		Help: "Total number of failed mail send attempts",
	}, []string{"account"})
	DispatchRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prelax_dispatch_retries_total",
		Help: "Total number of dispatch retry attempts",
	})
	AccountRateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prelax_account_ratelimited_total",
		Help: "Total number of times an account was marked rate limited by a provider throttle signal",
	}, []string{"account"})
	SelectorExhausted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prelax_selector_exhausted_total",
		Help: "Total number of selections that found every account rate limited or at its daily limit",
	})

	// Batch metrics
	BatchRecipients = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prelax_batch_recipients_total",
		Help: "Total number of batch recipients processed, by outcome",
	}, []string{"status"})

	// Audit trail metrics
	AuditEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prelax_audit_events_dropped_total",
		Help: "Total number of audit events dropped because the queue was full",
	})
)

func init() {
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(DispatchRetries)
	prometheus.MustRegister(AccountRateLimited)
	prometheus.MustRegister(SelectorExhausted)
	prometheus.MustRegister(BatchRecipients)
	prometheus.MustRegister(AuditEventsDropped)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
