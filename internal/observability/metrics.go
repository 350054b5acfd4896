package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus registry and the broker meters. A nil
// *Metrics records nothing, so components can take one optionally.
type Metrics struct {
	Registry        *prometheus.Registry
	PublishTotal    *prometheus.CounterVec
	DeliveryTotal   *prometheus.CounterVec
	HandlerDuration prometheus.Histogram
	ConnectTotal    *prometheus.CounterVec
	Connected       prometheus.Gauge
	Reconnects      prometheus.Counter
}

// NewMetrics creates a custom Prometheus registry with the shopbus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	publishTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopbus_publish_total",
		Help: "Total number of publish calls.",
	}, []string{"routing_key", "status"})

	deliveryTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopbus_delivery_total",
		Help: "Total number of consumed deliveries by outcome.",
	}, []string{"outcome"})

	handlerDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shopbus_handler_duration_seconds",
		Help:    "Duration of delivery handlers in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	connectTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopbus_connect_attempts_total",
		Help: "Total number of broker dial attempts.",
	}, []string{"result"})

	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shopbus_broker_connected",
		Help: "1 while a broker connection is open.",
	})

	reconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopbus_broker_reconnect_attempts_total",
		Help: "Total number of dial retries after a failed attempt.",
	})

	reg.MustRegister(publishTotal, deliveryTotal, handlerDuration, connectTotal, connected, reconnects)

	return &Metrics{
		Registry:        reg,
		PublishTotal:    publishTotal,
		DeliveryTotal:   deliveryTotal,
		HandlerDuration: handlerDuration,
		ConnectTotal:    connectTotal,
		Connected:       connected,
		Reconnects:      reconnects,
	}
}

// Published counts one publish call
func (m *Metrics) Published(routingKey, status string) {
	if m == nil {
		return
	}
	m.PublishTotal.WithLabelValues(routingKey, status).Inc()
}

// Delivered counts one delivery outcome: ack, nack or dropped
func (m *Metrics) Delivered(outcome string) {
	if m == nil {
		return
	}
	m.DeliveryTotal.WithLabelValues(outcome).Inc()
}

// ObserveHandler records how long a handler ran
func (m *Metrics) ObserveHandler(d time.Duration) {
	if m == nil {
		return
	}
	m.HandlerDuration.Observe(d.Seconds())
}

// ConnectAttempt counts one dial
func (m *Metrics) ConnectAttempt(ok bool) {
	if m == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	m.ConnectTotal.WithLabelValues(result).Inc()
}

// OnConnected, OnDisconnected and OnReconnecting let Metrics follow the
// connection state as a listener.

func (m *Metrics) OnConnected() {
	if m == nil {
		return
	}
	m.Connected.Set(1)
}

func (m *Metrics) OnDisconnected(error) {
	if m == nil {
		return
	}
	m.Connected.Set(0)
}

func (m *Metrics) OnReconnecting(int) {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}
