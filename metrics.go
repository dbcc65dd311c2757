package mqttcore

import "time"

// MetricLabels are key-value pairs attached to a metric observation.
type MetricLabels map[string]string

// Metrics is the instrumentation interface Endpoint and Server report
// through; nil-safe via NoOpMetrics so instrumentation is always optional.
type Metrics interface {
	Counter(name string, labels MetricLabels) Counter
	Gauge(name string, labels MetricLabels) Gauge
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter is a monotonically increasing metric.
type Counter interface {
	Inc()
	Add(delta float64)
	Value() float64
}

// Gauge is a metric that can move in either direction.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(delta float64)
	Sub(delta float64)
	Value() float64
}

// Histogram tracks the distribution of observed values.
type Histogram interface {
	Observe(value float64)
	ObserveDuration(d time.Duration)
	Count() uint64
	Sum() float64
}

// NoOpMetrics discards every observation.
type NoOpMetrics struct{}

func (n *NoOpMetrics) Counter(_ string, _ MetricLabels) Counter     { return &noOpCounter{} }
func (n *NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge         { return &noOpGauge{} }
func (n *NoOpMetrics) Histogram(_ string, _ MetricLabels) Histogram { return &noOpHistogram{} }

type noOpCounter struct{}

func (n *noOpCounter) Inc()           {}
func (n *noOpCounter) Add(_ float64)  {}
func (n *noOpCounter) Value() float64 { return 0 }

type noOpGauge struct{}

func (n *noOpGauge) Set(_ float64)  {}
func (n *noOpGauge) Inc()           {}
func (n *noOpGauge) Dec()           {}
func (n *noOpGauge) Add(_ float64)  {}
func (n *noOpGauge) Sub(_ float64)  {}
func (n *noOpGauge) Value() float64 { return 0 }

type noOpHistogram struct{}

func (n *noOpHistogram) Observe(_ float64)              {}
func (n *noOpHistogram) ObserveDuration(_ time.Duration) {}
func (n *noOpHistogram) Count() uint64                  { return 0 }
func (n *noOpHistogram) Sum() float64                   { return 0 }

// Standard metric and label names.
const (
	MetricConnections      = "mqtt_connections"
	MetricConnectionsTotal = "mqtt_connections_total"
	MetricMessagesReceived = "mqtt_messages_received_total"
	MetricMessagesSent     = "mqtt_messages_sent_total"
	MetricBytesReceived    = "mqtt_bytes_received_total"
	MetricBytesSent        = "mqtt_bytes_sent_total"
	MetricSubscriptions    = "mqtt_subscriptions"
	MetricPublishLatency   = "mqtt_publish_latency_seconds"
	MetricPacketsSent      = "mqtt_packets_sent_total"
	MetricPacketsReceived  = "mqtt_packets_received_total"

	LabelPacketType = "packet_type"
	LabelQoS        = "qos"
	LabelReasonCode = "reason_code"
	LabelClientID   = "client_id"
	LabelTopic      = "topic"
)

// EndpointMetrics provides convenience recorders for the metric names
// above, so Endpoint doesn't construct MetricLabels maps inline.
type EndpointMetrics struct {
	metrics Metrics
}

// NewEndpointMetrics wraps m with the convenience recorders.
func NewEndpointMetrics(m Metrics) *EndpointMetrics {
	if m == nil {
		m = &NoOpMetrics{}
	}
	return &EndpointMetrics{metrics: m}
}

func (b *EndpointMetrics) ConnectionOpened() {
	b.metrics.Gauge(MetricConnections, nil).Inc()
	b.metrics.Counter(MetricConnectionsTotal, nil).Inc()
}

func (b *EndpointMetrics) ConnectionClosed() {
	b.metrics.Gauge(MetricConnections, nil).Dec()
}

func (b *EndpointMetrics) MessageReceived(qos byte) {
	b.metrics.Counter(MetricMessagesReceived, MetricLabels{LabelQoS: qosLabel(qos)}).Inc()
}

func (b *EndpointMetrics) MessageSent(qos byte) {
	b.metrics.Counter(MetricMessagesSent, MetricLabels{LabelQoS: qosLabel(qos)}).Inc()
}

func (b *EndpointMetrics) BytesReceived(n int) {
	b.metrics.Counter(MetricBytesReceived, nil).Add(float64(n))
}

func (b *EndpointMetrics) BytesSent(n int) {
	b.metrics.Counter(MetricBytesSent, nil).Add(float64(n))
}

func (b *EndpointMetrics) SubscriptionAdded() {
	b.metrics.Gauge(MetricSubscriptions, nil).Inc()
}

func (b *EndpointMetrics) SubscriptionRemoved() {
	b.metrics.Gauge(MetricSubscriptions, nil).Dec()
}

func (b *EndpointMetrics) PublishLatency(d time.Duration) {
	b.metrics.Histogram(MetricPublishLatency, nil).ObserveDuration(d)
}

func (b *EndpointMetrics) PacketReceived(packetType PacketType) {
	b.metrics.Counter(MetricPacketsReceived, MetricLabels{LabelPacketType: packetType.String()}).Inc()
}

func (b *EndpointMetrics) PacketSent(packetType PacketType) {
	b.metrics.Counter(MetricPacketsSent, MetricLabels{LabelPacketType: packetType.String()}).Inc()
}

func qosLabel(qos byte) string {
	return string(rune('0' + qos))
}
