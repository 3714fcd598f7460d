package stats

import "github.com/prometheus/client_golang/prometheus"

// PrometheusCollector exposes an Engine's Counters as a
// prometheus.Collector. Neither binary in this module registers it or
// serves a metrics endpoint.
type PrometheusCollector struct {
	engine *Engine

	total       *prometheus.Desc
	in          *prometheus.Desc
	out         *prometheus.Desc
	errors      *prometheus.Desc
	perTopic    *prometheus.Desc
	qosHisto    *prometheus.Desc
}

func NewPrometheusCollector(e *Engine) *PrometheusCollector {
	return &PrometheusCollector{
		engine:   e,
		total:    prometheus.NewDesc("mqttpulse_messages_total", "Total messages observed", nil, nil),
		in:       prometheus.NewDesc("mqttpulse_messages_in_total", "Inbound messages observed", nil, nil),
		out:      prometheus.NewDesc("mqttpulse_messages_out_total", "Outbound messages published", nil, nil),
		errors:   prometheus.NewDesc("mqttpulse_errors_total", "Rule action errors observed", nil, nil),
		perTopic: prometheus.NewDesc("mqttpulse_topic_messages_total", "Messages observed per topic", []string{"topic"}, nil),
		qosHisto: prometheus.NewDesc("mqttpulse_qos_messages_total", "Messages observed per QoS level", []string{"qos"}, nil),
	}
}

func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.in
	ch <- c.out
	ch <- c.errors
	ch <- c.perTopic
	ch <- c.qosHisto
}

func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.CounterValue, float64(c.engine.Counters.Total.Load()))
	ch <- prometheus.MustNewConstMetric(c.in, prometheus.CounterValue, float64(c.engine.Counters.In.Load()))
	ch <- prometheus.MustNewConstMetric(c.out, prometheus.CounterValue, float64(c.engine.Counters.Out.Load()))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(c.engine.Counters.Errors.Load()))

	for _, tc := range c.engine.Counters.TopTopics(0) {
		ch <- prometheus.MustNewConstMetric(c.perTopic, prometheus.CounterValue, float64(tc.Count), tc.Topic)
	}
	for qos, n := range c.engine.Counters.QoSHistogram() {
		ch <- prometheus.MustNewConstMetric(c.qosHisto, prometheus.CounterValue, float64(n), qosLabel(qos))
	}
}

func qosLabel(qos byte) string {
	switch qos {
	case 0:
		return "0"
	case 1:
		return "1"
	case 2:
		return "2"
	default:
		return "unknown"
	}
}
