// package prometheuscollector allows to expose metrics for Prometheus.
//
// Using the provided collector, you can easily expose metrics of a file
// session in the Prometheus exposition format
// (https://prometheus.io/docs/instrumenting/exposition_formats/):
//
//	s, err := session.New(…)
//	collector := prometheuscollector.New(s.Metrics)
//	prometheus.MustRegister(collector)
package prometheuscollector

import (
	"sync/atomic"

	"github.com/tus/flashfile/pkg/session"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationsTotalDesc = prometheus.NewDesc(
		"flashfile_operations_total",
		"Total number of file operations per function.",
		[]string{"operation"}, nil)
	errorsTotalDesc = prometheus.NewDesc(
		"flashfile_errors_total",
		"Total number of raised errors per code.",
		[]string{"code", "class", "message"}, nil)
	softFailuresDesc = prometheus.NewDesc(
		"flashfile_soft_failures_total",
		"Number of driver failures reported as absent results.",
		nil, nil)
	bytesReadDesc = prometheus.NewDesc(
		"flashfile_bytes_read",
		"Number of bytes returned by read calls.",
		nil, nil)
	bytesWrittenDesc = prometheus.NewDesc(
		"flashfile_bytes_written",
		"Number of bytes accepted by the flash driver.",
		nil, nil)
	fileOpenDesc = prometheus.NewDesc(
		"flashfile_file_open",
		"Whether the session currently holds an open file.",
		nil, nil)
)

type Collector struct {
	metrics session.Metrics
}

// New creates a new collector which reads from the provided Metrics struct.
func New(metrics session.Metrics) Collector {
	return Collector{
		metrics: metrics,
	}
}

func (_ Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- operationsTotalDesc
	descs <- errorsTotalDesc
	descs <- softFailuresDesc
	descs <- bytesReadDesc
	descs <- bytesWrittenDesc
	descs <- fileOpenDesc
}

func (c Collector) Collect(metrics chan<- prometheus.Metric) {
	for op, valuePtr := range c.metrics.OperationsTotal {
		metrics <- prometheus.MustNewConstMetric(
			operationsTotalDesc,
			prometheus.CounterValue,
			float64(atomic.LoadUint64(valuePtr)),
			op,
		)
	}

	for err, valuePtr := range c.metrics.ErrorsTotal.Load() {
		metrics <- prometheus.MustNewConstMetric(
			errorsTotalDesc,
			prometheus.CounterValue,
			float64(atomic.LoadUint64(valuePtr)),
			err.ErrorCode,
			err.Class.String(),
			err.Message,
		)
	}

	metrics <- prometheus.MustNewConstMetric(
		softFailuresDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(c.metrics.SoftFailures)),
	)

	metrics <- prometheus.MustNewConstMetric(
		bytesReadDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(c.metrics.BytesRead)),
	)

	metrics <- prometheus.MustNewConstMetric(
		bytesWrittenDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(c.metrics.BytesWritten)),
	)

	metrics <- prometheus.MustNewConstMetric(
		fileOpenDesc,
		prometheus.GaugeValue,
		float64(atomic.LoadUint64(c.metrics.FileOpen)),
	)
}
