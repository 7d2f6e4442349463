package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MuxerReader is the view of a muxer the collector samples.
type MuxerReader interface {
	TotalBytes() uint64
	ActualBitRate() float64
	WriteRate() float64
	StreamCount() int
	QueuedPacketCount(streamIndex int) int
	ErrorOccurred() bool
}

type muxerCollector struct {
	name  string
	muxer MuxerReader

	totalBytesDesc *prometheus.Desc
	bitRateDesc    *prometheus.Desc
	writeRateDesc  *prometheus.Desc
	queuedDesc     *prometheus.Desc
	errorDesc      *prometheus.Desc
}

func NewMuxerCollector(name string, muxer MuxerReader) prometheus.Collector {
	return &muxerCollector{
		name:  name,
		muxer: muxer,
		totalBytesDesc: prometheus.NewDesc(
			"muxer_total_bytes",
			"Total number of bytes accepted by the container",
			[]string{"name"}, nil),
		bitRateDesc: prometheus.NewDesc(
			"muxer_bit_rate",
			"Output bit rate over the most recent window of at least one second of stream time",
			[]string{"name"}, nil),
		writeRateDesc: prometheus.NewDesc(
			"muxer_write_rate",
			"Wall-clock write throughput in bit/s",
			[]string{"name"}, nil),
		queuedDesc: prometheus.NewDesc(
			"muxer_queued_packets",
			"Current number of queued packets by stream",
			[]string{"name", "stream"}, nil),
		errorDesc: prometheus.NewDesc(
			"muxer_error",
			"Whether the muxer worker has died on an error",
			[]string{"name"}, nil),
	}
}

func (c *muxerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalBytesDesc
	ch <- c.bitRateDesc
	ch <- c.writeRateDesc
	ch <- c.queuedDesc
	ch <- c.errorDesc
}

func (c *muxerCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.totalBytesDesc, prometheus.CounterValue, float64(c.muxer.TotalBytes()), c.name)
	ch <- prometheus.MustNewConstMetric(c.bitRateDesc, prometheus.GaugeValue, c.muxer.ActualBitRate(), c.name)
	ch <- prometheus.MustNewConstMetric(c.writeRateDesc, prometheus.GaugeValue, c.muxer.WriteRate(), c.name)

	for i := 0; i < c.muxer.StreamCount(); i++ {
		ch <- prometheus.MustNewConstMetric(c.queuedDesc, prometheus.GaugeValue, float64(c.muxer.QueuedPacketCount(i)), c.name, strconv.Itoa(i))
	}

	errval := 0.0
	if c.muxer.ErrorOccurred() {
		errval = 1.0
	}

	ch <- prometheus.MustNewConstMetric(c.errorDesc, prometheus.GaugeValue, errval, c.name)
}
