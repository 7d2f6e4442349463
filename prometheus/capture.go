package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CaptureReader is the view of a capture channel the collector samples.
type CaptureReader interface {
	FrameCounter() uint32
	CurrentSize() (uint32, uint32)
	UnreadFrames() int
	RingSize() int
}

type captureCollector struct {
	name    string
	channel CaptureReader

	framesDesc *prometheus.Desc
	widthDesc  *prometheus.Desc
	heightDesc *prometheus.Desc
	unreadDesc *prometheus.Desc
	ringDesc   *prometheus.Desc
}

func NewCaptureCollector(name string, channel CaptureReader) prometheus.Collector {
	return &captureCollector{
		name:    name,
		channel: channel,
		framesDesc: prometheus.NewDesc(
			"capture_frames_total",
			"Total number of grab attempts by the producer",
			[]string{"name"}, nil),
		widthDesc: prometheus.NewDesc(
			"capture_width",
			"Most recently observed window width",
			[]string{"name"}, nil),
		heightDesc: prometheus.NewDesc(
			"capture_height",
			"Most recently observed window height",
			[]string{"name"}, nil),
		unreadDesc: prometheus.NewDesc(
			"capture_unread_frames",
			"Frames published but not yet consumed",
			[]string{"name"}, nil),
		ringDesc: prometheus.NewDesc(
			"capture_ring_size",
			"Number of slots in the capture ring",
			[]string{"name"}, nil),
	}
}

func (c *captureCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.framesDesc
	ch <- c.widthDesc
	ch <- c.heightDesc
	ch <- c.unreadDesc
	ch <- c.ringDesc
}

func (c *captureCollector) Collect(ch chan<- prometheus.Metric) {
	width, height := c.channel.CurrentSize()

	ch <- prometheus.MustNewConstMetric(c.framesDesc, prometheus.CounterValue, float64(c.channel.FrameCounter()), c.name)
	ch <- prometheus.MustNewConstMetric(c.widthDesc, prometheus.GaugeValue, float64(width), c.name)
	ch <- prometheus.MustNewConstMetric(c.heightDesc, prometheus.GaugeValue, float64(height), c.name)
	ch <- prometheus.MustNewConstMetric(c.unreadDesc, prometheus.GaugeValue, float64(c.channel.UnreadFrames()), c.name)
	ch <- prometheus.MustNewConstMetric(c.ringDesc, prometheus.GaugeValue, float64(c.channel.RingSize()), c.name)
}
