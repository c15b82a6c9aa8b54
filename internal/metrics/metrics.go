package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"SanFermin/internal/committee"
)

const namespace = "sanfermin"

// StatsFunc returns the current statistics of a simulation.
type StatsFunc func() committee.Stats

// Collector exposes committee statistics to Prometheus.
// Values are read on every scrape, so a single collector follows a running committee.
type Collector struct {
	stats StatsFunc

	time            *prometheus.Desc
	members         *prometheus.Desc
	completed       *prometheus.Desc
	pendingEvents   *prometheus.Desc
	messages        *prometheus.Desc
	batchesSent     *prometheus.Desc
	repliesSent     *prometheus.Desc
	unitsSent       *prometheus.Desc
	batchesReceived *prometheus.Desc
	statesSent      *prometheus.Desc
	verifications   *prometheus.Desc
	firstDone       *prometheus.Desc
	lastDone        *prometheus.Desc
}

// NewCollector creates a collector reading from stats.
// constLabels are attached to every series, e.g. a run name when comparing runs.
func NewCollector(stats StatsFunc, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, constLabels)
	}

	return &Collector{
		stats:           stats,
		time:            desc("virtual_time_ms", "Virtual time of the simulation in milliseconds."),
		members:         desc("members", "Committee size."),
		completed:       desc("completed_members", "Members that reached the threshold."),
		pendingEvents:   desc("pending_events", "Events waiting in the substrate queue."),
		messages:        desc("messages_total", "Messages sent on the substrate."),
		batchesSent:     desc("batches_sent_total", "Contribution batches sent."),
		repliesSent:     desc("replies_sent_total", "Batches sent as replies by completed members."),
		unitsSent:       desc("units_sent_total", "Encoding cost units sent."),
		batchesReceived: desc("batches_received_total", "Contribution batches received."),
		statesSent:      desc("states_sent_total", "Verified set announcements sent."),
		verifications:   desc("verifications_total", "Aggregate verifications run."),
		firstDone:       desc("first_completion_ms", "Earliest completion time, -1 before any member completed."),
		lastDone:        desc("last_completion_ms", "Latest completion time, -1 before any member completed."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs() {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()

	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}

	gauge(c.time, float64(s.Time))
	gauge(c.members, float64(s.Members))
	gauge(c.completed, float64(s.Completed))
	gauge(c.pendingEvents, float64(s.PendingEvents))
	counter(c.messages, s.Messages)
	counter(c.batchesSent, s.BatchesSent)
	counter(c.repliesSent, s.RepliesSent)
	counter(c.unitsSent, s.UnitsSent)
	counter(c.batchesReceived, s.BatchesReceived)
	counter(c.statesSent, s.StatesSent)
	counter(c.verifications, s.Verifications)
	gauge(c.firstDone, float64(s.FirstDone))
	gauge(c.lastDone, float64(s.LastDone))
}

func (c *Collector) descs() []*prometheus.Desc {
	return []*prometheus.Desc{
		c.time, c.members, c.completed, c.pendingEvents, c.messages,
		c.batchesSent, c.repliesSent, c.unitsSent, c.batchesReceived,
		c.statesSent, c.verifications, c.firstDone, c.lastDone,
	}
}

// CompletionHistogram buckets member completion times.
// Members that did not complete are left out.
func CompletionHistogram(results []committee.Result, buckets []float64) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "completion_time_ms",
		Help:      "Virtual time at which members reached the threshold.",
		Buckets:   buckets,
	})

	for _, r := range results {
		if r.Completed {
			h.Observe(float64(r.CompletedAt))
		}
	}

	return h
}

// NewRegistry returns a registry holding the collector of c and its completion histogram.
func NewRegistry(c *committee.Committee, buckets []float64) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(NewCollector(c.Stats, nil)); err != nil {
		return nil, err
	}

	if err := reg.Register(CompletionHistogram(c.Results(), buckets)); err != nil {
		return nil, err
	}

	return reg, nil
}

// WriteFile writes the registry in the Prometheus text format, for node_exporter's textfile collector.
func WriteFile(path string, reg *prometheus.Registry) error {
	return prometheus.WriteToTextfile(path, reg)
}
