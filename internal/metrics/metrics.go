package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Code submission outcomes
const (
	OutcomeLinked        = "linked"
	OutcomeNotFound      = "not_found"
	OutcomeInvalid       = "invalid"
	OutcomeRateLimited   = "rate_limited"
	OutcomeAlreadyLinked = "already_linked"
	OutcomeVetoed        = "vetoed"
	OutcomeError         = "error"
)

// Recorder is the set of measurements taken by the linking engine and role sync
type Recorder interface {
	RecordCodeIssued()
	RecordCodeExpired()
	RecordSubmission(outcome string)
	RecordLinkCreated()
	RecordLinkRemoved(reason string)
	RecordRoleOperation(mode string, ok bool)
}

// Collector records Prometheus metrics
type Collector struct {
	codesIssued  prometheus.Counter
	codesExpired prometheus.Counter
	submissions  *prometheus.CounterVec
	linksCreated prometheus.Counter
	linksRemoved *prometheus.CounterVec
	roleOps      *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trinitylink_codes_issued_total",
			Help: "Link codes issued to game players",
		}),
		codesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trinitylink_codes_expired_total",
			Help: "Link codes that expired without being used",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trinitylink_code_submissions_total",
			Help: "Codes submitted over Discord by outcome",
		}, []string{"outcome"}),
		linksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trinitylink_links_created_total",
			Help: "Links committed",
		}),
		linksRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trinitylink_links_removed_total",
			Help: "Links removed by reason",
		}, []string{"reason"}),
		roleOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trinitylink_role_operations_total",
			Help: "Discord role grants and revokes by result",
		}, []string{"mode", "ok"}),
	}

	reg.MustRegister(
		c.codesIssued,
		c.codesExpired,
		c.submissions,
		c.linksCreated,
		c.linksRemoved,
		c.roleOps,
	)
	return c
}

// RegisterLinkCount exposes the current number of links, read on every scrape
func RegisterLinkCount(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "trinitylink_links",
		Help: "Currently linked identities",
	}, func() float64 { return float64(count()) }))
}

// RegisterDropped exposes the number of background tasks a worker pool dropped
func RegisterDropped(reg prometheus.Registerer, pool string, dropped func() int64) {
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name:        "trinitylink_worker_tasks_dropped_total",
		Help:        "Background tasks dropped because the queue was full",
		ConstLabels: prometheus.Labels{"pool": pool},
	}, func() float64 { return float64(dropped()) }))
}

func (c *Collector) RecordCodeIssued() {
	c.codesIssued.Inc()
}

func (c *Collector) RecordCodeExpired() {
	c.codesExpired.Inc()
}

func (c *Collector) RecordSubmission(outcome string) {
	c.submissions.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordLinkCreated() {
	c.linksCreated.Inc()
}

func (c *Collector) RecordLinkRemoved(reason string) {
	c.linksRemoved.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordRoleOperation(mode string, ok bool) {
	c.roleOps.WithLabelValues(mode, strconv.FormatBool(ok)).Inc()
}

// Handler serves the metrics in reg
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every measurement
type Nop struct{}

func (Nop) RecordCodeIssued()                {}
func (Nop) RecordCodeExpired()               {}
func (Nop) RecordSubmission(string)          {}
func (Nop) RecordLinkCreated()               {}
func (Nop) RecordLinkRemoved(string)         {}
func (Nop) RecordRoleOperation(string, bool) {}
