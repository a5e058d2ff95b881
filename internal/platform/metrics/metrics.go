package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus counters for the persistence core. Consumers
// hold a possibly-nil *Metrics and guard before use.
type Metrics struct {
	Commits       prometheus.Counter
	Conflicts     prometheus.Counter
	AuditEntries  prometheus.Counter
	AuditFailures prometheus.Counter
	DocsPatched   prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Commits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodian_commits_total",
			Help: "Total number of committed document saves",
		}),
		Conflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodian_conflicts_total",
			Help: "Total number of saves rejected with a stale revision or duplicate key",
		}),
		AuditEntries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodian_audit_entries_total",
			Help: "Total number of audit log entries written",
		}),
		AuditFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodian_audit_failures_total",
			Help: "Total number of audit log writes that failed after a committed save",
		}),
		DocsPatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodian_docs_patched_total",
			Help: "Total number of documents rewritten by batch patches",
		}),
	}
}

// IncCommit increments the committed-saves counter.
func (m *Metrics) IncCommit() {
	if m != nil {
		m.Commits.Inc()
	}
}

// IncConflict increments the rejected-saves counter.
func (m *Metrics) IncConflict() {
	if m != nil {
		m.Conflicts.Inc()
	}
}

// IncAuditEntry increments the audit-entries counter.
func (m *Metrics) IncAuditEntry() {
	if m != nil {
		m.AuditEntries.Inc()
	}
}

// IncAuditFailure increments the audit-failures counter.
func (m *Metrics) IncAuditFailure() {
	if m != nil {
		m.AuditFailures.Inc()
	}
}

// AddDocsPatched records documents rewritten by a batch run.
func (m *Metrics) AddDocsPatched(n int) {
	if m != nil && n > 0 {
		m.DocsPatched.Add(float64(n))
	}
}
