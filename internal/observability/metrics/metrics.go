package metrics

import "github.com/prometheus/client_golang/prometheus"

// CoreMetrics exposes counters/histograms for the record-consistency core.
type CoreMetrics struct {
	registrationsTotal *prometheus.CounterVec
	writesTotal        *prometheus.CounterVec
	uploadsTotal       *prometheus.CounterVec
	uploadDuration     *prometheus.HistogramVec
}

func NewCoreMetrics(reg prometheus.Registerer) *CoreMetrics {
	m := &CoreMetrics{
		registrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "registry",
			Name:      "registrations_total",
			Help:      "Patient registrations by outcome (created or merged)",
		}, []string{"outcome"}),
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "consultations",
			Name:      "field_group_writes_total",
			Help:      "Consultation field-group writes by group and status",
		}, []string{"field_group", "status"}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "attachments",
			Name:      "uploads_total",
			Help:      "Attachment uploads by tier and outcome",
		}, []string{"tier", "outcome"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "attachments",
			Name:      "upload_duration_seconds",
			Help:      "Duration of individual attachment uploads",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tier"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.registrationsTotal, m.writesTotal, m.uploadsTotal, m.uploadDuration)
	return m
}

func (m *CoreMetrics) ObserveRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrationsTotal.WithLabelValues(outcome).Inc()
}

func (m *CoreMetrics) ObserveWrite(fieldGroup, status string) {
	if m == nil {
		return
	}
	m.writesTotal.WithLabelValues(fieldGroup, status).Inc()
}

func (m *CoreMetrics) ObserveUpload(tier, outcome string) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(tier, outcome).Inc()
}

func (m *CoreMetrics) ObserveUploadDuration(tier string, seconds float64) {
	if m == nil {
		return
	}
	m.uploadDuration.WithLabelValues(tier).Observe(seconds)
}
