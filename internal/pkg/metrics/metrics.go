package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 审核与会员生命周期指标
type Metrics struct {
	// 终审结果
	Decisions *prometheus.CounterVec

	// 申请状态迁移
	Transitions *prometheus.CounterVec

	// 提醒投递结果，按节点类型
	Reminders *prometheus.CounterVec

	Renewals prometheus.Counter
}

// New 在给定 registry 上注册指标，nil 时使用默认 registry
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vendor_portal_decisions_total",
			Help: "Final review decisions by outcome",
		}, []string{"outcome"}),

		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vendor_portal_application_transitions_total",
			Help: "Application status transitions",
		}, []string{"from", "to"}),

		Reminders: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vendor_portal_reminders_total",
			Help: "Renewal reminder dispatch results by checkpoint kind",
		}, []string{"kind", "outcome"}),

		Renewals: factory.NewCounter(prometheus.CounterOpts{
			Name: "vendor_portal_renewals_total",
			Help: "Successful membership renewals",
		}),
	}
}

func (m *Metrics) IncDecision(outcome string) {
	if m != nil {
		m.Decisions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncTransition(from, to string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) IncReminder(kind, outcome string) {
	if m != nil {
		m.Reminders.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) IncRenewal() {
	if m != nil {
		m.Renewals.Inc()
	}
}
