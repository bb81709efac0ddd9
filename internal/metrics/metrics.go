// Package metrics содержит Prometheus-метрики кассы.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storybook-pos/internal/model"
)

// Metrics объединяет доменные счётчики кассы. Нулевой указатель допустим и ничего не считает.
type Metrics struct {
	salesTotal      *prometheus.CounterVec
	revenueTotal    *prometheus.CounterVec
	stockRejections *prometheus.CounterVec
	checkoutErrors  prometheus.Counter
}

// New создаёт и регистрирует метрики. При nil используется регистр по умолчанию.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		salesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Count of completed sales by payment method.",
		}, []string{"payment_method"}),
		revenueTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_usd_total",
			Help:      "Grand total of completed sales in USD by payment method.",
		}, []string{"payment_method"}),
		stockRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_rejections_total",
			Help:      "Count of cart operations rejected for lack of stock.",
		}, []string{"operation"}),
		checkoutErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_persist_errors_total",
			Help:      "Count of sales that failed to persist.",
		}),
	}

	reg.MustRegister(m.salesTotal, m.revenueTotal, m.stockRejections, m.checkoutErrors)
	return m
}

// ObserveSale учитывает завершённую продажу.
func (m *Metrics) ObserveSale(method model.PaymentMethod, grandTotal decimal.Decimal) {
	if m == nil {
		return
	}
	m.salesTotal.WithLabelValues(string(method)).Inc()
	m.revenueTotal.WithLabelValues(string(method)).Add(grandTotal.InexactFloat64())
}

// ObserveStockRejection учитывает отказ из-за нехватки остатка.
func (m *Metrics) ObserveStockRejection(operation string) {
	if m == nil {
		return
	}
	m.stockRejections.WithLabelValues(operation).Inc()
}

// ObserveCheckoutError учитывает ошибку сохранения продажи.
func (m *Metrics) ObserveCheckoutError() {
	if m == nil {
		return
	}
	m.checkoutErrors.Inc()
}
