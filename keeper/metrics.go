package keeper

import (
	core "github.com/DomeLiquid/leverage"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports pool gauges sampled on every keeper tick.
type Metrics struct {
	epoch           prometheus.Gauge
	utilization     prometheus.Gauge
	priceOfWater    prometheus.Gauge
	totalDebt       prometheus.Gauge
	totalBadDebt    prometheus.Gauge
	totalShares     prometheus.Gauge
	liquidatable    prometheus.Gauge
	requestsStamped prometheus.Counter
	ticks           *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leverage_epoch",
			Help: "Current withdrawal epoch.",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lending_utilization_ratio",
			Help: "Borrowed share of the lending pool.",
		}),
		priceOfWater: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lending_share_price",
			Help: "Underlying value of one lending pool share.",
		}),
		totalDebt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lending_total_debt",
			Help: "Principal owed by the leverage pool.",
		}),
		totalBadDebt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lending_total_bad_debt",
			Help: "Debt written off after shortfalls.",
		}),
		totalShares: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leverage_total_shares",
			Help: "Yield asset shares held for open positions.",
		}),
		liquidatable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leverage_liquidatable_positions",
			Help: "Positions at or above the maximum DTV.",
		}),
		requestsStamped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leverage_requests_stamped_total",
			Help: "Pending withdraw requests stamped with an epoch.",
		}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keeper_ticks_total",
			Help: "Keeper ticks by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.epoch,
		m.utilization,
		m.priceOfWater,
		m.totalDebt,
		m.totalBadDebt,
		m.totalShares,
		m.liquidatable,
		m.requestsStamped,
		m.ticks,
	)
	return m
}

func (m *Metrics) observe(lending *core.LendingPool, leverage *core.LeveragePool, report *Report, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ticks.WithLabelValues("error").Inc()
		return
	}
	m.ticks.WithLabelValues("ok").Inc()

	m.epoch.Set(float64(report.Epoch))
	m.utilization.Set(lending.UtilizationRate().InexactFloat64())
	m.priceOfWater.Set(lending.PriceOfWater().InexactFloat64())
	m.totalDebt.Set(lending.TotalDebt().InexactFloat64())
	m.totalBadDebt.Set(lending.TotalBadDebt().InexactFloat64())
	m.totalShares.Set(leverage.TotalShares().InexactFloat64())
	m.liquidatable.Set(float64(len(report.Liquidatable)))
	m.requestsStamped.Add(float64(report.Stamped))
}
