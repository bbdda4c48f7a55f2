// Package metrics exposes Prometheus collectors for the vault and the RPC
// server. A nil *Vault or *RPC is valid and records nothing.
package metrics

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "klingvault"

// Registry bundles a private registry with the collectors registered on it.
type Registry struct {
	reg   *prometheus.Registry
	Vault *Vault
	RPC   *RPC
}

// NewRegistry creates a registry with process and Go runtime collectors plus
// the vault and RPC collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{
		reg:   reg,
		Vault: NewVault(reg),
		RPC:   NewRPC(reg),
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer returns the underlying gatherer, for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Vault holds the vault operation collectors.
type Vault struct {
	ops          *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	totalStaked  prometheus.Gauge
	rewardRate   prometheus.Gauge
	accPerShare  prometheus.Gauge
	paused       prometheus.Gauge
	feesRetained prometheus.Gauge
}

// NewVault creates and registers the vault collectors.
func NewVault(reg prometheus.Registerer) *Vault {
	v := &Vault{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "vault", Name: "operations_total",
			Help: "Vault operations by name and result.",
		}, []string{"op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "vault", Name: "operation_seconds",
			Help:    "Vault operation latency including commit.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
		totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "vault", Name: "total_staked",
			Help: "Total staked amount in stake-token base units.",
		}),
		rewardRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "vault", Name: "reward_rate_per_second",
			Help: "Current reward emission in reward-token base units per second.",
		}),
		accPerShare: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "vault", Name: "acc_reward_per_share",
			Help: "Reward accumulator scaled by 1e18.",
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "vault", Name: "paused",
			Help: "1 while the vault is paused.",
		}),
		feesRetained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "vault", Name: "collected_fees",
			Help: "Emergency withdrawal fees held in custody.",
		}),
	}
	reg.MustRegister(v.ops, v.latency, v.totalStaked, v.rewardRate, v.accPerShare, v.paused, v.feesRetained)
	return v
}

// ObserveOp records the outcome and latency of one operation.
func (v *Vault) ObserveOp(op string, err error, took time.Duration) {
	if v == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	v.ops.WithLabelValues(op, result).Inc()
	v.latency.WithLabelValues(op).Observe(took.Seconds())
}

// Snapshot is the subset of vault state mirrored into gauges.
type Snapshot struct {
	TotalStaked       *uint256.Int
	RewardRate        *uint256.Int
	AccRewardPerShare *uint256.Int
	CollectedFees     *uint256.Int
	Paused            bool
}

// SetState updates the state gauges after a committed operation.
func (v *Vault) SetState(s Snapshot) {
	if v == nil {
		return
	}
	v.totalStaked.Set(toFloat(s.TotalStaked))
	v.rewardRate.Set(toFloat(s.RewardRate))
	v.accPerShare.Set(toFloat(s.AccRewardPerShare))
	v.feesRetained.Set(toFloat(s.CollectedFees))
	if s.Paused {
		v.paused.Set(1)
	} else {
		v.paused.Set(0)
	}
}

// RPC holds the JSON-RPC collectors.
type RPC struct {
	requests *prometheus.CounterVec
}

// NewRPC creates and registers the RPC collectors.
func NewRPC(reg prometheus.Registerer) *RPC {
	r := &RPC{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rpc", Name: "requests_total",
			Help: "JSON-RPC requests by method and error code (0 for success).",
		}, []string{"method", "code"}),
	}
	reg.MustRegister(r.requests)
	return r
}

// ObserveRequest counts one request.
func (r *RPC) ObserveRequest(method string, code int) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func toFloat(x *uint256.Int) float64 {
	if x == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(x.ToBig()).Float64()
	return f
}
