package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for the read and write counters.
const (
	resultOK       = "ok"
	resultExists   = "exists"
	resultDisabled = "disabled"
	resultLowSpace = "low_space"
	resultIOError  = "io_error"
	resultInvalid  = "invalid"
	resultMissing  = "missing"
	resultCorrupt  = "corrupt"
)

type metrics struct {
	writes       *prometheus.CounterVec
	reads        *prometheus.CounterVec
	bytesWritten prometheus.Counter
	files        prometheus.Gauge
}

// newMetrics builds the store's collectors. A nil registerer leaves them
// unregistered, which keeps independent stores in tests from colliding.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "darkroom_undocache_writes_total",
			Help: "Snapshot writes by result",
		}, []string{"result"}),
		reads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "darkroom_undocache_reads_total",
			Help: "Snapshot reads by result",
		}, []string{"result"}),
		bytesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "darkroom_undocache_bytes_written_total",
			Help: "Pixel and header bytes written to snapshot files",
		}),
		files: f.NewGauge(prometheus.GaugeOpts{
			Name: "darkroom_undocache_files",
			Help: "Snapshot files currently held by the session",
		}),
	}
}
