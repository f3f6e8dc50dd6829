package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricPrefix = "pstryk_bridge_"

var (
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "fetch_total",
		Help: "REST fetches by field group and result",
	}, []string{"group", "result"})

	PushConnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "push_connects_total",
		Help: "Push channel connection attempts by result",
	}, []string{"result"})

	PushFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "push_frames_total",
		Help: "Push frames by handling outcome",
	}, []string{"result"})

	SnapshotApplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "snapshot_applies_total",
		Help: "Snapshot updates applied by source",
	}, []string{"source"})
)
