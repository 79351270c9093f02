package engine

import (
	"errors"
	"time"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/tsawler/go-fasttext/memory"
	"github.com/tsawler/go-fasttext/native"
)

var (
	// nativeCallsTotal counts native calls by function and result
	nativeCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fasttext_native_calls_total",
		Help: "Total native fastText calls by function and result",
	}, []string{"op", "result"})

	// nativeCallDuration tracks native call latency
	nativeCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fasttext_native_call_duration_seconds",
		Help:    "Native fastText call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12), // 0.1ms to ~7min
	}, []string{"op"})

	// rejectedCallsTotal counts operations refused before reaching native code
	rejectedCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fasttext_rejected_calls_total",
		Help: "Total operations rejected by local checks, by reason",
	}, []string{"op", "reason"})

	// releasedBlocksTotal counts native blocks handed back by kind
	releasedBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fasttext_released_blocks_total",
		Help: "Total native memory blocks released by kind",
	}, []string{"kind"})

	// liveHandles tracks handles created and not yet closed
	liveHandles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fasttext_live_handles",
		Help: "Native fastText handles currently open",
	})
)

// countingReleaser forwards destroy calls and counts them per block kind
type countingReleaser struct {
	memory.Releaser
}

func (r countingReleaser) DestroyString(p unsafe.Pointer) {
	r.Releaser.DestroyString(p)
	releasedBlocksTotal.WithLabelValues(memory.StringBlock.String()).Inc()
}

func (r countingReleaser) DestroyStrings(p unsafe.Pointer, count int) {
	r.Releaser.DestroyStrings(p, count)
	releasedBlocksTotal.WithLabelValues(memory.StringArrayBlock.String()).Inc()
}

func (r countingReleaser) DestroyVector(p unsafe.Pointer) {
	r.Releaser.DestroyVector(p)
	releasedBlocksTotal.WithLabelValues(memory.VectorBlock.String()).Inc()
}

func (r countingReleaser) DestroyMeter(p unsafe.Pointer) {
	r.Releaser.DestroyMeter(p)
	releasedBlocksTotal.WithLabelValues(memory.MeterBlock.String()).Inc()
}

// invoke runs one native call through native.Invoke and records it
func invoke[T any](ft *FastText, op string, call func() (T, bool)) (T, error) {
	start := time.Now()
	result, err := native.Invoke(ft.api, op, call)
	nativeCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		nativeCallsTotal.WithLabelValues(op, "error").Inc()
		ft.log.Debug("native call failed", zap.String("op", op), zap.Error(err))
		return result, err
	}
	nativeCallsTotal.WithLabelValues(op, "ok").Inc()
	return result, nil
}

// status runs a status-returning native call through invoke
func status(ft *FastText, op string, call func() int32) (int32, error) {
	return invoke(ft, op, func() (int32, bool) {
		s := call()
		return s, s >= 0
	})
}

// reject counts a locally refused operation and returns err unchanged
func reject(op string, err error) error {
	reason := "invalid_argument"
	switch {
	case errors.Is(err, native.ErrHandleClosed):
		reason = "closed"
	case errors.Is(err, native.ErrModelNotReady):
		reason = "not_ready"
	case errors.Is(err, native.ErrNotSupervised):
		reason = "not_supervised"
	}
	rejectedCallsTotal.WithLabelValues(op, reason).Inc()
	return err
}
