package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsFeed     int64
	errorsSnapshot int64
	warnsFeed      int64
	warnsSnapshot  int64
	diffReads      int64
	snapshotReads  int64
	outOfSyncCount int64
	overflowCount  int64
	retryCount     int64
	channels       sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "snapshot") {
		atomic.AddInt64(&warnsSnapshot, 1)
	} else if strings.Contains(component, "feed") {
		atomic.AddInt64(&warnsFeed, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "snapshot") {
		atomic.AddInt64(&errorsSnapshot, 1)
	} else if strings.Contains(component, "feed") {
		atomic.AddInt64(&errorsFeed, 1)
	}
}

// IncrementDiffRead records one diff message read from a transport
// connection along with its payload size.
func IncrementDiffRead(size int) {
	atomic.AddInt64(&diffReads, 1)
	recordChannel("diff_ws", size)
}

// IncrementSnapshotRead records one REST depth snapshot fetch.
func IncrementSnapshotRead(size int) {
	atomic.AddInt64(&snapshotReads, 1)
	recordChannel("snapshot_rest", size)
}

// IncrementOutOfSync records one detected sequencing violation.
func IncrementOutOfSync() {
	atomic.AddInt64(&outOfSyncCount, 1)
}

// IncrementOverflow records one consumer overflow signal.
func IncrementOverflow() {
	atomic.AddInt64(&overflowCount, 1)
}

// IncrementRetryCount records one transport reconnect attempt.
func IncrementRetryCount() {
	atomic.AddInt64(&retryCount, 1)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of runtime and channel statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	fields := Fields{
		"errors_feed":     atomic.LoadInt64(&errorsFeed),
		"errors_snapshot": atomic.LoadInt64(&errorsSnapshot),
		"warns_feed":      atomic.LoadInt64(&warnsFeed),
		"warns_snapshot":  atomic.LoadInt64(&warnsSnapshot),
		"diff_reads":      atomic.LoadInt64(&diffReads),
		"snapshot_reads":  atomic.LoadInt64(&snapshotReads),
		"out_of_sync":     atomic.LoadInt64(&outOfSyncCount),
		"overflows":       atomic.LoadInt64(&overflowCount),
		"retries":         atomic.LoadInt64(&retryCount),
		"goroutines":      runtime.NumGoroutine(),
		"heap_mb":         int64(memStats.HeapAlloc) / 1024 / 1024,
		"channels":        channelData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("DiffReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&diffReads)))},
		{MetricName: aws.String("SnapshotReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&snapshotReads)))},
		{MetricName: aws.String("OutOfSync"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&outOfSyncCount)))},
		{MetricName: aws.String("Overflows"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&overflowCount)))},
		{MetricName: aws.String("Retries"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&retryCount)))},
		{MetricName: aws.String("ErrorsFeed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsFeed)))},
		{MetricName: aws.String("ErrorsSnapshot"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsSnapshot)))},
		{MetricName: aws.String("HeapMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.HeapAlloc) / 1024 / 1024)},
		{MetricName: aws.String("Goroutines"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(runtime.NumGoroutine()))},
	}

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
