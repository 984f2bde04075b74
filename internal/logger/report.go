package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net" //cloudwatch

	"github.com/aws/aws-sdk-go-v2/aws"                              //cloudwatch
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types" //cloudwatch
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsConnector int64
	errorsEngine    int64
	warnsConnector  int64
	warnsEngine     int64
	wsReads         int64
	restReads       int64
	persistWrites   int64
	alertsSent      int64
	channels        sync.Map // map[string]*channelStat
)

// recordWarn/recordError bucket by which half of the pipeline logged the
// event: ingestion (the "*_connector" components reading exchange feeds) or
// detection (the "*_engine" components scanning for opportunities).
func recordWarn(component string) {
	if strings.Contains(component, "connector") {
		atomic.AddInt64(&warnsConnector, 1)
	} else if strings.Contains(component, "engine") {
		atomic.AddInt64(&warnsEngine, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "connector") {
		atomic.AddInt64(&errorsConnector, 1)
	} else if strings.Contains(component, "engine") {
		atomic.AddInt64(&errorsEngine, 1)
	}
}

// IncrementWSRead counts one inbound websocket delta message.
func IncrementWSRead(size int) {
	atomic.AddInt64(&wsReads, 1)
	recordChannel("ws_delta", size)
}

// IncrementRESTRead counts one REST snapshot or poll response.
func IncrementRESTRead(size int) {
	atomic.AddInt64(&restReads, 1)
	recordChannel("rest_snapshot", size)
}

// IncrementPersistWrite counts one opportunity persisted to the sink.
func IncrementPersistWrite(size int) {
	atomic.AddInt64(&persistWrites, 1)
	recordChannel("persist_write", size)
}

// IncrementAlertSent counts one notification delivered by the notifier.
func IncrementAlertSent() {
	atomic.AddInt64(&alertsSent, 1)
	recordChannel("alert_sent", 0)
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

// StartReport begins periodic logging of system and channel statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
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

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_connector": atomic.LoadInt64(&errorsConnector),
		"errors_engine":    atomic.LoadInt64(&errorsEngine),
		"warns_connector":  atomic.LoadInt64(&warnsConnector),
		"warns_engine":     atomic.LoadInt64(&warnsEngine),
		"ws_reads":         atomic.LoadInt64(&wsReads),
		"rest_reads":       atomic.LoadInt64(&restReads),
		"persist_writes":   atomic.LoadInt64(&persistWrites),
		"alerts_sent":      atomic.LoadInt64(&alertsSent),
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_mb":        int64(memStats.Used) / 1024 / 1024,
		"disk_mb":          int64(diskStats.Used) / 1024 / 1024,
		"channels":         channelData,
		"net_bytes_sent":   int64(bytesSent),
		"net_bytes_recv":   int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("Arb-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("Arb-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Arb-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Arb-ErrorsConnector"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_connector"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arb-ErrorsEngine"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_engine"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arb-WarnsConnector"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_connector"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arb-WarnsEngine"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_engine"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arb-WSReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["ws_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arb-RESTReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["rest_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arb-PersistWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["persist_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arb-AlertsSent"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["alerts_sent"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Arb-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("Arb-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("Arb-ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("Arb-ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
