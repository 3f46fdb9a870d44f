package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "easylink"

// 退出结果标签
const (
	ExitStopped = "stopped"
	ExitErrored = "errored"
	ExitPanic   = "panic"
)

var (
	registerOnce sync.Once

	registryInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "instances",
			Help:      "Number of instances held by the registry.",
		},
	)
	launcherEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launcher",
			Name:      "events_total",
			Help:      "Engine events relayed into status blocks.",
		},
		[]string{"instance"},
	)
	launcherExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launcher",
			Name:      "exits_total",
			Help:      "Execution contexts that have exited, by result.",
		},
		[]string{"result"},
	)
	launcherStopTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launcher",
			Name:      "stop_timeouts_total",
			Help:      "Stops that gave up waiting and detached the execution context.",
		},
	)
	broadcasterEmits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "emits_total",
			Help:      "Non-empty snapshot batches handed to the sink.",
		},
	)
	broadcasterSuspends = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcaster",
			Name:      "suspends_total",
			Help:      "Times the broadcaster went idle after consecutive empty ticks.",
		},
	)
	sinkDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "dropped_total",
			Help:      "Notifications dropped because a sink queue was full.",
		},
		[]string{"sink"},
	)
	eventbusDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventbus",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		},
		[]string{"type"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected websocket notification clients.",
		},
	)
)

// Register 注册所有采集器，可重复调用
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			registryInstances,
			launcherEvents,
			launcherExits,
			launcherStopTimeouts,
			broadcasterEmits,
			broadcasterSuspends,
			sinkDropped,
			eventbusDropped,
			httpRequests,
			httpDuration,
			wsClients,
		)
	})
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// SetInstances 设置注册表中的实例数
func SetInstances(n int) {
	Register()
	registryInstances.Set(float64(n))
}

// RecordEvent 记录一条转发的引擎事件
func RecordEvent(instance string) {
	Register()
	launcherEvents.WithLabelValues(instance).Inc()
}

// ForgetInstance 删除实例相关的标签序列
func ForgetInstance(instance string) {
	Register()
	launcherEvents.DeleteLabelValues(instance)
}

// RecordExit 记录执行上下文退出
func RecordExit(result string) {
	Register()
	launcherExits.WithLabelValues(result).Inc()
}

// RecordStopTimeout 记录一次停止超时
func RecordStopTimeout() {
	Register()
	launcherStopTimeouts.Inc()
}

// RecordBroadcast 记录一次非空批次投递
func RecordBroadcast() {
	Register()
	broadcasterEmits.Inc()
}

// RecordSuspend 记录广播器挂起
func RecordSuspend() {
	Register()
	broadcasterSuspends.Inc()
}

// RecordSinkDrop 记录通知渠道丢弃
func RecordSinkDrop(sink string) {
	Register()
	sinkDropped.WithLabelValues(sink).Inc()
}

// RecordBusDrop 记录事件总线丢弃
func RecordBusDrop(eventType string) {
	Register()
	eventbusDropped.WithLabelValues(eventType).Inc()
}

// RecordHTTPRequest 记录一次 HTTP 请求
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	Register()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// SetWSClients 设置 websocket 客户端数
func SetWSClients(n int) {
	Register()
	wsClients.Set(float64(n))
}
