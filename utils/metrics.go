package utils

import (
	"sync"
	"time"
)

// Metrics содержит метрики приложения
type Metrics struct {
	mu sync.RWMutex

	// Метрики запросов
	TotalRequests   int64
	FailedRequests  int64
	RequestLatency  time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time

	// Метрики переводов
	CompletedTransfers int64
	RejectedTransfers  int64
	TransferLatency    time.Duration
	RejectionsByKind   map[string]int64
	VolumeByCurrency   map[string]int64 // в центах
	LastTransferTime   time.Time

	// Метрики смены статуса счетов
	StatusChanges map[string]int64

	// Метрики ошибок
	ErrorCount     int64
	LastErrorTime  time.Time
	CriticalErrors int64
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// NewMetrics создает пустой набор метрик
func NewMetrics() *Metrics {
	return &Metrics{
		RejectionsByKind: make(map[string]int64),
		VolumeByCurrency: make(map[string]int64),
		StatusChanges:    make(map[string]int64),
	}
}

// GetMetrics возвращает общий экземпляр метрик процесса
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics()
	})
	return metrics
}

// RecordRequest записывает метрики HTTP-запроса
func (m *Metrics) RecordRequest(duration time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.RequestLatency += duration
	m.AverageLatency = m.RequestLatency / time.Duration(m.TotalRequests)
	m.LastRequestTime = time.Now()

	if failed {
		m.FailedRequests++
		m.recordErrorLocked()
	}
}

// RecordTransfer записывает результат перевода. Пустой kind означает успех.
func (m *Metrics) RecordTransfer(duration time.Duration, currency string, amountMinor int64, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TransferLatency += duration
	m.LastTransferTime = time.Now()

	if kind == "" {
		m.CompletedTransfers++
		m.VolumeByCurrency[currency] += amountMinor
		return
	}
	m.RejectedTransfers++
	m.RejectionsByKind[kind]++
}

// RecordStatusChange записывает смену статуса счета
func (m *Metrics) RecordStatusChange(action string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.StatusChanges[action+"_rejected"]++
		return
	}
	m.StatusChanges[action]++
}

// RecordCriticalError записывает метрики критической ошибки
func (m *Metrics) RecordCriticalError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CriticalErrors++
	m.recordErrorLocked()
}

func (m *Metrics) recordErrorLocked() {
	m.ErrorCount++
	m.LastErrorTime = time.Now()
}

// GetMetricsSnapshot возвращает снимок текущих метрик
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var avgTransfer time.Duration
	if total := m.CompletedTransfers + m.RejectedTransfers; total > 0 {
		avgTransfer = m.TransferLatency / time.Duration(total)
	}

	return map[string]interface{}{
		"total_requests":      m.TotalRequests,
		"failed_requests":     m.FailedRequests,
		"average_latency_ms":  m.AverageLatency.Milliseconds(),
		"completed_transfers": m.CompletedTransfers,
		"rejected_transfers":  m.RejectedTransfers,
		"average_transfer_ms": avgTransfer.Milliseconds(),
		"rejections_by_kind":  copyCounters(m.RejectionsByKind),
		"volume_by_currency":  copyCounters(m.VolumeByCurrency),
		"status_changes":      copyCounters(m.StatusChanges),
		"error_count":         m.ErrorCount,
		"critical_errors":     m.CriticalErrors,
		"last_error_time":     m.LastErrorTime,
		"last_transfer_time":  m.LastTransferTime,
	}
}

// ResetMetrics сбрасывает все метрики
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests = 0
	m.FailedRequests = 0
	m.RequestLatency = 0
	m.AverageLatency = 0
	m.CompletedTransfers = 0
	m.RejectedTransfers = 0
	m.TransferLatency = 0
	m.RejectionsByKind = make(map[string]int64)
	m.VolumeByCurrency = make(map[string]int64)
	m.StatusChanges = make(map[string]int64)
	m.ErrorCount = 0
	m.CriticalErrors = 0
}

func copyCounters(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
