package quota

import "time"

// Metrics defines the interface for tracking ledger and generation pipeline operations.
type Metrics interface {
	// RecordConsumption records an admission attempt for a category.
	RecordConsumption(category, plan string, allowed bool)

	// RecordRelease records a refunded unit.
	RecordRelease(category string)

	// RecordPeriodReset records a reset applied to an entitlement record.
	RecordPeriodReset()

	// RecordStorageOperation records the duration and status of a storage operation.
	RecordStorageOperation(operation string, duration time.Duration, err error)

	// RecordGeneration records the outcome and latency of one generation request.
	// outcome: "success" or the error code that failed the request
	RecordGeneration(task, outcome string, duration time.Duration)

	// RecordNormalizationStep records which normalization ladder step produced the result.
	RecordNormalizationStep(schema, step string)

	// RecordCatalogRefresh records a catalog refresh attempt.
	RecordCatalogRefresh(err error)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordConsumption(category, plan string, allowed bool)                     {}
func (n *NoopMetrics) RecordRelease(category string)                                             {}
func (n *NoopMetrics) RecordPeriodReset()                                                        {}
func (n *NoopMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordGeneration(task, outcome string, duration time.Duration)             {}
func (n *NoopMetrics) RecordNormalizationStep(schema, step string)                               {}
func (n *NoopMetrics) RecordCatalogRefresh(err error)                                            {}
