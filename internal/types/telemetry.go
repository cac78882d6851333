package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricAPILatency         = "APILatency"
	MetricPitchGenerated     = "PitchGenerated"
	MetricNarrativeGenerated = "NarrativeGenerated"
	MetricBulkJobStarted     = "BulkJobStarted"
	MetricBulkJobCompleted   = "BulkJobCompleted"
	MetricBulkJobFailed      = "BulkJobFailed"
	MetricBulkJobAbandoned   = "BulkJobAbandoned"
	MetricBulkRowFailed      = "BulkRowFailed"
	MetricCacheHit           = "CacheHit"
	MetricCacheMiss          = "CacheMiss"
	MetricCacheSwept         = "CacheEntriesSwept"
	MetricWebhookProcessed   = "WebhookProcessed"
	MetricWebhookDropped     = "WebhookDropped"
	MetricExternalAPIFailure = "ExternalAPIFailure"

	// Dimension Keys
	DimEndpoint  = "Endpoint"
	DimDataType  = "DataType"
	DimEventType = "EventType"
	DimPlan      = "Plan"
	DimProvider  = "Provider"
	DimStatus    = "Status"

	// Metric Namespace
	MetricNamespace = "PathSynch"
)
