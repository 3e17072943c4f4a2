package kafka

// Topic names for cost guard events
const (
	// TopicAnomalies carries detected cost anomaly events
	TopicAnomalies = "costguard.anomalies"

	// TopicActions carries optimization action lifecycle events
	TopicActions = "costguard.actions"

	// TopicNotifications carries operator notification requests
	TopicNotifications = "costguard.notifications"
)
