package config

// QueueConfig configures the RabbitMQ decision audit pipeline.  An empty
// URL disables publishing; the consumer additionally needs AuditConsumer.
type QueueConfig struct {
	URL           string
	Queue         string
	AuditConsumer bool
	AuditLogPath  string
}

// LoadQueueConfig reads RABBITMQ_URL (or AMQP_URL), RABBITMQ_DECISION_QUEUE,
// AUDIT_CONSUMER_ENABLED and AUDIT_LOG_PATH.
func LoadQueueConfig() QueueConfig {
	return QueueConfig{
		URL:           envStr("RABBITMQ_URL", envStr("AMQP_URL", "")),
		Queue:         envStr("RABBITMQ_DECISION_QUEUE", "report.decided"),
		AuditConsumer: envBool("AUDIT_CONSUMER_ENABLED", false),
		AuditLogPath:  envStr("AUDIT_LOG_PATH", "logs/decisions.log"),
	}
}
