package rabbitmq

// Топология уведомлений.
const (
	NotificationsExchange = "notifications"
	EmailRoutingKey       = "email"
	EmailQueue            = "notification.email"

	prefetch = 10
)

// QueueConfig описывает очередь и ключ, которым она привязана к exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает очереди, которые объявляют и издатель, и потребитель.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: EmailQueue, RoutingKey: EmailRoutingKey},
	}
}
