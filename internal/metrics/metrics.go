package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	socketConnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_socket_connects_total",
			Help: "Socket connections established, by kind (initial or reconnect)",
		},
		[]string{"kind"},
	)

	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Chat messages handled, by direction",
		},
		[]string{"direction"},
	)

	notificationsReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_notifications_received_total",
			Help: "Global notifications received over the socket",
		},
	)

	readSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_notification_read_syncs_total",
			Help: "Read-state sync events processed, by origin (local or remote)",
		},
		[]string{"origin"},
	)

	unreadNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_unread_notifications",
			Help: "Current derived count of unread notifications",
		},
	)
)

func RecordConnect(reconnect bool) {
	kind := "initial"
	if reconnect {
		kind = "reconnect"
	}
	socketConnectsTotal.WithLabelValues(kind).Inc()
}

func RecordMessage(direction string) {
	messagesTotal.WithLabelValues(direction).Inc()
}

func RecordNotification() {
	notificationsReceivedTotal.Inc()
}

func RecordReadSync(origin string) {
	readSyncsTotal.WithLabelValues(origin).Inc()
}

func SetUnread(count int) {
	unreadNotifications.Set(float64(count))
}
