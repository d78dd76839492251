package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "roombook"

var (
	bookingsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings stored, per room",
		},
		[]string{"room_id"},
	)

	bookingRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejections_total",
			Help:      "Booking submissions rejected by the conflict checker, per reason",
		},
		[]string{"reason"},
	)

	bookingsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_cancelled_total",
			Help:      "Bookings deleted, by whether the actor was the owner or an administrator",
		},
		[]string{"actor"},
	)

	roomLockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "room_lock_wait_seconds",
			Help:      "Time spent waiting for a per-room lock",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"backend", "outcome"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	kafkaMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_total",
			Help:      "Kafka messages handled, by direction and status",
		},
		[]string{"direction", "topic", "status"},
	)

	kafkaDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_message_duration_seconds",
			Help:      "Time to publish or process a Kafka message",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"direction", "topic"},
	)
)

func BookingCreated(roomID string) {
	bookingsCreated.WithLabelValues(roomID).Inc()
}

func BookingRejected(reason string) {
	bookingRejections.WithLabelValues(reason).Inc()
}

func BookingCancelled(byAdmin bool) {
	actor := "owner"
	if byAdmin {
		actor = "admin"
	}
	bookingsCancelled.WithLabelValues(actor).Inc()
}

func ObserveLockWait(backend, outcome string, d time.Duration) {
	roomLockWait.WithLabelValues(backend, outcome).Observe(d.Seconds())
}

func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

const (
	DirectionProduce = "produce"
	DirectionConsume = "consume"
)

func ObserveKafkaMessage(direction, topic string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	kafkaMessages.WithLabelValues(direction, topic, status).Inc()
	kafkaDuration.WithLabelValues(direction, topic).Observe(d.Seconds())
}
