package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"frontdesk-backend/internal/model"
	"frontdesk-backend/internal/stay"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job is one vacated room to announce to housekeeping.
type Job struct {
	StayID string
	Room   string
	At     time.Time
}

// Message is the push payload shown on housekeeping devices.
type Message struct {
	Type  string    `json:"type"`
	Room  string    `json:"room"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	At    time.Time `json:"at"`
}

// WorkerPool manages a pool of workers for sending notifications. It listens
// to stay transitions and announces every check-out.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     logrus.FieldLogger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size, queue int, db *gorm.DB, webpushOptions *webpush.Options, log logrus.FieldLogger) *WorkerPool {
	if queue < size {
		queue = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, queue), // Buffered channel
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		log:     log.WithField("module", "notification"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debugf("worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			wp.log.WithFields(logrus.Fields{"worker": id, "room": job.Room, "stay_id": job.StayID}).Debug("processing vacated room")
			wp.sendNotificationsForRoom(ctx, job)
		case <-ctx.Done():
			wp.log.Debugf("worker %d shutting down", id)
			return
		}
	}
}

// StayTransitioned queues a notification when a stay checks out. It never
// blocks the caller; when the queue is full the notification is dropped.
func (wp *WorkerPool) StayTransitioned(_ context.Context, ev stay.Event) {
	if ev.To != stay.StatusCheckedOut || ev.Room == "" {
		return
	}
	wp.Dispatch(Job{StayID: ev.StayID, Room: ev.Room, At: ev.At})
}

// Dispatch sends a job to the worker pool. It reports false when the job was dropped.
func (wp *WorkerPool) Dispatch(job Job) bool {
	select {
	case wp.jobs <- job:
		return true
	default:
		wp.log.WithField("room", job.Room).Warn("notification queue full, dropping room vacated notification")
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

// sendNotificationsForRoom fetches subscriptions and sends notifications for a given room.
func (wp *WorkerPool) sendNotificationsForRoom(ctx context.Context, job Job) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_room_mapping srm ON srm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("srm.room_number = ?", job.Room).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.WithError(err).WithField("room", job.Room).Error("failed to fetch subscriptions")
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	wp.log.WithField("room", job.Room).Infof("sending %d notifications", len(subscriptions))

	payload, err := json.Marshal(wp.message(ctx, job))
	if err != nil {
		wp.log.WithError(err).Error("failed to encode notification")
		return
	}
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// message describes the room; without room details it falls back to the number.
func (wp *WorkerPool) message(ctx context.Context, job Job) Message {
	msg := Message{
		Type:  "room_vacated",
		Room:  job.Room,
		Title: fmt.Sprintf("Room %s vacated", job.Room),
		Body:  fmt.Sprintf("Room %s is ready for housekeeping.", job.Room),
		At:    job.At,
	}

	var room model.Room
	if err := wp.db.WithContext(ctx).
		Select("number", "class", "floor").
		First(&room, "number = ?", job.Room).Error; err != nil {
		wp.log.WithError(err).WithField("room", job.Room).Warn("failed to fetch room details")
	} else if room.Class != "" {
		msg.Body = fmt.Sprintf("Room %s (%s, floor %d) is ready for housekeeping.", room.Number, room.Class, room.Floor)
	}
	return msg
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Warn("failed to send notification")
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.log.WithField("endpoint", sub.Endpoint).Info("subscription expired, deleting")
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Error("failed to delete expired subscription")
		}
	}
}
