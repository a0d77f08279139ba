package services

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/containrrr/shoutrrr"

	"github.com/Wikid82/revalidator/internal/logger"
)

// maxAlertErrors caps how many per-key failures are listed in one alert.
const maxAlertErrors = 10

var discordWebhookRegex = regexp.MustCompile(`^https://discord(?:app)?\.com/api/webhooks/(\d+)/([a-zA-Z0-9_-]+)`)

// normalizeURL accepts plain Discord webhook URLs alongside shoutrrr URLs.
func normalizeURL(rawURL string) string {
	if matches := discordWebhookRegex.FindStringSubmatch(rawURL); len(matches) == 3 {
		return fmt.Sprintf("discord://%s@%s", matches[2], matches[1])
	}
	return rawURL
}

// InvalidationFailure describes a webhook whose plan did not fully apply.
type InvalidationFailure struct {
	RequestID   string
	ContentType string
	ContentID   string
	Action      string
	Errors      []string
}

// NotificationService sends failure alerts through shoutrrr. A service with
// no URL is a no-op.
type NotificationService struct {
	url  string
	send func(url, message string) error
	wg   sync.WaitGroup
}

// NewNotificationService returns a service posting to a shoutrrr URL.
func NewNotificationService(url string) *NotificationService {
	return &NotificationService{
		url: normalizeURL(strings.TrimSpace(url)),
		send: func(url, message string) error {
			return shoutrrr.Send(url, message)
		},
	}
}

// WithSender replaces the delivery function, mostly for tests.
func (s *NotificationService) WithSender(send func(url, message string) error) *NotificationService {
	s.send = send
	return s
}

// Enabled reports whether alerts have a destination.
func (s *NotificationService) Enabled() bool {
	return s != nil && s.url != ""
}

// NotifyFailure sends an alert in the background. It never blocks the
// webhook response.
func (s *NotificationService) NotifyFailure(f InvalidationFailure) {
	if !s.Enabled() || len(f.Errors) == 0 {
		return
	}
	msg := FormatFailure(f)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.send(s.url, msg); err != nil {
			logger.Component("notify").WithError(err).WithField("request_id", f.RequestID).
				Warn("failed to send invalidation alert")
		}
	}()
}

// Wait blocks until in-flight alerts have been attempted.
func (s *NotificationService) Wait() {
	if s != nil {
		s.wg.Wait()
	}
}

// FormatFailure renders the alert body.
func FormatFailure(f InvalidationFailure) string {
	var b strings.Builder
	b.WriteString("Revalidation failed\n\n")
	fmt.Fprintf(&b, "%s %s %s (request %s)\n", f.Action, f.ContentType, f.ContentID, f.RequestID)
	for i, e := range f.Errors {
		if i == maxAlertErrors {
			fmt.Fprintf(&b, "... and %d more\n", len(f.Errors)-maxAlertErrors)
			break
		}
		fmt.Fprintf(&b, "- %s\n", e)
	}
	return b.String()
}
