package services

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "discord://tok_en@123", normalizeURL("https://discord.com/api/webhooks/123/tok_en"))
	assert.Equal(t, "slack://a/b/c", normalizeURL("slack://a/b/c"))
}

func TestNotificationService_Disabled(t *testing.T) {
	called := false
	s := NewNotificationService("  ").WithSender(func(string, string) error {
		called = true
		return nil
	})
	assert.False(t, s.Enabled())
	s.NotifyFailure(InvalidationFailure{Errors: []string{"x"}})
	s.Wait()
	assert.False(t, called)

	var nilSvc *NotificationService
	assert.False(t, nilSvc.Enabled())
	nilSvc.NotifyFailure(InvalidationFailure{Errors: []string{"x"}})
	nilSvc.Wait()
}

func TestNotificationService_SendsOnlyWithErrors(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	s := NewNotificationService("https://discordapp.com/api/webhooks/1/abc").WithSender(func(url, msg string) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, url+"|"+msg)
		return errors.New("delivery failed")
	})

	s.NotifyFailure(InvalidationFailure{RequestID: "r1"})
	s.NotifyFailure(InvalidationFailure{
		RequestID:   "r2",
		ContentType: "post",
		ContentID:   "42",
		Action:      "update",
		Errors:      []string{"path /posts/42: timeout"},
	})
	s.Wait()

	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0], "discord://abc@1|Revalidation failed"))
	assert.Contains(t, sent[0], "update post 42 (request r2)")
	assert.Contains(t, sent[0], "- path /posts/42: timeout")
}

func TestFormatFailure_Truncates(t *testing.T) {
	var errs []string
	for i := 0; i < 13; i++ {
		errs = append(errs, fmt.Sprintf("tag t%d: boom", i))
	}
	msg := FormatFailure(InvalidationFailure{Errors: errs})
	assert.Contains(t, msg, "- tag t9: boom")
	assert.NotContains(t, msg, "t10")
	assert.Contains(t, msg, "... and 3 more")
}
