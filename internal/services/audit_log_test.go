package services

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/revalidator/internal/models"
)

var auditBase = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestAuditLog(maxEntries int) *AuditLog {
	l := NewAuditLog(models.LoggerConfig{MaxEntries: maxEntries, IncludePayload: true, TopN: 2})
	l.now = func() time.Time { return auditBase.Add(time.Hour) }
	return l
}

func entryAt(offset time.Duration, ip string, status int) models.AuditEntry {
	return models.AuditEntry{
		Timestamp:  auditBase.Add(offset),
		IP:         ip,
		Method:     "POST",
		Path:       "/api/revalidate",
		StatusCode: status,
	}
}

func TestAuditLog_EvictsOldest(t *testing.T) {
	l := newTestAuditLog(3)
	for i := 0; i < 5; i++ {
		e := entryAt(time.Duration(i)*time.Second, "10.0.0.1", 200)
		e.RequestID = string(rune('a' + i))
		l.Record(e)
	}
	assert.Equal(t, 3, l.Len())

	recent := l.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "e", recent[0].RequestID)
	assert.Equal(t, "c", recent[2].RequestID)
}

func TestAuditLog_RecentLimit(t *testing.T) {
	l := newTestAuditLog(10)
	assert.Empty(t, l.Recent(5))
	for i := 0; i < 4; i++ {
		l.Record(entryAt(time.Duration(i)*time.Second, "10.0.0.1", 200+i))
	}
	got := l.Recent(2)
	require.Len(t, got, 2)
	assert.Equal(t, 203, got[0].StatusCode)
	assert.Equal(t, 202, got[1].StatusCode)
	assert.Len(t, l.Recent(100), 4)
}

func TestAuditLog_RecordFillsTimestamp(t *testing.T) {
	l := newTestAuditLog(10)
	l.Record(models.AuditEntry{StatusCode: 200})
	assert.Equal(t, auditBase.Add(time.Hour), l.Recent(1)[0].Timestamp)
}

func TestAuditLog_Queries(t *testing.T) {
	l := newTestAuditLog(10)
	l.Record(entryAt(0, "10.0.0.1", 200))
	l.Record(entryAt(time.Minute, "10.0.0.2", 401))
	partial := entryAt(2*time.Minute, "10.0.0.1", 207)
	partial.Errors = []string{"path /x: boom"}
	l.Record(partial)
	l.Record(entryAt(3*time.Minute, "10.0.0.3", 429))

	inRange := l.ByTimeRange(auditBase.Add(time.Minute), auditBase.Add(2*time.Minute))
	require.Len(t, inRange, 2, "both bounds are inclusive")
	assert.Equal(t, 401, inRange[0].StatusCode)
	assert.Equal(t, 207, inRange[1].StatusCode)

	assert.Len(t, l.ByStatus(200), 1)
	assert.Empty(t, l.ByStatus(500))

	failed := l.ErrorsOnly()
	require.Len(t, failed, 3)
	assert.Equal(t, []int{401, 207, 429}, []int{failed[0].StatusCode, failed[1].StatusCode, failed[2].StatusCode})
}

func TestAuditLog_RedactsPayload(t *testing.T) {
	l := newTestAuditLog(10)
	payload := map[string]any{
		"contentType": "post",
		"metadata": map[string]any{
			"Token": "abc",
			"slug":  "hello",
			"nested": []any{
				map[string]any{"PASSWORD": "x"},
			},
		},
		"secret": "s3cret",
	}
	e := entryAt(0, "10.0.0.1", 200)
	e.Payload = payload
	l.Record(e)

	got := l.Recent(1)[0].Payload
	assert.Equal(t, "[REDACTED]", got["secret"])
	meta := got["metadata"].(map[string]any)
	assert.Equal(t, "[REDACTED]", meta["Token"])
	assert.Equal(t, "hello", meta["slug"])
	assert.Equal(t, "[REDACTED]", meta["nested"].([]any)[0].(map[string]any)["PASSWORD"])

	// The caller's map is untouched.
	assert.Equal(t, "s3cret", payload["secret"])
}

func TestAuditLog_EmptySensitiveListDisablesRedaction(t *testing.T) {
	l := newTestAuditLog(10)
	l.ApplyConfig(models.RuntimeConfig{Logger: models.LoggerConfig{
		MaxEntries:      10,
		SensitiveFields: []string{},
		IncludePayload:  true,
	}})
	e := entryAt(0, "10.0.0.1", 200)
	e.Payload = map[string]any{"token": "abc"}
	l.Record(e)
	assert.Equal(t, "abc", l.Recent(1)[0].Payload["token"])

	l.SetLimits(10, nil, true, 5)
	l.Record(e)
	assert.Equal(t, "[REDACTED]", l.Recent(1)[0].Payload["token"])
}

func TestAuditLog_PayloadDroppedWhenDisabled(t *testing.T) {
	l := newTestAuditLog(10)
	l.SetLimits(10, nil, false, 5)
	e := entryAt(0, "10.0.0.1", 200)
	e.Payload = map[string]any{"a": 1}
	l.Record(e)
	assert.Nil(t, l.Recent(1)[0].Payload)
}

func TestAuditLog_SetLimitsShrinks(t *testing.T) {
	l := newTestAuditLog(10)
	for i := 0; i < 6; i++ {
		l.Record(entryAt(time.Duration(i)*time.Second, "10.0.0.1", 200+i))
	}
	l.ApplyConfig(models.RuntimeConfig{Logger: models.LoggerConfig{MaxEntries: 2}})
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 205, l.Recent(1)[0].StatusCode)
}

func TestAuditLog_Statistics(t *testing.T) {
	l := newTestAuditLog(20)
	// Outside the 30 minute window.
	l.Record(entryAt(0, "10.9.9.9", 500))

	add := func(offset time.Duration, ip, ct string, status int, ms int64, paths, tags int) {
		e := entryAt(offset, ip, status)
		e.ContentType = ct
		e.ProcessingTimeMS = ms
		e.PathsRevalidated = paths
		e.TagsRevalidated = tags
		l.Record(e)
	}
	add(40*time.Minute, "10.0.0.2", "page", 200, 10, 2, 1)
	add(41*time.Minute, "10.0.0.1", "post", 200, 20, 3, 2)
	add(42*time.Minute, "10.0.0.1", "post", 207, 30, 1, 0)
	add(43*time.Minute, "10.0.0.2", "", 401, 0, 0, 0)
	add(44*time.Minute, "10.0.0.3", "custom", 429, 0, 0, 0)

	s := l.Statistics(30 * time.Minute)
	assert.EqualValues(t, 1800000, s.WindowMS)
	assert.Equal(t, 5, s.TotalRequests)
	assert.Equal(t, 3, s.SuccessfulRequests)
	assert.Equal(t, 2, s.ErrorRequests)
	assert.Equal(t, s.TotalRequests, s.SuccessfulRequests+s.ErrorRequests)
	assert.InDelta(t, 12.0, s.AverageProcessingTime, 0.001)
	assert.Equal(t, 6, s.TotalPathsRevalidated)
	assert.Equal(t, 3, s.TotalTagsRevalidated)

	// Ties keep first-seen order and the list is cut at TopN.
	assert.Equal(t, []models.CountEntry{{Key: "10.0.0.2", Count: 2}, {Key: "10.0.0.1", Count: 2}}, s.TopIPs)
	assert.Equal(t, []models.CountEntry{{Key: "post", Count: 2}, {Key: "page", Count: 1}}, s.TopContentTypes)
}

func TestAuditLog_StatisticsEmpty(t *testing.T) {
	l := newTestAuditLog(5)
	s := l.Statistics(time.Minute)
	assert.Zero(t, s.TotalRequests)
	assert.Zero(t, s.AverageProcessingTime)
	assert.NotNil(t, s.TopIPs)
}

func TestAuditLog_Clear(t *testing.T) {
	l := newTestAuditLog(5)
	l.Record(entryAt(0, "10.0.0.1", 200))
	l.Record(entryAt(0, "10.0.0.1", 200))
	assert.Equal(t, 2, l.Clear())
	assert.Zero(t, l.Len())
	assert.Empty(t, l.Recent(10))
}

func TestAuditLog_ExportCSV(t *testing.T) {
	l := newTestAuditLog(5)
	e := entryAt(0, "10.0.0.1", 207)
	e.RequestID = "req-1"
	e.ContentType = "post"
	e.Action = "update"
	e.ProcessingTimeMS = 12
	e.PathsRevalidated = 2
	e.TagsRevalidated = 1
	e.Errors = []string{`path /a: status "502"`, "tag t: timeout"}
	l.Record(e)
	l.Record(entryAt(time.Second, "10.0.0.2", 401))

	out, err := l.Export(FormatCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,requestId,ip,method,path,statusCode,processingTimeMs,contentType,action,pathsRevalidated,tagsRevalidated,errors", lines[0])
	assert.Equal(t,
		`"2026-05-01T10:00:00Z","req-1","10.0.0.1","POST","/api/revalidate",207,12,"post","update",2,1,"path /a: status ""502""; tag t: timeout"`,
		lines[1])
	assert.Equal(t,
		`"2026-05-01T10:00:01Z","","10.0.0.2","POST","/api/revalidate",401,0,"","",0,0,""`,
		lines[2])
}

func TestAuditLog_ExportJSON(t *testing.T) {
	l := newTestAuditLog(5)
	l.Record(entryAt(0, "10.0.0.1", 200))

	out, err := l.Export("json")
	require.NoError(t, err)
	var got []models.AuditEntry
	require.NoError(t, json.Unmarshal(out, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "10.0.0.1", got[0].IP)

	_, err = l.Export("xml")
	assert.Error(t, err)
}

func TestAuditLog_ConcurrentRecord(t *testing.T) {
	l := newTestAuditLog(50)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(entryAt(0, "10.0.0.1", 200))
			_ = l.Recent(5)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, l.Len())
}

func TestAuditLog_StatisticsConcurrentWithSetLimits(t *testing.T) {
	l := newTestAuditLog(100)
	for i := 0; i < 10; i++ {
		e := entryAt(time.Duration(i)*time.Second, "10.0.0."+string(rune('0'+i)), 200)
		l.Record(e)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			l.SetLimits(100, nil, true, 1+i%3)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			stats := l.Statistics(2 * time.Hour)
			assert.Equal(t, 10, stats.TotalRequests)
			assert.LessOrEqual(t, len(stats.TopIPs), 3)
		}
	}()
	wg.Wait()
}
