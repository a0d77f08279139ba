package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
		want ContentID
	}{
		{"number", `{"contentId": 42}`, "42"},
		{"large number", `{"contentId": 12345678901234567890}`, "12345678901234567890"},
		{"string", `{"contentId": " abc-1 "}`, "abc-1"},
		{"null", `{"contentId": null}`, ""},
		{"missing", `{}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev ChangeEvent
			require.NoError(t, json.Unmarshal([]byte(tt.body), &ev))
			assert.Equal(t, tt.want, ev.ContentID)
		})
	}

	var ev ChangeEvent
	assert.Error(t, json.Unmarshal([]byte(`{"contentId": true}`), &ev))
}

func TestAction(t *testing.T) {
	for _, a := range ValidActions {
		assert.True(t, a.IsValid(), a)
	}
	assert.False(t, Action("archive").IsValid())

	assert.True(t, ActionCreate.Urgent())
	assert.True(t, ActionPublish.Urgent())
	assert.False(t, ActionDelete.Urgent())
	assert.False(t, ActionUnpublish.Urgent())
}

func TestChangeEvent_Validate(t *testing.T) {
	valid := ChangeEvent{ContentType: ContentTypePost, ContentID: "1", Action: ActionUpdate}
	assert.Empty(t, valid.Validate())

	unknownType := valid
	unknownType.ContentType = "recipe"
	assert.Empty(t, unknownType.Validate(), "unknown content types are allowed")

	bad := ChangeEvent{Paths: []string{"/ok", "nope"}, Tags: []string{"t", " "}}
	assert.Equal(t, []string{
		"contentType is required",
		"action is required",
		`path "nope" must start with /`,
		"tags must not be empty",
	}, bad.Validate())
}

func TestChangeEvent_HasExplicitTargets(t *testing.T) {
	assert.False(t, ChangeEvent{}.HasExplicitTargets())
	assert.True(t, ChangeEvent{Tags: []string{"x"}}.HasExplicitTargets())
	assert.True(t, ChangeEvent{Paths: []string{"/x"}}.HasExplicitTargets())
}

func TestInvalidationPlan_ClassOf(t *testing.T) {
	p := InvalidationPlan{
		Paths:     []string{"/a", "/b"},
		Tags:      []string{"t"},
		Immediate: Targets{Paths: []string{"/a"}},
		Cascade:   Targets{Paths: []string{"/b"}, Tags: []string{"t"}},
	}
	assert.False(t, p.Empty())
	assert.Equal(t, ClassImmediate, p.ClassOfPath("/a"))
	assert.Equal(t, ClassCascade, p.ClassOfPath("/b"))
	assert.Equal(t, ClassCascade, p.ClassOfTag("t"))
	assert.Equal(t, TargetClass(""), p.ClassOfPath("/missing"))
	assert.True(t, InvalidationPlan{}.Empty())
}
