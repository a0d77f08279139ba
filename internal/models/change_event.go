package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ContentType identifies the kind of content a change event refers to.
type ContentType string

const (
	ContentTypePost   ContentType = "post"
	ContentTypePage   ContentType = "page"
	ContentTypeCustom ContentType = "custom"
	ContentTypeAll    ContentType = "all"
)

// Action is the lifecycle transition reported by the CMS.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionPublish   Action = "publish"
	ActionUnpublish Action = "unpublish"
)

// ValidActions lists every action a change event may carry.
var ValidActions = []Action{ActionCreate, ActionUpdate, ActionDelete, ActionPublish, ActionUnpublish}

// IsValid reports whether a is one of ValidActions.
func (a Action) IsValid() bool {
	for _, v := range ValidActions {
		if a == v {
			return true
		}
	}
	return false
}

// Urgent reports whether content touched by a should be expired right away.
// Removals are less urgent: the item simply stops being linked.
func (a Action) Urgent() bool {
	return a != ActionDelete && a != ActionUnpublish
}

// ContentID accepts either a JSON string or a JSON number.
type ContentID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ContentID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ContentID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("content id must be a string or number: %w", err)
	}
	*id = ContentID(n.String())
	return nil
}

// ChangeEvent is a content-change notification delivered by the CMS webhook.
type ChangeEvent struct {
	ContentType ContentType    `json:"contentType"`
	ContentID   ContentID      `json:"contentId"`
	Action      Action         `json:"action"`
	Paths       []string       `json:"paths,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HasExplicitTargets reports whether the sender named paths or tags itself.
func (e ChangeEvent) HasExplicitTargets() bool {
	return len(e.Paths) > 0 || len(e.Tags) > 0
}

// Validate returns the field-level problems with the event, if any.
func (e ChangeEvent) Validate() []string {
	var problems []string
	if strings.TrimSpace(string(e.ContentType)) == "" {
		problems = append(problems, "contentType is required")
	}
	if e.Action == "" {
		problems = append(problems, "action is required")
	} else if !e.Action.IsValid() {
		problems = append(problems, fmt.Sprintf("action %q is not one of create, update, delete, publish, unpublish", e.Action))
	}
	for _, p := range e.Paths {
		if !strings.HasPrefix(strings.TrimSpace(p), "/") {
			problems = append(problems, fmt.Sprintf("path %q must start with /", p))
		}
	}
	for _, t := range e.Tags {
		if strings.TrimSpace(t) == "" {
			problems = append(problems, "tags must not be empty")
			break
		}
	}
	return problems
}
