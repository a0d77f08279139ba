package revalidator

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Wikid82/revalidator/internal/models"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_.-]+)\}`)

func checkTemplate(tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return errors.New("template is empty")
	}
	if strings.Count(tmpl, "{") != strings.Count(tmpl, "}") {
		return errors.New("unbalanced braces")
	}
	for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
		switch key := m[1]; {
		case key == "id", key == "type", key == "action":
		case strings.HasPrefix(key, "meta.") && len(key) > len("meta."):
		default:
			return fmt.Errorf("unknown placeholder {%s}", key)
		}
	}
	return nil
}

// expand substitutes placeholders in tmpl. A placeholder with several values
// (a metadata list) yields one result per value; a placeholder with no value
// yields no result at all.
func expand(tmpl string, ev models.ChangeEvent) []string {
	results := []string{""}
	rest := strings.TrimSpace(tmpl)
	for {
		loc := placeholder.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}
		values := resolve(rest[loc[2]:loc[3]], ev)
		if len(values) == 0 {
			return nil
		}
		prefix := rest[:loc[0]]
		next := make([]string, 0, len(results)*len(values))
		for _, r := range results {
			for _, v := range values {
				next = append(next, r+prefix+v)
			}
		}
		results = next
		rest = rest[loc[1]:]
	}
	for i := range results {
		results[i] += rest
	}
	if len(results) == 1 && results[0] == "" {
		return nil
	}
	return results
}

func resolve(key string, ev models.ChangeEvent) []string {
	switch key {
	case "id":
		return nonEmpty(string(ev.ContentID))
	case "type":
		return nonEmpty(string(ev.ContentType))
	case "action":
		return nonEmpty(string(ev.Action))
	}
	name, ok := strings.CutPrefix(key, "meta.")
	if !ok || ev.Metadata == nil {
		return nil
	}
	switch v := ev.Metadata[name].(type) {
	case []any:
		var out []string
		for _, item := range v {
			out = append(out, scalar(item)...)
		}
		return out
	case []string:
		var out []string
		for _, item := range v {
			out = append(out, nonEmpty(item)...)
		}
		return out
	default:
		return scalar(v)
	}
}

func scalar(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return nonEmpty(t)
	case json.Number:
		return nonEmpty(t.String())
	case float64:
		return []string{fmt.Sprintf("%v", t)}
	case int, int64, bool:
		return []string{fmt.Sprintf("%v", t)}
	default:
		return nil
	}
}

func nonEmpty(s string) []string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return []string{s}
}
