package revalidator

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/Wikid82/revalidator/internal/models"
)

// Stage selects which pass of the engine a rule takes part in.
type Stage string

const (
	// StageDirect rules target the changed content itself.
	StageDirect Stage = "direct"
	// StageCascade rules target aggregation surfaces that list the content.
	StageCascade Stage = "cascade"
)

// Rule maps a content type and action pattern to path and tag templates.
// An empty ContentTypes or one containing "all" matches every content type;
// an empty Actions matches every action.
type Rule struct {
	Name         string               `json:"name"`
	ContentTypes []models.ContentType `json:"contentTypes,omitempty"`
	Actions      []models.Action      `json:"actions,omitempty"`
	Stage        Stage                `json:"stage"`
	Paths        []string             `json:"paths,omitempty"`
	Tags         []string             `json:"tags,omitempty"`
}

// Matches reports whether the rule fires for ev.
func (r Rule) Matches(ev models.ChangeEvent) bool {
	return r.matchesType(ev.ContentType) && r.matchesAction(ev.Action)
}

func (r Rule) matchesType(ct models.ContentType) bool {
	if len(r.ContentTypes) == 0 || ct == models.ContentTypeAll {
		return true
	}
	for _, t := range r.ContentTypes {
		if t == models.ContentTypeAll || t == ct {
			return true
		}
	}
	return false
}

func (r Rule) matchesAction(a models.Action) bool {
	if len(r.Actions) == 0 {
		return true
	}
	for _, x := range r.Actions {
		if x == a {
			return true
		}
	}
	return false
}

// Targets expands the rule's templates against ev.
func (r Rule) Targets(ev models.ChangeEvent) (paths, tags []string) {
	for _, tmpl := range r.Paths {
		for _, p := range expand(tmpl, ev) {
			if !strings.HasPrefix(p, "/") {
				p = "/" + p
			}
			paths = append(paths, p)
		}
	}
	for _, tmpl := range r.Tags {
		tags = append(tags, expand(tmpl, ev)...)
	}
	return paths, tags
}

// DefaultRules is the built-in table for a blog-style headless CMS frontend.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:         "post-detail",
			ContentTypes: []models.ContentType{models.ContentTypePost},
			Stage:        StageDirect,
			Paths:        []string{"/posts/{id}", "/blog/{meta.slug}"},
			Tags:         []string{"post-{id}"},
		},
		{
			Name:         "page-detail",
			ContentTypes: []models.ContentType{models.ContentTypePage},
			Stage:        StageDirect,
			Paths:        []string{"/pages/{id}", "/{meta.slug}"},
			Tags:         []string{"page-{id}"},
		},
		{
			Name:         "custom-detail",
			ContentTypes: []models.ContentType{models.ContentTypeCustom},
			Stage:        StageDirect,
			Paths:        []string{"{meta.path}"},
			Tags:         []string{"custom-{id}", "{meta.collection}"},
		},
		{
			Name:         "blog-listing",
			ContentTypes: []models.ContentType{models.ContentTypePost},
			Stage:        StageCascade,
			Paths:        []string{"/blog", "/posts"},
			Tags:         []string{"posts"},
		},
		{
			Name:         "taxonomy",
			ContentTypes: []models.ContentType{models.ContentTypePost},
			Stage:        StageCascade,
			Paths:        []string{"/category/{meta.categories}", "/tag/{meta.tags}"},
			Tags:         []string{"category-{meta.categories}"},
		},
		{
			Name:         "feed",
			ContentTypes: []models.ContentType{models.ContentTypePost},
			Actions:      []models.Action{models.ActionCreate, models.ActionPublish, models.ActionUnpublish, models.ActionDelete},
			Stage:        StageCascade,
			Paths:        []string{"/feed.xml"},
		},
		{
			Name:         "page-index",
			ContentTypes: []models.ContentType{models.ContentTypePage},
			Stage:        StageCascade,
			Paths:        []string{"/sitemap.xml"},
			Tags:         []string{"pages"},
		},
		{
			Name:         "home",
			ContentTypes: []models.ContentType{models.ContentTypeAll},
			Stage:        StageCascade,
			Paths:        []string{"/"},
		},
	}
}

// RuleSpec is the config-file form of a Rule.
type RuleSpec struct {
	Name         string   `mapstructure:"name" json:"name" yaml:"name"`
	ContentTypes []string `mapstructure:"content_types" json:"contentTypes" yaml:"content_types"`
	Actions      []string `mapstructure:"actions" json:"actions" yaml:"actions"`
	Stage        string   `mapstructure:"stage" json:"stage" yaml:"stage"`
	Paths        []string `mapstructure:"paths" json:"paths" yaml:"paths"`
	Tags         []string `mapstructure:"tags" json:"tags" yaml:"tags"`
}

// Compile validates the spec and turns it into a Rule.
func (s RuleSpec) Compile() (Rule, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return Rule{}, fmt.Errorf("rule name is required")
	}
	r := Rule{Name: name, Stage: Stage(strings.ToLower(strings.TrimSpace(s.Stage)))}
	switch r.Stage {
	case "":
		r.Stage = StageDirect
	case StageDirect, StageCascade:
	default:
		return Rule{}, fmt.Errorf("rule %s: unknown stage %q", name, s.Stage)
	}
	for _, ct := range s.ContentTypes {
		if ct = strings.TrimSpace(ct); ct != "" {
			r.ContentTypes = append(r.ContentTypes, models.ContentType(ct))
		}
	}
	for _, a := range s.Actions {
		act := models.Action(strings.ToLower(strings.TrimSpace(a)))
		if !act.IsValid() {
			return Rule{}, fmt.Errorf("rule %s: unknown action %q", name, a)
		}
		r.Actions = append(r.Actions, act)
	}
	for _, p := range s.Paths {
		if err := checkTemplate(p); err != nil {
			return Rule{}, fmt.Errorf("rule %s: path %q: %w", name, p, err)
		}
		r.Paths = append(r.Paths, strings.TrimSpace(p))
	}
	for _, t := range s.Tags {
		if err := checkTemplate(t); err != nil {
			return Rule{}, fmt.Errorf("rule %s: tag %q: %w", name, t, err)
		}
		r.Tags = append(r.Tags, strings.TrimSpace(t))
	}
	if len(r.Paths) == 0 && len(r.Tags) == 0 {
		return Rule{}, fmt.Errorf("rule %s: needs at least one path or tag", name)
	}
	return r, nil
}

// CompileRules compiles every spec, reporting all problems at once.
func CompileRules(specs []RuleSpec) ([]Rule, error) {
	var result *multierror.Error
	rules := make([]Rule, 0, len(specs))
	for _, s := range specs {
		r, err := s.Compile()
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		rules = append(rules, r)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return rules, nil
}
