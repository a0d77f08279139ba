package revalidator

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Wikid82/revalidator/internal/models"
)

// Engine maps change events to invalidation plans using a rule table.
type Engine struct {
	rules []Rule
}

// NewEngine returns an engine evaluating rules in the given order.
func NewEngine(rules ...Rule) *Engine {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return &Engine{rules: out}
}

// Rules returns a copy of the rule table.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Plan computes the invalidation plan for ev.
//
// Explicit paths and tags on the event override inference: they are planned
// as immediate and no rule is consulted. Otherwise direct rules contribute
// immediate targets (create, update, publish) or deferred targets (delete,
// unpublish), then cascade rules contribute aggregation surfaces. A target
// keeps the first class it was assigned.
func (e *Engine) Plan(ev models.ChangeEvent) models.InvalidationPlan {
	b := newPlanBuilder()
	if ev.HasExplicitTargets() {
		b.add(models.ClassImmediate, ev.Paths, ev.Tags)
		return b.plan
	}

	direct := models.ClassDeferred
	if ev.Action.Urgent() {
		direct = models.ClassImmediate
	}
	for _, stage := range []Stage{StageDirect, StageCascade} {
		class := direct
		if stage == StageCascade {
			class = models.ClassCascade
		}
		for _, r := range e.rules {
			if r.Stage != stage || !r.Matches(ev) {
				continue
			}
			paths, tags := r.Targets(ev)
			b.add(class, paths, tags)
		}
	}
	return b.plan
}

type planBuilder struct {
	paths mapset.Set[string]
	tags  mapset.Set[string]
	plan  models.InvalidationPlan
}

func newPlanBuilder() *planBuilder {
	empty := func() models.Targets { return models.Targets{Paths: []string{}, Tags: []string{}} }
	return &planBuilder{
		paths: mapset.NewThreadUnsafeSet[string](),
		tags:  mapset.NewThreadUnsafeSet[string](),
		plan: models.InvalidationPlan{
			Paths:     []string{},
			Tags:      []string{},
			Immediate: empty(),
			Deferred:  empty(),
			Cascade:   empty(),
		},
	}
}

func (b *planBuilder) add(class models.TargetClass, paths, tags []string) {
	targets := b.targets(class)
	for _, p := range paths {
		if p = strings.TrimSpace(p); p == "" || !b.paths.Add(p) {
			continue
		}
		b.plan.Paths = append(b.plan.Paths, p)
		targets.Paths = append(targets.Paths, p)
	}
	for _, t := range tags {
		if t = strings.TrimSpace(t); t == "" || !b.tags.Add(t) {
			continue
		}
		b.plan.Tags = append(b.plan.Tags, t)
		targets.Tags = append(targets.Tags, t)
	}
}

func (b *planBuilder) targets(class models.TargetClass) *models.Targets {
	switch class {
	case models.ClassImmediate:
		return &b.plan.Immediate
	case models.ClassDeferred:
		return &b.plan.Deferred
	default:
		return &b.plan.Cascade
	}
}
