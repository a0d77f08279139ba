package revalidator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/revalidator/internal/models"
)

func postRules() []Rule {
	return []Rule{
		{
			Name:         "post-detail",
			ContentTypes: []models.ContentType{models.ContentTypePost},
			Stage:        StageDirect,
			Paths:        []string{"/posts/{id}"},
			Tags:         []string{"post-{id}"},
		},
		{
			Name:         "blog-listing",
			ContentTypes: []models.ContentType{models.ContentTypePost},
			Stage:        StageCascade,
			Paths:        []string{"/blog"},
			Tags:         []string{"posts"},
		},
	}
}

func TestPlan_ExplicitTargetsOnly(t *testing.T) {
	e := NewEngine()
	plan := e.Plan(models.ChangeEvent{ContentType: "widget", Action: models.ActionUpdate, Paths: []string{"/a"}})

	assert.Equal(t, []string{"/a"}, plan.Paths)
	assert.Equal(t, []string{}, plan.Tags)
	assert.Equal(t, models.ClassImmediate, plan.ClassOfPath("/a"))
}

func TestPlan_ExplicitTargetsOverrideRules(t *testing.T) {
	e := NewEngine(postRules()...)
	plan := e.Plan(models.ChangeEvent{
		ContentType: models.ContentTypePost,
		ContentID:   "42",
		Action:      models.ActionUpdate,
		Paths:       []string{"/custom", "/custom"},
		Tags:        []string{"t1"},
	})

	assert.Equal(t, []string{"/custom"}, plan.Paths)
	assert.Equal(t, []string{"t1"}, plan.Tags)
	assert.Empty(t, plan.Cascade.Paths)
}

func TestPlan_PostUpdateImmediateAndCascade(t *testing.T) {
	e := NewEngine(postRules()...)
	plan := e.Plan(models.ChangeEvent{ContentType: models.ContentTypePost, ContentID: "42", Action: models.ActionUpdate})

	assert.Equal(t, []string{"/posts/42", "/blog"}, plan.Paths)
	assert.Equal(t, []string{"post-42", "posts"}, plan.Tags)
	assert.Equal(t, models.ClassImmediate, plan.ClassOfPath("/posts/42"))
	assert.Equal(t, models.ClassCascade, plan.ClassOfPath("/blog"))
	assert.Equal(t, models.ClassCascade, plan.ClassOfTag("posts"))
}

func TestPlan_FirstClassificationWins(t *testing.T) {
	rules := postRules()
	rules[0].Paths = append(rules[0].Paths, "/blog")
	e := NewEngine(rules...)

	plan := e.Plan(models.ChangeEvent{ContentType: models.ContentTypePost, ContentID: "42", Action: models.ActionUpdate})

	assert.Equal(t, []string{"/posts/42", "/blog"}, plan.Paths)
	assert.Equal(t, []string{"/posts/42", "/blog"}, plan.Immediate.Paths)
	assert.Empty(t, plan.Cascade.Paths)
}

func TestPlan_DeleteIsDeferredButStillCascades(t *testing.T) {
	e := NewEngine(postRules()...)
	plan := e.Plan(models.ChangeEvent{ContentType: models.ContentTypePost, ContentID: "7", Action: models.ActionDelete})

	assert.Equal(t, []string{"/posts/7"}, plan.Deferred.Paths)
	assert.Empty(t, plan.Immediate.Paths)
	assert.Equal(t, []string{"/blog"}, plan.Cascade.Paths)
	assert.ElementsMatch(t, []string{"/posts/7", "/blog"}, plan.Paths)
}

func TestPlan_UnknownContentTypeIsEmpty(t *testing.T) {
	e := NewEngine(postRules()...)
	plan := e.Plan(models.ChangeEvent{ContentType: "widget", ContentID: "1", Action: models.ActionUpdate})

	assert.True(t, plan.Empty())
	assert.NotNil(t, plan.Paths)
	assert.NotNil(t, plan.Tags)
}

func TestPlan_ActionPattern(t *testing.T) {
	e := NewEngine(Rule{
		Name:    "feed",
		Actions: []models.Action{models.ActionPublish},
		Stage:   StageCascade,
		Paths:   []string{"/feed.xml"},
	})

	assert.Equal(t, []string{"/feed.xml"}, e.Plan(models.ChangeEvent{ContentType: "post", Action: models.ActionPublish}).Paths)
	assert.Empty(t, e.Plan(models.ChangeEvent{ContentType: "post", Action: models.ActionUpdate}).Paths)
}

func TestPlan_AllEventMatchesEveryRule(t *testing.T) {
	e := NewEngine(DefaultRules()...)
	plan := e.Plan(models.ChangeEvent{ContentType: models.ContentTypeAll, Action: models.ActionUpdate})

	// no id, so only id-free targets survive
	assert.Contains(t, plan.Paths, "/blog")
	assert.Contains(t, plan.Paths, "/sitemap.xml")
	assert.Contains(t, plan.Paths, "/")
	assert.Contains(t, plan.Tags, "posts")
	assert.Contains(t, plan.Tags, "pages")
	assert.NotContains(t, plan.Tags, "post-")
}

func TestPlan_DefaultRulesWithMetadata(t *testing.T) {
	e := NewEngine(DefaultRules()...)
	plan := e.Plan(models.ChangeEvent{
		ContentType: models.ContentTypePost,
		ContentID:   "42",
		Action:      models.ActionPublish,
		Metadata: map[string]any{
			"slug":       "hello-world",
			"categories": []any{"news", "go"},
		},
	})

	assert.Equal(t, []string{"/posts/42", "/blog/hello-world"}, plan.Immediate.Paths)
	assert.Equal(t, []string{"post-42"}, plan.Immediate.Tags)
	assert.Equal(t, []string{"/blog", "/posts", "/category/news", "/category/go", "/feed.xml", "/"}, plan.Cascade.Paths)
	assert.Equal(t, []string{"posts", "category-news", "category-go"}, plan.Cascade.Tags)
}

func TestPlan_NoDuplicates(t *testing.T) {
	e := NewEngine(DefaultRules()...)
	plan := e.Plan(models.ChangeEvent{
		ContentType: models.ContentTypePage,
		ContentID:   "3",
		Action:      models.ActionUpdate,
		Metadata:    map[string]any{"slug": "sitemap.xml"},
	})

	seen := map[string]bool{}
	for _, p := range plan.Paths {
		require.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true
	}
	assert.Equal(t, models.ClassImmediate, plan.ClassOfPath("/sitemap.xml"))
}

func TestEngine_RulesIsCopy(t *testing.T) {
	e := NewEngine(postRules()...)
	rules := e.Rules()
	rules[0].Name = "changed"
	assert.Equal(t, "post-detail", e.Rules()[0].Name)
}
