package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/revalidator/internal/models"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("REVALIDATE_CONFIG", "")
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "revalidator 0.1.0")
}

func TestPlanCmd(t *testing.T) {
	out, err := run(t, "plan", "--type", "post", "--id", "42", "--action", "update",
		"--meta", "slug=hello", "--meta", "categories=go|web")
	require.NoError(t, err)

	var plan models.InvalidationPlan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Contains(t, plan.Immediate.Paths, "/posts/42")
	assert.Contains(t, plan.Immediate.Paths, "/blog/hello")
	assert.Contains(t, plan.Cascade.Paths, "/category/go")
	assert.Contains(t, plan.Cascade.Paths, "/category/web")
}

func TestPlanCmd_YAMLAndExplicitTargets(t *testing.T) {
	out, err := run(t, "plan", "--type", "page", "--action", "delete", "--path", "/only", "--output", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "- /only")
}

func TestPlanCmd_Invalid(t *testing.T) {
	_, err := run(t, "plan", "--type", "post", "--action", "explode")
	assert.ErrorContains(t, err, "invalid event")

	_, err = run(t, "plan", "--type", "post", "--action", "update", "--meta", "novalue")
	assert.ErrorContains(t, err, "expected key=value")

	_, err = run(t, "plan", "--type", "post", "--action", "update", "--output", "xml")
	assert.Error(t, err)
}

func TestPlanCmd_ConfiguredRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	doc := "rules:\n  - name: events\n    content_types: [event]\n    stage: cascade\n    paths: [/events]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	out, err := run(t, "plan", "--config", path, "--type", "event", "--id", "1", "--action", "update")
	require.NoError(t, err)
	assert.Contains(t, out, `"/events"`)
}
