package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFull(t *testing.T) {
	origCommit, origBuild := GitCommit, BuildTime
	t.Cleanup(func() { GitCommit, BuildTime = origCommit, origBuild })

	GitCommit, BuildTime = "unknown", "unknown"
	assert.Equal(t, Version, Full())

	GitCommit = "abc123"
	assert.Equal(t, Version+" (commit: abc123)", Full())

	BuildTime = "2026-01-01"
	assert.Equal(t, Version+" (commit: abc123, built: 2026-01-01)", Full())
}
