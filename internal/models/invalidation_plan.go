package models

// TargetClass classifies an invalidation target for reporting.
type TargetClass string

const (
	ClassImmediate TargetClass = "immediate"
	ClassDeferred  TargetClass = "deferred"
	ClassCascade   TargetClass = "cascade"
)

// Targets is a set of paths and tags belonging to one class.
type Targets struct {
	Paths []string `json:"paths"`
	Tags  []string `json:"tags"`
}

// InvalidationPlan is the set of cache paths and tags to expire for one event.
// Paths and Tags are the executed union; the class views are for reporting.
type InvalidationPlan struct {
	Paths     []string `json:"paths"`
	Tags      []string `json:"tags"`
	Immediate Targets  `json:"immediate"`
	Deferred  Targets  `json:"deferred"`
	Cascade   Targets  `json:"cascade"`
}

// Empty reports whether the plan has nothing to invalidate.
func (p InvalidationPlan) Empty() bool {
	return len(p.Paths) == 0 && len(p.Tags) == 0
}

// ClassOfPath returns the class a path was assigned to, or "" when absent.
func (p InvalidationPlan) ClassOfPath(path string) TargetClass {
	return classOf(path, func(t Targets) []string { return t.Paths }, p)
}

// ClassOfTag returns the class a tag was assigned to, or "" when absent.
func (p InvalidationPlan) ClassOfTag(tag string) TargetClass {
	return classOf(tag, func(t Targets) []string { return t.Tags }, p)
}

func classOf(v string, pick func(Targets) []string, p InvalidationPlan) TargetClass {
	for _, c := range []struct {
		class   TargetClass
		targets Targets
	}{
		{ClassImmediate, p.Immediate},
		{ClassDeferred, p.Deferred},
		{ClassCascade, p.Cascade},
	} {
		for _, x := range pick(c.targets) {
			if x == v {
				return c.class
			}
		}
	}
	return ""
}
