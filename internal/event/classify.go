package event

import "slices"

// Reasons reported for out-of-scope events.
const (
	ReasonNoProject      = "no project on event"
	ReasonNotTagChange   = "not a tag attribute change"
	ReasonNotAllowListed = "project not in allow-list"
)

// Verdict is the classifier's decision for one event.
type Verdict struct {
	InScope bool   `json:"in_scope"`
	Reason  string `json:"reason,omitempty"`
}

// InScope is the verdict for events that proceed to path resolution.
var InScope = Verdict{InScope: true}

// OutOfScope builds a negative verdict.
func OutOfScope(reason string) Verdict {
	return Verdict{Reason: reason}
}

func (v Verdict) String() string {
	if v.InScope {
		return "in scope"
	}
	return "out of scope: " + v.Reason
}

// Classify decides whether ev should be mirrored.
//
// An empty allowedProjects list allows every project.
func Classify(ev *ChangeEvent, allowedProjects []int64) Verdict {
	if !ev.HasProject() {
		return OutOfScope(ReasonNoProject)
	}
	if ev.MetaType != MetaAttributeChange {
		return OutOfScope(ReasonNotTagChange)
	}
	if len(allowedProjects) > 0 && !slices.Contains(allowedProjects, *ev.ProjectID) {
		return OutOfScope(ReasonNotAllowListed)
	}
	return InScope
}
