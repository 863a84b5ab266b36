// Package pipeline tracks the staged development workflow for an agent
// session: research, plan, test, implement, review, security, docs.
//
// Stage state persists to .autodev/state/pipeline.json so that gates,
// hooks, and later sessions can see where the work stands.
package pipeline

import (
	"fmt"
	"strings"
)

// Stage is one step of the development pipeline.
type Stage string

const (
	StageResearch  Stage = "research"
	StagePlan      Stage = "plan"
	StageTest      Stage = "test"
	StageImplement Stage = "implement"
	StageReview    Stage = "review"
	StageSecurity  Stage = "security"
	StageDocs      Stage = "docs"
)

// Order is the canonical stage sequence. Tests come before implementation:
// the test stage writes failing tests that the implement stage makes pass.
var Order = []Stage{
	StageResearch,
	StagePlan,
	StageTest,
	StageImplement,
	StageReview,
	StageSecurity,
	StageDocs,
}

// ParseStage parses a string into a Stage, case-insensitive.
func ParseStage(s string) (Stage, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, st := range Order {
		if string(st) == lower {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q (valid: %s)", s, stageList())
}

// Index returns the position of a stage in the canonical order, or -1.
func Index(stage Stage) int {
	for i, st := range Order {
		if st == stage {
			return i
		}
	}
	return -1
}

// Next returns the stage after the given one, or "" if it is the last.
func Next(stage Stage) Stage {
	i := Index(stage)
	if i < 0 || i+1 >= len(Order) {
		return ""
	}
	return Order[i+1]
}

func stageList() string {
	names := make([]string, len(Order))
	for i, st := range Order {
		names[i] = string(st)
	}
	return strings.Join(names, ", ")
}

// StageStatus is the lifecycle state of a single stage.
type StageStatus string

const (
	StatusPending StageStatus = "pending"
	StatusRunning StageStatus = "running"
	StatusPassed  StageStatus = "passed"
	StatusFailed  StageStatus = "failed"
	StatusSkipped StageStatus = "skipped"
)

// terminal reports whether a status means the stage is finished.
func (s StageStatus) terminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusSkipped
}

// satisfied reports whether a status allows the pipeline to move past
// the stage.
func (s StageStatus) satisfied() bool {
	return s == StatusPassed || s == StatusSkipped
}
