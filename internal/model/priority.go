package model

import (
	"fmt"
	"strings"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNone   Priority = "none"
)

// ParsePriority trims and lower-cases s and checks it against the closed set.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow, PriorityNone:
		return p, nil
	case "":
		return "", fmt.Errorf("priority is required")
	}
	return "", fmt.Errorf("unknown priority %q (want high, medium, low or none)", s)
}

// PriorityOrNone 未设置的优先级按 none 处理
func PriorityOrNone(p *Priority) Priority {
	if p == nil || *p == "" {
		return PriorityNone
	}
	return *p
}
