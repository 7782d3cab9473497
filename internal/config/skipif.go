package config

import (
	"fmt"
	"strings"
)

// Skip condition operators.
const (
	SkipOnPath = "onpath"
	SkipExists = "exists"
)

// SkipCondition guards a stage: the stage is skipped when the condition
// holds. "onpath <cmd>" holds when cmd resolves on PATH, "exists <path>"
// when path exists. A leading "!" negates it.
type SkipCondition struct {
	Op     string
	Arg    string
	Negate bool
}

// ParseSkipCondition parses a skipif expression.
func ParseSkipCondition(expr string) (SkipCondition, error) {
	var c SkipCondition
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "!") {
		c.Negate = true
		expr = strings.TrimSpace(expr[1:])
	}
	op, arg, ok := strings.Cut(expr, " ")
	arg = strings.TrimSpace(arg)
	if !ok || arg == "" {
		return SkipCondition{}, fmt.Errorf("invalid skipif %q: want \"onpath <cmd>\" or \"exists <path>\"", expr)
	}
	switch op {
	case SkipOnPath, SkipExists:
	default:
		return SkipCondition{}, fmt.Errorf("invalid skipif operator %q", op)
	}
	c.Op = op
	c.Arg = arg
	return c, nil
}

func (c SkipCondition) String() string {
	s := c.Op + " " + c.Arg
	if c.Negate {
		return "!" + s
	}
	return s
}
