package models

import "fmt"

// Comparator is a numeric filter such as "> 50%".
type Comparator struct {
	Op      string  `json:"op"`
	Value   float64 `json:"value"`
	Percent bool    `json:"percent,omitempty"`
}

var comparatorOps = map[string]struct{}{">": {}, ">=": {}, "<": {}, "<=": {}, "=": {}}

func (c Comparator) Valid() bool {
	_, ok := comparatorOps[c.Op]
	return ok
}

// Match reports whether v satisfies the comparator.
func (c Comparator) Match(v float64) bool {
	switch c.Op {
	case ">":
		return v > c.Value
	case ">=":
		return v >= c.Value
	case "<":
		return v < c.Value
	case "<=":
		return v <= c.Value
	case "=":
		return v == c.Value
	}
	return false
}

func (c Comparator) String() string {
	if c.Percent {
		return fmt.Sprintf("%s %g%%", c.Op, c.Value)
	}
	return fmt.Sprintf("%s %g", c.Op, c.Value)
}
