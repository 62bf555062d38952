package vectorstore

import (
	"fmt"
	"strings"

	"github.com/poiesic/ragpipe/core"
)

// Filter is a metadata filter in the MongoDB-style dialect hosted indexes
// accept, e.g. {"source": "faq"} or
// {"$and": [{"year": {"$gte": 2020}}, {"lang": {"$in": ["en", "de"]}}]}.
// Remote stores send it as-is; embedded stores evaluate it with Match.
type Filter map[string]any

// Validate checks the structure of f without evaluating it.
func (f Filter) Validate() error {
	_, err := f.Match(core.Metadata{})
	return err
}

// Match reports whether md satisfies f. An empty filter matches everything.
func (f Filter) Match(md core.Metadata) (bool, error) {
	matched := true
	for key, cond := range f {
		var ok bool
		var err error
		switch key {
		case "$and":
			ok, err = matchAll(cond, md, true)
		case "$or":
			ok, err = matchAll(cond, md, false)
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("%w: unknown top-level operator %q", ErrInvalidFilter, key)
			}
			ok, err = matchField(md, key, cond)
		}
		if err != nil {
			return false, err
		}
		// Keep evaluating so structural errors surface regardless of order.
		matched = matched && ok
	}
	return matched, nil
}

func matchAll(cond any, md core.Metadata, all bool) (bool, error) {
	clauses, ok := cond.([]any)
	if !ok {
		if typed, isTyped := cond.([]Filter); isTyped {
			for _, c := range typed {
				clauses = append(clauses, map[string]any(c))
			}
		} else {
			return false, fmt.Errorf("%w: logical operator needs an array", ErrInvalidFilter)
		}
	}

	result := all
	for _, raw := range clauses {
		sub, err := asFilter(raw)
		if err != nil {
			return false, err
		}
		ok, err := sub.Match(md)
		if err != nil {
			return false, err
		}
		if all {
			result = result && ok
		} else {
			result = result || ok
		}
	}
	return result, nil
}

func asFilter(raw any) (Filter, error) {
	switch t := raw.(type) {
	case Filter:
		return t, nil
	case map[string]any:
		return Filter(t), nil
	default:
		return nil, fmt.Errorf("%w: expected an object, got %T", ErrInvalidFilter, raw)
	}
}

func matchField(md core.Metadata, key string, cond any) (bool, error) {
	ops, isOps := cond.(map[string]any)
	if !isOps {
		if f, isFilter := cond.(Filter); isFilter {
			ops, isOps = map[string]any(f), true
		}
	}
	if !isOps {
		return applyOp(md, key, "$eq", cond)
	}

	matched := true
	for op, operand := range ops {
		ok, err := applyOp(md, key, op, operand)
		if err != nil {
			return false, err
		}
		matched = matched && ok
	}
	return matched, nil
}

func applyOp(md core.Metadata, key, op string, operand any) (bool, error) {
	actual, present := md[key]

	switch op {
	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return false, fmt.Errorf("%w: $exists needs a bool", ErrInvalidFilter)
		}
		return present == want, nil

	case "$in", "$nin":
		list, ok := operand.([]any)
		if !ok {
			return false, fmt.Errorf("%w: %s needs an array", ErrInvalidFilter, op)
		}
		found := false
		for _, raw := range list {
			v, err := core.ValueOf(raw)
			if err != nil {
				return false, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
			}
			if present && actual.Equal(v) {
				found = true
			}
		}
		if op == "$in" {
			return found, nil
		}
		return !found, nil
	}

	want, err := core.ValueOf(operand)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrInvalidFilter, op, err)
	}

	switch op {
	case "$eq":
		return present && actual.Equal(want), nil
	case "$ne":
		return !present || !actual.Equal(want), nil
	case "$gt", "$gte", "$lt", "$lte":
		w, ok := want.AsNumber()
		if !ok {
			return false, fmt.Errorf("%w: %s needs a number", ErrInvalidFilter, op)
		}
		a, ok := actual.AsNumber()
		if !present || !ok {
			return false, nil
		}
		switch op {
		case "$gt":
			return a > w, nil
		case "$gte":
			return a >= w, nil
		case "$lt":
			return a < w, nil
		default:
			return a <= w, nil
		}
	}
	return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, op)
}
