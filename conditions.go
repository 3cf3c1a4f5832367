package pollster

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Conditions for [WithCondition] that inspect the last response of an
// [HTTPResource]. Each keeps polling while the resource has no response yet,
// and always keeps polling for other resource types.

// UntilBodyContains keeps polling until the last response body contains text.
func UntilBodyContains(text string) func(Resource) bool {
	needle := []byte(text)
	return untilBody(func(body []byte) bool {
		return bytes.Contains(body, needle)
	})
}

// UntilJSONField keeps polling until the JSON field at path equals want,
// compared case-insensitively. The path uses dot notation to navigate nested
// objects: "data.job.state" reads {"data": {"job": {"state": "done"}}}.
//
// Booleans compare as "true" or "false" and numbers in their shortest form.
// A body that is not JSON or lacks the field keeps polling.
//
// Example:
//
//	pollster.WithCondition(pollster.UntilJSONField("data.state", "done"))
func UntilJSONField(path, want string) func(Resource) bool {
	parts := strings.Split(path, ".")
	return untilBody(func(body []byte) bool {
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			return false
		}
		value, ok := extractJSONPath(data, parts)
		return ok && strings.EqualFold(value, want)
	})
}

// UntilBodyMatches keeps polling until the first capture group of pattern
// equals want, compared case-insensitively.
//
// Returns an error if the pattern is invalid.
//
// Example:
//
//	cond, err := pollster.UntilBodyMatches(`"progress":\s*(\d+)`, "100")
func UntilBodyMatches(pattern, want string) (func(Resource) bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return untilBody(func(body []byte) bool {
		m := re.FindSubmatch(body)
		return len(m) >= 2 && strings.EqualFold(string(m[1]), want)
	}), nil
}

// MustUntilBodyMatches is like [UntilBodyMatches] but panics if the pattern
// is invalid.
func MustUntilBodyMatches(pattern, want string) func(Resource) bool {
	cond, err := UntilBodyMatches(pattern, want)
	if err != nil {
		panic("pollster: invalid regex pattern: " + err.Error())
	}
	return cond
}

// All combines conditions: polling continues only while every condition
// continues, so the first condition that is met completes the poller.
func All(conds ...func(Resource) bool) func(Resource) bool {
	return func(res Resource) bool {
		for _, cond := range conds {
			if !cond(res) {
				return false
			}
		}
		return true
	}
}

// untilBody adapts a body predicate into a condition that stops polling once
// done reports true for the last response.
func untilBody(done func(body []byte) bool) func(Resource) bool {
	return func(res Resource) bool {
		h, ok := res.(*HTTPResource)
		if !ok {
			return true
		}
		last := h.LastResponse()
		return last == nil || !done(last.Body)
	}
}

// extractJSONPath walks a decoded JSON value along parts and renders the
// leaf as a string.
func extractJSONPath(data any, parts []string) (string, bool) {
	current := data
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		if current, ok = obj[part]; !ok {
			return "", false
		}
	}

	switch v := current.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}
