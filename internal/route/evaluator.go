package route

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// evaluateConditions evaluates a condition group against a decoded payload.
// Payloads that are not JSON objects only satisfy an empty group.
func evaluateConditions(conditions *Conditions, values map[string]interface{}) bool {
	if conditions == nil || (len(conditions.Items) == 0 && len(conditions.Groups) == 0) {
		return true
	}

	results := make([]bool, 0, len(conditions.Items)+len(conditions.Groups))

	for _, condition := range conditions.Items {
		results = append(results, evaluateCondition(&condition, values))
	}

	for _, group := range conditions.Groups {
		results = append(results, evaluateConditions(&group, values))
	}

	switch conditions.Operator {
	case OperatorAnd:
		for _, result := range results {
			if !result {
				return false
			}
		}
		return true
	case OperatorOr:
		for _, result := range results {
			if result {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// evaluateCondition evaluates a single condition against payload values
func evaluateCondition(condition *Condition, values map[string]interface{}) bool {
	value, err := lookupPath(values, strings.Split(condition.Field, "."))
	if err != nil {
		// a missing field only matches "not equals"
		return condition.Operator == OperatorNotEquals
	}

	switch condition.Operator {
	case OperatorEquals:
		return compareValues(value, condition.Value) == 0
	case OperatorNotEquals:
		return compareValues(value, condition.Value) != 0
	case OperatorGreaterThan:
		return compareValues(value, condition.Value) > 0
	case OperatorLessThan:
		return compareValues(value, condition.Value) < 0
	case OperatorGreaterThanOrEqual:
		return compareValues(value, condition.Value) >= 0
	case OperatorLessThanOrEqual:
		return compareValues(value, condition.Value) <= 0
	case OperatorExists:
		return true
	case OperatorContains:
		return containsValue(value, condition.Value)
	case OperatorMatches:
		return matchesPattern(value, condition.Value)
	default:
		return false
	}
}

// lookupPath walks nested maps along path
func lookupPath(data map[string]interface{}, path []string) (interface{}, error) {
	var current interface{} = data

	for _, key := range path {
		switch v := current.(type) {
		case map[string]interface{}:
			next, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", key)
			}
			current = next
		default:
			return nil, fmt.Errorf("invalid path: %s is not a map", key)
		}
	}

	return current, nil
}

// compareValues compares two values of potentially different types
func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	switch va := a.(type) {
	case float64:
		if vb, ok := toFloat64(b); ok {
			if va < vb {
				return -1
			}
			if va > vb {
				return 1
			}
			return 0
		}
	case string:
		return strings.Compare(va, toString(b))
	case bool:
		if vb, ok := toBool(b); ok {
			if va == vb {
				return 0
			}
			if va {
				return 1
			}
			return -1
		}
	}

	// incompatible types compare by string representation
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func containsValue(value, substr interface{}) bool {
	return strings.Contains(toString(value), toString(substr))
}

func matchesPattern(value, pattern interface{}) bool {
	re, err := regexp.Compile(toString(pattern))
	if err != nil {
		return false
	}
	return re.MatchString(toString(value))
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// toString renders scalars plainly and objects or arrays as JSON
func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return "null"
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toBool(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		if b, err := strconv.ParseBool(val); err == nil {
			return b, true
		}
	case int:
		return val != 0, true
	case float64:
		return val != 0, true
	}
	return false, false
}
