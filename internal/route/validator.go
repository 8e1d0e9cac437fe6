package route

import (
	"fmt"
	"regexp"
	"strings"

	"portal-bus/internal/topic"
)

var (
	// validVariablePattern matches valid variable names:
	// - Must start with a letter or underscore
	// - Can contain letters, numbers, underscores
	// - Can have dot notation for nested fields
	validVariablePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)*$`)

	templatePattern = regexp.MustCompile(`\${([^}]+)}`)
)

// Validate checks a route whose filter and forward topic are written in the
// dialect of b.
func Validate(r *Route, b topic.Binding) error {
	if r == nil {
		return &ValidationError{
			Field:   "route",
			Message: "route cannot be nil",
		}
	}

	f, err := topic.Classify(r.Filter, b)
	if err != nil {
		return &ValidationError{
			Field:   "filter",
			Message: err.Error(),
		}
	}

	if r.QoS > 2 {
		return &ValidationError{
			Field:   "qos",
			Message: "QoS must be 0, 1, or 2",
		}
	}

	if r.Conditions != nil {
		if err := validateConditions(r.Conditions); err != nil {
			return err
		}
	}

	if r.Forward != nil {
		if err := validateForward(r.Forward, f, b); err != nil {
			return err
		}
	}

	return nil
}

func validateForward(fw *Forward, source topic.Filter, b topic.Binding) error {
	if fw.Topic == "" {
		return &ValidationError{
			Field:   "forward.topic",
			Message: "forward topic cannot be empty",
		}
	}

	if fw.QoS > 2 {
		return &ValidationError{
			Field:   "forward.qos",
			Message: "QoS must be 0, 1, or 2",
		}
	}

	if err := validateTemplate(fw.Topic); err != nil {
		return &ValidationError{
			Field:   "forward.topic",
			Message: err.Error(),
		}
	}

	if err := validateTemplate(fw.PartitionKey); err != nil {
		return &ValidationError{
			Field:   "forward.partitionKey",
			Message: err.Error(),
		}
	}

	// templates are only known per message
	if strings.Contains(fw.Topic, "${") {
		return nil
	}

	if b.HasWildcard(fw.Topic) {
		return &ValidationError{
			Field:   "forward.topic",
			Message: "forward topic cannot contain wildcards",
		}
	}

	t, err := topic.ParseTopic(fw.Topic, b)
	if err != nil {
		return &ValidationError{
			Field:   "forward.topic",
			Message: err.Error(),
		}
	}
	if topic.Match(t, source) {
		return &ValidationError{
			Field:   "forward.topic",
			Message: fmt.Sprintf("forward topic %q matches the route filter and would loop", fw.Topic),
		}
	}

	return nil
}

// validateConditions validates a condition group recursively
func validateConditions(conditions *Conditions) error {
	switch conditions.Operator {
	case OperatorAnd, OperatorOr:
	default:
		return &ValidationError{
			Field:   "conditions.operator",
			Message: fmt.Sprintf("invalid operator: %s", conditions.Operator),
		}
	}

	for i, condition := range conditions.Items {
		if err := validateCondition(&condition); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("conditions.items[%d]", i),
				Message: err.Error(),
			}
		}
	}

	for i, group := range conditions.Groups {
		if err := validateConditions(&group); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("conditions.groups[%d]", i),
				Message: err.Error(),
			}
		}
	}

	return nil
}

// validateCondition validates a single condition
func validateCondition(condition *Condition) error {
	if condition.Field == "" {
		return fmt.Errorf("field cannot be empty")
	}

	if !ValidOperators[condition.Operator] {
		return fmt.Errorf("invalid operator: %s", condition.Operator)
	}

	if condition.Operator == OperatorMatches {
		pattern, ok := condition.Value.(string)
		if !ok {
			return fmt.Errorf("regex pattern must be a string")
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid regex pattern: %s", err)
		}
	}

	return nil
}

// validateTemplate checks that every ${...} reference is a valid variable name
func validateTemplate(template string) error {
	for _, match := range templatePattern.FindAllStringSubmatch(template, -1) {
		if !validVariablePattern.MatchString(match[1]) {
			return fmt.Errorf("invalid variable name: %s", match[1])
		}
	}
	return nil
}
