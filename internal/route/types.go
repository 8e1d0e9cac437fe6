// Package route turns declarative route files into registry subscriptions.
// A route names a filter, optional payload conditions and an optional
// forward target that matching messages are republished to.
package route

import (
	"fmt"
)

// Route subscribes to Filter and, when Conditions hold, logs the message and
// republishes it according to Forward.
type Route struct {
	Filter      string      `json:"filter" yaml:"filter"`
	QoS         byte        `json:"qos" yaml:"qos"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool        `json:"enabled" yaml:"enabled"`
	Conditions  *Conditions `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Forward     *Forward    `json:"forward,omitempty" yaml:"forward,omitempty"`
}

// Conditions represents a group of conditions with a logical operator
type Conditions struct {
	Operator string       `json:"operator" yaml:"operator"` // "and" or "or"
	Items    []Condition  `json:"items" yaml:"items"`
	Groups   []Conditions `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// Condition compares the payload field at Field (dot separated path) with Value
type Condition struct {
	Field    string      `json:"field" yaml:"field"`
	Operator string      `json:"operator" yaml:"operator"`
	Value    interface{} `json:"value" yaml:"value"`
}

// Forward republishes a matching message. Topic and PartitionKey are
// templates: ${topic} is the source topic, any other ${a.b} reads the
// decoded payload.
type Forward struct {
	Topic        string `json:"topic" yaml:"topic"`
	QoS          byte   `json:"qos" yaml:"qos"`
	Retain       bool   `json:"retain" yaml:"retain"`
	Color        string `json:"color,omitempty" yaml:"color,omitempty"`
	PartitionKey string `json:"partitionKey,omitempty" yaml:"partitionKey,omitempty"`
}

// ValidationError represents a route validation error
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Constants for condition operators
const (
	OperatorAnd = "and"
	OperatorOr  = "or"

	OperatorEquals             = "eq"
	OperatorNotEquals          = "neq"
	OperatorGreaterThan        = "gt"
	OperatorLessThan           = "lt"
	OperatorGreaterThanOrEqual = "gte"
	OperatorLessThanOrEqual    = "lte"
	OperatorExists             = "exists"
	OperatorContains           = "contains"
	OperatorMatches            = "matches" // regex
)

// ValidOperators contains all valid comparison operators
var ValidOperators = map[string]bool{
	OperatorEquals:             true,
	OperatorNotEquals:          true,
	OperatorGreaterThan:        true,
	OperatorLessThan:           true,
	OperatorGreaterThanOrEqual: true,
	OperatorLessThanOrEqual:    true,
	OperatorExists:             true,
	OperatorContains:           true,
	OperatorMatches:            true,
}

// topicVariable is the template variable holding the source topic
const topicVariable = "topic"
