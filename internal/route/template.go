package route

import (
	"strings"
)

// render substitutes ${topic} with the source topic and ${a.b} with values
// from the decoded payload. Unresolved placeholders are left in place.
func render(template, sourceTopic string, values map[string]interface{}) string {
	if !strings.Contains(template, "${") {
		return template
	}

	return templatePattern.ReplaceAllStringFunc(template, func(placeholder string) string {
		name := placeholder[2 : len(placeholder)-1]
		if name == topicVariable {
			return sourceTopic
		}

		value, err := lookupPath(values, strings.Split(name, "."))
		if err != nil {
			return placeholder
		}
		return toString(value)
	})
}
