package tool

import (
	"encoding/json"
	"strings"

	"github.com/jcqin2022/AIAssistant/core"
	"github.com/jcqin2022/AIAssistant/internal/util"
)

// ParseArguments decodes the raw JSON argument text of a capability call.
// Empty text is treated as an empty object.
func ParseArguments(name, raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, &core.ArgumentValidationError{Capability: name, Malformed: err}
	}
	if args == nil { // "null"
		args = map[string]any{}
	}
	return args, nil
}

// ValidateArguments checks that args supplies every required parameter of t
// and nothing the schema does not declare.
func ValidateArguments(t Tool, args map[string]any) error {
	missing, extra := util.CheckArgumentNames(args, t.Parameters())
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	return &core.ArgumentValidationError{Capability: t.Name(), Missing: missing, Extra: extra}
}
