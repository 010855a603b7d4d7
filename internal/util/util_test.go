package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptArgs struct {
	Script  string   `json:"script" description:"script to run"`
	Tags    []string `json:"tags"`
	Verbose *bool    `json:"verbose"`
	Note    string   `json:"note,omitempty"`
	Ignored string   `json:"-"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(scriptArgs{})

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"script", "tags"}, schema["required"])

	props := schema["properties"].(map[string]any)
	assert.Len(t, props, 4)
	assert.Equal(t, "script to run", props["script"].(map[string]any)["description"])
	assert.Equal(t, map[string]any{"type": "string"}, props["tags"].(map[string]any)["items"])
	assert.Equal(t, "boolean", props["verbose"].(map[string]any)["type"])

	empty := CreateSchema(struct{}{})
	assert.Empty(t, empty["properties"])
	assert.NotContains(t, empty, "required")
}

func TestCheckArgumentNames(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "string"},
			"b": map[string]any{"type": "string"},
		},
		"required": []any{"a", "b"},
	}

	missing, extra := CheckArgumentNames(map[string]any{"a": "1", "b": "2"}, schema)
	assert.Empty(t, missing)
	assert.Empty(t, extra)

	missing, extra = CheckArgumentNames(map[string]any{"a": "1"}, schema)
	assert.Equal(t, []string{"b"}, missing)
	assert.Empty(t, extra)

	missing, extra = CheckArgumentNames(map[string]any{"a": "1", "b": "2", "d": "3"}, schema)
	assert.Empty(t, missing)
	assert.Equal(t, []string{"d"}, extra)
}

func TestValidateParameters(t *testing.T) {
	schema := CreateSchema(scriptArgs{})

	assert.NoError(t, ValidateParameters(map[string]any{"script": "ls", "tags": []any{"x"}}, schema))

	err := ValidateParameters(map[string]any{"script": 1, "tags": []any{}}, schema)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "script", verr.Field)

	err = ValidateParameters(map[string]any{"script": "ls"}, schema)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tags", verr.Field)
}

func TestDecodeArguments(t *testing.T) {
	var out scriptArgs
	require.NoError(t, DecodeArguments(map[string]any{"script": "uname", "tags": []any{"a", "b"}}, &out))
	assert.Equal(t, "uname", out.Script)
	assert.Equal(t, []string{"a", "b"}, out.Tags)

	assert.Error(t, DecodeArguments(map[string]any{"script": 5}, &out))
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("context: {{.Context}}\nquestion: {{.Question}}", map[string]any{
		"Context":  "<none>",
		"Question": "a & b",
	})
	require.NoError(t, err)
	assert.Equal(t, "context: <none>\nquestion: a & b", out)

	plain, err := RenderTemplate("no markers", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers", plain)

	_, err = RenderTemplate("{{.Broken", nil)
	assert.Error(t, err)
}
