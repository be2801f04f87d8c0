package tasks

import (
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Request body shapes. Content rules (lengths, trimming) live in ValidateTaskData.
var (
	// POST and PUT: title is mandatory.
	fullSchema = jsonschema.MustCompileString("task_full.json", `{
		"type": "object",
		"required": ["title"],
		"properties": {
			"title": {"type": "string"},
			"description": {"type": "string"}
		}
	}`)

	patchSchema = jsonschema.MustCompileString("task_patch.json", `{
		"type": "object",
		"properties": {
			"title": {"type": "string"},
			"description": {"type": "string"}
		}
	}`)
)

// schemaErrors flattens a schema failure into per-field messages.
func schemaErrors(err error) []fieldError {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []fieldError{{Field: "body", Message: err.Error()}}
	}

	var out []fieldError
	collectSchemaErrors(ve, &out)
	return out
}

func collectSchemaErrors(err *jsonschema.ValidationError, out *[]fieldError) {
	if len(err.Causes) == 0 {
		*out = append(*out, fieldError{
			Field:   pointerToField(err.InstanceLocation),
			Message: err.Message,
		})
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, out)
	}
}

func pointerToField(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return "body"
	}
	return strings.ReplaceAll(ptr, "/", ".")
}
