package api

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// taskListSchema describes the list-tasks response. Status is not restricted to
// the known values: tasks with other statuses simply land in no column.
const taskListSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["data"],
  "properties": {
    "data": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title", "status"],
        "anyOf": [
          {"required": ["id"]},
          {"required": ["_id"]}
        ],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "_id": {"type": "string", "minLength": 1},
          "title": {"type": "string"},
          "description": {"type": ["string", "null"]},
          "status": {"type": "string"},
          "dueDate": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

const taskListSchemaURL = "taskdeck://schemas/task-list.json"

var (
	taskListOnce     sync.Once
	taskListCompiled *jsonschema.Schema
	taskListErr      error
)

func compiledTaskListSchema() (*jsonschema.Schema, error) {
	taskListOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(taskListSchemaURL, strings.NewReader(taskListSchema)); err != nil {
			taskListErr = fmt.Errorf("add schema: %w", err)
			return
		}
		taskListCompiled, taskListErr = compiler.Compile(taskListSchemaURL)
	})
	return taskListCompiled, taskListErr
}

// validateTaskList checks a decoded list-tasks response against the schema and
// returns a short description of the first violation.
func validateTaskList(doc interface{}) error {
	schema, err := compiledTaskListSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	loc := leaf.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Errorf("unexpected task list at %s: %s", loc, leaf.Message)
}
