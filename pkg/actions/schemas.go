package actions

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/routepack/routepack/pkg/models"
)

// configSchemas validate ActionNode.Config per action type when a template is
// saved, so authoring mistakes surface before any package routes through the
// node.
var configSchemas = map[models.ActionType]map[string]any{
	models.ActionTypeSendAlert: {
		"type": "object",
		"properties": map[string]any{
			"recipients": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "minLength": 1},
			},
			"title":   map[string]any{"type": "string"},
			"message": map[string]any{"type": "string"},
		},
	},
	models.ActionTypeSendEmail: {
		"type":     "object",
		"required": []any{"recipients"},
		"properties": map[string]any{
			"recipients": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "string", "minLength": 1},
			},
			"subject": map[string]any{"type": "string"},
			"body":    map[string]any{"type": "string"},
		},
	},
	models.ActionTypeComplete: {
		"type": "object",
	},
	models.ActionTypeReject: {
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{"type": "string"},
		},
	},
	models.ActionTypeWait: {
		"type": "object",
		"properties": map[string]any{
			"days": map[string]any{"type": "integer", "minimum": 1},
		},
	},
	models.ActionTypeWebhook: {
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url":    map[string]any{"type": "string", "minLength": 1},
			"method": map[string]any{"enum": []any{"GET", "POST", "PUT"}},
		},
	},
}

// ValidateConfig checks an action node's config against its type's schema.
// Unknown types fail validation here even though the executor tolerates them
// at runtime: new templates must not author them.
func ValidateConfig(node *models.ActionNode) error {
	schema, ok := configSchemas[node.ActionType]
	if !ok {
		return fmt.Errorf("unknown action type: %s", node.ActionType)
	}

	config := node.Config
	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("invalid config for action node %s: %s", node.NodeID, strings.Join(details, "; "))
	}

	return nil
}
