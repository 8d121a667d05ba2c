package handoff

import (
	"encoding/json"

	"github.com/aretw0/switchboard/pkg/ports"
)

// Shape is the expected decision structure for every agent node.
var Shape = ports.Shape{
	Name:   "handoff_list",
	Schema: json.RawMessage(schema),
}

const schema = `{
  "type": "object",
  "required": ["handoff_agents"],
  "properties": {
    "handoff_agents": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["agent_name", "message_to_agent", "agent_specific_parameters"],
        "properties": {
          "agent_name": {"type": "string", "enum": ["respond_to_user", "tutor_agent", "search_agent"]},
          "message_to_agent": {"type": "string"},
          "agent_specific_parameters": {
            "oneOf": [
              {
                "type": "object",
                "required": ["message_to_student"],
                "properties": {
                  "message_to_student": {"type": "string"},
                  "agent_after_response": {"type": "string"}
                },
                "additionalProperties": false
              },
              {
                "type": "object",
                "required": ["subject", "grade"],
                "properties": {
                  "subject": {"type": "string"},
                  "grade": {"type": "integer"}
                },
                "additionalProperties": false
              },
              {
                "type": "object",
                "required": ["query"],
                "properties": {
                  "query": {"type": "string"},
                  "score_threshold": {"type": "number"}
                },
                "additionalProperties": false
              }
            ]
          }
        }
      }
    }
  }
}`
