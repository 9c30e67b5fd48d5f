package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github/bherbruck/edgeagent/internal/config"

	"github.com/invopop/jsonschema"
)

func main() {
	reflector := &jsonschema.Reflector{
		Anonymous:                  false,
		DoNotReference:             false,
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
	}

	schema := reflector.Reflect(&config.ProvisioningConfig{})

	schema.ID = "https://edgeagent.dev/schema/provisioning/v1/schema.json"
	schema.Title = "edgeagentd provisioning file"
	schema.Description = "Bridge rule sets and operation actor toggles loaded via --config/CONFIG_FILE"

	schema.Examples = []interface{}{
		map[string]interface{}{
			"bridges": []map[string]interface{}{
				{
					"name": "cumulocity",
					"rules": []map[string]interface{}{
						{
							"direction": "local_to_cloud",
							"source":    "tedge/measurements/#",
							"target":    "${C8Y_TOPIC_PREFIX}/s/us/#",
							"qos":       1,
						},
						{
							"direction": "cloud_to_local",
							"source":    "c8y/s/ds",
							"target":    "tedge/commands/req",
							"qos":       1,
							"retain":    "never",
						},
					},
				},
			},
			"transforms": []map[string]interface{}{
				{
					"name":   "measurements-passthrough",
					"source": "tedge/measurements/raw/#",
					"target": "tedge/measurements",
				},
			},
			"operations": map[string]interface{}{
				"software_update": true,
				"config_snapshot": true,
				"config_update":   true,
				"log_request":     true,
				"restart":         true,
				"firmware":        false,
			},
		},
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(schema); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding schema: %v\n", err)
		os.Exit(1)
	}
}
