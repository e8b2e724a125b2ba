package config

import (
	"github.com/invopop/jsonschema"
)

// Schema describes the configuration file format.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(Config))
	schema.Title = "netsync configuration"
	schema.Description = "Runtime settings and per attribute replication directions read from netsync.yaml"
	return schema
}
