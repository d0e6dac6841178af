package schema

import (
	"sort"

	"github.com/invopop/jsonschema"
)

// ProtocolSchemas returns reflected JSON Schemas for every command payload,
// result payload, and event payload, keyed as "command/<kind>",
// "result/<kind>", and "event/<kind>". The browser UI's debug views use this
// to introspect the protocol without hardcoding shapes.
func ProtocolSchemas() map[string]*jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schemas := make(map[string]*jsonschema.Schema, len(commandDecoders)+len(resultDecoders)+len(eventDecoders))
	for kind, decoder := range commandDecoders {
		schemas["command/"+string(kind)] = reflector.Reflect(decoder())
	}
	for kind, decoder := range resultDecoders {
		schemas["result/"+string(kind)] = reflector.Reflect(decoder())
	}
	for kind, decoder := range eventDecoders {
		schemas["event/"+string(kind)] = reflector.Reflect(decoder())
	}
	return schemas
}

// ProtocolSchemaNames returns the sorted key set of ProtocolSchemas.
func ProtocolSchemaNames() []string {
	schemas := ProtocolSchemas()
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
