package chat

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	schemaOnce sync.Once
	schemaDoc  []byte
	schemaErr  error
)

// ProtocolSchema returns a JSON document holding the JSON Schema of the
// inbound and outbound frames. The result is computed once.
func ProtocolSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{DoNotReference: true}
		schemaDoc, schemaErr = json.Marshal(map[string]*jsonschema.Schema{
			"inbound":  r.Reflect(&Inbound{}),
			"outbound": r.Reflect(&Outbound{}),
		})
	})
	return schemaDoc, schemaErr
}
