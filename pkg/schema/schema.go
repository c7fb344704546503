// Package schema reflects Go types into JSON Schema documents for tool
// parameter declarations and structured response formats.
package schema

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Schema pairs the raw reflected schema of a type with the flattened form
// used to declare function parameters.
type Schema struct {
	RawSchema *jsonschema.Schema
	// Parameters is the flattened schema: the root definition lifted to the
	// top level and the remaining $refs inlined.
	Parameters *jsonschema.Schema
}

var (
	cacheMu sync.RWMutex
	cache   = make(map[reflect.Type]*Schema)
)

// New reflects t into a Schema. Results are cached per type.
func New(t reflect.Type) (*Schema, error) {
	cacheMu.RLock()
	s, ok := cache[t]
	cacheMu.RUnlock()
	if ok {
		return s, nil
	}

	raw := reflectType(t)
	s = &Schema{
		RawSchema:  raw,
		Parameters: inlineDefs(raw),
	}

	cacheMu.Lock()
	cache[t] = s
	cacheMu.Unlock()

	return s, nil
}

func (s *Schema) String() string {
	js, _ := json.MarshalIndent(s.Parameters, "", "\t")
	return string(js)
}

// reflectType builds the raw schema for t.
func reflectType(t reflect.Type) *jsonschema.Schema {
	// Draft 2020-12 output trips up several schema consumers, pin draft-07.
	jsonschema.Version = "http://json-schema.org/draft-07/schema#"

	r := &jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	// Identical struct names from different packages collide in $defs.
	// Hash the package path into the name to keep refs unambiguous.
	// See https://github.com/invopop/jsonschema/issues/42.
	r.Namer = func(t reflect.Type) string {
		if t.Kind() != reflect.Struct {
			return t.Name()
		}
		full := t.PkgPath() + "/" + t.Name()
		return t.Name() + "@" + strconv.FormatUint(xxhash.Sum64String(full), 10)
	}

	return r.ReflectFromType(t)
}

const defsPrefix = "#/$defs/"

// inlineDefs flattens a reflected schema into a bare parameters object:
// the root definition is lifted to the top level and property $refs are
// replaced by the definitions they point to.
func inlineDefs(raw *jsonschema.Schema) *jsonschema.Schema {
	rootName := strings.TrimPrefix(raw.Ref, defsPrefix)

	root := raw
	defs := make(map[string]*jsonschema.Schema, len(raw.Definitions))
	for name, def := range raw.Definitions {
		if name == rootName {
			root = def
			continue
		}
		defs[name] = def
	}

	out := &jsonschema.Schema{
		Type:       root.Type,
		Properties: root.Properties,
		Required:   root.Required,
	}
	inlineRefs(out.Properties, defs)

	return out
}

func inlineRefs(props *orderedmap.OrderedMap[string, *jsonschema.Schema], defs map[string]*jsonschema.Schema) {
	if props == nil {
		return
	}
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		child := pair.Value
		if child.Ref != "" {
			if def, ok := defs[strings.TrimPrefix(child.Ref, defsPrefix)]; ok {
				pair.Value = def
			}
		}
		inlineRefs(child.Properties, defs)
		if child.Items != nil && child.Items.Ref != "" {
			if def, ok := defs[strings.TrimPrefix(child.Items.Ref, defsPrefix)]; ok {
				child.Items = def
			}
		}
	}
}

// FromAny builds a schema from a plain value, typically a
// map[string]any literal describing an object.
func FromAny(t any) (*jsonschema.Schema, error) {
	js, err := json.Marshal(t)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	schema := &jsonschema.Schema{}
	if err := json.Unmarshal(js, schema); err != nil {
		return nil, errors.WithStack(err)
	}
	return schema, nil
}

// FromJSON parses a raw JSON schema, typically the inputSchema advertised by
// a remote tool server, and normalizes it for use as function parameters:
// a missing type defaults to "object" and a nil properties map is replaced
// with an empty one so callers can iterate it unconditionally.
func FromJSON(raw []byte) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return emptyObjectSchema(), nil
	}
	schema := &jsonschema.Schema{}
	if err := json.Unmarshal(raw, schema); err != nil {
		return nil, errors.Wrap(err, "invalid json schema")
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	if schema.Properties == nil {
		schema.Properties = orderedmap.New[string, *jsonschema.Schema]()
	}
	return schema, nil
}

func emptyObjectSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: orderedmap.New[string, *jsonschema.Schema](),
	}
}
