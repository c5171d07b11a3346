package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
)

const (
	JSONPath = "/openapi.json"
	YAMLPath = "/openapi.yaml"
)

// OpenAPI accumulates an OpenAPI 3 document. Schemas are derived from Go
// types with json, doc, example and validate struct tags.
type OpenAPI struct {
	spec               *openapi3.T
	mu                 sync.RWMutex
	schemaRegistry     map[string]string
	schemaNameRegistry map[string]string
}

func New(title, version string) *OpenAPI {
	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   title,
			Version: version,
		},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{},
	}

	return &OpenAPI{
		spec:               spec,
		schemaRegistry:     make(map[string]string),
		schemaNameRegistry: make(map[string]string),
	}
}

func (o *OpenAPI) Description(desc string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.spec.Info.Description = desc
	return o
}

func (o *OpenAPI) Server(url, description string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.spec.Servers = append(o.spec.Servers, &openapi3.Server{
		URL:         url,
		Description: description,
	})
	return o
}

func (o *OpenAPI) Tag(name, description string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.spec.Tags = append(o.spec.Tags, &openapi3.Tag{
		Name:        name,
		Description: description,
	})
	return o
}

// AddSchema registers example's type under name so later references to the
// same type point at it.
func (o *OpenAPI) AddSchema(name string, example any) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.spec.Components.Schemas == nil {
		o.spec.Components.Schemas = make(openapi3.Schemas)
	}

	if example == nil {
		o.spec.Components.Schemas[name] = &openapi3.SchemaRef{
			Value: &openapi3.Schema{Type: &openapi3.Types{"object"}},
		}
		return o
	}

	t := reflect.TypeOf(example)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	visited := make(map[string]bool)
	var schema *openapi3.Schema
	if t.Kind() == reflect.Struct {
		schema = o.buildStructSchema(t, visited)
		typeKey := getTypeKey(t)
		o.schemaRegistry[typeKey] = name
		o.schemaNameRegistry[name] = typeKey
	} else {
		schema = o.generateSchemaFromType(t, visited).Value
	}

	o.spec.Components.Schemas[name] = &openapi3.SchemaRef{Value: schema}
	return o
}

func (o *OpenAPI) Spec() *openapi3.T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.spec
}

func (o *OpenAPI) JSON() ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return json.MarshalIndent(o.spec, "", "  ")
}

func (o *OpenAPI) YAML() ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	intermediate, err := o.spec.MarshalYAML()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(intermediate)
}

func (o *OpenAPI) JSONHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := o.JSON()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to render api document").SetInternal(err)
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}

func (o *OpenAPI) YAMLHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := o.YAML()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to render api document").SetInternal(err)
		}
		return c.Blob(http.StatusOK, "application/yaml", data)
	}
}

// Register serves the document at JSONPath and YAMLPath and describes those
// two routes in it.
func (o *OpenAPI) Register(e *echo.Echo) {
	e.GET(JSONPath, o.JSONHandler())
	e.GET(YAMLPath, o.YAMLHandler())

	o.Document(http.MethodGet, JSONPath).
		Summary("API document as JSON").
		Tags("meta").
		Response(http.StatusOK, nil, "OpenAPI document").
		Build()
	o.Document(http.MethodGet, YAMLPath).
		Summary("API document as YAML").
		Tags("meta").
		Response(http.StatusOK, nil, "OpenAPI document").
		Build()
}

func (o *OpenAPI) Document(method, path string) *RouteBuilder {
	return &RouteBuilder{
		openapi:   o,
		method:    method,
		path:      path,
		operation: &openapi3.Operation{Responses: openapi3.NewResponses()},
	}
}

func (o *OpenAPI) addOperation(method, path string, op *openapi3.Operation) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pathItem := o.spec.Paths.Find(path)
	if pathItem == nil {
		pathItem = &openapi3.PathItem{}
		o.spec.Paths.Set(path, pathItem)
	}

	switch strings.ToUpper(method) {
	case http.MethodGet:
		pathItem.Get = op
	case http.MethodPost:
		pathItem.Post = op
	case http.MethodPut:
		pathItem.Put = op
	case http.MethodDelete:
		pathItem.Delete = op
	case http.MethodPatch:
		pathItem.Patch = op
	}
}

func (o *OpenAPI) generateSchema(example any) *openapi3.SchemaRef {
	o.mu.Lock()
	defer o.mu.Unlock()

	if example == nil {
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}

	return o.generateSchemaFromType(reflect.TypeOf(example), make(map[string]bool))
}

func getTypeKey(t reflect.Type) string {
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

func (o *OpenAPI) generateSchemaFromType(t reflect.Type, visited map[string]bool) *openapi3.SchemaRef {
	if t.Kind() == reflect.Pointer {
		inner := o.generateSchemaFromType(t.Elem(), visited)
		if inner.Ref != "" {
			return &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{inner}, Nullable: true}}
		}
		inner.Value.Nullable = true
		return inner
	}

	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		zero := 0.0
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Min: &zero}}
	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}}}
	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}
	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type:  &openapi3.Types{"array"},
			Items: o.generateSchemaFromType(t.Elem(), visited),
		}}
	case reflect.Map:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			AdditionalProperties: openapi3.AdditionalProperties{
				Schema: o.generateSchemaFromType(t.Elem(), visited),
			},
		}}
	case reflect.Struct:
		return o.generateStructSchema(t, visited)
	default:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}
}

func (o *OpenAPI) generateStructSchema(t reflect.Type, visited map[string]bool) *openapi3.SchemaRef {
	if t.PkgPath() == "time" && t.Name() == "Time" {
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}}
	}

	if t.Name() == "" || t.PkgPath() == "" {
		return &openapi3.SchemaRef{Value: o.buildStructSchema(t, visited)}
	}

	typeKey := getTypeKey(t)
	if name, ok := o.schemaRegistry[typeKey]; ok {
		ref := &openapi3.SchemaRef{Ref: "#/components/schemas/" + name}
		if registered, ok := o.spec.Components.Schemas[name]; ok {
			ref.Value = registered.Value
		}
		return ref
	}

	name := t.Name()
	if existing, taken := o.schemaNameRegistry[name]; taken && existing != typeKey {
		for suffix := 2; ; suffix++ {
			candidate := t.Name() + strconv.Itoa(suffix)
			if _, taken := o.schemaNameRegistry[candidate]; !taken {
				name = candidate
				break
			}
		}
	}

	o.schemaRegistry[typeKey] = name
	o.schemaNameRegistry[name] = typeKey

	schema := o.buildStructSchema(t, visited)
	if o.spec.Components.Schemas == nil {
		o.spec.Components.Schemas = make(openapi3.Schemas)
	}
	o.spec.Components.Schemas[name] = &openapi3.SchemaRef{Value: schema}

	// Value is kept alongside Ref so the in-memory document validates;
	// only the $ref is serialized.
	return &openapi3.SchemaRef{Ref: "#/components/schemas/" + name, Value: schema}
}

func (o *OpenAPI) buildStructSchema(t reflect.Type, visited map[string]bool) *openapi3.Schema {
	typeKey := getTypeKey(t)
	if visited[typeKey] {
		return &openapi3.Schema{Type: &openapi3.Types{"object"}}
	}
	visited[typeKey] = true
	defer delete(visited, typeKey)

	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}

	var required []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		tagParts := strings.Split(jsonTag, ",")
		name := field.Name
		if tagParts[0] != "" {
			name = tagParts[0]
		}

		optional := false
		for _, part := range tagParts[1:] {
			if part == "omitempty" {
				optional = true
			}
		}

		ref := o.generateSchemaFromType(field.Type, visited)
		if ref.Value != nil && ref.Ref == "" {
			if doc := field.Tag.Get("doc"); doc != "" {
				ref.Value.Description = doc
			}
			if ex := field.Tag.Get("example"); ex != "" {
				ref.Value.Example = ex
			}
			if applyValidateTag(ref.Value, field.Tag.Get("validate")) {
				optional = false
			}
		}

		schema.Properties[name] = ref
		if !optional {
			required = append(required, name)
		}
	}

	if len(required) > 0 {
		schema.Required = required
	}
	return schema
}

// applyValidateTag carries the validator rules that have an OpenAPI
// equivalent onto schema. It reports whether the field is required.
func applyValidateTag(schema *openapi3.Schema, tag string) bool {
	required := false
	for _, rule := range strings.Split(tag, ",") {
		key, value, _ := strings.Cut(rule, "=")
		switch key {
		case "required":
			required = true
		case "email":
			schema.Format = "email"
		case "numeric":
			schema.Pattern = "^[0-9]+$"
		case "max":
			if n, err := strconv.ParseUint(value, 10, 64); err == nil {
				schema.MaxLength = &n
			}
		case "min":
			if n, err := strconv.ParseUint(value, 10, 64); err == nil {
				schema.MinLength = n
			}
		}
	}
	return required
}
