package generator

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/moamenhredeen/oasplugin/internal/models"
)

// Generator generates sample values from inlined OpenAPI schemas. It is
// used to fill arguments that a caller did not supply.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	// Optional controls whether optional object properties are generated
	Optional bool
}

// NewGenerator creates a new generator instance
func NewGenerator() *Generator {
	return NewGeneratorWithSeed(time.Now().UnixNano())
}

// NewGeneratorWithSeed creates a generator with a fixed seed, for
// reproducible samples
func NewGeneratorWithSeed(seed int64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GenerateValue generates a sample value based on a schema
func (g *Generator) GenerateValue(schema *models.Schema) (any, error) {
	if schema == nil {
		return nil, fmt.Errorf("schema is nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generate(schema), nil
}

func (g *Generator) generate(schema *models.Schema) any {
	// Check for example value first
	if schema.Example != nil {
		return schema.Example
	}

	// Check for default value
	if schema.Default != nil {
		return schema.Default
	}

	if len(schema.Enum) > 0 {
		return schema.Enum[0]
	}

	if schema.Circular {
		return map[string]any{}
	}

	if len(schema.AllOf) > 0 {
		return g.generateAllOf(schema)
	}
	if len(schema.OneOf) > 0 {
		return g.generate(schema.OneOf[0])
	}
	if len(schema.AnyOf) > 0 {
		return g.generate(schema.AnyOf[0])
	}

	// Handle different schema types
	if len(schema.Type) > 0 {
		switch schema.Type[0] {
		case "string":
			return g.generateString(schema)
		case "integer", "number":
			return g.generateNumber(schema)
		case "boolean":
			return true
		case "array":
			return g.generateArray(schema)
		case "object":
			return g.generateObject(schema)
		}
	}

	if len(schema.Properties) > 0 {
		return g.generateObject(schema)
	}

	// If no type specified, try to infer from format
	if schema.Format != "" {
		return g.generateFromFormat(schema.Format)
	}

	// Default to empty string
	return ""
}

// generateString generates a string value based on schema constraints
func (g *Generator) generateString(schema *models.Schema) string {
	// Check format
	if schema.Format != "" {
		if str, ok := g.generateFromFormat(schema.Format).(string); ok {
			return str
		}
	}

	// Patterns are not expanded; a fixed token is returned
	if schema.Pattern != "" {
		return "test-string"
	}

	// Check min/max length
	minLength := 0
	maxLength := 10
	if schema.MinLength != nil {
		minLength = int(*schema.MinLength)
	}
	if schema.MaxLength != nil {
		maxLength = int(*schema.MaxLength)
	}

	length := minLength
	if maxLength > minLength {
		length = minLength + g.rng.Intn(maxLength-minLength+1)
	}
	if length == 0 {
		length = 5
	}

	return strings.Repeat("a", length)
}

// generateNumber generates a number value based on schema constraints
func (g *Generator) generateNumber(schema *models.Schema) any {
	isInt := schema.HasType("integer")
	lo, hi := 0.0, 100.0

	if schema.Minimum != nil {
		lo = *schema.Minimum
		if schema.ExclusiveMinimum {
			lo++
		}
	}
	if schema.Maximum != nil {
		hi = *schema.Maximum
		if schema.ExclusiveMaximum {
			hi--
		}
	}
	if hi < lo {
		hi = lo
	}

	value := lo + g.rng.Float64()*(hi-lo)

	if isInt {
		return int(value)
	}
	return value
}

// generateArray generates an array value
func (g *Generator) generateArray(schema *models.Schema) []any {
	minItems := 0
	maxItems := 3
	if schema.MinItems != nil {
		minItems = int(*schema.MinItems)
	}
	if schema.MaxItems != nil {
		maxItems = int(*schema.MaxItems)
	}

	count := minItems
	if maxItems > minItems {
		count = minItems + g.rng.Intn(maxItems-minItems+1)
	}
	if count == 0 {
		count = 1
	}

	result := make([]any, count)
	for i := range result {
		if schema.Items != nil {
			result[i] = g.generate(schema.Items)
		} else {
			// Default to string array
			result[i] = "item"
		}
	}
	return result
}

// generateObject generates an object value
func (g *Generator) generateObject(schema *models.Schema) map[string]any {
	result := make(map[string]any)

	for _, prop := range schema.Properties {
		// Generate required properties, and optional ones when asked to
		if !schema.IsRequired(prop.Name) && !g.Optional {
			continue
		}
		if prop.Schema != nil {
			result[prop.Name] = g.generate(prop.Schema)
		}
	}

	return result
}

// generateAllOf merges the objects generated for every allOf member
func (g *Generator) generateAllOf(schema *models.Schema) any {
	merged := make(map[string]any)
	for _, sub := range schema.AllOf {
		obj, ok := g.generate(sub).(map[string]any)
		if !ok {
			return g.generate(sub)
		}
		for k, v := range obj {
			merged[k] = v
		}
	}
	if len(schema.Properties) > 0 {
		for k, v := range g.generateObject(schema) {
			merged[k] = v
		}
	}
	return merged
}

// generateFromFormat generates a value based on format
func (g *Generator) generateFromFormat(format string) any {
	switch format {
	case "date":
		return time.Now().Format("2006-01-02")
	case "date-time":
		return time.Now().Format(time.RFC3339)
	case "email":
		return "test@example.com"
	case "uri":
		return "https://example.com"
	case "uuid":
		return "123e4567-e89b-12d3-a456-426614174000"
	case "int32":
		return g.rng.Int31()
	case "int64":
		return g.rng.Int63()
	case "float":
		return g.rng.Float32()
	case "double":
		return g.rng.Float64()
	default:
		return "test-value"
	}
}

// GenerateParameter generates a value for an operation parameter
func (g *Generator) GenerateParameter(param *models.Parameter) (any, error) {
	if param == nil {
		return nil, fmt.Errorf("parameter is nil")
	}
	if param.Schema == nil {
		// Default to string
		return "test", nil
	}
	return g.GenerateValue(param.Schema)
}

// GenerateRequestBody generates a body for the first JSON content type, or
// the first declared one, and returns it with its content type
func (g *Generator) GenerateRequestBody(requestBody *models.RequestBody) (any, string, error) {
	if requestBody == nil {
		return nil, "", fmt.Errorf("request body is nil")
	}
	if len(requestBody.ContentTypes) == 0 {
		return nil, "", fmt.Errorf("no content defined in request body")
	}

	contentType := requestBody.ContentTypes[0]
	// Prefer application/json
	for _, ct := range requestBody.ContentTypes {
		if strings.Contains(ct, "json") {
			contentType = ct
			break
		}
	}

	schema := requestBody.Content[contentType]
	if schema == nil {
		return nil, "", fmt.Errorf("no schema found for %s", contentType)
	}

	val, err := g.GenerateValue(schema)
	if err != nil {
		return nil, "", err
	}
	return val, contentType, nil
}
