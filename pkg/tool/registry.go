package tool

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Registry is an in-memory catalog of registered tools. Registration is
// a startup activity; reads are lock-free in practice (reader-many,
// writer-rare via RWMutex).
type Registry struct {
	tools   map[string]*Definition
	order   []string
	schemas map[string]*gojsonschema.Schema
	mu      sync.RWMutex
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool to the registry. Registering a name twice is an
// error; tools are never silently overwritten.
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	r.tools[def.Name] = &def
	r.order = append(r.order, def.Name)
	r.schemas[def.Name] = schema

	log.Info().
		Str("tool", def.Name).
		Str("category", string(def.Category)).
		Str("permission", def.RequiredPermission.String()).
		Bool("modifying", def.IsModifying).
		Msg("Tool registered")

	return nil
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	return def, ok
}

// List returns all registered tools in registration order.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// ListByCategory returns tools in a specific category.
func (r *Registry) ListByCategory(category Category) []*Definition {
	filtered := []*Definition{}
	for _, def := range r.List() {
		if def.Category == category {
			filtered = append(filtered, def)
		}
	}
	return filtered
}

// ListByMaxPermission returns tools whose required permission does not
// exceed the given level.
func (r *Registry) ListByMaxPermission(level PermissionLevel) []*Definition {
	filtered := []*Definition{}
	for _, def := range r.List() {
		if def.RequiredPermission <= level {
			filtered = append(filtered, def)
		}
	}
	return filtered
}

// AuthorizedTools returns every tool invocable at the given permission
// level. Per-user category and deny-list evaluation is the security
// manager's job; the registry is user-agnostic.
func (r *Registry) AuthorizedTools(level PermissionLevel) []*Definition {
	return r.ListByMaxPermission(level)
}

// Search performs a case-insensitive substring match over tool names
// and descriptions.
func (r *Registry) Search(text string) []*Definition {
	needle := strings.ToLower(text)
	matched := []*Definition{}
	for _, def := range r.List() {
		if strings.Contains(strings.ToLower(def.Name), needle) ||
			strings.Contains(strings.ToLower(def.Description), needle) {
			matched = append(matched, def)
		}
	}
	return matched
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ValidateParams validates a parameter map against the tool's compiled
// JSON schema.
func (r *Registry) ValidateParams(name string, params map[string]interface{}) error {
	r.mu.RLock()
	schema := r.schemas[name]
	r.mu.RUnlock()

	if schema == nil {
		return fmt.Errorf("tool not found: %s", name)
	}

	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		msgs := []string{}
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}
		return fmt.Errorf("validation errors: %v", msgs)
	}

	return nil
}

// GenerateSchema produces a JSON description of every registered tool
// for programmatic consumption.
func (r *Registry) GenerateSchema() ([]byte, error) {
	type toolSchema struct {
		Name               string                 `json:"name"`
		Description        string                 `json:"description"`
		Category           Category               `json:"category"`
		RequiredPermission string                 `json:"required_permission"`
		RequiresApproval   bool                   `json:"requires_approval"`
		IsModifying        bool                   `json:"is_modifying"`
		ParameterSchema    map[string]interface{} `json:"parameter_schema"`
	}

	out := []toolSchema{}
	for _, def := range r.List() {
		out = append(out, toolSchema{
			Name:               def.Name,
			Description:        def.Description,
			Category:           def.Category,
			RequiredPermission: def.RequiredPermission.String(),
			RequiresApproval:   def.RequiresApproval,
			IsModifying:        def.IsModifying,
			ParameterSchema:    schemaMap(*def),
		})
	}

	return json.MarshalIndent(out, "", "  ")
}

// PromptDescription renders the tool advertisement included in model
// prompts: one section per category, each tool annotated with its
// modification and approval flags, followed by its parameter schema and
// a worked invocation example.
func (r *Registry) PromptDescription(maxLevel PermissionLevel) string {
	authorized := r.AuthorizedTools(maxLevel)

	byCategory := map[Category][]*Definition{}
	for _, def := range authorized {
		byCategory[def.Category] = append(byCategory[def.Category], def)
	}

	var b strings.Builder
	b.WriteString("# Available Tools\n\n")
	b.WriteString("You may request tool executions using the format shown at the end.\n\n")

	for _, category := range AllCategories() {
		defs := byCategory[category]
		if len(defs) == 0 {
			continue
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

		b.WriteString(fmt.Sprintf("## %s\n", categoryHeading(category)))
		for _, def := range defs {
			flag := " [READ-ONLY]"
			if def.IsModifying {
				flag = " [MODIFIES SYSTEM]"
			}
			approval := ""
			if def.RequiresApproval {
				approval = " (requires user approval)"
			}
			b.WriteString(fmt.Sprintf("- **%s**%s%s: %s\n", def.Name, flag, approval, def.Description))

			raw, err := json.Marshal(schemaMap(*def))
			if err == nil {
				b.WriteString(fmt.Sprintf("  Parameters: %s\n", raw))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("To execute a tool, emit a block exactly like this:\n\n")
	b.WriteString("<tool_call>\n")
	b.WriteString(`{"tool_name": "read_file", "parameters": {"path": "notes.txt"}, "reasoning": "inspect the file contents", "expected_output": "the file text"}`)
	b.WriteString("\n</tool_call>\n")

	return b.String()
}

// categoryHeading renders a category name as a section heading.
// Category names are ASCII by construction.
func categoryHeading(c Category) string {
	s := string(c)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}
	if !IsValidCategory(string(def.Category)) {
		return fmt.Errorf("invalid category: %s", def.Category)
	}

	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}

		validTypes := map[string]bool{
			"string": true, "number": true, "boolean": true,
			"object": true, "array": true, "integer": true,
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
		if param.Format != "" {
			if param.Format != FormatURL {
				return fmt.Errorf("invalid parameter format %s for %s", param.Format, param.Name)
			}
			if param.Type != "string" {
				return fmt.Errorf("format %s requires string type for %s", param.Format, param.Name)
			}
		}
	}

	return nil
}

// schemaMap builds the JSON-Schema object for a tool's parameters.
func schemaMap(def Definition) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Format == FormatURL {
			paramSchema["format"] = "uri"
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

func compileSchema(def Definition) (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap(def)))
}
