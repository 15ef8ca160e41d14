package tool

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(_ context.Context, _ *ExecutionContext) (interface{}, error) {
	return "ok", nil
}

func testDefinition(name string, category Category, level PermissionLevel) Definition {
	return Definition{
		Name:               name,
		Description:        "test tool " + name,
		Category:           category,
		RequiredPermission: level,
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "a path", Required: true},
			{Name: "count", Type: "number", Description: "a count"},
		},
		Handler: noopHandler,
	}
}

// TestRegistry_RegisterAndGet tests basic registration and lookup
func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	err := r.Register(testDefinition("read_file", CategoryFileSystem, LevelUser))
	require.NoError(t, err)

	def, ok := r.Get("read_file")
	require.True(t, ok)
	assert.Equal(t, "read_file", def.Name)
	assert.Equal(t, CategoryFileSystem, def.Category)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

// TestRegistry_DuplicateName tests that re-registering a name fails
func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(testDefinition("dup", CategoryInformation, LevelRead)))
	err := r.Register(testDefinition("dup", CategoryInformation, LevelRead))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.Equal(t, 1, r.Count())
}

// TestRegistry_InvalidDefinition tests definition validation
func TestRegistry_InvalidDefinition(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"empty name", func(d *Definition) { d.Name = "" }},
		{"empty description", func(d *Definition) { d.Description = "" }},
		{"nil handler", func(d *Definition) { d.Handler = nil }},
		{"bad category", func(d *Definition) { d.Category = "bogus" }},
		{"bad parameter type", func(d *Definition) { d.Parameters[0].Type = "blob" }},
		{"bad parameter format", func(d *Definition) { d.Parameters[0].Format = "email" }},
		{"url format on non-string", func(d *Definition) {
			d.Parameters[0].Type = "number"
			d.Parameters[0].Format = FormatURL
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := testDefinition("candidate", CategoryInformation, LevelRead)
			tt.mutate(&def)
			assert.Error(t, r.Register(def))
		})
	}
}

// TestRegistry_ListOrder tests that List preserves registration order
func TestRegistry_ListOrder(t *testing.T) {
	r := NewRegistry()

	names := []string{"zeta", "alpha", "mid"}
	for _, name := range names {
		require.NoError(t, r.Register(testDefinition(name, CategoryInformation, LevelRead)))
	}

	listed := r.List()
	require.Len(t, listed, 3)
	for i, name := range names {
		assert.Equal(t, name, listed[i].Name)
	}
}

// TestRegistry_AuthorizedTools tests permission-level filtering
func TestRegistry_AuthorizedTools(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(testDefinition("info", CategoryInformation, LevelRead)))
	require.NoError(t, r.Register(testDefinition("files", CategoryFileSystem, LevelUser)))
	require.NoError(t, r.Register(testDefinition("config", CategoryConfiguration, LevelElevated)))
	require.NoError(t, r.Register(testDefinition("admin", CategoryAdministrative, LevelAdministrator)))

	assert.Len(t, r.AuthorizedTools(LevelRead), 1)
	assert.Len(t, r.AuthorizedTools(LevelUser), 2)
	assert.Len(t, r.AuthorizedTools(LevelElevated), 3)
	assert.Len(t, r.AuthorizedTools(LevelAdministrator), 4)
}

// TestRegistry_Search tests case-insensitive substring search
func TestRegistry_Search(t *testing.T) {
	r := NewRegistry()

	def := testDefinition("read_file", CategoryFileSystem, LevelUser)
	def.Description = "Read a file from the workspace"
	require.NoError(t, r.Register(def))
	require.NoError(t, r.Register(testDefinition("http_get", CategoryNetwork, LevelUser)))

	assert.Len(t, r.Search("READ"), 1)
	assert.Len(t, r.Search("workspace"), 1)
	assert.Len(t, r.Search("http"), 1)
	assert.Empty(t, r.Search("registry"))
}

// TestRegistry_ValidateParams tests schema validation of parameter maps
func TestRegistry_ValidateParams(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testDefinition("read_file", CategoryFileSystem, LevelUser)))

	// Valid
	err := r.ValidateParams("read_file", map[string]interface{}{"path": "a.txt", "count": 3})
	assert.NoError(t, err)

	// Missing required parameter
	err = r.ValidateParams("read_file", map[string]interface{}{"count": 3})
	assert.Error(t, err)

	// Wrong type
	err = r.ValidateParams("read_file", map[string]interface{}{"path": 42})
	assert.Error(t, err)

	// Unknown parameter rejected
	err = r.ValidateParams("read_file", map[string]interface{}{"path": "a.txt", "extra": true})
	assert.Error(t, err)

	// Unknown tool
	err = r.ValidateParams("missing", map[string]interface{}{})
	assert.Error(t, err)
}

// TestRegistry_URLFormatSchema tests URL-formatted parameter handling
func TestRegistry_URLFormatSchema(t *testing.T) {
	r := NewRegistry()

	def := testDefinition("http_get", CategoryNetwork, LevelUser)
	def.Parameters = []Parameter{
		{Name: "url", Type: "string", Format: FormatURL, Description: "target URL", Required: true},
	}
	require.NoError(t, r.Register(def))

	// The URL format is enforced at schema validation time
	require.NoError(t, r.ValidateParams("http_get", map[string]interface{}{"url": "https://example.com/status"}))
	assert.Error(t, r.ValidateParams("http_get", map[string]interface{}{"url": "not a url"}))

	// URLParameters reflects the declaration
	registered, ok := r.Get("http_get")
	require.True(t, ok)
	assert.True(t, registered.URLParameters()["url"])
}

// TestRegistry_PromptDescription tests the rendered tool advertisement
func TestRegistry_PromptDescription(t *testing.T) {
	r := NewRegistry()

	modifying := testDefinition("write_file", CategoryFileSystem, LevelUser)
	modifying.IsModifying = true
	modifying.RequiresApproval = true
	require.NoError(t, r.Register(modifying))
	require.NoError(t, r.Register(testDefinition("admin_only", CategoryAdministrative, LevelAdministrator)))

	prompt := r.PromptDescription(LevelUser)

	assert.Contains(t, prompt, "write_file")
	assert.Contains(t, prompt, "[MODIFIES SYSTEM]")
	assert.Contains(t, prompt, "requires user approval")
	assert.Contains(t, prompt, "<tool_call>")
	// Tools above the level are not advertised
	assert.NotContains(t, prompt, "admin_only")
}

// TestDefinition_Preview tests the fallback preview rendering
func TestDefinition_Preview(t *testing.T) {
	def := testDefinition("read_file", CategoryFileSystem, LevelUser)

	preview := def.Preview(map[string]interface{}{"path": "a.txt", "count": 2})
	assert.True(t, strings.HasPrefix(preview, "read_file("))
	assert.Contains(t, preview, "count=2")
	assert.Contains(t, preview, "path=a.txt")

	def.Previewer = func(params map[string]interface{}) string { return "custom" }
	assert.Equal(t, "custom", def.Preview(nil))
}

// TestParseLevel tests permission level parsing round-trips
func TestParseLevel(t *testing.T) {
	for _, level := range []PermissionLevel{LevelRead, LevelUser, LevelElevated, LevelAdministrator} {
		parsed, err := ParseLevel(level.String())
		require.NoError(t, err)
		assert.Equal(t, level, parsed)
	}

	parsed, err := ParseLevel("Admin")
	require.NoError(t, err)
	assert.Equal(t, LevelAdministrator, parsed)

	_, err = ParseLevel("superuser")
	assert.Error(t, err)
}
