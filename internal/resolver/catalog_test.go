package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog_EmbeddedDefault(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)

	require.NotEmpty(t, catalog.Fields)
	assert.Equal(t, "name", catalog.Fields[0].Name)
	assert.Equal(t, "email", catalog.Fields[1].Name)
	assert.Equal(t, "phone", catalog.Fields[2].Name)
	assert.Equal(t, "business_type", catalog.Fields[3].Name)
	assert.Equal(t, "gst_number", catalog.Fields[4].Name)
}

func TestLoadCatalog_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requirements.yaml")
	yaml := `
fields:
  - name: " Name "
    mandatory: true
  - name: warehouse_location
    mandatory: true
    categories: [logistics]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)

	require.Len(t, catalog.Fields, 2)
	// Names are normalized, labels default from the name.
	assert.Equal(t, "name", catalog.Fields[0].Name)
	assert.Equal(t, "warehouse location", catalog.Fields[1].Label)
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog("/nonexistent/requirements.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read catalog")
}

func TestLoadCatalog_EmptyCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fields: []"), 0644))

	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fields")
}

func TestAppliesTo(t *testing.T) {
	f := CatalogField{Name: "fssai_license", Categories: []string{"food", "restaurant"}}

	assert.True(t, f.AppliesTo("Food Processing"))
	assert.True(t, f.AppliesTo("small restaurant chain"))
	assert.False(t, f.AppliesTo("Textile Trading"))

	unrestricted := CatalogField{Name: "email"}
	assert.True(t, unrestricted.AppliesTo("anything"))
	assert.True(t, unrestricted.AppliesTo(""))
}
