// File: internal/store/profiles_test.go
package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

func writeProfile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0o600))
}

func TestFileProfileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "ada", `
name: ada
first_name: Ada
last_name: Lovelace
email: ada@example.com
phone: "+44 20 7946 0958"
custom:
  vat_number: GB123456789
`)

	s, err := NewFileProfileStore(dir, zap.NewNop())
	require.NoError(t, err)

	p, err := s.GetProfileByName(context.Background(), "ada")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.Equal(t, "GB123456789", p.Custom["vat_number"])
	assert.Equal(t, "Ada Lovelace", p.FullName())
}

func TestProfileNameDefaultsToFilename(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "work", `
first_name: Grace
last_name: Hopper
email: grace@example.com
`)

	s, err := NewFileProfileStore(dir, zap.NewNop())
	require.NoError(t, err)

	p, err := s.GetProfileByName(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, "work", p.Name)
}

func TestMissingProfile(t *testing.T) {
	s, err := NewFileProfileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = s.GetProfileByName(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestProfileNameTraversalIsRejected(t *testing.T) {
	s, err := NewFileProfileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = s.GetProfileByName(context.Background(), "../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid profile name")
}

func TestEmptyProfileIsRejected(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "hollow", `
company: Shell Corp
`)

	s, err := NewFileProfileStore(dir, zap.NewNop())
	require.NoError(t, err)

	_, err = s.GetProfileByName(context.Background(), "hollow")
	require.Error(t, err)
}

func TestSaveAndListProfiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileProfileStore(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.SaveProfile(schemas.Profile{
		Name: "beta", FirstName: "B", Email: "b@example.com",
	}))
	require.NoError(t, s.SaveProfile(schemas.Profile{
		Name: "alpha", FirstName: "A", Email: "a@example.com",
	}))

	names, err := s.ListProfiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)

	p, err := s.GetProfileByName(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", p.Email)
}
