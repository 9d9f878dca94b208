// File: internal/store/templates_file_test.go
package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

func sampleTemplate(url string) schemas.FormTemplate {
	return schemas.FormTemplate{
		URL:      url,
		FormType: schemas.FormRegistration,
		Fields: []schemas.TemplateField{
			{Name: "email", Type: schemas.FieldEmail, Selector: "#email", Required: true},
			{Name: "first_name", Type: schemas.FieldText, Selector: "#first_name"},
		},
		SubmitSelector: "#submit",
		LearnedAt:      time.Now().UTC(),
	}
}

func TestFileTemplateStoreRoundTrip(t *testing.T) {
	s, err := NewFileTemplateStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	url := "https://example.com/signup"
	require.NoError(t, s.SaveTemplate(ctx, sampleTemplate(url)))

	got, err := s.GetTemplate(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, schemas.FormRegistration, got.FormType)
	require.Len(t, got.Fields, 2)
	assert.Equal(t, "#email", got.Fields[0].Selector)
}

func TestMissingTemplateReturnsSentinel(t *testing.T) {
	s, err := NewFileTemplateStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = s.GetTemplate(context.Background(), "https://example.com/unknown")
	assert.ErrorIs(t, err, schemas.ErrTemplateNotFound)
}

func TestSaveBumpsVersion(t *testing.T) {
	s, err := NewFileTemplateStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	url := "https://example.com/signup"
	require.NoError(t, s.SaveTemplate(ctx, sampleTemplate(url)))
	require.NoError(t, s.SaveTemplate(ctx, sampleTemplate(url)))

	got, err := s.GetTemplate(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
}

func TestURLNormalizationSharesTemplates(t *testing.T) {
	s, err := NewFileTemplateStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SaveTemplate(ctx, sampleTemplate("https://example.com/signup/")))

	got, err := s.GetTemplate(ctx, "https://example.com/signup#section")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
}

func TestTemplateWithoutURLIsRejected(t *testing.T) {
	s, err := NewFileTemplateStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	tpl := sampleTemplate("")
	require.Error(t, s.SaveTemplate(context.Background(), tpl))
}
