package downloads

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func TestNew_ExpandsHome(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)

	s, err := New(afero.NewMemMapFs(), "~/Downloads")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "Downloads"), s.Dir())
}

func TestSaveAs_NoPromptUniquifies(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/downloads")
	require.NoError(t, err)

	first, err := s.SaveAs(context.Background(), "Cart_Shop.zip", []byte("one"))
	require.NoError(t, err)
	second, err := s.SaveAs(context.Background(), "Cart_Shop.zip", []byte("two"))
	require.NoError(t, err)
	third, err := s.SaveAs(context.Background(), "Cart_Shop.zip", []byte("three"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/downloads", "Cart_Shop.zip"), first)
	assert.Equal(t, filepath.Join("/downloads", "Cart_Shop (1).zip"), second)
	assert.Equal(t, filepath.Join("/downloads", "Cart_Shop (2).zip"), third)
	assert.Equal(t, "two", readFile(t, fs, second))
}

func TestSaveAs_Prompt(t *testing.T) {
	t.Run("empty answer accepts the suggestion", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		var out bytes.Buffer
		s, err := New(fs, "/downloads", WithPrompt(strings.NewReader("\n"), &out))
		require.NoError(t, err)

		path, err := s.SaveAs(context.Background(), "report.zip", []byte("zip"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/downloads", "report.zip"), path)
		assert.Contains(t, out.String(), "Save report as [/downloads/report.zip]: ")
	})

	t.Run("answer names a file", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		s, err := New(fs, "/downloads", WithPrompt(strings.NewReader("/tmp/issues/bug.zip\n"), &bytes.Buffer{}))
		require.NoError(t, err)

		path, err := s.SaveAs(context.Background(), "report.zip", []byte("zip"))
		require.NoError(t, err)
		assert.Equal(t, "/tmp/issues/bug.zip", path)
		assert.Equal(t, "zip", readFile(t, fs, path))
	})

	t.Run("answer names a directory", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("/srv/reports", 0o755))
		s, err := New(fs, "/downloads", WithPrompt(strings.NewReader("/srv/reports"), &bytes.Buffer{}))
		require.NoError(t, err)

		path, err := s.SaveAs(context.Background(), "report.zip", []byte("zip"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/srv/reports", "report.zip"), path)
	})
}

func TestSave_ReadOnlyFs(t *testing.T) {
	s, err := New(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/downloads")
	require.NoError(t, err)
	_, err = s.Save("/downloads/report.zip", []byte("zip"))
	assert.Error(t, err)
}
