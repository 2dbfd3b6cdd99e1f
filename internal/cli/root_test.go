package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "remerge", cmd.Use)
	assert.Contains(t, cmd.Long, "record store")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"info", "list", "get", "create", "update", "delete"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)

	schemaFlag := cmd.PersistentFlags().Lookup("schema")
	require.NotNil(t, schemaFlag)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestCreateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	createCmd, _, err := cmd.Find([]string{"create"})
	require.NoError(t, err)

	fileFlag := createCmd.Flags().Lookup("file")
	require.NotNil(t, fileFlag)
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}

const bookmarksSchemaJSON = `{
	"name": "bookmarks",
	"version": "1.0.0",
	"fields": [
		{"name": "id", "type": "own_guid"},
		{"name": "url", "type": "url", "required": true},
		{"name": "title", "type": "text"}
	]
}`

const bookmarksSchemaYAML = `name: bookmarks
version: "1.0.0"
fields:
  - name: id
    type: own_guid
  - name: url
    type: url
    required: true
  - name: title
    type: text
`

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSchemaFile_JSON(t *testing.T) {
	path := writeTempFile(t, "bookmarks.json", bookmarksSchemaJSON)

	s, err := LoadSchemaFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bookmarks", s.Name)
	assert.Equal(t, "1.0.0", s.Version)
	require.NotNil(t, s.FieldByName("url"))
}

func TestLoadSchemaFile_YAML(t *testing.T) {
	path := writeTempFile(t, "bookmarks.yaml", bookmarksSchemaYAML)

	s, err := LoadSchemaFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bookmarks", s.Name)
	assert.Len(t, s.Fields, 3)
	assert.True(t, s.FieldByName("url").Required)
}

func TestLoadSchemaFile_Errors(t *testing.T) {
	_, err := LoadSchemaFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := writeTempFile(t, "broken.yaml", ":\t{not a document")
	_, err = LoadSchemaFile(path)
	assert.Error(t, err)

	// Valid YAML, invalid schema: no own_guid field.
	path = writeTempFile(t, "noguid.yaml", "name: x\nversion: \"1.0.0\"\nfields:\n  - name: a\n    type: text\n")
	_, err = LoadSchemaFile(path)
	assert.Error(t, err)
}
