package migrations

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"
)

// The embedded files must parse as a valid migration source, starting at
// version 1; a bad filename would otherwise only surface at startup.
func TestEmbeddedMigrationsParse(t *testing.T) {
	src, err := iofs.New(files, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	require.EqualValues(t, 1, first)

	r, name, err := src.ReadUp(first)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, "init", name)
}
