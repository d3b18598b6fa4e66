package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func testCredential(user shared.Identity, t uint32) shared.SignIn {
	cred := shared.SignIn{User: user, Time: t}
	cred.RSV.R[0] = 0x01
	cred.RSV.S[31] = 0x02
	cred.RSV.V = 28
	return cred
}

func TestCredentialLoadMissing(t *testing.T) {
	repo := NewTOMLCredentialRepository(filepath.Join(t.TempDir(), "credentials.toml"))

	_, err := repo.Load(alice)
	require.ErrorIs(t, err, shared.ErrNotExist)
}

func TestCredentialSaveLoadDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.toml")
	repo := NewTOMLCredentialRepository(path)

	cred := testCredential(alice, 1700000000)
	require.NoError(t, repo.Save(alice, cred))

	got, err := repo.Load(alice)
	require.NoError(t, err)
	assert.Equal(t, cred, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, repo.Delete(alice))
	_, err = repo.Load(alice)
	require.ErrorIs(t, err, shared.ErrNotExist)

	require.NoError(t, repo.Delete(alice))
}

func TestCredentialOverwriteKeepsOnePerIdentity(t *testing.T) {
	repo := NewTOMLCredentialRepository(filepath.Join(t.TempDir(), "credentials.toml"))

	require.NoError(t, repo.Save(alice, testCredential(alice, 1)))
	require.NoError(t, repo.Save(alice, testCredential(alice, 2)))
	require.NoError(t, repo.Save(bob, testCredential(bob, 3)))

	got, err := repo.Load(alice)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), got.Time)

	got, err = repo.Load(bob)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got.Time)
}

func TestCredentialSaveRejectsForeignIdentity(t *testing.T) {
	repo := NewTOMLCredentialRepository(filepath.Join(t.TempDir(), "credentials.toml"))

	err := repo.Save(alice, testCredential(bob, 1))
	require.Error(t, err)
}

func TestCredentialSharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	writer := NewTOMLCredentialRepository(path)
	reader := NewTOMLCredentialRepository(path)

	require.NoError(t, writer.Save(alice, testCredential(alice, 10)))
	got, err := reader.Load(alice)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), got.Time)

	require.NoError(t, os.Remove(path))
	_, err = reader.Load(alice)
	require.ErrorIs(t, err, shared.ErrNotExist)
}

func TestNames(t *testing.T) {
	repo := NewTOMLNameRepository(filepath.Join(t.TempDir(), "names.toml"))

	_, err := repo.Get(alice)
	require.ErrorIs(t, err, shared.ErrNotExist)

	require.NoError(t, repo.Set(alice, "  Alice "))
	name, err := repo.Get(alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)

	require.NoError(t, repo.Set(alice, ""))
	_, err = repo.Get(alice)
	require.ErrorIs(t, err, shared.ErrNotExist)
}

func TestFailedSaveKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.toml")
	repo := NewTOMLCredentialRepository(path)
	require.NoError(t, repo.Save(alice, testCredential(alice, 7)))

	f := tomlFile{path: path, perm: permCredentials}
	require.Error(t, f.save(map[string]any{"broken": make(chan int)}))

	got, err := NewTOMLCredentialRepository(path).Load(alice)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), got.Time)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "credentials.toml", entries[0].Name())
}

func TestNamesFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.toml")
	repo := NewTOMLNameRepository(path)
	require.NoError(t, repo.Set(alice, "Alice"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}
