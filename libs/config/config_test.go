package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortRejectsOutOfRange(t *testing.T) {
	t.Setenv("CLINIC_PORT", "70000")
	_, err := Port("CLINIC_PORT", "8080")
	require.Error(t, err)

	t.Setenv("CLINIC_PORT", "")
	p, err := Port("CLINIC_PORT", "8080")
	require.NoError(t, err)
	assert.Equal(t, "8080", p)
}

func TestTypedHelpers(t *testing.T) {
	t.Setenv("RETRIES", "4")
	t.Setenv("EVERY", "250ms")
	t.Setenv("ENABLED", "Yes")
	t.Setenv("ORIGINS", " a.example , ,b.example")

	n, err := Int("RETRIES", 1)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	d, err := Duration("EVERY", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	assert.True(t, Bool("ENABLED", false))
	assert.True(t, Bool("UNSET_FLAG", true))
	assert.Equal(t, []string{"a.example", "b.example"}, List("ORIGINS", nil))

	t.Setenv("RETRIES", "many")
	_, err = Int("RETRIES", 1)
	assert.Error(t, err)
}

func TestLoadKeepsExistingEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CLINIC_NAME=From File\nCLINIC_TZ=Asia/Dhaka\n"), 0o600))

	t.Setenv("CLINIC_NAME", "From Env")
	t.Setenv("CLINIC_TZ", "")
	require.NoError(t, os.Unsetenv("CLINIC_TZ"))

	require.NoError(t, Load(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "From Env", os.Getenv("CLINIC_NAME"))
	assert.Equal(t, "Asia/Dhaka", os.Getenv("CLINIC_TZ"))
	_ = os.Unsetenv("CLINIC_TZ")
}
