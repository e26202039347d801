package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tenants.txt")
	body := "acme.com 100 G 40.7128 -74.0060\nt120.example 10 C Pune\nt201.example 10 C Delhi\n"
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))

	out, err := run(t, "validate", p)
	require.NoError(t, err)
	assert.Contains(t, out, "3 tenants")
	assert.Contains(t, out, "acme.com")
	assert.Contains(t, out, "radial")
	assert.Contains(t, out, "slot 390 shared by t120.example, t201.example")

	require.NoError(t, os.WriteFile(p, []byte("broken\n"), 0o644))
	_, err = run(t, "validate", p)
	assert.Error(t, err)
}

func TestDistanceCommand(t *testing.T) {
	out, err := run(t, "distance", "0", "0", "0", "1", "--unit", "k")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "111.1"), out)
	assert.Contains(t, out, " K")

	out, err = run(t, "-v", "distance", "0", "0", "0", "1", "-u", "N")
	require.NoError(t, err)
	assert.Contains(t, out, "s2 haversine: 111.19")

	_, err = run(t, "distance", "0", "0", "0", "x")
	assert.Error(t, err)
	_, err = run(t, "distance", "0", "0", "0", "1", "--unit", "Q")
	assert.Error(t, err)
}

func TestCheckRequiresFlags(t *testing.T) {
	_, err := run(t, "check", "--realm", "acme.com")
	assert.Error(t, err)
}
