package langregistry_test

import (
	"os"
	"path/filepath"
	"testing"

	"judgeworker/internal/judge/langregistry"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uuidMustParse(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

const cppDescriptor = `
uuid = "11111111-1111-1111-1111-111111111111"
name = "C++17"
version = "g++ 13.2"
exec_cmd = "{file}"
compile_exec = "g++"
compile_args = "-O2 -std=c++17 -o {outfile} {infile}"
entry_source = "main.cpp"
add_mem_limit = 65536
add_time_limit = 1000
`

const duplicateDescriptor = `
uuid = "11111111-1111-1111-1111-111111111111"
name = "C++20 (overrides C++17)"
version = "g++ 14"
exec_cmd = "{file}"
compile_exec = "g++"
compile_args = "-O2 -std=c++20 -o {outfile} {infile}"
entry_source = "main.cpp"
add_mem_limit = 65536
add_time_limit = 1000
`

func writeDescriptor(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_DuplicateUUIDLastWins(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "a_cpp17.toml", cppDescriptor)
	writeDescriptor(t, dir, "b_cpp20.toml", duplicateDescriptor)

	reg, err := langregistry.Load(dir)
	require.NoError(t, err)
	require.Equal(t, 1, reg.Len())

	lang, ok := reg.Get(uuidMustParse(t, "11111111-1111-1111-1111-111111111111"))
	require.True(t, ok)
	assert.Equal(t, "C++20 (overrides C++17)", lang.Name)
}

func TestLoad_MissingDescriptor(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "cpp.toml", cppDescriptor)

	reg, err := langregistry.Load(dir)
	require.NoError(t, err)

	_, ok := reg.Get(uuidMustParse(t, "22222222-2222-2222-2222-222222222222"))
	assert.False(t, ok)
}

func TestLanguage_CommandRendering(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "cpp.toml", cppDescriptor)
	reg, err := langregistry.Load(dir)
	require.NoError(t, err)

	lang, ok := reg.Get(uuidMustParse(t, "11111111-1111-1111-1111-111111111111"))
	require.True(t, ok)

	assert.Equal(t, "/tmp/box/main", lang.ExecCommand("/tmp/box/main"))
	assert.Equal(t, "-O2 -std=c++17 -o /tmp/box/main /tmp/box/main.cpp", lang.CompileCommand("/tmp/box/main.cpp", "/tmp/box/main"))
}

func TestLoad_RejectsMalformedDescriptor(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "bad.toml", `
uuid = "11111111-1111-1111-1111-111111111111"
name = "broken"
exec_cmd = "missing the hole"
compile_exec = "g++"
compile_args = "-o {outfile} {infile}"
entry_source = "main.cpp"
`)

	_, err := langregistry.Load(dir)
	assert.Error(t, err)
}
