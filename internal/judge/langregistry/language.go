// Package langregistry loads language descriptors from declarative TOML
// files and renders their command templates.
package langregistry

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	judgeerrors "judgeworker/pkg/errors"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Language is an immutable descriptor for one supported programming
// language, loaded once at startup.
type Language struct {
	UUID         uuid.UUID `toml:"uuid"`
	Name         string    `toml:"name"`
	Version      string    `toml:"version"`
	ExecCmd      string    `toml:"exec_cmd"`
	CompileExec  string    `toml:"compile_exec"`
	CompileArgs  string    `toml:"compile_args"`
	EntrySource  string    `toml:"entry_source"`
	AddMemLimit  uint64    `toml:"add_mem_limit"`
	AddTimeLimit uint64    `toml:"add_time_limit"`
}

// ExecCommand renders the command line used to invoke a compiled artifact.
func (l Language) ExecCommand(binaryPath string) string {
	return strings.NewReplacer("{file}", binaryPath).Replace(l.ExecCmd)
}

// CompileCommand renders the argument string passed to CompileExec.
func (l Language) CompileCommand(infile, outfile string) string {
	return strings.NewReplacer("{infile}", infile, "{outfile}", outfile).Replace(l.CompileArgs)
}

// MakeArgs renders the parallel-build argument template for grader builds,
// filling in the host CPU count.
func MakeArgs(template string) string {
	return strings.NewReplacer("{threads}", strconv.Itoa(runtime.NumCPU())).Replace(template)
}

// validate rejects descriptors whose templates could never be satisfied.
func (l Language) validate() error {
	if l.UUID == uuid.Nil {
		return judgeerrors.New(judgeerrors.LanguageDescriptorBad).WithDetail("field", "uuid")
	}
	if l.ExecCmd == "" || !strings.Contains(l.ExecCmd, "{file}") {
		return judgeerrors.New(judgeerrors.LanguageDescriptorBad).WithDetail("field", "exec_cmd")
	}
	if l.CompileExec == "" {
		return judgeerrors.New(judgeerrors.LanguageDescriptorBad).WithDetail("field", "compile_exec")
	}
	if l.EntrySource == "" {
		return judgeerrors.New(judgeerrors.LanguageDescriptorBad).WithDetail("field", "entry_source")
	}
	return nil
}

// Registry is a read-only, in-memory index of Language descriptors keyed by
// their stable identifier.
type Registry struct {
	langs map[uuid.UUID]Language
}

// Load enumerates regular files under dir, parses each as a TOML language
// descriptor, and indexes them by uuid. Directory entries are visited in the
// lexical order os.ReadDir already guarantees, so a duplicate uuid across
// files resolves deterministically to the descriptor from the
// lexicographically-last file.
func Load(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, judgeerrors.Wrapf(err, judgeerrors.LanguageDescriptorBad, "read languages dir %s", dir)
	}

	langs := make(map[uuid.UUID]Language)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		var lang Language
		if _, err := toml.DecodeFile(path, &lang); err != nil {
			return nil, judgeerrors.Wrapf(err, judgeerrors.LanguageDescriptorBad, "decode %s", path)
		}
		if err := lang.validate(); err != nil {
			return nil, err
		}
		langs[lang.UUID] = lang
	}

	return &Registry{langs: langs}, nil
}

// Get looks up a language by identifier. ok is false when no descriptor
// with this identifier was loaded.
func (r *Registry) Get(id uuid.UUID) (Language, bool) {
	lang, ok := r.langs[id]
	return lang, ok
}

// Len reports the number of loaded descriptors.
func (r *Registry) Len() int {
	return len(r.langs)
}
