package compiler

import (
	"archive/tar"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	judgeerrors "judgeworker/pkg/errors"

	"github.com/andybalholm/brotli"
)

// unpackGraderArchive decompresses a Brotli-compressed tar stream into
// dstDir, the grader project's working tree. Entries are path-cleaned and
// confined to dstDir; any entry that would escape it fails the unpack.
func unpackGraderArchive(archive []byte, dstDir string) error {
	br := brotli.NewReader(strings.NewReader(string(archive)))
	tr := tar.NewReader(br)

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return judgeerrors.Wrapf(err, judgeerrors.GraderBuildFailed, "read grader archive entry")
		}
		if hdr.Name == "" {
			continue
		}
		cleanName := filepath.Clean(hdr.Name)
		if strings.HasPrefix(cleanName, "..") || filepath.IsAbs(cleanName) {
			return judgeerrors.New(judgeerrors.GraderBuildFailed).WithDetail("reason", "invalid tar entry path")
		}
		target := filepath.Join(dstDir, cleanName)
		if !strings.HasPrefix(target, filepath.Clean(dstDir)+string(filepath.Separator)) {
			return judgeerrors.New(judgeerrors.GraderBuildFailed).WithDetail("reason", "tar entry escape detected")
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return judgeerrors.Wrapf(err, judgeerrors.GraderBuildFailed, "create grader dir")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return judgeerrors.Wrapf(err, judgeerrors.GraderBuildFailed, "create grader parent dir")
			}
			if err := writeTarFile(target, tr, fs.FileMode(hdr.Mode)); err != nil {
				return err
			}
		default:
			// symlinks and other special entries have no place in a grader tree
		}
	}
}

func writeTarFile(target string, r io.Reader, mode fs.FileMode) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return judgeerrors.Wrapf(err, judgeerrors.GraderBuildFailed, "create grader file")
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return judgeerrors.Wrapf(err, judgeerrors.GraderBuildFailed, "write grader file")
	}
	return nil
}
