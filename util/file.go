// Package util contains file and retry helpers shared by backends.
package util

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gruntwork-io/clusterflow/internal/errors"
	homedir "github.com/mitchellh/go-homedir"
)

// ExpandHome expands a leading `~` to the current user's home directory.
func ExpandHome(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", errors.WithStackTraceAndPrefix(err, "expanding %s", path)
	}

	return expanded, nil
}

// FileExists returns true if the given file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir returns true if the path points to a directory.
func IsDir(path string) bool {
	fileInfo, err := os.Stat(path)
	return err == nil && fileInfo.IsDir()
}

// EnsureDirectory creates path and its parents if they do not exist.
func EnsureDirectory(path string) error {
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return errors.New(err)
	}

	return nil
}

// CopyFolderContents copies the files and folders within the source folder into the destination folder. Hidden
// files and folders (those starting with a dot) are skipped.
func CopyFolderContents(source, destination string) error {
	return CopyFolderContentsWithFilter(source, destination, func(path string) bool {
		return !IsHidden(path)
	})
}

// CopyFolderContentsWithFilter copies the files and folders within the source folder into the destination
// folder, passing each path relative to source through filter and copying only those it accepts.
func CopyFolderContentsWithFilter(source, destination string, filter func(relativePath string) bool) error {
	if err := os.MkdirAll(destination, 0o700); err != nil {
		return errors.New(err)
	}

	// filepath.Glob rather than filepath.Walk, because Walk ignores symlinks.
	files, err := filepath.Glob(filepath.Join(source, "*"))
	if err != nil {
		return errors.New(err)
	}

	for _, file := range files {
		relativePath, err := filepath.Rel(source, file)
		if err != nil {
			return errors.New(err)
		}

		if !filter(relativePath) {
			continue
		}

		dest := filepath.Join(destination, relativePath)

		if IsDir(file) {
			info, err := os.Lstat(file)
			if err != nil {
				return errors.New(err)
			}

			if err := os.MkdirAll(dest, info.Mode()); err != nil {
				return errors.New(err)
			}

			if err := CopyFolderContentsWithFilter(file, dest, filter); err != nil {
				return err
			}

			continue
		}

		if err := CopyFile(file, dest); err != nil {
			return err
		}
	}

	return nil
}

// CopyFile copies a file from source to destination, keeping its permissions.
func CopyFile(source, destination string) error {
	contents, err := os.ReadFile(source)
	if err != nil {
		return errors.New(err)
	}

	fileInfo, err := os.Stat(source)
	if err != nil {
		return errors.New(err)
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0o700); err != nil {
		return errors.New(err)
	}

	return errors.WithStackTrace(os.WriteFile(destination, contents, fileInfo.Mode()))
}

// CopyPath copies source to destination, whether source is a file or a folder.
func CopyPath(source, destination string) error {
	if IsDir(source) {
		return CopyFolderContents(source, destination)
	}

	return CopyFile(source, destination)
}

// IsHidden returns true if any element of the path starts with a dot.
func IsHidden(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}

	return false
}
