// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeZip builds a test archive from a name-to-content map.
func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.CreateHeader(&zip.FileHeader{Name: name})
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func TestExtract(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"main.py":            "print('hello')\n",
		"src/app.py":         "app = object()\n",
		"requirements.txt":   "flask\n",
		"docs/notes/todo.md": "# notes\n",
	})
	dest := filepath.Join(t.TempDir(), "ws")

	require.NoError(t, Extract(archive, dest, 1024*1024))

	for _, rel := range []string{"main.py", "src/app.py", "requirements.txt", "docs/notes/todo.md"} {
		assert.FileExists(t, filepath.Join(dest, filepath.FromSlash(rel)))
	}
	data, err := os.ReadFile(filepath.Join(dest, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hello')\n", string(data))
}

func TestExtract_RejectsZipSlip(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"../evil.txt": "pwned",
	})
	dest := filepath.Join(t.TempDir(), "ws")

	err := Extract(archive, dest, 0)
	require.ErrorIs(t, err, ErrUnsafeArchivePath)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "evil.txt"))
}

func TestExtract_RejectsAbsolutePath(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"/tmp/evil.txt": "pwned",
	})

	err := Extract(archive, filepath.Join(t.TempDir(), "ws"), 0)
	assert.ErrorIs(t, err, ErrUnsafeArchivePath)
}

func TestExtract_EnforcesSizeLimit(t *testing.T) {
	big := make([]byte, 4096)
	for i := range big {
		big[i] = 'a'
	}
	archive := writeZip(t, map[string]string{
		"big.txt": string(big),
	})

	err := Extract(archive, filepath.Join(t.TempDir(), "ws"), 1024)
	assert.ErrorIs(t, err, ErrArchiveTooLarge)
}

func TestExtract_BadArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-zip.zip")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0644))

	err := Extract(path, filepath.Join(t.TempDir(), "ws"), 0)
	assert.ErrorIs(t, err, ErrBadArchive)
}
