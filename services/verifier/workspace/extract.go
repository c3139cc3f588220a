// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace manages per-session working directories: archive
// extraction, file indexing, and source structure scanning.
//
// A workspace is created from an uploaded ZIP archive. Extraction is
// hardened against zip-slip paths and oversized archives; the resulting
// directory becomes the confinement root every sandbox capability is
// checked against.
package workspace

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrBadArchive indicates the upload is not a readable ZIP file.
	ErrBadArchive = errors.New("invalid zip archive")

	// ErrArchiveTooLarge indicates the uncompressed contents exceed the
	// configured size limit.
	ErrArchiveTooLarge = errors.New("archive exceeds size limit")

	// ErrUnsafeArchivePath indicates an entry would escape the
	// destination directory (zip-slip).
	ErrUnsafeArchivePath = errors.New("archive entry escapes destination")
)

// Extract unpacks the ZIP archive at archivePath into destDir.
//
// Description:
//
//	Every entry path is validated before writing: absolute paths and
//	paths containing ".." components are rejected with
//	ErrUnsafeArchivePath. The cumulative uncompressed size is bounded
//	by maxBytes so a small archive cannot expand into an enormous
//	workspace. destDir is created if it does not exist.
//
// Inputs:
//
//	archivePath - Path to the uploaded ZIP file.
//	destDir - Directory to extract into. Created if absent.
//	maxBytes - Cumulative uncompressed size limit. Zero means no limit.
//
// Outputs:
//
//	error - Non-nil on a bad archive, an unsafe entry, the size limit,
//	or any filesystem failure. destDir may hold partial contents on
//	error; callers should remove it.
func Extract(archivePath, destDir string, maxBytes int64) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBadArchive, archivePath)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0750); err != nil {
		return fmt.Errorf("failed to create the extraction directory: %w", err)
	}

	var written int64
	for _, entry := range reader.File {
		target, err := safeJoin(destDir, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0750); err != nil {
				return fmt.Errorf("failed to create directory %q: %w", entry.Name, err)
			}
			continue
		}

		if maxBytes > 0 && written+int64(entry.UncompressedSize64) > maxBytes {
			return fmt.Errorf("%w: limit %d bytes", ErrArchiveTooLarge, maxBytes)
		}

		n, err := extractFile(entry, target, maxBytes, written)
		if err != nil {
			return err
		}
		written += n
	}

	return nil
}

// safeJoin joins an archive entry name onto destDir, rejecting entries
// that would resolve outside destDir.
func safeJoin(destDir, name string) (string, error) {
	cleaned := filepath.Clean(strings.ReplaceAll(name, "\\", "/"))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrUnsafeArchivePath, name)
	}

	target := filepath.Join(destDir, cleaned)
	if target != destDir && !strings.HasPrefix(target, destDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeArchivePath, name)
	}
	return target, nil
}

// extractFile writes a single archive entry, enforcing the remaining
// size budget with a hard reader limit in case the entry header lies
// about its uncompressed size.
func extractFile(entry *zip.File, target string, maxBytes, written int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return 0, fmt.Errorf("failed to create parent directory for %q: %w", entry.Name, err)
	}

	src, err := entry.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: cannot open entry %q", ErrBadArchive, entry.Name)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, entry.Mode().Perm()|0200)
	if err != nil {
		return 0, fmt.Errorf("failed to create %q: %w", entry.Name, err)
	}
	defer dst.Close()

	var limited io.Reader = src
	if maxBytes > 0 {
		limited = io.LimitReader(src, maxBytes-written+1)
	}

	n, err := io.Copy(dst, limited)
	if err != nil {
		return n, fmt.Errorf("failed to extract %q: %w", entry.Name, err)
	}
	if maxBytes > 0 && written+n > maxBytes {
		return n, fmt.Errorf("%w: limit %d bytes", ErrArchiveTooLarge, maxBytes)
	}
	return n, nil
}
