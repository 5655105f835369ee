// Package ioutils provides file system and image processing utilities.
//
// This package contains functions for:
//   - Context-aware file copying and atomic replacement
//   - Filename sanitization for cross-platform compatibility
//   - Directory creation
//   - Cover art resizing and JPEG conversion
//
// # Atomic replacement
//
// Writers that must never leave a half-written file behind work on a
// sibling temporary file and swap it in at the end:
//
//	tmp, _ := ioutils.TempSibling(path, ".tmp")
//	// ... write tmp ...
//	err := ioutils.ReplaceFile(tmp.Name(), path)
//
// # Filename Sanitization
//
//	safe := ioutils.SanitizeFileName("Song: Part 1/2") // Returns "Song_ Part 1_2"
//
// # Image Processing
//
//	svc := ioutils.NewImageService()
//	cover, _ := svc.CoverJPEG(ctx, imageData, 500)
package ioutils
