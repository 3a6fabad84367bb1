// Package storage stores message attachments and hands back opaque references.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// sniffLen is how much of an upload is read to detect its content type.
const sniffLen = 3072

// FileStore persists attachment bytes under an object key and returns the stored reference.
type FileStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// ObjectKey builds "<prefix>/<uuid><ext>" keeping only a sanitized extension of filename.
func ObjectKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(SanitizeFilename(filename)))
	if len(ext) > 16 || strings.ContainsAny(ext, " /\\") {
		ext = ""
	}
	return path.Join(prefix, uuid.NewString()+ext)
}

// DirectPrefix is the object prefix shared by both participants of a direct conversation.
func DirectPrefix(userA, userB uint) string {
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("direct_files/%d_%d", lo, hi)
}

// GroupPrefix is the object prefix of a group's attachments.
func GroupPrefix(groupID uint) string {
	return fmt.Sprintf("group_files/%d", groupID)
}

// SanitizeFilename drops any directory part and control characters from a client filename.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}

// Sniff detects the content type from the first bytes of r and returns a reader that
// still yields the full stream. A specific declared type wins over detection.
func Sniff(r io.Reader, declared string) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	contentType := declared
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(head).String()
	}
	return contentType, io.MultiReader(bytes.NewReader(head), r), nil
}
