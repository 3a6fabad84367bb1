package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey(DirectPrefix(9, 3), "../../Report.PDF")

	assert.True(t, strings.HasPrefix(key, "direct_files/3_9/"), key)
	assert.True(t, strings.HasSuffix(key, ".pdf"), key)
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(key, "direct_files/3_9/"), ".pdf"), 36)
	assert.NotEqual(t, key, ObjectKey(DirectPrefix(3, 9), "Report.pdf"))

	assert.Equal(t, "group_files/4", GroupPrefix(4))
	assert.False(t, strings.Contains(ObjectKey("p", "noext"), "."))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "passwd", SanitizeFilename("/etc/passwd"))
	assert.Equal(t, "evil.exe", SanitizeFilename(`C:\temp\evil.exe`))
	assert.Equal(t, "ab.txt", SanitizeFilename("a\x00b.txt"))
	assert.Equal(t, "file", SanitizeFilename(""))
}

func TestSniff(t *testing.T) {
	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("x", 10)

	contentType, r, err := Sniff(strings.NewReader(png), "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, png, string(all), "sniffing must not consume the stream")

	contentType, _, err = Sniff(strings.NewReader("hello"), "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, "text/markdown", contentType)
}

func TestDiskStore_Put(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root)
	require.NoError(t, err)

	key, err := store.Put(context.Background(), "direct_files/1_2/a.txt", strings.NewReader("payload"), 7, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "direct_files/1_2/a.txt", key)

	data, err := os.ReadFile(filepath.Join(root, "direct_files", "1_2", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = store.Put(context.Background(), "../escape.txt", strings.NewReader("x"), 1, "text/plain")
	assert.Error(t, err)
}
