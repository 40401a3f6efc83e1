package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, batch, name, want string
	}{
		{"uploads", "", "acme_2024.pdf", "uploads/acme_2024.pdf"},
		{"uploads", "2025-q1", "acme_2024.pdf", "uploads/batch/2025-q1/acme_2024.pdf"},
		{"", "b1", "chunks.jsonl", "batch/b1/chunks.jsonl"},
		{"", "", "chunks.jsonl", "chunks.jsonl"},
	}
	for _, tt := range tests {
		got, err := ObjectKey(tt.prefix, tt.batch, tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestObjectKey_Invalid(t *testing.T) {
	_, err := ObjectKey("uploads", "../etc", "x.pdf")
	assert.Error(t, err)
	_, err = ObjectKey("uploads", "", "dir/x.pdf")
	assert.Error(t, err)
	_, err = ObjectKey("uploads", "..", "x.pdf")
	assert.Error(t, err)
	_, err = ObjectKey("uploads", "", "")
	assert.Error(t, err)
}

func TestSplitKey(t *testing.T) {
	batch, name := SplitKey("uploads", "uploads/batch/2025-q1/acme.pdf")
	assert.Equal(t, "2025-q1", batch)
	assert.Equal(t, "acme.pdf", name)

	batch, name = SplitKey("uploads", "uploads/acme.pdf")
	assert.Empty(t, batch)
	assert.Equal(t, "acme.pdf", name)

	batch, name = SplitKey("", "batch/b1/c.jsonl")
	assert.Equal(t, "b1", batch)
	assert.Equal(t, "c.jsonl", name)
}

func TestListPrefix(t *testing.T) {
	p, err := listPrefix("uploads", "")
	require.NoError(t, err)
	assert.Equal(t, "uploads/", p)

	p, err = listPrefix("uploads", "b1")
	require.NoError(t, err)
	assert.Equal(t, "uploads/batch/b1/", p)

	p, err = listPrefix("", "")
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/x-ndjson", contentType("a.jsonl"))
	assert.Equal(t, "text/csv", contentType("a.CSV"))
	assert.Equal(t, "application/pdf", contentType("a.pdf"))
	assert.Equal(t, "application/octet-stream", contentType("a.unknownext"))
}
