package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPartName(t *testing.T) {
	assert.Equal(t, "abc_0", PartName("abc", 0))
	assert.Equal(t, "abc_12", PartName("abc", 12))
	assert.Equal(t, "TUSFILE_abc", Key("abc"))
	id, ok := IDFromKey("TUSFILE_abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
	_, ok = IDFromKey("ASSET_abc")
	assert.False(t, ok)
}

func TestExists(t *testing.T) {
	var missing *UploadMetadata
	assert.False(t, missing.Exists())
	assert.False(t, (&UploadMetadata{}).Exists())
	assert.True(t, (&UploadMetadata{Created: true}).Exists())
	assert.True(t, (&UploadMetadata{WrittenBytes: 1}).Exists())
}

func TestTouch(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &UploadMetadata{}
	m.Touch(now, time.Hour)
	assert.Equal(t, now.Add(time.Hour), m.Expires)

	m.Touch(now.Add(time.Minute), time.Hour)
	assert.Equal(t, now.Add(time.Hour), m.Expires)
	assert.False(t, m.Expired(now))
	assert.True(t, m.Expired(now.Add(time.Hour)))
}

func TestFileNameAndMimeType(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		file   string
		mime   string
	}{
		{"empty", map[string]string{}, DefaultName, DefaultMimeType},
		{"exact", map[string]string{"fileName": "a.txt", "fileType": "text/plain"}, "a.txt", "text/plain"},
		{"lower case", map[string]string{"filename": "b.png", "filetype": "image/png"}, "b.png", "image/png"},
		{"mime fallback", map[string]string{"FILENAME": "c", "mimeType": "video/mp4"}, "c", "video/mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.file, FileName(tt.values))
			assert.Equal(t, tt.mime, MimeType(tt.values))
		})
	}
}

func TestValues(t *testing.T) {
	m := &UploadMetadata{UploadMetadata: EncodeValues(map[string]string{"fileName": "report.pdf"})}
	assert.Equal(t, "report.pdf", m.Values()["fileName"])
	assert.Empty(t, (&UploadMetadata{}).Values())
}
