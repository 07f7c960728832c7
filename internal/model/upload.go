package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/sjqzhang/tusd"
)

const (
	KeyPrefix       = "TUSFILE_"
	AssetKeyPrefix  = "ASSET_"
	DefaultName     = "Unknown"
	DefaultMimeType = "application/octet-stream"
)

// UploadMetadata is the durable checkpoint of one upload.
type UploadMetadata struct {
	ID             string    `json:"id"`
	UploadLength   *int64    `json:"upload_length,omitempty"`
	UploadMetadata string    `json:"upload_metadata"`
	WrittenBytes   int64     `json:"written_bytes"`
	WrittenParts   int       `json:"written_parts"`
	Created        bool      `json:"created"`
	Expires        time.Time `json:"expires"`
}

// Asset describes an assembled upload that has been copied into the asset store.
type Asset struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	MimeType  string            `json:"mime_type"`
	Size      int64             `json:"size"`
	Sha1      string            `json:"sha1"`
	MetaData  map[string]string `json:"meta_data"`
	TimeStamp int64             `json:"time_stamp"`
}

func Key(id string) string {
	return KeyPrefix + id
}

func AssetKey(id string) string {
	return AssetKeyPrefix + id
}

// PartName names the n-th chunk of an upload.
func PartName(id string, n int) string {
	return fmt.Sprintf("%s_%d", id, n)
}

// IDFromKey strips KeyPrefix, reporting false for foreign keys.
func IDFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, KeyPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, KeyPrefix), true
}

func (m *UploadMetadata) LengthKnown() bool {
	return m.UploadLength != nil
}

func (m *UploadMetadata) Length() int64 {
	if m.UploadLength == nil {
		return 0
	}
	return *m.UploadLength
}

// Exists reports whether the record stands for a live upload.
func (m *UploadMetadata) Exists() bool {
	return m != nil && (m.WrittenBytes > 0 || m.Created)
}

// Touch populates Expires when it has never been set.
func (m *UploadMetadata) Touch(now time.Time, expiration time.Duration) {
	if m.Expires.IsZero() {
		m.Expires = now.Add(expiration)
	}
}

func (m *UploadMetadata) Expired(now time.Time) bool {
	return !m.Expires.IsZero() && !m.Expires.After(now)
}

// Values decodes the client supplied Upload-Metadata blob.
func (m *UploadMetadata) Values() map[string]string {
	if m.UploadMetadata == "" {
		return map[string]string{}
	}
	return tusd.ParseMetadataHeader(m.UploadMetadata)
}

func EncodeValues(values map[string]string) string {
	if len(values) == 0 {
		return ""
	}
	return tusd.SerializeMetadataHeader(values)
}

// FileName looks up the file name, ignoring the key case.
func FileName(values map[string]string) string {
	if v := lookup(values, "fileName"); v != "" {
		return v
	}
	return DefaultName
}

func MimeType(values map[string]string) string {
	if v := lookup(values, "fileType"); v != "" {
		return v
	}
	if v := lookup(values, "mimeType"); v != "" {
		return v
	}
	return DefaultMimeType
}

func lookup(values map[string]string, key string) string {
	if v, ok := values[key]; ok {
		return v
	}
	for k, v := range values {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
