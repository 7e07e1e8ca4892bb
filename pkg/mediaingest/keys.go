package mediaingest

import (
	"net/url"
	"path"
	"strings"
)

// Key layout
const (
	UploadPrefix  = "uploads/"
	PublicPrefix  = "public/"
	OriginalLabel = "original"
)

// UploadKey returns the raw upload key:
// uploads/{tenantId}/{albumId}/{imageId}/original/{filename}
func UploadKey(tenantID, albumID, imageID, filename string) string {
	return UploadPrefix + strings.Join([]string{tenantID, albumID, imageID, OriginalLabel, filename}, "/")
}

// PublicKey returns the derived key:
// public/{tenantId}/{albumId}/{imageId}/{label}/{filename}
func PublicKey(tenantID, albumID, imageID, label, filename string) string {
	return PublicPrefix + strings.Join([]string{tenantID, albumID, imageID, label, filename}, "/")
}

// Key returns the upload key of the descriptor
func (d UploadDescriptor) Key() string {
	return UploadKey(d.TenantID, d.AlbumID, d.ImageID, d.Filename)
}

// PublicKey returns the derived key for label
func (d UploadDescriptor) PublicKey(label string) string {
	return PublicKey(d.TenantID, d.AlbumID, d.ImageID, label, d.Filename)
}

// ParseUploadKey parses a key of the form
// uploads/{tenantId}/{albumId}/{imageId}/original/{filename...}.
// The filename is everything after "original/" and may itself contain slashes.
func ParseUploadKey(key string) (UploadDescriptor, bool) {
	rest, ok := strings.CutPrefix(key, UploadPrefix)
	if !ok {
		return UploadDescriptor{}, false
	}

	parts := strings.SplitN(rest, "/", 5)
	if len(parts) != 5 {
		return UploadDescriptor{}, false
	}
	tenantID, albumID, imageID, marker, filename := parts[0], parts[1], parts[2], parts[3], parts[4]
	if tenantID == "" || albumID == "" || imageID == "" || marker != OriginalLabel {
		return UploadDescriptor{}, false
	}
	if filename == "" || strings.HasSuffix(filename, "/") {
		return UploadDescriptor{}, false
	}

	return UploadDescriptor{
		TenantID: tenantID,
		AlbumID:  albumID,
		ImageID:  imageID,
		Filename: filename,
	}, true
}

// DecodeNotificationKey unescapes an object key as delivered in S3 event
// notifications, where spaces arrive as '+' and other bytes percent-encoded.
func DecodeNotificationKey(key string) string {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return key
	}
	return decoded
}

// fileExt returns the lowercased extension of the final filename segment
func fileExt(filename string) string {
	return strings.ToLower(path.Ext(path.Base(filename)))
}
