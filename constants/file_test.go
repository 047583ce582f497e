package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapExtToFormat(t *testing.T) {
	assert.Equal(t, PDF, MapExtToFormat(".PDF"))
	assert.Equal(t, XLSX, MapExtToFormat("xlsx"))
	assert.Equal(t, Format(""), MapExtToFormat(".exe"))
	for _, ext := range SupportedExtensions() {
		assert.True(t, IsAllowedExt(ext), ext)
	}
}

func TestIsAllowedContentType(t *testing.T) {
	assert.True(t, IsAllowedContentType("text/csv; charset=utf-8", "a.csv"))
	assert.True(t, IsAllowedContentType("application/octet-stream", "Data.CSV"))
	assert.False(t, IsAllowedContentType("application/octet-stream", "data.bin"))
	assert.False(t, IsAllowedContentType("application/x-msdownload", "setup.exe"))
}

func TestContentTypeForExt(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentTypeForExt(".pdf"))
	assert.Equal(t, "image/jpeg", ContentTypeForExt("JPG"))
	assert.Equal(t, "application/octet-stream", ContentTypeForExt(".bin"))
	for _, ext := range SupportedExtensions() {
		assert.True(t, IsAllowedContentType(ContentTypeForExt(ext), "file"+ext), ext)
	}
}

func TestCanonicalProvider(t *testing.T) {
	p, ok := CanonicalProvider(" Claude ")
	assert.True(t, ok)
	assert.Equal(t, ProviderAnthropic, p)
	_, ok = CanonicalProvider("")
	assert.False(t, ok)
}
