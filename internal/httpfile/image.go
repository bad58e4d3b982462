// Package httpfile turns uploaded multipart image files into the data-URI
// sources the object-storage client accepts.
package httpfile

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"profilehub/internal/apperr"
)

const MaxUploadSizeBytes = 10 << 20

// ImageSource reads the named multipart file field and returns it as a
// base64 data URI. The field is required.
func ImageSource(r *http.Request, field string) (string, error) {
	source, err := OptionalImageSource(r, field)
	if err != nil {
		return "", err
	}
	if source == "" {
		return "", apperr.New(apperr.KindValidation, field+" file is required")
	}
	return source, nil
}

// OptionalImageSource is ImageSource for fields that may be absent; a missing
// field yields an empty source and no error.
func OptionalImageSource(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if err == http.ErrMissingFile {
			return "", nil
		}
		return "", apperr.New(apperr.KindValidation, "invalid "+field+" file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadSizeBytes+1))
	if err != nil {
		return "", apperr.New(apperr.KindValidation, "failed to read "+field+" file")
	}
	if len(data) == 0 {
		return "", apperr.New(apperr.KindValidation, field+" file is empty")
	}
	if len(data) > MaxUploadSizeBytes {
		return "", apperr.New(apperr.KindValidation, field+" file is too large")
	}

	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return "", apperr.New(apperr.KindValidation, field+" must be an image")
	}

	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data)), nil
}
