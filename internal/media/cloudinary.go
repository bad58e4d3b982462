// Package media talks to Cloudinary, the object-storage collaborator that
// hosts avatar and cover-image assets.
package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Cloudinary struct {
	apiKey     string
	apiSecret  string
	uploadURL  string
	destroyURL string
	httpClient *http.Client
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	Result    string `json:"result"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewCloudinary(rawURL string) (*Cloudinary, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse cloudinary url: %w", err)
	}

	if parsed.Scheme != "cloudinary" {
		return nil, fmt.Errorf("invalid cloudinary scheme")
	}

	apiKey := parsed.User.Username()
	apiSecret, ok := parsed.User.Password()
	if !ok {
		return nil, fmt.Errorf("missing cloudinary api secret")
	}
	cloudName := parsed.Hostname()
	if apiKey == "" || apiSecret == "" || cloudName == "" {
		return nil, fmt.Errorf("invalid cloudinary credentials")
	}

	return &Cloudinary{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		uploadURL:  fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", cloudName),
		destroyURL: fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/destroy", cloudName),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}, nil
}

// UploadImage sends an image source (data URI or remote URL) to Cloudinary
// and returns the hosted asset's secure URL.
func (c *Cloudinary) UploadImage(ctx context.Context, imageSource string) (string, error) {
	imageSource = strings.TrimSpace(imageSource)
	if imageSource == "" {
		return "", fmt.Errorf("empty image source")
	}

	params := map[string]string{
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}

	resp, err := c.call(ctx, c.uploadURL, map[string]string{"file": imageSource}, params)
	if err != nil {
		return "", err
	}

	if resp.SecureURL == "" {
		return "", fmt.Errorf("cloudinary response missing secure_url")
	}

	return resp.SecureURL, nil
}

// DeleteImage destroys the asset with the given public id. Deleting an asset
// that is already gone is not an error; Cloudinary reports it as "not found".
func (c *Cloudinary) DeleteImage(ctx context.Context, publicID string) error {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return fmt.Errorf("empty public id")
	}

	params := map[string]string{
		"public_id": publicID,
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}

	resp, err := c.call(ctx, c.destroyURL, nil, params)
	if err != nil {
		return err
	}

	if resp.Result != "ok" && resp.Result != "not found" {
		return fmt.Errorf("cloudinary destroy failed: %s", resp.Result)
	}

	return nil
}

// call posts a signed multipart request. params are signed, extra fields
// (the file payload) are not.
func (c *Cloudinary) call(ctx context.Context, endpoint string, unsigned, params map[string]string) (cloudinaryResponse, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	fields := map[string]string{
		"api_key":   c.apiKey,
		"signature": c.sign(params),
	}
	for k, v := range unsigned {
		fields[k] = v
	}
	for k, v := range params {
		fields[k] = v
	}

	go func() {
		for k, v := range fields {
			if err := writer.WriteField(k, v); err != nil {
				_ = pw.CloseWithError(fmt.Errorf("write %s field: %w", k, err))
				return
			}
		}
		if err := writer.Close(); err != nil {
			_ = pw.CloseWithError(fmt.Errorf("close multipart writer: %w", err))
			return
		}
		_ = pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return cloudinaryResponse{}, fmt.Errorf("build cloudinary request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return cloudinaryResponse{}, fmt.Errorf("cloudinary request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return cloudinaryResponse{}, fmt.Errorf("read cloudinary response: %w", err)
	}

	var parsed cloudinaryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return cloudinaryResponse{}, fmt.Errorf("decode cloudinary response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return cloudinaryResponse{}, fmt.Errorf("cloudinary call failed: %s", parsed.Error.Message)
		}
		return cloudinaryResponse{}, fmt.Errorf("cloudinary call failed with status %d", resp.StatusCode)
	}

	return parsed, nil
}

// sign builds the Cloudinary API signature: the signed params sorted by key,
// joined as a query string, with the api secret appended, hashed with SHA-1.
func (c *Cloudinary) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	h := sha1.New() // #nosec G401: cloudinary API signature requires SHA-1.
	_, _ = h.Write([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(h.Sum(nil))
}

// PublicIDFromURL extracts the asset public id from a hosted asset URL
// (the last path segment without its extension).
func PublicIDFromURL(assetURL string) string {
	assetURL = strings.TrimSpace(assetURL)
	if assetURL == "" {
		return ""
	}

	segments := strings.Split(assetURL, "/")
	last := segments[len(segments)-1]
	if dot := strings.LastIndex(last, "."); dot > 0 {
		last = last[:dot]
	}

	return last
}
