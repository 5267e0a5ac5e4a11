package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/metrics"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// ErrTooLarge is returned when a download exceeds the configured size limit.
var ErrTooLarge = errors.New("media exceeds size limit")

// BodyLimit is the fetcher body cap for a Downloader limited to maxFileBytes.
// It sits one byte past the limit so a truncated oversize file still fails
// the size check. Zero means no cap.
func BodyLimit(maxFileBytes int64) int {
	if maxFileBytes <= 0 {
		return 0
	}
	return int(maxFileBytes) + 1
}

// DownloaderConfig tunes a Downloader.
type DownloaderConfig struct {
	Prefix       string
	MaxFileBytes int64
	Retry        crawler.RetryPolicy
}

// Downloader fetches media into the blob store.
type Downloader struct {
	fetcher  crawler.Fetcher
	blobs    crawler.BlobStore
	hasher   crawler.Hasher
	prefix   string
	maxBytes int64
	retry    crawler.RetryPolicy
	logger   *zap.Logger
}

// NewDownloader builds a Downloader.
func NewDownloader(fetcher crawler.Fetcher, blobs crawler.BlobStore, hasher crawler.Hasher, cfg DownloaderConfig, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "media"
	}
	return &Downloader{
		fetcher:  fetcher,
		blobs:    blobs,
		hasher:   hasher,
		prefix:   prefix,
		maxBytes: cfg.MaxFileBytes,
		retry:    cfg.Retry,
		logger:   logger.Named("download"),
	}
}

// Download stores item under {prefix}/{vessel-id}/{sha256}{ext} and returns
// the media row describing it. PDF documents carry their plain text.
func (d *Downloader) Download(ctx context.Context, item Item) (vessel.Media, error) {
	m, err := d.download(ctx, item)
	result := "success"
	if err != nil {
		result = "error"
		if errors.Is(err, ErrTooLarge) {
			result = "too_large"
		}
	}
	metrics.ObserveMedia(string(item.MediaType), result)
	return m, err
}

func (d *Downloader) download(ctx context.Context, item Item) (vessel.Media, error) {
	if item.VesselID == "" {
		return vessel.Media{}, fmt.Errorf("download %s: vessel id is required", item.URL)
	}
	resp, err := crawler.FetchWithRetry(ctx, d.fetcher, d.retry, crawler.FetchRequest{
		URL:    item.URL,
		Method: http.MethodGet,
	})
	if err != nil {
		return vessel.Media{}, fmt.Errorf("download %s: %w", item.URL, err)
	}
	if err := d.checkSize(resp); err != nil {
		return vessel.Media{}, fmt.Errorf("download %s: %w", item.URL, err)
	}

	digest, err := d.hasher.Hash(resp.Body)
	if err != nil {
		return vessel.Media{}, fmt.Errorf("hash %s: %w", item.URL, err)
	}
	contentType := resp.Headers.Get("Content-Type")
	ext := extension(item, contentType)
	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}
	objectPath := path.Join(d.prefix, item.VesselID, digest+ext)
	uri, err := d.blobs.PutObject(ctx, objectPath, contentType, resp.Body)
	if err != nil {
		return vessel.Media{}, fmt.Errorf("store %s: %w", item.URL, err)
	}

	m := vessel.Media{
		VesselID:     item.VesselID,
		MediaType:    item.MediaType,
		DocumentType: item.DocumentType,
		SourceURL:    item.URL,
		LocalPath:    uri,
		FileSize:     int64(len(resp.Body)),
		ContentHash:  digest,
		ContentType:  contentType,
		Title:        item.Title,
		Confidence:   item.Confidence,
	}
	if item.MediaType == vessel.MediaDocument && ext == ".pdf" {
		text, err := PDFText(resp.Body)
		if err != nil {
			d.logger.Warn("pdf text extraction failed", zap.String("url", item.URL), zap.Error(err))
		} else {
			m.ExtractedText = text
		}
	}
	d.logger.Debug("media stored",
		zap.String("url", item.URL),
		zap.String("path", objectPath),
		zap.Int64("bytes", m.FileSize),
	)
	return m, nil
}

// checkSize rejects a response whose declared or received length is over the
// limit. The fetcher may cut the body short, so Content-Length is checked first.
func (d *Downloader) checkSize(resp crawler.FetchResponse) error {
	if d.maxBytes <= 0 {
		return nil
	}
	if declared, err := strconv.ParseInt(resp.Headers.Get("Content-Length"), 10, 64); err == nil && declared > d.maxBytes {
		return fmt.Errorf("content length %d: %w", declared, ErrTooLarge)
	}
	if int64(len(resp.Body)) > d.maxBytes {
		return fmt.Errorf("%d bytes: %w", len(resp.Body), ErrTooLarge)
	}
	return nil
}

// extension picks a file extension from the URL path, then the content
// type, then the media type.
func extension(item Item, contentType string) string {
	if u, err := url.Parse(item.URL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 6 {
			return ext
		}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "image/jpeg":
			return ".jpg"
		case "application/pdf":
			return ".pdf"
		}
		if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	if item.MediaType == vessel.MediaPhoto {
		return ".jpg"
	}
	return ".bin"
}
