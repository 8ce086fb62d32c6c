// Package fetch downloads and extracts text from paper PDFs. Access denials
// are reported as a typed error because they trigger the browser-header
// retry in the deep analyzer, while other failures skip straight to the
// abstract fallback.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

// ErrAccessDenied marks an upstream 401/403 while fetching a PDF.
var ErrAccessDenied = errors.New("access denied by upstream")

// ErrNotPDF marks a response whose bytes are not a PDF document.
var ErrNotPDF = errors.New("fetched content is not a pdf")

const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// PDFFetcher downloads PDFs with a size cap and content-type sniffing.
type PDFFetcher struct {
	httpClient *http.Client
	maxBytes   int64
	logger     zerolog.Logger
}

// NewPDFFetcher builds a fetcher. maxBytes caps the downloaded body.
func NewPDFFetcher(timeout time.Duration, maxBytes int64, logger zerolog.Logger) *PDFFetcher {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}

	return &PDFFetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
		logger:     logger.With().Str("component", "pdf_fetcher").Logger(),
	}
}

// Fetch downloads a PDF with a plain request.
func (f *PDFFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return f.fetch(ctx, rawURL, false)
}

// FetchBrowserLike downloads a PDF sending browser-like request headers, used
// after a plain fetch was denied.
func (f *PDFFetcher) FetchBrowserLike(ctx context.Context, rawURL string) ([]byte, error) {
	return f.fetch(ctx, rawURL, true)
}

func (f *PDFFetcher) fetch(ctx context.Context, rawURL string, browserLike bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/pdf,*/*;q=0.8")
	if browserLike {
		req.Header.Set("User-Agent", browserUserAgent)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Referer", refererFor(rawURL))
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pdf: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("status %d fetching %s: %w", resp.StatusCode, rawURL, ErrAccessDenied)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read pdf body: %w", err)
	}

	if detected := mimetype.Detect(body); !detected.Is("application/pdf") {
		return nil, fmt.Errorf("%w (detected %s)", ErrNotPDF, detected.String())
	}

	f.logger.Debug().Str("url", rawURL).Int("bytes", len(body)).Bool("browser_like", browserLike).Msg("pdf fetched")

	return body, nil
}

func refererFor(rawURL string) string {
	if idx := strings.Index(rawURL, "://"); idx > 0 {
		rest := rawURL[idx+3:]
		if slash := strings.Index(rest, "/"); slash > 0 {
			return rawURL[:idx+3+slash] + "/"
		}
	}
	return rawURL
}

// ExtractText pulls the plain text out of PDF bytes, returning the text and
// the page count.
func ExtractText(data []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("extract pdf text: %w", err)
	}

	var builder strings.Builder
	if _, err := io.Copy(&builder, textReader); err != nil {
		return "", 0, fmt.Errorf("read pdf text: %w", err)
	}

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", reader.NumPage(), fmt.Errorf("pdf contains no extractable text")
	}

	return text, reader.NumPage(), nil
}
