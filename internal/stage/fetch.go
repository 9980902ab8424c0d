package stage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

var dateRe = regexp.MustCompile(`^\d{8}$`)

// YtDlpFetcher downloads source videos with yt-dlp. When yt-dlp's
// metadata carries no upload_date (common for imported live streams
// once credentials go stale), a headless-browser fallback reads the
// date from the watch page's player response.
type YtDlpFetcher struct {
	// CookieFile is passed to yt-dlp; meeting archives frequently sit
	// behind an age/region gate that needs browser cookies.
	CookieFile string
	// Format is the yt-dlp format selector. Empty means best mp4.
	Format string
	// BrowserFallback enables the chromedp date-resolution fallback.
	BrowserFallback bool

	Log zerolog.Logger
}

// Fetch downloads the video to destPath and resolves the upload date.
// A missing date is not an error here: the result carries an empty
// UploadDate and the caller decides whether that is terminal.
func (f *YtDlpFetcher) Fetch(ctx context.Context, targetRef, destPath string) (*FetchResult, error) {
	format := f.Format
	if format == "" {
		format = "bv*[ext=mp4]+ba[ext=m4a]/b[ext=mp4]/b"
	}

	args := []string{
		"-f", format,
		"--merge-output-format", "mp4",
		"-o", destPath,
		"--no-playlist",
	}
	if f.CookieFile != "" {
		args = append(args, "--cookies", f.CookieFile)
	}
	args = append(args, targetRef)

	f.Log.Info().Str("target", targetRef).Msg("downloading source video")
	if out, err := runCommand(ctx, "yt-dlp", args...); err != nil {
		return nil, fmt.Errorf("stage: yt-dlp download failed: %w\noutput: %s", err, truncate(out))
	}

	date, err := f.probeUploadDate(ctx, targetRef)
	if err != nil {
		f.Log.Warn().Err(err).Msg("yt-dlp date probe failed")
	}
	if date == "" && f.BrowserFallback {
		date, err = f.resolveDateWithBrowser(ctx, targetRef)
		if err != nil {
			f.Log.Warn().Err(err).Msg("browser date fallback failed")
		}
	}

	return &FetchResult{VideoPath: destPath, UploadDate: date}, nil
}

// probeUploadDate asks yt-dlp for the 8-digit upload date without
// re-downloading anything.
func (f *YtDlpFetcher) probeUploadDate(ctx context.Context, targetRef string) (string, error) {
	args := []string{"--skip-download", "--no-warnings", "--print", "upload_date"}
	if f.CookieFile != "" {
		args = append(args, "--cookies", f.CookieFile)
	}
	args = append(args, targetRef)

	out, err := runCommand(ctx, "yt-dlp", args...)
	if err != nil {
		return "", fmt.Errorf("stage: yt-dlp metadata probe: %w", err)
	}
	date := strings.TrimSpace(string(out))
	if !dateRe.MatchString(date) {
		return "", nil
	}
	return date, nil
}

// resolveDateWithBrowser loads the watch page in headless Chrome and
// reads the upload date out of the player response. Last resort: slow,
// but works when the metadata endpoint wants fresh credentials.
func (f *YtDlpFetcher) resolveDateWithBrowser(parent context.Context, url string) (string, error) {
	ctx, cancel := chromedp.NewContext(parent)
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var raw string
	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2*time.Second), // wait for the player response to attach
		chromedp.Evaluate(`
			(() => {
				const mf = window.ytInitialPlayerResponse
					&& window.ytInitialPlayerResponse.microformat
					&& window.ytInitialPlayerResponse.microformat.playerMicroformat;
				return (mf && (mf.uploadDate || mf.publishDate)) || "";
			})()
		`, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("stage: browser date resolution: %w", err)
	}

	// The page reports ISO dates ("2024-01-31" or with a time suffix).
	digits := strings.ReplaceAll(raw, "-", "")
	if len(digits) >= 8 {
		digits = digits[:8]
	}
	if !dateRe.MatchString(digits) {
		return "", nil
	}
	f.Log.Info().Str("date", digits).Msg("upload date resolved via browser")
	return digits, nil
}

func truncate(out []byte) string {
	const max = 2048
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return string(out)
}
