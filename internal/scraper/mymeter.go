package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	"meterscraper/internal/config"
	"meterscraper/internal/normalize"
)

const (
	mymeterLoginURL     = "https://mymeter.bpu.com/Home/Login"
	mymeterDashboardURL = "https://mymeter.bpu.com/Home/Dashboard"
)

// AuthError indicates the portal rejected our session or credentials.
// Callers can retry with a fresh login before giving up.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// MyMeterScraper drives the MyMeter portal through a real browser: login
// (solving the reCAPTCHA gate when it appears), property selection, and
// the usage CSV export.
type MyMeterScraper struct {
	cookies    []config.Cookie
	username   string
	password   string
	solver     *CaptchaSolver
	visible    bool
	maxRetries int
}

// NewMyMeterScraper creates a new MyMeter scraper
func NewMyMeterScraper(cookies []config.Cookie, username, password string, solver *CaptchaSolver, maxRetries int) *MyMeterScraper {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &MyMeterScraper{
		cookies:    cookies,
		username:   username,
		password:   password,
		solver:     solver,
		maxRetries: maxRetries,
	}
}

// SetVisible sets whether to show the browser window
func (s *MyMeterScraper) SetVisible(visible bool) {
	s.visible = visible
}

// Cookies returns the session cookies captured by the last Scrape, so the
// caller can persist them and skip the login gate next run
func (s *MyMeterScraper) Cookies() []config.Cookie {
	return s.cookies
}

// Scrape logs in if needed, triggers a usage export for the last
// daysToFetch days, and returns the parsed CSV rows
func (s *MyMeterScraper) Scrape(ctx context.Context, daysToFetch int) ([]normalize.RawRow, error) {
	downloadDir, err := os.MkdirTemp("", "meterscraper-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(downloadDir)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, browserOptions(s.visible)...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, 5*time.Minute)
	defer cancel()

	if err := chromedp.Run(browserCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	); err != nil {
		return nil, fmt.Errorf("setting download behavior: %w", err)
	}

	if err := SetCookies(browserCtx, s.cookies); err != nil {
		return nil, fmt.Errorf("setting cookies: %w", err)
	}

	if err := s.ensureLoggedIn(browserCtx); err != nil {
		return nil, err
	}

	// Keep the refreshed session for the caller to persist
	if cookies, err := ExtractCookies(browserCtx); err == nil {
		s.cookies = cookies
	}

	if err := s.navigateToDownload(browserCtx); err != nil {
		saveErrorScreenshot(browserCtx, "navigation_failed")
		return nil, err
	}

	if err := s.requestExport(browserCtx, daysToFetch); err != nil {
		saveErrorScreenshot(browserCtx, "export_failed")
		return nil, err
	}

	csvPath, err := waitForDownload(downloadDir, 60*time.Second)
	if err != nil {
		saveErrorScreenshot(browserCtx, "download_timeout")
		return nil, err
	}

	file, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("opening CSV: %w", err)
	}
	defer file.Close()

	rows, err := normalize.ReadRows(file)
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}

	fmt.Printf("✓ Downloaded %d CSV rows\n", len(rows))
	return rows, nil
}

// ensureLoggedIn navigates to the dashboard and, if the portal bounces us
// to the login page, runs the credential flow with captcha retries
func (s *MyMeterScraper) ensureLoggedIn(ctx context.Context) error {
	if err := chromedp.Run(ctx,
		chromedp.Navigate(mymeterDashboardURL),
		chromedp.Sleep(3*time.Second),
	); err != nil {
		return fmt.Errorf("navigating to dashboard: %w", err)
	}

	if loggedIn(ctx) {
		fmt.Println("✓ Existing session still valid")
		return nil
	}

	if s.username == "" || s.password == "" {
		return &AuthError{Message: "session expired and no credentials configured"}
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		fmt.Printf("Logging in to MyMeter (attempt %d/%d)...\n", attempt, s.maxRetries)

		if err := s.login(ctx); err == nil {
			fmt.Println("✓ Login successful")
			return nil
		} else {
			lastErr = err
			fmt.Printf("⚠ Login attempt failed: %v\n", err)
		}

		// Back off before retrying; the portal rate-limits failed logins
		time.Sleep(time.Duration(attempt*5) * time.Second)
	}

	if lastErr == nil {
		lastErr = &AuthError{Message: "login failed"}
	}
	return lastErr
}

// login fills the credential form, solves the captcha gate when present,
// and polls until the portal lands on the dashboard or shows an error
func (s *MyMeterScraper) login(ctx context.Context) error {
	if err := chromedp.Run(ctx,
		chromedp.Navigate(mymeterLoginURL),
		chromedp.Sleep(2*time.Second),
		chromedp.WaitVisible(`#LoginEmail`, chromedp.ByQuery),
		chromedp.SendKeys(`#LoginEmail`, s.username, chromedp.ByQuery),
		chromedp.SendKeys(`#LoginPassword`, s.password, chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
	); err != nil {
		return fmt.Errorf("filling login form: %w", err)
	}

	if captchaPresent(ctx) {
		if err := s.solveCaptcha(ctx); err != nil {
			return err
		}
	}

	if err := chromedp.Run(ctx,
		chromedp.Click(`button.btn-primary.loginBtn`, chromedp.ByQuery),
		chromedp.Sleep(5*time.Second),
	); err != nil {
		return fmt.Errorf("submitting login form: %w", err)
	}

	// Poll for a definitive outcome; the portal can take a while to
	// redirect after a captcha-gated login
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		if loggedIn(ctx) {
			return nil
		}

		if msg, failed := loginFailure(ctx); failed {
			if captchaPresent(ctx) {
				if err := s.solveCaptcha(ctx); err != nil {
					return err
				}
				if err := chromedp.Run(ctx,
					chromedp.Click(`button.btn-primary.loginBtn`, chromedp.ByQuery),
					chromedp.Sleep(5*time.Second),
				); err != nil {
					return fmt.Errorf("resubmitting login form: %w", err)
				}
				continue
			}
			saveErrorScreenshot(ctx, "login_failed")
			return &AuthError{Message: msg}
		}

		chromedp.Run(ctx, chromedp.Sleep(3*time.Second))
	}

	saveErrorScreenshot(ctx, "login_timeout")
	return &AuthError{Message: "timed out waiting for login outcome"}
}

func (s *MyMeterScraper) solveCaptcha(ctx context.Context) error {
	if s.solver == nil {
		return &AuthError{Message: "captcha challenge present but no captcha API key configured"}
	}

	fmt.Println("  Captcha detected, solving...")

	siteKey, err := findSiteKey(ctx)
	if err != nil {
		return err
	}

	var pageURL string
	chromedp.Run(ctx, chromedp.Evaluate(`window.location.href`, &pageURL))
	if pageURL == "" {
		pageURL = mymeterLoginURL
	}

	token, err := s.solver.Solve(ctx, siteKey, pageURL)
	if err != nil {
		saveErrorScreenshot(ctx, "captcha_failed")
		return err
	}

	if err := injectCaptchaToken(ctx, token); err != nil {
		saveErrorScreenshot(ctx, "captcha_failed")
		return err
	}

	fmt.Println("  ✓ Captcha solved")
	return nil
}

// loggedIn checks the success indicators the dashboard exposes
func loggedIn(ctx context.Context) bool {
	var success bool
	chromedp.Run(ctx,
		chromedp.Evaluate(`
			(function() {
				if (window.location.href.includes('/Dashboard')) return true;
				if (document.querySelector('#choosePropertyBtn')) return true;
				if (document.querySelector('a.dashboard-data')) return true;
				if (document.querySelector('a[href*="Logout"]')) return true;
				return false;
			})()
		`, &success),
	)
	return success
}

// loginFailure returns the visible error message, if any
func loginFailure(ctx context.Context) (string, bool) {
	var msg string
	chromedp.Run(ctx,
		chromedp.Evaluate(`
			(function() {
				const el = document.querySelector('.validation-summary-errors') ||
					document.querySelector('#login-error-message') ||
					document.querySelector('.alert-danger');
				return el ? el.innerText.trim() : '';
			})()
		`, &msg),
	)
	if msg == "" {
		return "", false
	}
	return msg, true
}

// navigateToDownload walks property selection, the All Meters view, and
// the Data page until the export dialog is reachable
func (s *MyMeterScraper) navigateToDownload(ctx context.Context) error {
	// Property selection only appears on multi-property accounts
	var hasPropertyBtn bool
	chromedp.Run(ctx, chromedp.Evaluate(`document.querySelector('#choosePropertyBtn') !== null`, &hasPropertyBtn))

	if hasPropertyBtn {
		fmt.Println("Selecting All Meters...")
		if err := chromedp.Run(ctx,
			chromedp.Click(`#choosePropertyBtn`, chromedp.ByQuery),
			chromedp.Sleep(3*time.Second),
		); err != nil {
			return fmt.Errorf("opening property selection: %w", err)
		}

		var selected bool
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(`
				(function() {
					const nodes = document.querySelectorAll('a, button, li, div, span');
					for (const node of nodes) {
						if (node.textContent.trim().toLowerCase() === 'all meters') {
							node.click();
							return true;
						}
					}
					return false;
				})()
			`, &selected),
			chromedp.Sleep(3*time.Second),
		); err != nil {
			return fmt.Errorf("selecting All Meters: %w", err)
		}
		if !selected {
			return fmt.Errorf("could not find All Meters option")
		}
	}

	fmt.Println("Opening Data page...")
	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(`a.dashboard-data`, chromedp.ByQuery),
		chromedp.Click(`a.dashboard-data`, chromedp.ByQuery),
		chromedp.Sleep(5*time.Second),
	); err != nil {
		return fmt.Errorf("opening Data page: %w", err)
	}

	fmt.Println("Opening download dialog...")
	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(`span.icon-Download.mainButton > a`, chromedp.ByQuery),
		chromedp.Click(`span.icon-Download.mainButton > a`, chromedp.ByQuery),
		chromedp.Sleep(3*time.Second),
	); err != nil {
		return fmt.Errorf("opening download dialog: %w", err)
	}

	return nil
}

// requestExport fills in the date range and triggers the CSV download
func (s *MyMeterScraper) requestExport(ctx context.Context, daysToFetch int) error {
	end := time.Now()
	start := end.AddDate(0, 0, -daysToFetch)

	startStr := start.Format("01/02/2006")
	endStr := end.Format("01/02/2006")
	fmt.Printf("Requesting export for %s to %s...\n", startStr, endStr)

	var rangeSet bool
	if err := chromedp.Run(ctx,
		chromedp.Evaluate(fmt.Sprintf(`
			(function() {
				const startInput = document.querySelector('#StartDateView') ||
					document.querySelector('[name="StartDateView"]') ||
					document.querySelector('input[id*="start" i]');
				const endInput = document.querySelector('#EndDateView') ||
					document.querySelector('[name="EndDateView"]') ||
					document.querySelector('input[id*="end" i]');
				if (!startInput || !endInput) return false;
				startInput.value = '%s';
				endInput.value = '%s';
				startInput.dispatchEvent(new Event('change', {bubbles: true}));
				endInput.dispatchEvent(new Event('change', {bubbles: true}));
				return true;
			})()
		`, startStr, endStr), &rangeSet),
	); err != nil {
		return fmt.Errorf("setting date range: %w", err)
	}
	if !rangeSet {
		return fmt.Errorf("could not find date range inputs")
	}

	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(`button#downloadSubmit`, chromedp.ByQuery),
		chromedp.Click(`button#downloadSubmit`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("clicking download button: %w", err)
	}

	fmt.Println("Download triggered, waiting for file...")
	return nil
}

// waitForDownload polls the download directory until a CSV shows up.
// Usage exports are preferred by name when several files land.
func waitForDownload(dir string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		time.Sleep(1 * time.Second)

		usageCSV, anyCSV, err := findDownloadedCSV(dir)
		if err != nil {
			return "", err
		}
		if usageCSV != "" {
			return usageCSV, nil
		}
		if anyCSV != "" {
			// Give the browser a moment in case a better-named file
			// is still being written, then rescan so it wins
			time.Sleep(2 * time.Second)
			usageCSV, anyCSV, err = findDownloadedCSV(dir)
			if err != nil {
				return "", err
			}
			if usageCSV != "" {
				return usageCSV, nil
			}
			return anyCSV, nil
		}
	}

	return "", fmt.Errorf("no CSV file downloaded after %s", timeout)
}

// findDownloadedCSV scans a directory once, reporting the first CSV named
// like a usage export and the last CSV of any name
func findDownloadedCSV(dir string) (usageCSV, anyCSV string, err error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", "", fmt.Errorf("reading download directory: %w", err)
	}

	for _, file := range files {
		name := strings.ToLower(file.Name())
		if !strings.HasSuffix(name, ".csv") {
			continue
		}
		if strings.Contains(name, "usage") && usageCSV == "" {
			usageCSV = filepath.Join(dir, file.Name())
			continue
		}
		anyCSV = filepath.Join(dir, file.Name())
	}

	return usageCSV, anyCSV, nil
}

const screenshotDir = "screenshots"

// saveErrorScreenshot captures the current page when a flow step fails so
// portal markup changes can be diagnosed after the run. Best effort: the
// underlying failure is already being reported, so capture problems only
// warn.
func saveErrorScreenshot(ctx context.Context, label string) {
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		fmt.Printf("⚠ Could not capture %s screenshot: %v\n", label, err)
		return
	}

	if err := os.MkdirAll(screenshotDir, 0755); err != nil {
		fmt.Printf("⚠ Could not create screenshot directory: %v\n", err)
		return
	}

	path := screenshotPath(screenshotDir, label, time.Now())
	if err := os.WriteFile(path, buf, 0644); err != nil {
		fmt.Printf("⚠ Could not save screenshot: %v\n", err)
		return
	}

	fmt.Printf("  Screenshot saved to %s\n", path)
}

// screenshotPath names screenshots by failure point and capture time so
// repeated runs never overwrite each other
func screenshotPath(dir, label string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.png", label, now.Unix()))
}
