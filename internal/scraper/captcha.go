package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	captchaSubmitURL = "http://2captcha.com/in.php"
	captchaResultURL = "http://2captcha.com/res.php"
)

// CaptchaSolver solves reCAPTCHA challenges via the 2captcha HTTP API
type CaptchaSolver struct {
	apiKey string
	client *http.Client
}

// NewCaptchaSolver creates a solver. An empty API key returns nil, which
// downstream code treats as solving disabled.
func NewCaptchaSolver(apiKey string) *CaptchaSolver {
	if apiKey == "" {
		return nil
	}
	return &CaptchaSolver{
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Solve submits a reCAPTCHA v2 challenge and polls until 2captcha returns
// a response token
func (s *CaptchaSolver) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	id, err := s.submit(ctx, siteKey, pageURL)
	if err != nil {
		return "", fmt.Errorf("submitting captcha: %w", err)
	}

	// 2captcha workers usually take 15-60 seconds
	maxAttempts := 24
	for i := 0; i < maxAttempts; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
		}

		token, done, err := s.poll(ctx, id)
		if err != nil {
			return "", fmt.Errorf("polling captcha result: %w", err)
		}
		if done {
			return token, nil
		}

		if i%4 == 0 {
			fmt.Printf("  Still waiting for captcha worker... (%d seconds)\n", (i+1)*5)
		}
	}

	return "", fmt.Errorf("captcha solve timed out")
}

func (s *CaptchaSolver) submit(ctx context.Context, siteKey, pageURL string) (string, error) {
	params := url.Values{}
	params.Set("key", s.apiKey)
	params.Set("method", "userrecaptcha")
	params.Set("googlekey", siteKey)
	params.Set("pageurl", pageURL)
	params.Set("json", "1")

	body, err := s.request(ctx, captchaSubmitURL, params)
	if err != nil {
		return "", err
	}

	var result struct {
		Status  int    `json:"status"`
		Request string `json:"request"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w (body: %s)", err, string(body))
	}
	if result.Status != 1 {
		return "", fmt.Errorf("2captcha rejected submission: %s", result.Request)
	}

	return result.Request, nil
}

// poll returns (token, done, err). A CAPCHA_NOT_READY response is not an
// error, just not done yet.
func (s *CaptchaSolver) poll(ctx context.Context, id string) (string, bool, error) {
	params := url.Values{}
	params.Set("key", s.apiKey)
	params.Set("action", "get")
	params.Set("id", id)
	params.Set("json", "1")

	body, err := s.request(ctx, captchaResultURL, params)
	if err != nil {
		return "", false, err
	}

	var result struct {
		Status  int    `json:"status"`
		Request string `json:"request"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", false, fmt.Errorf("decoding response: %w (body: %s)", err, string(body))
	}

	if result.Status == 1 {
		return result.Request, true, nil
	}
	if result.Request == "CAPCHA_NOT_READY" {
		return "", false, nil
	}
	return "", false, fmt.Errorf("2captcha error: %s", result.Request)
}

func (s *CaptchaSolver) request(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// captchaPresent checks the current page for captcha challenge markers
func captchaPresent(ctx context.Context) bool {
	var found bool
	chromedp.Run(ctx,
		chromedp.Evaluate(`
			(function() {
				if (document.querySelector('iframe[src*="recaptcha"]')) return true;
				if (document.querySelector('.g-recaptcha')) return true;
				const text = document.body ? document.body.innerText.toLowerCase() : '';
				return text.includes('please provide a valid login captcha');
			})()
		`, &found),
	)
	return found
}

// findSiteKey extracts the reCAPTCHA site key from the page, either from
// a data-sitekey attribute or the recaptcha iframe URL
func findSiteKey(ctx context.Context) (string, error) {
	var siteKey string
	if err := chromedp.Run(ctx,
		chromedp.Evaluate(`
			(function() {
				const el = document.querySelector('[data-sitekey]');
				if (el) return el.getAttribute('data-sitekey');
				const frame = document.querySelector('iframe[src*="recaptcha"]');
				if (frame) {
					const m = frame.src.match(/[?&]k=([^&]+)/);
					if (m) return m[1];
				}
				return '';
			})()
		`, &siteKey),
	); err != nil {
		return "", fmt.Errorf("searching for site key: %w", err)
	}

	if siteKey == "" {
		return "", fmt.Errorf("could not find reCAPTCHA site key")
	}
	return siteKey, nil
}

// injectCaptchaToken writes the solved token into the g-recaptcha-response
// textarea and fires the widget callback if one is registered
func injectCaptchaToken(ctx context.Context, token string) error {
	token = strings.ReplaceAll(token, "'", "")

	var injected bool
	if err := chromedp.Run(ctx,
		chromedp.Evaluate(fmt.Sprintf(`
			(function() {
				const areas = document.querySelectorAll('textarea[name="g-recaptcha-response"]');
				if (areas.length === 0) return false;
				for (const area of areas) {
					area.value = '%s';
					area.style.display = 'block';
				}
				const widget = document.querySelector('.g-recaptcha');
				if (widget && widget.dataset.callback && typeof window[widget.dataset.callback] === 'function') {
					window[widget.dataset.callback]('%s');
				}
				return true;
			})()
		`, token, token), &injected),
	); err != nil {
		return fmt.Errorf("injecting captcha token: %w", err)
	}

	if !injected {
		return fmt.Errorf("no g-recaptcha-response field on page")
	}
	return nil
}
