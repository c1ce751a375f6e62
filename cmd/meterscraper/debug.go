package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"

	"meterscraper/internal/scraper"
)

var (
	debugVisible bool
	debugOutput  string
	debugURL     string
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug the portal flow by opening a browser or saving HTML",
	Long: `Opens the MyMeter portal with saved cookies so selector changes can be
inspected when the portal updates its markup.

Flags:
  --visible    Open visible browser and pause for inspection
  --output     Save HTML to file instead of displaying
  --url        Page to open (default is the dashboard)`,
	RunE: runDebug,
}

func init() {
	debugCmd.Flags().BoolVar(&debugVisible, "visible", false, "Open visible browser and pause")
	debugCmd.Flags().StringVar(&debugOutput, "output", "", "Save HTML to this file")
	debugCmd.Flags().StringVar(&debugURL, "url", "https://mymeter.bpu.com/Home/Dashboard", "Page to open")
	rootCmd.AddCommand(debugCmd)
}

func runDebug(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if len(cfg.Portal.Cookies) == 0 {
		return fmt.Errorf("no cookies found. Run 'meterscraper login' first")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !debugVisible),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, 5*time.Minute)
	defer cancel()

	if err := scraper.SetCookies(browserCtx, cfg.Portal.Cookies); err != nil {
		return fmt.Errorf("setting cookies: %w", err)
	}

	fmt.Printf("Navigating to %s...\n", debugURL)

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(debugURL),
		chromedp.Sleep(5*time.Second),
	); err != nil {
		return fmt.Errorf("navigating: %w", err)
	}

	// Summarize the interactive elements the scraper depends on
	var selectorReport string
	if err := chromedp.Run(browserCtx,
		chromedp.Evaluate(`
			(function() {
				const report = {
					url: window.location.href,
					loginForm: document.querySelector('#LoginEmail') !== null,
					choosePropertyBtn: document.querySelector('#choosePropertyBtn') !== null,
					dataLink: document.querySelector('a.dashboard-data') !== null,
					downloadLink: document.querySelector('span.icon-Download.mainButton > a') !== null,
					startDateInput: document.querySelector('#StartDateView') !== null,
					endDateInput: document.querySelector('#EndDateView') !== null,
					downloadSubmit: document.querySelector('button#downloadSubmit') !== null,
					captchaFrame: document.querySelector('iframe[src*="recaptcha"]') !== null
				};
				return JSON.stringify(report, null, 2);
			})()
		`, &selectorReport),
	); err != nil {
		fmt.Printf("Warning: Could not inspect selectors: %v\n", err)
	} else {
		fmt.Printf("Selector report:\n%s\n\n", selectorReport)
	}

	var html string
	if err := chromedp.Run(browserCtx,
		chromedp.OuterHTML(`html`, &html, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("extracting HTML: %w", err)
	}

	if debugOutput != "" {
		if err := os.WriteFile(debugOutput, []byte(html), 0644); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}
		fmt.Printf("✓ HTML saved to %s\n", debugOutput)
	} else if !debugVisible {
		fmt.Println(html)
	}

	if debugVisible {
		fmt.Println("\nBrowser is open. Inspect the page, then press Enter to close...")
		fmt.Scanln()
	}

	return nil
}
