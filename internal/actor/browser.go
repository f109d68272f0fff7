package actor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	challengeDetectTimeout = 10 * time.Second
	challengeSolveTimeout  = 90 * time.Second
	stepTimeout            = 30 * time.Second
)

// BrowserOptions configures a Browser session.
type BrowserOptions struct {
	Headless bool
	Timeout  time.Duration // per-step timeout, defaults to 30s
}

// Browser is a chromedp-backed Actor. One Browser handles exactly one
// reset attempt; sessions are not reused across accounts so the site sees
// a fresh browser fingerprint each time.
type Browser struct {
	siteURL string
	opts    BrowserOptions
	logger  *slog.Logger

	browserCtx context.Context
	cancels    []context.CancelFunc
	closed     bool

	// password used at login, needed again by the change form
	currentPassword string
}

// NewBrowser creates an unopened browser actor for the given site.
func NewBrowser(siteURL string, opts BrowserOptions, logger *slog.Logger) *Browser {
	if opts.Timeout <= 0 {
		opts.Timeout = stepTimeout
	}
	return &Browser{siteURL: siteURL, opts: opts, logger: logger}
}

// NewBrowserFactory returns a Factory producing Browser actors with the
// given options. The per-call headless flag overrides opts.Headless.
func NewBrowserFactory(opts BrowserOptions, logger *slog.Logger) Factory {
	return func(siteURL string, headless bool) (Actor, error) {
		o := opts
		o.Headless = headless
		return NewBrowser(siteURL, o, logger), nil
	}
}

// Open launches Chrome, navigates to the site, and waits out any
// bot-challenge interstitial.
func (b *Browser) Open(ctx context.Context) error {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	b.browserCtx = browserCtx
	b.cancels = []context.CancelFunc{browserCancel, allocCancel}

	b.logger.Info("opening site", slog.String("url", b.siteURL))

	navCtx, cancel := context.WithTimeout(browserCtx, b.opts.Timeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(b.siteURL)); err != nil {
		return fmt.Errorf("open site: %w", err)
	}

	return b.waitForChallenge(browserCtx)
}

// waitForChallenge polls the page title until the bot-challenge
// interstitial clears. No challenge within the detection window means the
// page loaded directly.
func (b *Browser) waitForChallenge(ctx context.Context) error {
	detectDeadline := time.Now().Add(challengeDetectTimeout)
	detected := false
	for time.Now().Before(detectDeadline) {
		title, err := b.pageTitle(ctx)
		if err != nil {
			return err
		}
		if isChallengeTitle(title) {
			detected = true
			break
		}
		if err := sleepCtx(ctx, time.Second); err != nil {
			return err
		}
	}
	if !detected {
		return nil
	}

	b.logger.Info("bot challenge detected, waiting for it to clear")
	solveDeadline := time.Now().Add(challengeSolveTimeout)
	for time.Now().Before(solveDeadline) {
		title, err := b.pageTitle(ctx)
		if err != nil {
			return err
		}
		if !isChallengeTitle(title) {
			b.logger.Info("bot challenge cleared")
			// Give the real page a moment to settle after the redirect.
			return sleepCtx(ctx, 3*time.Second)
		}
		if err := sleepCtx(ctx, time.Second); err != nil {
			return err
		}
	}
	return fmt.Errorf("bot challenge did not clear within %s", challengeSolveTimeout)
}

func isChallengeTitle(title string) bool {
	t := strings.ToLower(title)
	return strings.Contains(t, "just a moment") || strings.Contains(t, "cloudflare") || strings.Contains(t, "attention required")
}

func (b *Browser) pageTitle(ctx context.Context) (string, error) {
	var title string
	stepCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := chromedp.Run(stepCtx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read page title: %w", err)
	}
	return title, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Authenticate fills and submits the login form. When login cannot be
// confirmed it pulls any error banner off the page and returns its text
// verbatim so the caller can classify the failure.
func (b *Browser) Authenticate(ctx context.Context, creds Credentials) error {
	if b.browserCtx == nil {
		return fmt.Errorf("authenticate: browser not open")
	}

	b.currentPassword = creds.Password
	b.logger.Info("logging in", slog.String("username", creds.Username))

	loginURL := strings.TrimRight(b.siteURL, "/") + "/post-in/"
	stepCtx, cancel := context.WithTimeout(b.browserCtx, b.opts.Timeout)
	defer cancel()

	err := chromedp.Run(stepCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(`input[name="username"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="username"]`, creds.Username, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="password"]`, creds.Password, chromedp.ByQuery),
		chromedp.Click(`form button[type="submit"]`, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}

	confirmCtx, cancel := context.WithTimeout(b.browserCtx, b.opts.Timeout)
	defer cancel()
	err = chromedp.Run(confirmCtx,
		chromedp.WaitVisible(`a[href*="logout"]`, chromedp.ByQuery),
	)
	if err == nil {
		b.logger.Info("login confirmed")
		return nil
	}

	if banner := b.errorBanner(); banner != "" {
		return fmt.Errorf("login failed: %s", banner)
	}
	return fmt.Errorf("login failed: could not verify successful login")
}

// errorBanner scrapes visible alert text from the current page. Best
// effort; an empty string means nothing recognizable was found.
func (b *Browser) errorBanner() string {
	stepCtx, cancel := context.WithTimeout(b.browserCtx, 5*time.Second)
	defer cancel()

	var text string
	err := chromedp.Run(stepCtx, chromedp.Evaluate(`
		(() => {
			const el = document.querySelector('.alert-danger, .errorlist, .alert.alert-error, .invalid-feedback');
			return el ? el.innerText.trim() : '';
		})()`, &text))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// ChangePassword generates a strong password, submits the change form,
// and returns the new password once the site confirms it.
func (b *Browser) ChangePassword(ctx context.Context) (string, error) {
	if b.browserCtx == nil {
		return "", fmt.Errorf("change password: browser not open")
	}

	newPassword, err := GeneratePassword()
	if err != nil {
		return "", err
	}

	changeURL := strings.TrimRight(b.siteURL, "/") + "/password-change/"
	b.logger.Info("submitting password change")

	stepCtx, cancel := context.WithTimeout(b.browserCtx, b.opts.Timeout)
	defer cancel()

	err = chromedp.Run(stepCtx,
		chromedp.Navigate(changeURL),
		chromedp.WaitVisible(`input[name="old_password"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="old_password"]`, b.currentPassword, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="new_password1"]`, newPassword, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="new_password2"]`, newPassword, chromedp.ByQuery),
		chromedp.Click(`form button[type="submit"]`, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("submit password change form: %w", err)
	}

	if err := b.confirmPasswordChange(); err != nil {
		return "", err
	}

	b.logger.Info("password change confirmed")
	return newPassword, nil
}

// confirmPasswordChange waits for a success indicator: a confirmation
// message or a redirect back to the login page (the site logs the session
// out after a change).
func (b *Browser) confirmPasswordChange() error {
	deadline := time.Now().Add(b.opts.Timeout)
	for time.Now().Before(deadline) {
		stepCtx, cancel := context.WithTimeout(b.browserCtx, 5*time.Second)

		var confirmed bool
		var location string
		err := chromedp.Run(stepCtx,
			chromedp.Location(&location),
			chromedp.Evaluate(`document.body.innerText.toLowerCase().includes('password change successful')
				|| document.body.innerText.toLowerCase().includes('password has been changed')
				|| document.body.innerText.toLowerCase().includes('successfully')`, &confirmed),
		)
		cancel()
		if err == nil {
			if confirmed || strings.Contains(location, "/post-in/") || strings.Contains(strings.ToLower(location), "login") {
				return nil
			}
		}
		if err := sleepCtx(b.browserCtx, time.Second); err != nil {
			return err
		}
	}

	if banner := b.errorBanner(); banner != "" {
		return fmt.Errorf("password change failed: %s", banner)
	}
	return fmt.Errorf("could not confirm password change")
}

// Close tears down the browser session. Safe to call multiple times and
// on a never-opened actor.
func (b *Browser) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
	b.browserCtx = nil
	b.logger.Info("browser closed")
	return nil
}
