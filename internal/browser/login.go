// Package browser drives the institution's login page with a real
// Chrome instance and captures the session token cookie. Needed
// because some deployments only issue tokens through an interactive
// form (SSO redirects, captcha), never through a token endpoint.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// tokenPollInterval and tokenWait bound how long we wait for the login
// flow to set the token cookie. Generous on purpose: with a visible
// browser the user may be solving a captcha or a 2FA prompt.
const (
	tokenPollInterval = 2 * time.Second
	tokenWait         = 3 * time.Minute
)

var ErrNoToken = errors.New("login finished without a session token cookie")

// FormSelectors locates the login form on the page.
type FormSelectors struct {
	Username string
	Password string
	Submit   string
}

// Login manages the Chrome instance used for the login flow.
type Login struct {
	profileDir string
	headless   bool
	logger     *slog.Logger
}

type Config struct {
	ProfileDir string // Chrome user data directory (persists cookies/sessions)
	Headless   bool
	Logger     *slog.Logger
}

func New(cfg Config) *Login {
	if cfg.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ProfileDir = filepath.Join(home, ".lmsync", "chrome-profiles", "default")
	}
	return &Login{
		profileDir: cfg.ProfileDir,
		headless:   cfg.Headless,
		logger:     cfg.Logger,
	}
}

func (l *Login) newContext(parent context.Context) (context.Context, context.CancelFunc) {
	if err := os.MkdirAll(l.profileDir, 0o755); err != nil {
		l.logger.Error("failed to create profile dir", "dir", l.profileDir, "err", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(l.profileDir),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
	)

	if l.headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}
}

// CaptureToken performs the login flow and returns the value of the
// named session cookie. When username is empty the form fill is
// skipped and the user logs in by hand in the visible browser; the
// cookie poll picks the token up either way.
func (l *Login) CaptureToken(ctx context.Context, loginURL string, sel FormSelectors, username, password, tokenCookie string) (string, error) {
	taskCtx, cancel := l.newContext(ctx)
	defer cancel()

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitReady("body"),
	); err != nil {
		return "", fmt.Errorf("open login page: %w", err)
	}

	if username != "" {
		l.logger.Info("submitting login form", "url", loginURL)
		err := chromedp.Run(taskCtx,
			chromedp.WaitVisible(sel.Username, chromedp.ByQuery),
			chromedp.SendKeys(sel.Username, username, chromedp.ByQuery),
			chromedp.SendKeys(sel.Password, password, chromedp.ByQuery),
			chromedp.Click(sel.Submit, chromedp.ByQuery),
		)
		if err != nil {
			return "", fmt.Errorf("submit login form: %w", err)
		}
	} else {
		l.logger.Info("browser opened, please log in manually", "url", loginURL)
	}

	return l.waitForCookie(taskCtx, tokenCookie)
}

// waitForCookie polls the browser's cookie jar until the token cookie
// appears. The cookie is usually HttpOnly, so it is read through the
// devtools protocol rather than page JavaScript.
func (l *Login) waitForCookie(taskCtx context.Context, name string) (string, error) {
	deadline := time.Now().Add(tokenWait)
	for {
		var token string
		err := chromedp.Run(taskCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			cookies, err := network.GetCookies().Do(ctx)
			if err != nil {
				return err
			}
			for _, c := range cookies {
				if c.Name == name {
					token = c.Value
					return nil
				}
			}
			return nil
		}))
		if err != nil {
			return "", fmt.Errorf("read cookies: %w", err)
		}
		if token != "" {
			l.logger.Info("session token captured", "cookie", name)
			return token, nil
		}

		if time.Now().After(deadline) {
			return "", ErrNoToken
		}
		select {
		case <-taskCtx.Done():
			return "", taskCtx.Err()
		case <-time.After(tokenPollInterval):
		}
	}
}
