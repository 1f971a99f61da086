package alert

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"nyordd/internal/notif"
	logx "nyordd/pkg/logx"
)

type Config struct {
	Enabled    bool
	StateDir   string
	RatePerSec float64

	// AutoClose is how long non-sticky alerts stay up (default 5s).
	AutoClose time.Duration
}

// Service is the desktop alert channel. It owns the consent gate and a rate
// limiter; the actual rendering is delegated to the Platform.
type Service struct {
	log      logx.Logger
	cfg      Config
	platform Platform
	consent  *Consent
	limiter  *rate.Limiter
}

func New(cfg Config, platform Platform, log logx.Logger) *Service {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	if cfg.AutoClose <= 0 {
		cfg.AutoClose = 5 * time.Second
	}
	return &Service{
		log:      log.With(logx.String("service", "alert")),
		cfg:      cfg,
		platform: platform,
		consent:  NewConsent(cfg.StateDir),
		limiter:  rate.NewLimiter(rate.Limit(rps), int(math.Ceil(rps))),
	}
}

func (s *Service) Supported() bool {
	return s.cfg.Enabled && s.platform != nil && s.platform.Supported()
}

// Permission reads the persisted consent. Always a fresh read, never a
// cached copy.
func (s *Service) Permission() notif.Permission {
	return s.consent.Get()
}

// RequestPermission resolves the consent tri-state. Without platform support
// the answer is denied and is persisted as such (fail closed). A prior denial
// is final until the consent file is removed. Only the default state is
// promoted to granted.
func (s *Service) RequestPermission(ctx context.Context) (notif.Permission, error) {
	_ = ctx
	if !s.Supported() {
		if err := s.consent.Set(notif.PermissionDenied); err != nil {
			return notif.PermissionDenied, err
		}
		return notif.PermissionDenied, nil
	}
	cur := s.consent.Get()
	if cur != notif.PermissionDefault {
		return cur, nil
	}
	if err := s.consent.Set(notif.PermissionGranted); err != nil {
		return cur, err
	}
	s.log.Info("alert consent granted")
	return notif.PermissionGranted, nil
}

// Enabled is the routing predicate: platform support plus granted consent.
func (s *Service) Enabled() bool {
	return s.Supported() && s.consent.Get() == notif.PermissionGranted
}

// Show posts one alert if the channel is enabled and inside the rate budget.
// A suppressed alert is not an error.
func (s *Service) Show(ctx context.Context, req Request) error {
	if !s.Enabled() {
		s.log.Debug("alert suppressed: channel disabled", logx.String("tag", req.Tag))
		return nil
	}
	if !s.limiter.Allow() {
		s.log.Warn("alert suppressed: rate limit", logx.String("tag", req.Tag))
		return nil
	}
	if req.Expire == 0 {
		req.Expire = s.cfg.AutoClose
	}
	if _, err := s.platform.Show(ctx, req); err != nil {
		return fmt.Errorf("show alert: %w", err)
	}
	return nil
}

// ShowRecord renders a record with its category-specific shape.
func (s *Service) ShowRecord(ctx context.Context, rec notif.Record) error {
	switch rec.Category {
	case notif.CategoryTransaction:
		return s.showTransaction(ctx, rec)
	case notif.CategoryLoan:
		return s.showLoan(ctx, rec)
	case notif.CategoryKYC:
		return s.showKYC(ctx, rec)
	case notif.CategoryAccount:
		return s.showAccount(ctx, rec)
	default:
		return s.Show(ctx, Request{
			Title: orDefault(rec.Title, "Nyord Banking"),
			Body:  rec.Message,
			Tag:   "notification-" + rec.ID,
		})
	}
}

func (s *Service) showTransaction(ctx context.Context, rec notif.Record) error {
	credit := rec.Amount > 0 || rec.Type == "credit"
	title := "Money Sent"
	dir := "to"
	if credit {
		title = "Money Received"
		dir = "from"
	}
	body := rec.Message
	if rec.Amount != 0 && rec.FromUserName != "" {
		body = fmt.Sprintf("$%s %s %s", formatAmount(rec.Amount), dir, rec.FromUserName)
	}
	return s.Show(ctx, Request{
		Title: title,
		Body:  body,
		Tag:   "transaction-" + rec.ID,
	})
}

func (s *Service) showLoan(ctx context.Context, rec notif.Record) error {
	title := "Loan Update"
	if rec.Approved() {
		title = "Loan Approved"
	}
	return s.Show(ctx, Request{
		Title:  title,
		Body:   rec.Message,
		Tag:    "loan-notification",
		Sticky: rec.Approved(),
	})
}

func (s *Service) showKYC(ctx context.Context, rec notif.Record) error {
	title := "KYC Update"
	if rec.Approved() {
		title = "KYC Approved"
	}
	return s.Show(ctx, Request{
		Title:  title,
		Body:   rec.Message,
		Tag:    "kyc-notification",
		Sticky: rec.Approved(),
	})
}

func (s *Service) showAccount(ctx context.Context, rec notif.Record) error {
	return s.Show(ctx, Request{
		Title: "Nyord Banking",
		Body:  rec.Message,
		Tag:   "account-" + orDefault(rec.Type, "info"),
	})
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(math.Abs(v), 'f', -1, 64)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
