// Package alerts implements the notification policy: severity mapping,
// dedup windows, portfolio opportunity hurdles and insurance expiry checks.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkallos/arbiter/internal/config"
	"github.com/dkallos/arbiter/internal/modules/allocation"
	"github.com/dkallos/arbiter/internal/modules/scanner"
)

// Severity levels.
const (
	SeverityInfo        = "INFO"
	SeverityOpportunity = "OPPORTUNITY"
	SeverityCritical    = "CRITICAL"
)

// Service applies dedup policy before pushing and recording alerts. Send
// failures are logged, never propagated; alerting must not break a cycle.
type Service struct {
	repo     *Repository
	notifier Notifier
	log      zerolog.Logger
	clock    func() time.Time
}

// NewService creates a new alerts service
func NewService(repo *Repository, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		log:      log.With().Str("service", "alerts").Logger(),
		clock:    time.Now,
	}
}

// shouldSend applies the dedup windows: OPPORTUNITY is silenced for 6h per
// ticker, CRITICAL resends every 15m unless acknowledged. INFO has no
// window beyond its own last-sent check by callers.
func (s *Service) shouldSend(ticker, severity string) bool {
	last, err := s.repo.GetLastAlert(ticker, severity)
	if err != nil {
		s.log.Warn().Err(err).Msg("alert dedup lookup failed")
		return true
	}
	if last == nil {
		return true
	}

	sentAt, err := time.Parse(time.RFC3339, last.SentAt)
	if err != nil {
		return true
	}
	age := s.clock().Sub(sentAt)

	switch severity {
	case SeverityOpportunity:
		return age >= config.OpportunityDedupHours*time.Hour
	case SeverityCritical:
		if last.Acknowledged {
			return false
		}
		return age >= config.CriticalResendMinutes*time.Minute
	}
	return true
}

// send pushes and records one alert.
func (s *Service) send(ctx context.Context, ticker, severity string, msg Message) {
	if err := s.notifier.Push(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("severity", severity).Msg("alert push failed")
	}
	if err := s.repo.InsertAlert(ticker, severity, msg.Body); err != nil {
		s.log.Error().Err(err).Msg("alert history insert failed")
	}
}

// SendInfo notifies that an outside candidate is approaching the switch
// hurdle.
func (s *Service) SendInfo(ctx context.Context, ticker, currentTicker string, bestScore, currentScore float64) {
	if !s.shouldSend(ticker, SeverityInfo) {
		return
	}
	gap := bestScore - currentScore
	body := fmt.Sprintf(
		"Approaching opportunity: %s EMA APR %.1f%% is within %.1f APR points of switching from %s.",
		ticker, bestScore, config.FundingHurdleAPRPoints-gap, currentTicker)
	s.send(ctx, ticker, SeverityInfo, Message{Title: "Arbiter INFO", Body: body, Priority: -1})
	s.log.Info().Str("ticker", ticker).Msg("info alert sent")
}

// SendOpportunity notifies that the switch hurdle has been met.
func (s *Service) SendOpportunity(ctx context.Context, ticker, currentTicker string, bestScore, currentScore float64, isTradingHours bool) {
	if !s.shouldSend(ticker, SeverityOpportunity) {
		return
	}
	advantage := bestScore - currentScore
	timing := "Execute at next NYSE open"
	if isTradingHours {
		timing = "Execute now"
	}
	body := fmt.Sprintf(
		"OPPORTUNITY: Switch from %s to %s. EMA APR advantage: +%.1f APR points (%s %.1f%% vs %s %.1f%%). %s.",
		currentTicker, ticker, advantage, ticker, bestScore, currentTicker, currentScore, timing)
	s.send(ctx, ticker, SeverityOpportunity, Message{Title: "Arbiter OPPORTUNITY", Body: body, Priority: 1})
	if err := s.repo.InsertOpportunity(ticker, bestScore, advantage); err != nil {
		s.log.Error().Err(err).Msg("opportunity log insert failed")
	}
	s.log.Info().Str("ticker", ticker).Float64("advantage", advantage).Msg("opportunity alert sent")
}

// SendCritical notifies about a safety failure with acknowledged delivery.
func (s *Service) SendCritical(ctx context.Context, ticker, reason string) {
	if !s.shouldSend(ticker, SeverityCritical) {
		return
	}
	body := fmt.Sprintf("CRITICAL for %s: %s", ticker, reason)
	s.send(ctx, ticker, SeverityCritical, Message{Title: "Arbiter CRITICAL", Body: body, Priority: 2})
	s.log.Warn().Str("ticker", ticker).Str("reason", reason).Msg("critical alert sent")
}

// CheckInsuranceExpiry alerts on covers already expired (CRITICAL) or
// expiring within 7 days (INFO).
func (s *Service) CheckInsuranceExpiry(ctx context.Context) {
	covers, err := s.repo.ListCovers()
	if err != nil {
		s.log.Error().Err(err).Msg("cover listing failed")
		return
	}

	today := s.clock().UTC().Truncate(24 * time.Hour)
	for _, cover := range covers {
		expiry, err := time.Parse("2006-01-02", cover.ExpiryDate)
		if err != nil {
			continue
		}
		daysLeft := int(expiry.Sub(today).Hours() / 24)
		key := fmt.Sprintf("insurance_%d", cover.ID)

		switch {
		case daysLeft < 0:
			s.SendCritical(ctx, key, fmt.Sprintf("%s cover ($%.0f) EXPIRED", cover.CoverType, cover.Amount))
		case daysLeft <= 7:
			if !s.shouldSend(key, SeverityInfo) {
				continue
			}
			plural := "s"
			if daysLeft == 1 {
				plural = ""
			}
			body := fmt.Sprintf("%s cover ($%.0f) expires in %d day%s.",
				cover.CoverType, cover.Amount, daysLeft, plural)
			s.send(ctx, key, SeverityInfo, Message{Title: "Arbiter: Cover Expiring", Body: body, Priority: 0})
		}
	}
}

// Evaluate compares the best candidate outside the portfolio against the
// weakest held position and fires the hurdle alerts. Candidates must arrive
// sorted by score descending.
func (s *Service) Evaluate(ctx context.Context, result scanner.ScanResult, positions []allocation.Position) {
	s.CheckInsuranceExpiry(ctx)

	if len(positions) == 0 {
		return
	}

	worst := positions[0]
	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Coin] = true
		if p.Score < worst.Score {
			worst = p
		}
	}

	var bestOutside *scanner.Candidate
	for i := range result.Candidates {
		if !held[result.Candidates[i].Coin] {
			bestOutside = &result.Candidates[i]
			break
		}
	}
	if bestOutside == nil {
		return
	}

	advantage := bestOutside.Score - worst.Score
	switch {
	case advantage >= config.FundingHurdleAPRPoints:
		s.SendOpportunity(ctx, bestOutside.Ticker, worst.Ticker, bestOutside.Score, worst.Score, result.IsTradingHours)
	case advantage >= config.FundingApproachAPRPoints:
		s.SendInfo(ctx, bestOutside.Ticker, worst.Ticker, bestOutside.Score, worst.Score)
	}
}
