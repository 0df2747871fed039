package alerts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkallos/arbiter/internal/database"
	"github.com/dkallos/arbiter/internal/modules/allocation"
	"github.com/dkallos/arbiter/internal/modules/scanner"
)

type fakeNotifier struct {
	sent []Message
}

func (f *fakeNotifier) Push(_ context.Context, msg Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

var testDBSeq int

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	testDBSeq++
	db, err := database.New(database.Config{
		Path: fmt.Sprintf("file:alerts_test_%d?mode=memory&cache=shared", testDBSeq),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db.Conn())
}

func newTestService(t *testing.T) (*Service, *fakeNotifier, *Repository) {
	t.Helper()
	repo := newTestRepo(t)
	notifier := &fakeNotifier{}
	svc := NewService(repo, notifier, zerolog.Nop())
	return svc, notifier, repo
}

func TestSendCriticalAndDedup(t *testing.T) {
	svc, notifier, _ := newTestService(t)
	ctx := context.Background()

	svc.SendCritical(ctx, "SYSTEM", "refresh job failed")
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, 2, notifier.sent[0].Priority)
	assert.Contains(t, notifier.sent[0].Body, "CRITICAL for SYSTEM")

	// Within the resend window: silenced.
	svc.SendCritical(ctx, "SYSTEM", "refresh job failed")
	assert.Len(t, notifier.sent, 1)

	// After the window: resent.
	svc.clock = func() time.Time { return time.Now().Add(16 * time.Minute) }
	svc.SendCritical(ctx, "SYSTEM", "refresh job failed")
	assert.Len(t, notifier.sent, 2)
}

func TestAcknowledgedCriticalStaysSilent(t *testing.T) {
	svc, notifier, repo := newTestService(t)
	ctx := context.Background()

	svc.SendCritical(ctx, "SYSTEM", "refresh job failed")
	require.Len(t, notifier.sent, 1)

	alerts, err := repo.ListAlerts(10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.NoError(t, repo.Acknowledge(alerts[0].ID))

	// Even past the resend window, the ack holds.
	svc.clock = func() time.Time { return time.Now().Add(2 * time.Hour) }
	svc.SendCritical(ctx, "SYSTEM", "refresh job failed")
	assert.Len(t, notifier.sent, 1)
}

func TestOpportunityDedupWindow(t *testing.T) {
	svc, notifier, repo := newTestService(t)
	ctx := context.Background()

	svc.SendOpportunity(ctx, "NVDA", "TSLA", 45, 20, true)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, 1, notifier.sent[0].Priority)
	assert.Contains(t, notifier.sent[0].Body, "Execute now")

	svc.SendOpportunity(ctx, "NVDA", "TSLA", 46, 20, true)
	assert.Len(t, notifier.sent, 1) // 6h window

	svc.clock = func() time.Time { return time.Now().Add(7 * time.Hour) }
	svc.SendOpportunity(ctx, "NVDA", "TSLA", 46, 20, false)
	require.Len(t, notifier.sent, 2)
	assert.Contains(t, notifier.sent[1].Body, "Execute at next NYSE open")

	alerts, err := repo.ListAlerts(10)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestEvaluateHurdles(t *testing.T) {
	positions := []allocation.Position{
		{Coin: "xyz:TSLA", Ticker: "TSLA", Score: 20},
		{Coin: "xyz:AAPL", Ticker: "AAPL", Score: 30},
	}

	t.Run("advantage above hurdle fires opportunity", func(t *testing.T) {
		svc, notifier, _ := newTestService(t)
		result := scanner.ScanResult{
			Candidates:     []scanner.Candidate{{Coin: "xyz:NVDA", Ticker: "NVDA", Score: 45}},
			IsTradingHours: true,
		}
		svc.Evaluate(context.Background(), result, positions)
		require.Len(t, notifier.sent, 1)
		assert.Equal(t, 1, notifier.sent[0].Priority)
		// Compared against the worst held position, TSLA at 20.
		assert.Contains(t, notifier.sent[0].Body, "Switch from TSLA to NVDA")
	})

	t.Run("advantage approaching hurdle fires info", func(t *testing.T) {
		svc, notifier, _ := newTestService(t)
		result := scanner.ScanResult{
			Candidates: []scanner.Candidate{{Coin: "xyz:NVDA", Ticker: "NVDA", Score: 32}},
		}
		svc.Evaluate(context.Background(), result, positions)
		require.Len(t, notifier.sent, 1)
		assert.Equal(t, -1, notifier.sent[0].Priority)
	})

	t.Run("small advantage stays quiet", func(t *testing.T) {
		svc, notifier, _ := newTestService(t)
		result := scanner.ScanResult{
			Candidates: []scanner.Candidate{{Coin: "xyz:NVDA", Ticker: "NVDA", Score: 25}},
		}
		svc.Evaluate(context.Background(), result, positions)
		assert.Empty(t, notifier.sent)
	})

	t.Run("held candidates are skipped", func(t *testing.T) {
		svc, notifier, _ := newTestService(t)
		result := scanner.ScanResult{
			Candidates: []scanner.Candidate{
				{Coin: "xyz:AAPL", Ticker: "AAPL", Score: 60}, // already held
				{Coin: "xyz:NVDA", Ticker: "NVDA", Score: 45},
			},
			IsTradingHours: true,
		}
		svc.Evaluate(context.Background(), result, positions)
		require.Len(t, notifier.sent, 1)
		assert.Contains(t, notifier.sent[0].Body, "NVDA")
	})

	t.Run("empty portfolio stays quiet", func(t *testing.T) {
		svc, notifier, _ := newTestService(t)
		result := scanner.ScanResult{
			Candidates: []scanner.Candidate{{Coin: "xyz:NVDA", Ticker: "NVDA", Score: 90}},
		}
		svc.Evaluate(context.Background(), result, nil)
		assert.Empty(t, notifier.sent)
	})
}

func TestCheckInsuranceExpiry(t *testing.T) {
	svc, notifier, repo := newTestService(t)
	ctx := context.Background()
	today := time.Now().UTC()

	_, err := repo.AddCover(Cover{CoverType: "smart contract", Amount: 500_000,
		ExpiryDate: today.AddDate(0, 0, -2).Format("2006-01-02")})
	require.NoError(t, err)
	_, err = repo.AddCover(Cover{CoverType: "custody", Amount: 250_000,
		ExpiryDate: today.AddDate(0, 0, 3).Format("2006-01-02")})
	require.NoError(t, err)
	_, err = repo.AddCover(Cover{CoverType: "depeg", Amount: 100_000,
		ExpiryDate: today.AddDate(0, 0, 60).Format("2006-01-02")})
	require.NoError(t, err)

	svc.CheckInsuranceExpiry(ctx)

	require.Len(t, notifier.sent, 2)
	bodies := notifier.sent[0].Body + " | " + notifier.sent[1].Body
	assert.Contains(t, bodies, "EXPIRED")
	assert.Contains(t, bodies, "expires in 3 days")
	assert.NotContains(t, bodies, "depeg")
}

func TestCoversCRUD(t *testing.T) {
	repo := newTestRepo(t)

	id, err := repo.AddCover(Cover{CoverType: "smart contract", Amount: 500_000, ExpiryDate: "2026-12-31"})
	require.NoError(t, err)

	covers, err := repo.ListCovers()
	require.NoError(t, err)
	require.Len(t, covers, 1)
	assert.Equal(t, "Nexus Mutual", covers[0].Provider) // default provider
	assert.Equal(t, "smart contract", covers[0].CoverType)

	require.NoError(t, repo.DeleteCover(id))
	covers, err = repo.ListCovers()
	require.NoError(t, err)
	assert.Empty(t, covers)
}
