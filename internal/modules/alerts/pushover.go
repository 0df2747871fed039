package alerts

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const pushoverAPIURL = "https://api.pushover.net/1/messages.json"

// Emergency delivery parameters for priority 2.
const (
	emergencyRetrySeconds  = 300
	emergencyExpireSeconds = 3600
)

// Message is one outbound notification. Priority follows Pushover semantics:
// -1 quiet, 0 normal, 1 high, 2 emergency (acknowledged delivery).
type Message struct {
	Title    string
	Body     string
	Priority int
}

// Notifier delivers messages to the user's devices.
type Notifier interface {
	Push(ctx context.Context, msg Message) error
}

// Pushover sends messages through the Pushover API. With empty credentials
// every push is a logged no-op, so a dev setup runs without an account.
type Pushover struct {
	client   *http.Client
	apiURL   string
	appToken string
	userKey  string
	log      zerolog.Logger
}

// NewPushover creates a Pushover notifier.
func NewPushover(appToken, userKey string, log zerolog.Logger) *Pushover {
	return &Pushover{
		client:   &http.Client{Timeout: 10 * time.Second},
		apiURL:   pushoverAPIURL,
		appToken: appToken,
		userKey:  userKey,
		log:      log.With().Str("client", "pushover").Logger(),
	}
}

// Push sends one notification. Priority 2 carries retry/expire so Pushover
// re-delivers until acknowledged.
func (p *Pushover) Push(ctx context.Context, msg Message) error {
	if p.appToken == "" || p.userKey == "" {
		p.log.Info().Str("title", msg.Title).Msg("pushover not configured, skipping")
		return nil
	}

	form := url.Values{
		"token":    {p.appToken},
		"user":     {p.userKey},
		"title":    {msg.Title},
		"message":  {msg.Body},
		"priority": {strconv.Itoa(msg.Priority)},
	}
	if msg.Priority == 2 {
		form.Set("retry", strconv.Itoa(emergencyRetrySeconds))
		form.Set("expire", strconv.Itoa(emergencyExpireSeconds))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover returned status %d", resp.StatusCode)
	}
	return nil
}
