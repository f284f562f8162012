// Package funding models the external payment channels a user can top up
// from. A channel authorizes the incoming funds and issues the reference
// recorded on the topup transaction.
package funding

import (
	"context"
	"crypto/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bayarin/bayarin/internal/apperr"
)

// Channel is a supported topup source with its per-transaction limits in
// minor units.
type Channel struct {
	Code      string
	Name      string
	MinAmount int64
	MaxAmount int64
}

// Authorization captures the channel's approval of incoming funds.
type Authorization struct {
	Reference string
	Channel   Channel
	Amount    int64
	Status    string
}

// Authorizer approves topups. Implementations talk to the payment gateway.
type Authorizer interface {
	Authorize(ctx context.Context, channelCode string, amount int64) (Authorization, error)
}

// StaticChannels approves every topup that passes the channel limits. It
// stands in for a gateway integration.
type StaticChannels struct {
	channels map[string]Channel

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewStaticChannels builds an Authorizer for the given channels.
func NewStaticChannels(channels ...Channel) *StaticChannels {
	byCode := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byCode[strings.ToUpper(ch.Code)] = ch
	}
	return &StaticChannels{channels: byCode, entropy: ulid.Monotonic(rand.Reader, 0)}
}

// DefaultChannels lists the virtual account and e-money channels accepted out of the box.
func DefaultChannels() []Channel {
	const (
		minTopup = 10_000          // Rp 100
		maxVA    = 5_000_000_000   // Rp 50.000.000
		maxEWal  = 1_000_000_000   // Rp 10.000.000
		maxQRIS  = 200_000_000     // Rp 2.000.000
	)
	return []Channel{
		{Code: "BCA_VA", Name: "BCA Virtual Account", MinAmount: minTopup, MaxAmount: maxVA},
		{Code: "BNI_VA", Name: "BNI Virtual Account", MinAmount: minTopup, MaxAmount: maxVA},
		{Code: "BRI_VA", Name: "BRI Virtual Account", MinAmount: minTopup, MaxAmount: maxVA},
		{Code: "MANDIRI_VA", Name: "Mandiri Virtual Account", MinAmount: minTopup, MaxAmount: maxVA},
		{Code: "GOPAY", Name: "GoPay", MinAmount: minTopup, MaxAmount: maxEWal},
		{Code: "OVO", Name: "OVO", MinAmount: minTopup, MaxAmount: maxEWal},
		{Code: "DANA", Name: "DANA", MinAmount: minTopup, MaxAmount: maxEWal},
		{Code: "QRIS", Name: "QRIS", MinAmount: minTopup, MaxAmount: maxQRIS},
	}
}

// Channels returns the configured channels ordered by code.
func (s *StaticChannels) Channels() []Channel {
	list := make([]Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		list = append(list, ch)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list
}

// Authorize checks the channel and its limits and issues a TOPUP- reference.
func (s *StaticChannels) Authorize(_ context.Context, channelCode string, amount int64) (Authorization, error) {
	ch, ok := s.channels[strings.ToUpper(strings.TrimSpace(channelCode))]
	if !ok {
		return Authorization{}, apperr.Validation("unsupported channel_code %q", channelCode)
	}
	if amount < ch.MinAmount {
		return Authorization{}, apperr.Validation("minimum topup via %s is %d", ch.Code, ch.MinAmount)
	}
	if ch.MaxAmount > 0 && amount > ch.MaxAmount {
		return Authorization{}, apperr.Validation("maximum topup via %s is %d", ch.Code, ch.MaxAmount)
	}
	return Authorization{Reference: "TOPUP-" + s.nextID(), Channel: ch, Amount: amount, Status: "approved"}, nil
}

func (s *StaticChannels) nextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}
