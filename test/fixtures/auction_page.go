// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// NeverOpens keeps the bid button disabled forever.
const NeverOpens = -1

// AuctionPage is an in-memory auction page. The bid button becomes enabled
// after a number of reads; sign data appears once the bid button is clicked;
// the success indicator appears once the confirm button is clicked with a
// non-empty signature filled in.
type AuctionPage struct {
	mu sync.Mutex

	openAfter  int
	buttonRead int
	signData   string

	clicks map[domain.SelectorRole]int
	filled map[domain.SelectorRole]string

	// RejectConfirm keeps the success indicator hidden after confirm.
	RejectConfirm bool
	confirmed     bool
}

// NewAuctionPage creates a page that opens on the openAfter-th bid button read.
func NewAuctionPage(openAfter int, signData string) *AuctionPage {
	return &AuctionPage{
		openAfter: openAfter,
		signData:  signData,
		clicks:    make(map[domain.SelectorRole]int),
		filled:    make(map[domain.SelectorRole]string),
	}
}

func (p *AuctionPage) ReadState(ctx context.Context, role domain.SelectorRole) (domain.ElementState, error) {
	if err := ctx.Err(); err != nil {
		return domain.ElementState{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch role {
	case domain.RoleBidButton:
		p.buttonRead++
		open := p.openAfter != NeverOpens && p.buttonRead >= p.openAfter
		return domain.ElementState{Enabled: open, Text: "Bid"}, nil
	case domain.RoleTimer:
		return domain.ElementState{Enabled: true, Text: "01:00:00"}, nil
	case domain.RoleStatus:
		return domain.ElementState{Enabled: true, Text: "Waiting for start"}, nil
	case domain.RoleSignData:
		if p.clicks[domain.RoleBidButton] == 0 {
			return domain.ElementState{}, domain.ErrElementAbsent
		}
		return domain.ElementState{Enabled: true, Value: p.signData}, nil
	case domain.RoleSignatureInput:
		return domain.ElementState{Enabled: true, Value: p.filled[role]}, nil
	case domain.RoleSuccessIndicator:
		if !p.confirmed {
			return domain.ElementState{}, domain.ErrElementAbsent
		}
		return domain.ElementState{Enabled: true, Text: "Bid confirmed"}, nil
	}
	return domain.ElementState{}, domain.ErrElementAbsent
}

func (p *AuctionPage) Trigger(ctx context.Context, role domain.SelectorRole, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clicks[role]++
	if role == domain.RoleConfirmButton && p.filled[domain.RoleSignatureInput] != "" && !p.RejectConfirm {
		p.confirmed = true
	}
	return nil
}

func (p *AuctionPage) Fill(ctx context.Context, role domain.SelectorRole, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filled[role] = value
	return nil
}

func (p *AuctionPage) WaitFor(ctx context.Context, role domain.SelectorRole, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		_, err := p.ReadState(ctx, role)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrElementAbsent) {
			return err
		}
		if time.Now().After(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Clicks returns how many times role was triggered.
func (p *AuctionPage) Clicks(role domain.SelectorRole) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clicks[role]
}

// Filled returns the value typed into role.
func (p *AuctionPage) Filled(role domain.SelectorRole) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filled[role]
}

// ButtonReads returns how many times the bid button was read.
func (p *AuctionPage) ButtonReads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buttonRead
}

var _ domain.Surface = (*AuctionPage)(nil)
