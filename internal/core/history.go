package core

import (
	"context"
	"fmt"
	"time"
)

// HistoryEntry is one recorded switch, newest last. From is zero when
// the switch started from a signed-out or unmanaged session; emails are
// resolved best effort and empty for accounts removed since.
type HistoryEntry struct {
	From      int       `json:"from"`
	FromEmail string    `json:"fromEmail,omitempty"`
	To        int       `json:"to"`
	ToEmail   string    `json:"toEmail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// History returns the recorded switches in chronological order.
func (e *Engine) History() ([]HistoryEntry, error) {
	reg, err := e.registry.LoadOrInit()
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(reg.History))
	for _, ev := range reg.History {
		entry := HistoryEntry{From: ev.From, To: ev.To, Timestamp: ev.Timestamp}
		if rec, ok := reg.Account(ev.From); ok {
			entry.FromEmail = rec.Email
		}
		if rec, ok := reg.Account(ev.To); ok {
			entry.ToEmail = rec.Email
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Undo switches back to the account the most recent switch came from.
// It is a regular switch, so it records its own history event rather
// than popping the old one.
func (e *Engine) Undo(ctx context.Context) (*SwitchResult, error) {
	reg, err := e.registry.Load()
	if err != nil {
		return nil, err
	}
	last, ok := reg.LastSwitch()
	if !ok {
		return nil, ErrNothingToUndo
	}
	if last.From == 0 {
		return nil, fmt.Errorf("%w: the last switch started from an unmanaged session", ErrUndoTargetMissing)
	}
	if _, ok := reg.Account(last.From); !ok {
		return nil, fmt.Errorf("%w: account %d has been removed", ErrUndoTargetMissing, last.From)
	}
	return e.Switch(ctx, last.From)
}
