package model

import (
	"fmt"
	"strconv"
	"time"
)

const (
	SchemaVersion       = "2.0"
	SchemaVersionLegacy = "1.0"

	// HistoryLimit bounds the switch log; the oldest event is dropped first.
	HistoryLimit = 10
)

// Registry is the on-disk account document. Account numbers are
// string-encoded in the accounts map to keep the JSON shape stable; the
// sequence slice carries registration order.
type Registry struct {
	SchemaVersion       string                   `json:"schemaVersion"`
	ActiveAccountNumber *int                     `json:"activeAccountNumber,omitempty"`
	LastUpdated         time.Time                `json:"lastUpdated"`
	Sequence            []int                    `json:"sequence"`
	Accounts            map[string]AccountRecord `json:"accounts"`
	History             []SwitchEvent            `json:"history"`
}

func NewRegistry() *Registry {
	return &Registry{
		SchemaVersion: SchemaVersion,
		Sequence:      []int{},
		Accounts:      map[string]AccountRecord{},
		History:       []SwitchEvent{},
	}
}

func Key(number int) string {
	return strconv.Itoa(number)
}

func (r *Registry) Account(number int) (AccountRecord, bool) {
	rec, ok := r.Accounts[Key(number)]
	return rec, ok
}

// SetAccount stores the record and appends the number to the sequence when
// it is not yet registered.
func (r *Registry) SetAccount(number int, rec AccountRecord) {
	if r.Accounts == nil {
		r.Accounts = map[string]AccountRecord{}
	}
	key := Key(number)
	if _, ok := r.Accounts[key]; !ok {
		r.Sequence = append(r.Sequence, number)
	}
	r.Accounts[key] = rec
}

// RemoveAccount drops the record, its sequence slot and, when it was the
// active account, the active pointer.
func (r *Registry) RemoveAccount(number int) {
	delete(r.Accounts, Key(number))
	for i, n := range r.Sequence {
		if n == number {
			r.Sequence = append(r.Sequence[:i], r.Sequence[i+1:]...)
			break
		}
	}
	if r.ActiveAccountNumber != nil && *r.ActiveAccountNumber == number {
		r.ActiveAccountNumber = nil
	}
}

// NextNumber returns one past the highest number ever listed in the
// sequence or accounts map. Removed numbers are not reused as long as a
// higher number remains registered.
func (r *Registry) NextNumber() int {
	max := 0
	for _, n := range r.Sequence {
		if n > max {
			max = n
		}
	}
	for key := range r.Accounts {
		if n, err := strconv.Atoi(key); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// Numbers returns the account numbers in registration order.
func (r *Registry) Numbers() []int {
	out := make([]int, len(r.Sequence))
	copy(out, r.Sequence)
	return out
}

func (r *Registry) Active() int {
	if r.ActiveAccountNumber == nil {
		return 0
	}
	return *r.ActiveAccountNumber
}

func (r *Registry) SetActive(number int) {
	n := number
	r.ActiveAccountNumber = &n
}

func (r *Registry) ClearActive() {
	r.ActiveAccountNumber = nil
}

// FindByEmail matches case-insensitively and returns the lowest sequence
// position on (theoretically impossible) duplicates.
func (r *Registry) FindByEmail(email string) (int, bool) {
	want := CanonicalEmail(email)
	for _, n := range r.Sequence {
		if rec, ok := r.Account(n); ok && CanonicalEmail(rec.Email) == want {
			return n, true
		}
	}
	return 0, false
}

func (r *Registry) FindByAlias(alias string) (int, bool) {
	for _, n := range r.Sequence {
		rec, ok := r.Account(n)
		if ok && rec.Alias != nil && *rec.Alias == alias {
			return n, true
		}
	}
	return 0, false
}

// NextAfter returns the circular successor of current in the sequence.
// When current is not registered the first account is returned.
func (r *Registry) NextAfter(current int) (int, bool) {
	if len(r.Sequence) == 0 {
		return 0, false
	}
	for i, n := range r.Sequence {
		if n == current {
			return r.Sequence[(i+1)%len(r.Sequence)], true
		}
	}
	return r.Sequence[0], true
}

// AppendSwitch logs a completed switch, trimming the oldest events beyond
// HistoryLimit.
func (r *Registry) AppendSwitch(from, to int, at time.Time) {
	r.History = append(r.History, SwitchEvent{From: from, To: to, Timestamp: at})
	if over := len(r.History) - HistoryLimit; over > 0 {
		r.History = append([]SwitchEvent{}, r.History[over:]...)
	}
}

func (r *Registry) LastSwitch() (SwitchEvent, bool) {
	if len(r.History) == 0 {
		return SwitchEvent{}, false
	}
	return r.History[len(r.History)-1], true
}

// Clone returns a deep copy so callers can mutate a working document
// without touching cached state.
func (r *Registry) Clone() *Registry {
	out := &Registry{
		SchemaVersion: r.SchemaVersion,
		LastUpdated:   r.LastUpdated,
		Sequence:      make([]int, len(r.Sequence)),
		Accounts:      make(map[string]AccountRecord, len(r.Accounts)),
		History:       make([]SwitchEvent, len(r.History)),
	}
	copy(out.Sequence, r.Sequence)
	copy(out.History, r.History)
	if r.ActiveAccountNumber != nil {
		n := *r.ActiveAccountNumber
		out.ActiveAccountNumber = &n
	}
	for key, rec := range r.Accounts {
		if rec.Alias != nil {
			a := *rec.Alias
			rec.Alias = &a
		}
		if rec.LastUsed != nil {
			t := *rec.LastUsed
			rec.LastUsed = &t
		}
		out.Accounts[key] = rec
	}
	return out
}

// Validate checks the structural invariants of a current-version document:
// sequence and accounts agree, the active pointer resolves, emails are
// well-formed and unique, aliases are well-formed and unique, counters and
// history entries are in range.
func (r *Registry) Validate() error {
	if r.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unexpected schemaVersion %q", r.SchemaVersion)
	}

	seen := make(map[int]bool, len(r.Sequence))
	for _, n := range r.Sequence {
		if n < 1 {
			return fmt.Errorf("sequence contains invalid account number %d", n)
		}
		if seen[n] {
			return fmt.Errorf("sequence lists account %d twice", n)
		}
		seen[n] = true
		if _, ok := r.Accounts[Key(n)]; !ok {
			return fmt.Errorf("sequence lists account %d with no record", n)
		}
	}
	if len(r.Accounts) != len(r.Sequence) {
		return fmt.Errorf("accounts holds %d records but sequence lists %d", len(r.Accounts), len(r.Sequence))
	}

	if r.ActiveAccountNumber != nil {
		if _, ok := r.Account(*r.ActiveAccountNumber); !ok {
			return fmt.Errorf("activeAccountNumber %d has no record", *r.ActiveAccountNumber)
		}
	}

	emails := make(map[string]int, len(r.Accounts))
	aliases := make(map[string]int, len(r.Accounts))
	for key, rec := range r.Accounts {
		n, err := strconv.Atoi(key)
		if err != nil || n < 1 {
			return fmt.Errorf("accounts key %q is not a positive integer", key)
		}
		if !ValidEmail(rec.Email) {
			return fmt.Errorf("account %d: invalid email %q", n, rec.Email)
		}
		if rec.UUID == "" {
			return fmt.Errorf("account %d: missing uuid", n)
		}
		if prev, dup := emails[CanonicalEmail(rec.Email)]; dup {
			return fmt.Errorf("accounts %d and %d share email %q", prev, n, rec.Email)
		}
		emails[CanonicalEmail(rec.Email)] = n
		if rec.Alias != nil {
			if !ValidAlias(*rec.Alias) {
				return fmt.Errorf("account %d: invalid alias %q", n, *rec.Alias)
			}
			if prev, dup := aliases[*rec.Alias]; dup {
				return fmt.Errorf("accounts %d and %d share alias %q", prev, n, *rec.Alias)
			}
			aliases[*rec.Alias] = n
		}
		if rec.UsageCount < 0 {
			return fmt.Errorf("account %d: negative usageCount", n)
		}
		if !rec.HealthStatus.Valid() {
			return fmt.Errorf("account %d: invalid healthStatus %q", n, rec.HealthStatus)
		}
	}

	if len(r.History) > HistoryLimit {
		return fmt.Errorf("history holds %d events, limit is %d", len(r.History), HistoryLimit)
	}
	for i, ev := range r.History {
		if ev.From < 0 || ev.To < 1 {
			return fmt.Errorf("history[%d]: invalid transition %d -> %d", i, ev.From, ev.To)
		}
	}
	return nil
}
