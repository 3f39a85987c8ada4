// Package idempotency guarantees at-most-once side effects for retried
// or concurrent mutating requests.
//
// The client-supplied key is the only signal that separates "network
// retry of the same logical request" from "a new request". Admit folds
// the racy check-then-act into a single atomic conditional create in the
// coordination store, so two concurrent identical requests cannot both
// pass.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pairbox-app/pairbox/internal/apperrors"
	"github.com/pairbox-app/pairbox/internal/keyval"
)

// Scope namespaces idempotency keys per feature. The set is closed on
// purpose: two features must never share a scope literal.
type Scope string

const (
	// Media upload registration
	ScopeUpload Scope = "upload"

	// Couple link creation
	ScopePairing Scope = "pairing"
)

type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusDone       Status = "DONE"
)

// record is the stored coordination entry. Response stays empty until
// the operation finalizes.
type record struct {
	Status   Status          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Admission is the outcome of Admit. When Admitted is false the caller
// must return Response verbatim instead of redoing the side effect.
type Admission struct {
	Admitted bool
	Response json.RawMessage
}

// Long enough to cover realistic operation latency, short enough that a
// slot orphaned by a crash frees itself
const defaultRecordTTL = 10 * time.Minute

// Gate config with sensible defaults
type Config struct {
	// How long an idempotency record lives. After expiry the same key
	// is treated as a brand new request.
	// If not set then default is used
	RecordTTL time.Duration
}

type Gate struct {
	store keyval.Store
	ttl   time.Duration
}

func NewGate(cfg Config, store keyval.Store) (*Gate, error) {
	if store == nil {
		return nil, errors.New("keyval store must not be nil")
	}

	if cfg.RecordTTL == 0 {
		cfg.RecordTTL = defaultRecordTTL
	}

	return &Gate{store: store, ttl: cfg.RecordTTL}, nil
}

// Coordination store key: idempotency:<scope>:<user_id>:<key>. The
// layout is a compatibility surface, changing it resets every in-flight
// idempotency window.
func recordKey(scope Scope, userID uuid.UUID, key uuid.UUID) string {
	return fmt.Sprintf("idempotency:%s:%s:%s", scope, userID, key)
}

// Admit decides whether the caller may execute the side effect.
// Exactly one of the concurrent calls for a never-seen key is admitted;
// the rest see either ErrRequestInProgress or the finalized response.
func (g *Gate) Admit(ctx context.Context, scope Scope, userID uuid.UUID, key uuid.UUID) (Admission, error) {
	fresh, err := json.Marshal(record{Status: StatusProcessing})
	if err != nil {
		return Admission{}, fmt.Errorf("error while encoding idempotency record. Err: %w", err)
	}

	storeKey := recordKey(scope, userID, key)

	// Two attempts: the record may expire between SetNX and Get, in
	// which case the slot is free again and one retry settles it.
	for range 2 {
		created, err := g.store.SetNX(ctx, storeKey, string(fresh), g.ttl)
		if err != nil {
			return Admission{}, err
		}
		if created {
			return Admission{Admitted: true}, nil
		}

		value, err := g.store.Get(ctx, storeKey)
		switch {
		case errors.Is(err, keyval.ErrKeyNotFound):
			continue
		case err != nil:
			return Admission{}, err
		}

		var existing record
		if err := json.Unmarshal([]byte(value), &existing); err != nil {
			return Admission{}, fmt.Errorf("error while decoding idempotency record. Err: %w", err)
		}

		if existing.Status == StatusProcessing {
			return Admission{}, apperrors.ErrRequestInProgress
		}

		return Admission{Admitted: false, Response: existing.Response}, nil
	}

	return Admission{}, apperrors.ErrRequestInProgress
}

// Release drops the record of an admitted request whose side effect
// failed before completion, freeing the slot for an immediate retry.
// Never call it after Finalize: that would reopen a completed request.
func (g *Gate) Release(ctx context.Context, scope Scope, userID uuid.UUID, key uuid.UUID) error {
	return g.store.Delete(ctx, recordKey(scope, userID, key))
}

// Finalize stores the response and flips the record to DONE, refreshing
// the TTL so a shortly retried client gets the cached answer instead of
// ErrRequestInProgress. Finalize always writes the same terminal state,
// which makes it safe to retry.
func (g *Gate) Finalize(ctx context.Context, scope Scope, userID uuid.UUID, key uuid.UUID, response json.RawMessage) error {
	done, err := json.Marshal(record{Status: StatusDone, Response: response})
	if err != nil {
		return fmt.Errorf("error while encoding idempotency record. Err: %w", err)
	}

	return g.store.Set(ctx, recordKey(scope, userID, key), string(done), g.ttl)
}
