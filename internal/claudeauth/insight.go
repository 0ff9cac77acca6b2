package claudeauth

import (
	"encoding/json"
	"time"
)

// CredentialInsight is what a credential blob reveals about the session
// it holds. Informational only; blobs stay opaque to every other package.
type CredentialInsight struct {
	ExpiresAt        time.Time
	SubscriptionType string
}

// Expired reports whether the access token was already stale at now.
func (i CredentialInsight) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && i.ExpiresAt.Before(now)
}

// InspectCredentials pulls expiry and plan info out of a credential blob.
// Returns ok=false for blobs that do not follow the expected shape, which
// is not an error: the blob may still authenticate fine.
func InspectCredentials(blob []byte) (CredentialInsight, bool) {
	var doc struct {
		ClaudeAiOauth struct {
			ExpiresAt        json.Number `json:"expiresAt"`
			SubscriptionType string      `json:"subscriptionType"`
		} `json:"claudeAiOauth"`
	}
	if err := json.Unmarshal(blob, &doc); err != nil {
		return CredentialInsight{}, false
	}

	insight := CredentialInsight{SubscriptionType: doc.ClaudeAiOauth.SubscriptionType}

	// expiresAt is unix milliseconds.
	if millis, err := doc.ClaudeAiOauth.ExpiresAt.Int64(); err == nil && millis > 0 {
		insight.ExpiresAt = time.UnixMilli(millis).UTC()
	}

	if insight.ExpiresAt.IsZero() && insight.SubscriptionType == "" {
		return CredentialInsight{}, false
	}
	return insight, true
}
