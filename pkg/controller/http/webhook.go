package http

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/model"
	"github.com/yata-dev/yata-server/pkg/domain/types"
	"github.com/yata-dev/yata-server/pkg/usecase"
	"github.com/yata-dev/yata-server/pkg/utils/errutil"
	"github.com/yata-dev/yata-server/pkg/utils/logging"
)

const defaultWebhookSkew = 5 * time.Minute

// errStaleTimestamp distinguishes a delivery outside the skew window from a
// signature mismatch. A stale timestamp is a client error, not an
// authentication failure.
var errStaleTimestamp = goerr.New("delivery timestamp outside acceptable window")

// verifyWebhookSignature verifies the provider's delivery signature.
// This is a pure function that can be used independently for testing
func verifyWebhookSignature(signingSecret, deliveryID, timestamp, signature string, body []byte, skew time.Duration, now time.Time) error {
	if deliveryID == "" {
		return goerr.New("missing delivery ID")
	}

	if timestamp == "" {
		return goerr.New("missing timestamp")
	}

	if signature == "" {
		return goerr.New("missing signature")
	}

	// Compute expected signature. The delivery ID and timestamp are bound
	// into the signed string, so a valid signature cannot be replayed with
	// different headers.
	baseString := fmt.Sprintf("v1:%s:%s:%s", deliveryID, timestamp, body)
	mac := hmac.New(sha256.New, []byte(signingSecret))
	if _, err := mac.Write([]byte(baseString)); err != nil {
		return goerr.Wrap(err, "failed to compute HMAC")
	}
	expectedSignature := "v1=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expectedSignature), []byte(signature)) {
		return goerr.New("signature mismatch", goerr.V("deliveryID", deliveryID))
	}

	// Check timestamp after the signature: a skew failure on a forged
	// request must not leak which check rejected it first.
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return goerr.Wrap(err, "invalid timestamp", goerr.V("timestamp", timestamp))
	}

	diff := now.Sub(time.Unix(ts, 0))
	if diff > skew || diff < -skew {
		return goerr.Wrap(errStaleTimestamp, "replay window exceeded",
			goerr.V("timestamp", timestamp), goerr.V("now", now.Unix()), goerr.V("skew", skew))
	}

	return nil
}

// WebhookSignatureMiddleware creates a middleware that verifies provider
// delivery signatures. Signature failures are 401; a valid signature with a
// timestamp outside the skew window is 400.
func WebhookSignatureMiddleware(signingSecret string, skew time.Duration) func(http.Handler) http.Handler {
	if skew <= 0 {
		skew = defaultWebhookSkew
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
				return
			}
			defer func() {
				if err := r.Body.Close(); err != nil {
					logging.From(ctx).Error("failed to close request body", "error", err)
				}
			}()

			deliveryID := r.Header.Get("delivery-id")
			timestamp := r.Header.Get("delivery-timestamp")
			signature := r.Header.Get("delivery-signature")

			if err := verifyWebhookSignature(signingSecret, deliveryID, timestamp, signature, body, skew, time.Now()); err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, errStaleTimestamp) {
					status = http.StatusBadRequest
				}
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "webhook signature verification failed"), status)
				return
			}

			// The handler re-reads the body, which was consumed above
			r.Body = io.NopCloser(bytes.NewBuffer(body))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// webhookEnvelope is the provider's delivery payload
type webhookEnvelope struct {
	EventID string      `json:"eventId"`
	Type    string      `json:"type"`
	Data    webhookData `json:"data"`
}

type webhookData struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// webhookHandler decodes the delivery envelope and feeds it to the
// reconciler. Unknown event types are acknowledged with 200 so the provider
// does not retry them; storage failures return 500 so it does.
func webhookHandler(sync *usecase.SyncUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
			return
		}

		var envelope webhookEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to decode webhook envelope"), http.StatusBadRequest)
			return
		}

		kind := types.EventKind(envelope.Type)
		if err := kind.Validate(); err != nil {
			// Unknown event type: acknowledge so the provider does not
			// redeliver something we will never handle.
			logging.From(ctx).Warn("unknown webhook event type",
				"type", envelope.Type, "eventID", envelope.EventID)
			writeJSON(ctx, w, http.StatusOK, map[string]any{"status": "ignored"})
			return
		}

		event := &model.WebhookEvent{
			ID:      types.EventID(envelope.EventID),
			Kind:    kind,
			Subject: types.SubjectID(envelope.Data.ID),
		}
		if op, err := event.Operation(); err == nil && op == model.OpUpsert {
			event.Profile = &model.Profile{
				Email:       envelope.Data.Email,
				DisplayName: envelope.Data.DisplayName,
				AvatarURL:   envelope.Data.AvatarURL,
			}
		}

		result, duplicate, err := sync.ProcessEvent(ctx, event)
		if err != nil {
			// A payload that fails validation will never become valid, so it
			// gets a client error instead of signaling redelivery. Storage
			// failures stay 500 so the provider retries.
			status := http.StatusInternalServerError
			if goerr.HasTag(err, model.TagInvalidEvent) {
				status = http.StatusBadRequest
			}
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to process webhook event",
				goerr.V("eventID", event.ID)), status)
			return
		}

		if duplicate {
			logging.From(ctx).Info("duplicate webhook delivery skipped",
				"eventID", event.ID, "subject", event.Subject)
			writeJSON(ctx, w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}

		logging.From(ctx).Info("webhook event processed",
			"eventID", event.ID, "kind", event.Kind,
			"subject", event.Subject, "result", result)
		writeJSON(ctx, w, http.StatusOK, map[string]any{
			"status": "processed",
			"result": string(result),
		})
	}
}
