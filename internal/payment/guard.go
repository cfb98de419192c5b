package payment

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/paygate/internal/common"
)

// Guard provides Redis-backed idempotency for payment initiation and replay
// suppression for verified callbacks.
type Guard struct {
	R              redis.Cmdable
	IdempotencyTTL time.Duration
	ReplayTTL      time.Duration
}

func idempotencyKey(gateway, header string) string {
	return "pay:idem:" + common.Sha256Hex(strings.ToLower(gateway)+":"+header)
}

func replayKey(gateway, query string, body []byte) string {
	return "pay:cb:" + strings.ToLower(gateway) + ":" + common.Sha256Hex(query+"|"+string(body))
}

// Idempotency rejects a second initiation carrying the same Idempotency-Key
// while the first is still remembered.
func (g *Guard) Idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if g == nil || g.R == nil || header == "" {
			next.ServeHTTP(w, r)
			return
		}
		ttl := g.IdempotencyTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ctx := r.Context()
		key := idempotencyKey(chi.URLParam(r, "gateway"), header)
		ok, err := g.R.SetNX(ctx, key, "locked", ttl).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", map[string]any{"error": err.Error()})
			return
		}
		if !ok {
			common.JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		defer func() {
			// keep the key bounded even if the handler panics
			_ = g.R.Expire(context.Background(), key, ttl).Err()
		}()
		next.ServeHTTP(w, r)
	})
}

// FirstDelivery records a callback payload and reports whether it was unseen.
// Without a Redis client every delivery counts as first.
func (g *Guard) FirstDelivery(ctx context.Context, gateway, query string, body []byte) (bool, error) {
	if g == nil || g.R == nil {
		return true, nil
	}
	ttl := g.ReplayTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return g.R.SetNX(ctx, replayKey(gateway, query, body), "1", ttl).Result()
}
