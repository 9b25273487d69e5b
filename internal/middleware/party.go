// Package middleware содержит HTTP middleware сервиса денвер.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

type contextKey string

const partyKey contextKey = "party"

// PartyHeader — заголовок с подписанным именем действующей стороны. Подпись
// выдаётся внешним контуром аутентификации по общему секрету.
const PartyHeader = "X-Denver-Party"

// PartyMiddleware проверяет подпись действующей стороны в заголовке запроса.
type PartyMiddleware struct {
	secretKey []byte
}

// NewPartyMiddleware создаёт новый экземпляр PartyMiddleware с указанным секретным ключом.
func NewPartyMiddleware(secret string) *PartyMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &PartyMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет заголовок действующей стороны и добавляет её имя в контекст запроса.
func (m *PartyMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value := r.Header.Get(PartyHeader)
		if value == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		party, ok := m.parseHeader(value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), partyKey, party)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SignParty подписывает имя стороны для передачи в заголовке запроса.
func (m *PartyMiddleware) SignParty(party string) string {
	mac := hmac.New(sha256.New, m.secretKey)
	mac.Write([]byte(party))
	signature := mac.Sum(nil)
	return party + "." + hex.EncodeToString(signature)
}

func (m *PartyMiddleware) parseHeader(value string) (string, bool) {
	// Имя стороны может содержать точки, подпись — последний сегмент.
	idx := strings.LastIndex(value, ".")
	if idx <= 0 || idx == len(value)-1 {
		return "", false
	}

	party := value[:idx]
	signature := value[idx+1:]

	mac := hmac.New(sha256.New, m.secretKey)
	mac.Write([]byte(party))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", false
	}

	return party, true
}

// GetPartyFromContext извлекает имя действующей стороны из контекста запроса.
func GetPartyFromContext(ctx context.Context) (string, bool) {
	party, ok := ctx.Value(partyKey).(string)
	return party, ok
}
