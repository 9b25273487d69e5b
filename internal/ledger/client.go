// Package ledger предоставляет HTTP-клиент системы учёта — внешнего реестра,
// являющегося единственным источником истины о заявках, займах и расчётах.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mmeshcher/denver-lending-system/internal/command"
	"github.com/mmeshcher/denver-lending-system/internal/model"
)

// NotFoundPolicy определяет, как трактовать ответ 404 в конкретном вызове.
type NotFoundPolicy int

const (
	// NotFoundIsError — 404 по цели команды является жёсткой ошибкой:
	// сущность, которую пытались изменить, больше не существует.
	NotFoundIsError NotFoundPolicy = iota
	// NotFoundIsEmpty — отсутствие данных на чтении трактуется как пустой
	// результат (например, у нового заёмщика ещё нет кредитного профиля).
	NotFoundIsEmpty
)

// errEmptyResult сигнализирует вызвавшему методу, что 404 разрешён политикой.
var errEmptyResult = errors.New("empty result")

// Client инкапсулирует HTTP-взаимодействие с системой учёта. Сетевые сбои и
// ответы 5xx повторяются транспортом с тем же запросом — и, значит, с тем же
// идемпотентным commandId.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *retryablehttp.Client
}

// NewClient создаёт клиент системы учёта по указанному адресу. Токен сессии
// выдаётся внешним контуром аутентификации и может быть пустым.
func NewClient(baseURL, authToken string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		httpClient: rc,
	}
}

// get выполняет чтение без идемпотентного токена.
func (c *Client) get(ctx context.Context, path string, out any, policy NotFoundPolicy) error {
	return c.do(ctx, http.MethodGet, path, "", nil, out, policy)
}

// post выполняет мутирующую команду с идемпотентным токеном.
func (c *Client) post(ctx context.Context, path string, commandID command.ID, body, out any) error {
	return c.do(ctx, http.MethodPost, path, commandID, body, out, NotFoundIsError)
}

// delete выполняет удаляющую команду с идемпотентным токеном.
func (c *Client) delete(ctx context.Context, path string, commandID command.ID) error {
	return c.do(ctx, http.MethodDelete, path, commandID, nil, nil, NotFoundIsError)
}

func (c *Client) do(ctx context.Context, method, path string, commandID command.ID, body, out any, policy NotFoundPolicy) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("%w: ledger client not configured", model.ErrTransport)
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	u := base + path
	if commandID != "" {
		q := url.Values{"commandId": []string{string(commandID)}}
		u += "?" + q.Encode()
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = data
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", model.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && policy == NotFoundIsEmpty {
		io.Copy(io.Discard, resp.Body)
		return errEmptyResult
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return classifyError(resp.StatusCode, raw)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// apiError — структурированный конверт ошибки системы учёта. Классификация
// опирается на код, а не на текст сообщения.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func classifyError(status int, raw []byte) error {
	var e apiError
	_ = json.Unmarshal(raw, &e)

	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch e.Code {
	case "UNAUTHORIZED":
		return fmt.Errorf("%w: %s", model.ErrUnauthorized, msg)
	case "NOT_FOUND":
		return fmt.Errorf("%w: %s", model.ErrNotFound, msg)
	case "CONFLICT":
		return fmt.Errorf("%w: %s", model.ErrConflict, msg)
	case "DEADLINE_PASSED":
		return fmt.Errorf("%w: %s", model.ErrDeadlinePassed, msg)
	case "VALIDATION_FAILED":
		return fmt.Errorf("%w: %s", model.ErrValidation, msg)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", model.ErrUnauthorized, msg)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", model.ErrNotFound, msg)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", model.ErrConflict, msg)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", model.ErrValidation, msg)
	default:
		return fmt.Errorf("%w: unexpected status %d: %s", model.ErrTransport, status, msg)
	}
}

// isoDuration форматирует длительность окна в ISO-8601, как того ожидает
// система учёта.
func isoDuration(d time.Duration) string {
	return fmt.Sprintf("PT%dS", int64(d/time.Second))
}
