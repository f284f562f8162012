package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func setupIdempotencyApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Use(IdempotencyKey())
	app.Post("/resource", func(c *fiber.Ctx) error {
		var body struct {
			Key string `json:"idempotency_key"`
		}
		_ = c.BodyParser(&body)
		return c.SendString(ResolveIdempotencyKey(c, body.Key))
	})
	return app
}

func send(t *testing.T, app *fiber.App, body, header string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/resource", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if header != "" {
		req.Header.Set(idempotencyKeyHeader, header)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(payload)
}

func TestIdempotencyKeyPrefersBody(t *testing.T) {
	app := setupIdempotencyApp(t)

	status, key := send(t, app, `{"idempotency_key":"from-body"}`, "from-header")
	if status != fiber.StatusOK || key != "from-body" {
		t.Fatalf("expected body key, got %d %q", status, key)
	}
}

func TestIdempotencyKeyFallsBackToHeader(t *testing.T) {
	app := setupIdempotencyApp(t)

	status, key := send(t, app, `{}`, "from-header")
	if status != fiber.StatusOK || key != "from-header" {
		t.Fatalf("expected header key, got %d %q", status, key)
	}
}

func TestIdempotencyKeyRejectsOversizedHeader(t *testing.T) {
	app := setupIdempotencyApp(t)

	status, _ := send(t, app, `{}`, strings.Repeat("k", maxIdempotencyKey+1))
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}
