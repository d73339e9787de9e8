package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-service/internal/auth"
	"github.com/spec-kit/triage-service/internal/service"
)

// clientIP resolves the originating address for audit metadata. Proxy
// headers win over the socket peer.
func clientIP(c *fiber.Ctx) *string {
	if forwarded := c.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return &first
		}
	}
	if real := c.Get("X-Real-IP"); real != "" {
		real = strings.TrimSpace(real)
		return &real
	}
	if ip := c.IP(); ip != "" {
		return &ip
	}
	return nil
}

func requestMeta(c *fiber.Ctx) service.RequestMeta {
	return service.RequestMeta{IP: clientIP(c)}
}

// actorContext builds the audited-actor identity from the authenticated
// principal plus request metadata.
func actorContext(c *fiber.Ctx) (service.ActorContext, bool) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return service.ActorContext{}, false
	}
	return service.ActorContext{
		UserID: principal.User.ID,
		Role:   principal.User.Role,
		IP:     clientIP(c),
	}, true
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
