package http

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// stateVersionHeader carries the PollState version a response was rendered from.
const stateVersionHeader = "X-State-Version"

// ETagMiddleware tags successful GET responses with a weak ETag and answers
// 304 when the client already holds it. Responses rendered from a snapshot
// carry the state version in the tag, so clients polling faster than the
// tracker see which version they hold.
func ETagMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}
		if c.Method() != fiber.MethodGet || c.Response().StatusCode() != fiber.StatusOK {
			return nil
		}

		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		etag := weakETag(string(c.Response().Header.Peek(stateVersionHeader)), body)
		c.Set(fiber.HeaderETag, etag)

		if etagMatches(c.Get(fiber.HeaderIfNoneMatch), etag) {
			c.Status(fiber.StatusNotModified)
			c.Response().ResetBody()
		}
		return nil
	}
}

func weakETag(version string, body []byte) string {
	h := sha256.Sum256(body)
	sum := hex.EncodeToString(h[:8])
	if version == "" {
		return `W/"` + sum + `"`
	}
	return `W/"v` + version + "-" + sum + `"`
}

// etagMatches applies the weak comparison of If-None-Match, which may list several tags.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}
