package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/core/service"
	"github.com/rl1809/inventory-ledger/internal/port"
)

const (
	headerRequestID = "X-Request-ID"

	ctxRequestID = "request_id"
	ctxClaims    = "claims"

	// Signed bodies are buffered in memory; photos stay well under this.
	maxSignedBody = 16 << 20
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestIDFrom(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("HTTP request", fields...)
			return
		}
		logger.Info("HTTP request", fields...)
	}
}

type SignatureConfig struct {
	KeyID  string
	Secret string
	TTL    time.Duration
	// MaxBody caps the signed body size in bytes. Zero means maxSignedBody.
	MaxBody int64
}

// Signature rejects requests whose HMAC headers are missing, stale or wrong. A valid
// signature is accepted once within its TTL.
func Signature(cfg SignatureConfig, replay port.CacheRepository, logger *zap.Logger) gin.HandlerFunc {
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = maxSignedBody
	}
	return func(c *gin.Context) {
		keyID := c.GetHeader(HeaderKeyID)
		ts := c.GetHeader(HeaderTimestamp)
		sig := c.GetHeader(HeaderSignature)
		if keyID == "" || ts == "" || sig == "" {
			abortWithError(c, logger, domain.Unauthenticated("missing signature headers"))
			return
		}

		sent, err := strconv.ParseInt(ts, 10, 64)
		if err != nil || absDuration(time.Since(time.Unix(sent, 0))) > cfg.TTL {
			abortWithError(c, logger, domain.Unauthenticated("stale request timestamp"))
			return
		}

		if keyID != cfg.KeyID {
			abortWithError(c, logger, domain.Unauthenticated("invalid key id"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBody+1))
		if err != nil {
			badRequest(c, logger, "unreadable request body")
			return
		}
		if int64(len(body)) > maxBody {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{Error: errorBody{
				Kind:    "InvalidArgument",
				Message: fmt.Sprintf("request body exceeds %d bytes", maxBody),
			}})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !validSignature(cfg.Secret, c.Request.Method, c.Request.URL.Path, string(body), ts, sig) {
			abortWithError(c, logger, domain.Unauthenticated("invalid signature"))
			return
		}

		fresh, err := replay.SetIdempotency(c.Request.Context(), keyID+":"+strings.ToLower(sig))
		if err != nil {
			// Replay protection is best effort when the cache is down.
			logger.Warn("Replay check failed", zap.String("request_id", requestIDFrom(c)), zap.Error(err))
		} else if !fresh {
			abortWithError(c, logger, domain.Unauthenticated("signature already used"))
			return
		}

		c.Next()
	}
}

// BearerAuth requires a valid access token and stores its claims on the context.
func BearerAuth(auth *service.AuthService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			abortWithError(c, logger, domain.Unauthenticated("missing bearer token"))
			return
		}

		claims, err := auth.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			abortWithError(c, logger, err)
			return
		}
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
