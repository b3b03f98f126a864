package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/items-api/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 {
		cw.buf.Write(b)
	} else if remain := cw.limit - cw.size; remain > 0 {
		if int64(len(b)) <= remain {
			cw.buf.Write(b)
		} else {
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// cacheKey keys on method and concrete request path.  The query string is
// ignored so that a mutation can find every cached representation of a path.
func cacheKey(prefix, method, path string) string {
	sum := sha1.Sum([]byte(strings.ToUpper(method) + " " + path))
	return fmt.Sprintf("%s:%x", prefix, sum[:])
}

// versionKey counts the successful mutations of a path.  A fill that raced
// with a mutation sees a different version and is dropped.
func versionKey(prefix, path string) string {
	sum := sha1.Sum([]byte(path))
	return fmt.Sprintf("%s:ver:%x", prefix, sum[:])
}

const versionTTL = 24 * time.Hour

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

// NewRedisCache caches 200 responses for the configured methods in Redis and
// drops the cached entries of a path once a mutation on that path succeeds,
// so a read after PUT or DELETE never sees the old row.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	maxBody := int64(cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !cfg.Caches(req.Method) {
				err := next(c)
				if err == nil && isMutation(req.Method) && c.Response().Status/100 == 2 {
					invalidate(req.Context(), rdb, cfg, req.URL.Path)
				}
				return err
			}

			ctx := req.Context()
			key := cacheKey(cfg.Prefix, req.Method, req.URL.Path)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						// X-Cache is set below; Content-Length is recomputed
						if strings.EqualFold(k, echo.HeaderContentLength) || strings.EqualFold(k, "X-Cache") {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					if len(body) > 0 {
						_, _ = c.Response().Write(body)
					}
					return nil
				}
			}

			// Miss: capture
			vkey := versionKey(cfg.Prefix, req.URL.Path)
			version, err := rdb.Get(ctx, vkey).Result()
			if err != nil && err != redis.Nil {
				return next(c)
			}
			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}
			hdr := c.Response().Header().Clone()
			if payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes()); err == nil {
				fill(context.WithoutCancel(ctx), rdb, vkey, version, key, payload, ttl)
			}
			return nil
		}
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// fill stores payload only if the path version still equals seen.  WATCH
// aborts the write when a mutation bumps the version in between.
func fill(ctx context.Context, rdb *redis.Client, vkey, seen, key string, payload []byte, ttl time.Duration) {
	_ = rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vkey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != seen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.SetEx(ctx, key, payload, ttl)
			return nil
		})
		return err
	}, vkey)
}

func invalidate(ctx context.Context, rdb *redis.Client, cfg config.CacheConfig, path string) {
	ctx = context.WithoutCancel(ctx)
	vkey := versionKey(cfg.Prefix, path)
	keys := make([]string, 0, len(cfg.Methods))
	for _, m := range cfg.Methods {
		keys = append(keys, cacheKey(cfg.Prefix, strings.TrimSpace(m), path))
	}
	_, _ = rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, vkey)
		p.Expire(ctx, vkey, versionTTL)
		p.Del(ctx, keys...)
		return nil
	})
}
