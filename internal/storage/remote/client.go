package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/neoprompts/neoprompts/internal/errors"
)

const (
	restPath    = "/rest/v1/"
	objectMedia = "application/vnd.pgrst.object+json"

	preferRepresentation = "return=representation"
	preferMinimal        = "return=minimal"
	preferUpsert         = "resolution=merge-duplicates,return=minimal"
)

// Service error codes that get a dedicated mapping.
const (
	codeNoRows           = "PGRST116"
	codeUniqueViolation  = "23505"
	codeForeignKey       = "23503"
	codeCheckViolation   = "23514"
	maxErrorBodyBytes    = 64 << 10
	defaultClientTimeout = 30 * time.Second
)

// client speaks the PostgREST dialect of the table service.
type client struct {
	base    string
	key     string
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// call describes one REST request.
type call struct {
	op     string
	method string
	table  string
	query  url.Values
	body   any
	prefer string

	// object asks for exactly one row; "no rows" becomes NOT_FOUND for kind/id.
	object bool
	kind   string
	id     string
}

// apiError is the service's JSON error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (c *client) do(ctx context.Context, cl call, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return errors.NewCancelled(cl.op)
		}
		return errors.NewStoreFailure(cl.op, err)
	}

	var body io.Reader
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return errors.NewInternal(fmt.Errorf("%s: encode body: %w", cl.op, err))
		}
		body = bytes.NewReader(b)
	}

	u := c.base + restPath + cl.table
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("%s: build request: %w", cl.op, err))
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.object {
		req.Header.Set("Accept", objectMedia)
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if cl.prefer != "" {
		req.Header.Set("Prefer", cl.prefer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.NewCancelled(cl.op)
		}
		return errors.NewStoreFailure(cl.op, err)
	}
	defer resp.Body.Close()

	c.log.Debug("remote request",
		"op", cl.op,
		"method", cl.method,
		"table", cl.table,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(cl, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewRemoteFailure(cl.op, resp.StatusCode, "", fmt.Sprintf("decode response: %v", err))
	}
	return nil
}

// fail maps a non-2xx response to an error.
func (c *client) fail(cl call, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var e apiError
	if err := json.Unmarshal(raw, &e); err != nil || e.Message == "" {
		e.Message = strings.TrimSpace(string(raw))
	}

	switch {
	case cl.object && (resp.StatusCode == http.StatusNotAcceptable || e.Code == codeNoRows):
		return errors.NewNotFound(cl.kind, cl.id)
	case e.Code == codeForeignKey:
		return errors.NewInvalidRequest(fmt.Sprintf("%s: referenced collection does not exist", cl.op))
	case e.Code == codeCheckViolation:
		return errors.NewInvalidRequest(fmt.Sprintf("%s: %s", cl.op, e.Message))
	case e.Code == codeUniqueViolation || resp.StatusCode == http.StatusConflict:
		return errors.NewConflict(fmt.Sprintf("%s: already exists", cl.op))
	}

	c.log.Warn("remote request failed",
		"op", cl.op,
		"status", resp.StatusCode,
		"code", e.Code,
		"message", e.Message,
	)
	return errors.NewRemoteFailure(cl.op, resp.StatusCode, e.Code, e.Message)
}

// Filter helpers in the PostgREST operator syntax.

func eq(v string) string { return "eq." + v }

func byID(id string) url.Values { return url.Values{"id": {eq(id)}} }

// matchAll is the filter used for table-wide deletes, which the service
// refuses without one.
func matchAll() url.Values { return url.Values{"id": {"neq."}} }
