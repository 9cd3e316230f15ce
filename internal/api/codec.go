package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/danmuck/qpnet/internal/qpack"
	"github.com/gin-gonic/gin"
)

// responder answers one HTTP request with a package payload, as qpack or
// converted to JSON when the client asks for it.
type responder struct {
	c *gin.Context
}

func newResponder(c *gin.Context) *responder {
	return &responder{c: c}
}

func (r *responder) RemoteAddr() string {
	return r.c.ClientIP()
}

func (r *responder) Respond(status int, payload []byte) error {
	if len(payload) == 0 {
		r.c.Status(status)
		return nil
	}
	if !wantsJSON(r.c) {
		r.c.Data(status, ContentTypeQPack, payload)
		return nil
	}
	v, err := qpack.Unmarshal(payload)
	if err != nil {
		r.c.AbortWithStatus(http.StatusInternalServerError)
		return err
	}
	r.c.JSON(status, v)
	return nil
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), ContentTypeJSON)
}

// readBody returns the request body as qpack, converting JSON bodies.
func readBody(c *gin.Context, limit int64) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mediaType != ContentTypeJSON {
		return body, nil
	}
	return JSONToQPack(body)
}

// JSONToQPack converts one JSON document to a qpack buffer.
func JSONToQPack(body []byte) ([]byte, error) {
	v, err := DecodeJSON(body)
	if err != nil {
		return nil, err
	}
	return qpack.Marshal(v)
}

// DecodeJSON decodes one JSON document into values qpack.Packer.Add
// accepts.
func DecodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return normalizeJSON(v), nil
}

// normalizeJSON turns json.Number into int64 where it fits so integer
// timestamps stay integers.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = normalizeJSON(t[i])
		}
		return t
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeJSON(item)
		}
		return t
	}
	return v
}
