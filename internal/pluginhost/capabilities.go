package pluginhost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/relaygrid/octabot/internal/httpbroker"
	"github.com/relaygrid/octabot/internal/kvcache"
)

// Capabilities is the per-instance table injected into a loaded
// plugin: the HTTP broker, the KV cache bucket, and a logger scoped to
// the plugin's name. A subprocess plugin never holds these directly —
// it reaches them through host_call messages on the control channel;
// an in-process fake plugin (tests) may hold them directly.
type Capabilities struct {
	HTTP *httpbroker.Broker
	KV   *kvcache.Bucket
	Log  *slog.Logger
	Name string
}

type kvGetRequest struct {
	Key string `json:"key"`
}

type kvGetResponse struct {
	Value []byte `json:"value,omitempty"`
	Found bool   `json:"found"`
}

type kvSetRequest struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

type kvDeleteRequest struct {
	Key string `json:"key"`
}

type kvExistsRequest struct {
	Key string `json:"key"`
}

type kvExistsResponse struct {
	Exists bool `json:"exists"`
}

type kvListKeysRequest struct {
	Cursor *uint64 `json:"cursor,omitempty"`
}

type kvListKeysResponse struct {
	Keys   []string `json:"keys"`
	Cursor *uint64  `json:"cursor,omitempty"`
}

type httpSendRequest struct {
	Method     string            `json:"method"`
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"body,omitempty"`
	ConnectMS  int64             `json:"connectTimeoutMs,omitempty"`
	FirstByteMS int64            `json:"firstByteTimeoutMs,omitempty"`
	BetweenMS  int64             `json:"betweenBytesTimeoutMs,omitempty"`
}

type httpSendResponse struct {
	StatusCode int    `json:"statusCode"`
	Body       []byte `json:"body,omitempty"`
}

type logRequest struct {
	Level   LogLevel `json:"level"`
	Context string   `json:"context,omitempty"`
	Message string   `json:"message"`
}

// handleHostCall dispatches one capability invocation made by the
// plugin side of the control channel.
func (c Capabilities) handleHostCall(ctx context.Context, method string, payload json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "kv.open":
		return json.Marshal(struct{ Opened bool }{Opened: true})

	case "kv.get":
		var req kvGetRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode kv.get: %w", err)
		}
		value, found := c.KV.Get(req.Key)
		return json.Marshal(kvGetResponse{Value: value, Found: found})

	case "kv.set":
		var req kvSetRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode kv.set: %w", err)
		}
		c.KV.Set(req.Key, req.Value)
		return json.Marshal(struct{}{})

	case "kv.delete":
		var req kvDeleteRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode kv.delete: %w", err)
		}
		c.KV.Delete(req.Key)
		return json.Marshal(struct{}{})

	case "kv.exists":
		var req kvExistsRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode kv.exists: %w", err)
		}
		return json.Marshal(kvExistsResponse{Exists: c.KV.Exists(req.Key)})

	case "kv.list_keys":
		var req kvListKeysRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode kv.list_keys: %w", err)
		}
		resp := c.KV.ListKeys(req.Cursor)
		return json.Marshal(kvListKeysResponse{Keys: resp.Keys, Cursor: resp.Cursor})

	case "http.send":
		var req httpSendRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode http.send: %w", err)
		}
		var body io.Reader
		if len(req.Body) > 0 {
			body = newJSONReader(req.Body)
		}
		resp, err := c.HTTP.Do(ctx, httpbroker.Request{
			Method:  req.Method,
			URL:     req.URL,
			Headers: req.Headers,
			Body:    body,
			Timeouts: httpbroker.Timeouts{
				Connect:      time.Duration(req.ConnectMS) * time.Millisecond,
				FirstByte:    time.Duration(req.FirstByteMS) * time.Millisecond,
				BetweenBytes: time.Duration(req.BetweenMS) * time.Millisecond,
			},
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(httpSendResponse{StatusCode: resp.StatusCode, Body: resp.Body})

	case "log":
		var req logRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode log: %w", err)
		}
		level := req.Level
		if level == LogLevelCritical {
			level = LogLevelError
		}
		attrs := []any{"plugin", c.Name}
		if req.Context != "" {
			attrs = append(attrs, "context", req.Context)
		}
		switch level {
		case LogLevelTrace, LogLevelDebug:
			c.Log.Debug(req.Message, attrs...)
		case LogLevelWarn:
			c.Log.Warn(req.Message, attrs...)
		case LogLevelError:
			c.Log.Error(req.Message, attrs...)
		default:
			c.Log.Info(req.Message, attrs...)
		}
		return json.Marshal(struct{}{})

	default:
		return nil, fmt.Errorf("unknown host capability %q", method)
	}
}
