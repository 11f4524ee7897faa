package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// PushDispatcher delivers over websocket first and falls back to posting the
// payload to a webhook when the key has no live session.
type PushDispatcher struct {
	Endpoint string // optional webhook for offline recipients
	Client   *http.Client
	WS       *WSRegistry
	Log      *zap.Logger
}

func NewPushDispatcher(endpoint string, ws *WSRegistry, log *zap.Logger) *PushDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &PushDispatcher{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws, Log: log}
}

func (p *PushDispatcher) Send(key string, v any) error {
	if p.WS != nil {
		err := p.WS.Send(key, v)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNoSession) {
			p.Log.Debug("ws delivery failed, trying webhook", zap.String("key", key), zap.Error(err))
		}
		if p.Endpoint == "" {
			return err
		}
	}
	if p.Endpoint == "" {
		return ErrNoSession
	}
	return p.post(key, v)
}

func (p *PushDispatcher) post(key string, v any) error {
	b, err := json.Marshal(map[string]any{"key": key, "payload": v})
	if err != nil {
		return fmt.Errorf("encode push: %w", err)
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	ctx, cancel := context.WithTimeout(context.Background(), client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("push webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push webhook: status %d", resp.StatusCode)
	}
	return nil
}
