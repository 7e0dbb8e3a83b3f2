package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/coder/websocket"

	"warden/cmd/internal/auth/presence"
)

const (
	streamWriteTimeout    = 5 * time.Second
	streamPingTimeout     = 5 * time.Second
	streamMaxPingFailures = 3
	streamQueue           = 64
)

// streamMessage is one frame on /sessions/stream.
type streamMessage struct {
	Type     string                 `json:"type"`
	At       time.Time              `json:"at"`
	Sessions []presence.SessionInfo `json:"sessions,omitempty"`
	Count    int                    `json:"count"`
	Event    *presence.Event        `json:"event,omitempty"`
}

const (
	streamSnapshot = "snapshot"
	streamEvent    = "event"
)

// handleSessionStream pushes a registry snapshot on connect and every StreamInterval, and
// membership events in between. Clients only listen.
func (h *Handler) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Info("stream.accept.fail", "err", err, "origin", r.Header.Get("Origin"))
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	sub := h.registry.Subscribe(streamQueue)
	defer h.registry.Unsubscribe(sub)

	// CloseRead discards client frames and cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if err := h.writeSnapshot(ctx, conn); err != nil {
		return
	}

	snap := time.NewTicker(h.cfg.StreamInterval)
	defer snap.Stop()
	ping := time.NewTicker(h.cfg.StreamInterval)
	defer ping.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			_ = conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case ev := <-sub.C:
			msg := streamMessage{Type: streamEvent, At: ev.At, Count: h.registry.Count(), Event: &ev}
			if err := writeStream(ctx, conn, msg); err != nil {
				h.log.Info("stream.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
				return
			}
		case <-snap.C:
			if err := h.writeSnapshot(ctx, conn); err != nil {
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, streamPingTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				failures++
				h.log.Info("stream.ping.fail", "failures", failures, "err", err)
				if failures >= streamMaxPingFailures {
					_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func (h *Handler) writeSnapshot(ctx context.Context, conn *websocket.Conn) error {
	sessions := h.registry.Snapshot()
	msg := streamMessage{Type: streamSnapshot, At: h.clock.Now(), Sessions: sessions, Count: len(sessions)}
	if err := writeStream(ctx, conn, msg); err != nil {
		h.log.Info("stream.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
		return err
	}
	return nil
}

func writeStream(parent context.Context, conn *websocket.Conn, msg streamMessage) error {
	ctx, cancel := context.WithTimeout(parent, streamWriteTimeout)
	defer cancel()

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// deriveOriginPatterns turns the allowlist into host patterns for websocket.Accept.
func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}
