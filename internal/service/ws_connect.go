package service

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/rtconf/rtconf/internal/auth"
	"github.com/rtconf/rtconf/internal/id"
	"github.com/rtconf/rtconf/internal/message"
	"github.com/rtconf/rtconf/internal/metrics"
	"github.com/rtconf/rtconf/internal/registry"
	"github.com/rtconf/rtconf/internal/rtcerr"
)

// ConnectHandler returns an http.Handler serving the subscribe channel.
//
// Protocol (JSON text frames):
//  1. Client opens a WebSocket on /connect, optionally carrying an
//     authorization_token header.
//  2. Client sends pull frames; the server answers each with a push frame,
//     and fans in further push frames whenever a watched project's
//     resolved view changes.
//  3. Domain errors are sent as {code, error_msg} frames and keep the
//     session open; admission and unexpected errors send the frame and
//     close.
func (s *Service) ConnectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			slog.Debug("ws/connect: accept failed", "error", err)
			return
		}
		defer func() { _ = conn.CloseNow() }()

		ctx := r.Context()
		sess := &registry.Session{
			ID:       id.Generate(),
			ClientIP: clientIP(r),
			Headers:  headerMap(r.Header),
			SendFn: func(p message.Push) error {
				data, err := p.Encode()
				if err != nil {
					return err
				}
				return conn.Write(ctx, websocket.MessageText, data)
			},
		}

		if s.requireToken {
			token := r.Header.Get(auth.TokenHeader)
			if _, err := s.auth.VerifyToken(ctx, token); err != nil {
				writeErrorFrame(ctx, conn, rtcerr.Connectf("invalid client token"))
				_ = conn.Close(websocket.StatusPolicyViolation, "invalid token")
				return
			}
		}

		defer func() {
			if s.registry.Detach(sess.ID) {
				slog.Info("session closed", "session_id", sess.ID, "client_ip", sess.ClientIP)
			}
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				slog.Debug("ws/connect: read ended", "session_id", sess.ID, "error", err)
				return
			}
			pull, err := message.DecodePull(data)
			if err != nil {
				writeErrorFrame(ctx, conn, rtcerr.Connect(err))
				_ = conn.Close(websocket.StatusUnsupportedData, "malformed pull")
				return
			}

			push, err := s.engine.HandlePull(ctx, sess, pull)
			if err != nil {
				writeErrorFrame(ctx, conn, err)
				if derr, ok := rtcerr.AsError(err); ok && derr.Kind != rtcerr.KindConnect {
					// Resolution failures keep the session open; the
					// client may retry with a fixed name or env.
					continue
				}
				_ = conn.Close(websocket.StatusPolicyViolation, "")
				return
			}
			if err := sess.Send(push); err != nil {
				slog.Debug("ws/connect: write failed", "session_id", sess.ID, "error", err)
				return
			}
			metrics.PushFramesTotal.WithLabelValues(push.MessageType).Inc()
		}
	})
}

func writeErrorFrame(ctx context.Context, conn *websocket.Conn, err error) {
	data, encErr := message.FromError(err).Encode()
	if encErr != nil {
		return
	}
	_ = conn.Write(ctx, websocket.MessageText, data)
}

// clientIP prefers the X-Forwarded-For chain so session summaries show
// the real peer behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func headerMap(h http.Header) map[string]string {
	m := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			m[k] = vs[0]
		}
	}
	return m
}
