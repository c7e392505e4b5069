package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signflow/signflow/internal/metrics"
	"github.com/signflow/signflow/internal/protocol"
	"github.com/signflow/signflow/internal/session"
	"github.com/signflow/signflow/internal/store"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// SessionHandler runs one recognition session per websocket connection.
// Only one session may be active at a time.
type SessionHandler struct {
	opts        session.Options
	defaultLang string
	store       *store.Store
	logger      *slog.Logger

	active atomic.Bool
	wg     sync.WaitGroup
}

// NewSessionHandler creates a SessionHandler. store may be nil.
func NewSessionHandler(opts session.Options, defaultLang string, s *store.Store, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &SessionHandler{
		opts:        opts,
		defaultLang: defaultLang,
		store:       s,
		logger:      logger,
	}
}

// Active reports whether a session is connected.
func (h *SessionHandler) Active() bool {
	return h.active.Load()
}

// Wait blocks until every connection being served has finished.
func (h *SessionHandler) Wait() {
	h.wg.Wait()
}

// ServeHTTP upgrades the connection and serves commands until it closes.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	h.wg.Add(1)
	defer h.wg.Done()

	if !h.active.CompareAndSwap(false, true) {
		h.logger.Warn("rejecting connection, a session is already active", "remote", r.RemoteAddr)
		h.write(conn, protocol.NewStatus(http.StatusServiceUnavailable, "another session is active"))
		h.close(conn, websocket.CloseTryAgainLater, "busy")
		return
	}
	defer h.active.Store(false)

	// Hijacked connections outlive http.Server.Shutdown; close the socket
	// when the server's base context ends so the read loop returns.
	ctx := r.Context()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	ctrl := session.New(h.opts)
	logger := h.logger.With("session_id", ctrl.ID(), "remote", r.RemoteAddr)

	metrics.SessionStarted()
	h.recordStart(ctrl, r.RemoteAddr, logger)
	logger.Info("client connected")

	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Warn("session close", "error", err)
		}
		h.recordEnd(ctrl, logger)
		metrics.SessionEnded()
		logger.Info("client disconnected")
	}()

	if err := ctrl.SetLanguage(ctx, h.defaultLang); err != nil {
		logger.Error("failed to initialize default language", "language", h.defaultLang, "error", err)
		h.write(conn, protocol.NewStatus(http.StatusInternalServerError,
			fmt.Sprintf("failed to initialize %s model", h.defaultLang)))
		return
	}
	h.recordLanguage(ctrl, logger)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		reply := h.handle(ctx, ctrl, data, logger)
		if reply == nil {
			continue
		}
		if err := h.write(conn, reply); err != nil {
			logger.Warn("websocket write failed", "error", err)
			return
		}
	}
}

func (h *SessionHandler) handle(ctx context.Context, ctrl *session.Controller, data []byte, logger *slog.Logger) any {
	cmd, err := protocol.Decode(data)
	if err != nil {
		metrics.RecordCommand("invalid", strconv.Itoa(http.StatusBadRequest))
		return protocol.NewStatus(http.StatusBadRequest, "invalid JSON command")
	}

	reply := h.dispatch(ctx, ctrl, cmd, logger)
	metrics.RecordCommand(commandLabel(cmd.Type), replyLabel(reply))
	return reply
}

func (h *SessionHandler) dispatch(ctx context.Context, ctrl *session.Controller, cmd protocol.Command, logger *slog.Logger) any {
	switch cmd.Type {
	case protocol.TypeMode:
		changed, err := ctrl.SetMode(cmd.Mode)
		if err != nil {
			return statusFor(err)
		}
		if !changed {
			return protocol.NewStatus(http.StatusOK, "mode unchanged")
		}
		return protocol.NewStatus(http.StatusOK, "mode set to "+cmd.Mode)

	case protocol.TypeLanguage:
		if err := ctrl.SetLanguage(ctx, cmd.Lang); err != nil {
			logger.Warn("language change failed", "language", cmd.Lang, "error", err)
			return statusFor(err)
		}
		h.recordLanguage(ctrl, logger)
		return protocol.NewStatus(http.StatusOK, "language changed to "+cmd.Lang)

	case protocol.TypeGloss:
		if err := ctrl.SetGloss(cmd.Gloss); err != nil {
			return statusFor(err)
		}
		return protocol.NewStatus(http.StatusOK, "gloss set to "+ctrl.Session().Gloss)

	case protocol.TypeImage:
		if cmd.Image == "" {
			if err := ctrl.Ready(); err != nil {
				return statusFor(err)
			}
		} else if err := ctrl.OnFrame(cmd.Image); err != nil {
			return statusFor(err)
		}

	case protocol.TypeRepr:
		return ctrl.Snapshot()
	}

	if g, ok := ctrl.PollAnswer(ctx); ok {
		return protocol.NewWord(g.Gloss)
	}
	return protocol.OK()
}

func (h *SessionHandler) write(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func (h *SessionHandler) close(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}

func (h *SessionHandler) recordStart(ctrl *session.Controller, remote string, logger *slog.Logger) {
	if h.store == nil {
		return
	}
	s := ctrl.Session()
	err := h.store.Sessions().Create(&store.Session{
		ID:         s.ID,
		Language:   h.defaultLang,
		RemoteAddr: remote,
		StartedAt:  s.StartedAt,
	})
	if err != nil {
		logger.Warn("failed to record session", "error", err)
	}
}

func (h *SessionHandler) recordLanguage(ctrl *session.Controller, logger *slog.Logger) {
	if h.store == nil {
		return
	}
	s := ctrl.Session()
	if err := h.store.Sessions().SetLanguage(s.ID, s.Language); err != nil {
		logger.Warn("failed to record session language", "error", err)
	}
}

func (h *SessionHandler) recordEnd(ctrl *session.Controller, logger *slog.Logger) {
	if h.store == nil {
		return
	}
	if err := h.store.Sessions().End(ctrl.ID(), time.Now().UTC()); err != nil {
		logger.Warn("failed to record session end", "error", err)
	}
}

func commandLabel(kind string) string {
	switch kind {
	case protocol.TypeMode, protocol.TypeLanguage, protocol.TypeGloss, protocol.TypeImage, protocol.TypeRepr:
		return kind
	default:
		return "other"
	}
}

func replyLabel(reply any) string {
	switch r := reply.(type) {
	case protocol.Status:
		return strconv.Itoa(r.Status)
	case protocol.Word:
		return "word"
	default:
		return "snapshot"
	}
}
