package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xpanvictor/voxline/internal/config"
	"github.com/xpanvictor/voxline/internal/domains/sys_manager/pipeline"
	"github.com/xpanvictor/voxline/internal/domains/sys_manager/session"
	"github.com/xpanvictor/voxline/pkg/Logger"
	xio "github.com/xpanvictor/voxline/pkg/io"
	"github.com/xpanvictor/voxline/pkg/io/device"
	wsdevice "github.com/xpanvictor/voxline/pkg/io/device/websocket"
	"github.com/xpanvictor/voxline/pkg/utils"
)

const (
	maxFrameBytes = 1 << 20
	drainWait     = 2 * time.Second
)

// WebSocketHandler serves the voice endpoint.
type WebSocketHandler struct {
	logger            *Logger.Logger
	config            *config.Settings
	deps              *pipeline.Deps
	store             *session.Store
	connectionManager *ConnectionManager
	inputs            *InputStreamManager
	upgrader          websocket.Upgrader
}

func NewWebSocketHandler(logger *Logger.Logger, cfg *config.Settings, deps *pipeline.Deps) *WebSocketHandler {
	return &WebSocketHandler{
		logger:            logger,
		config:            cfg,
		deps:              deps,
		store:             deps.Store,
		connectionManager: NewConnectionManager(logger),
		inputs:            NewInputStreamManager(logger),
		upgrader: websocket.Upgrader{
			// browsers connect from arbitrary app origins; auth is by token
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes mounts the voice endpoint behind auth and the stats endpoint.
func (h *WebSocketHandler) RegisterRoutes(router gin.IRouter, auth ...gin.HandlerFunc) {
	handlers := append(auth, h.HandleVoice)
	router.GET("/projects/:namespace/:project/voice", handlers...)
	router.GET("/voice/stats", h.HandleStats)
}

func (h *WebSocketHandler) Connections() *ConnectionManager { return h.connectionManager }

// HandleStats reports live sessions, pool usage and connections.
func (h *WebSocketHandler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"data": gin.H{
			"sessions":    h.store.Stats(),
			"stt_pool":    h.deps.STTPool.Stats(),
			"tts_pool":    h.deps.TTSPool.Stats(),
			"connections": h.connectionManager.GetStats(),
		},
	})
}

// HandleVoice upgrades the request and runs one session until the client
// leaves, a fatal error occurs or another connection takes the session.
func (h *WebSocketHandler) HandleVoice(c *gin.Context) {
	namespace, project := c.Param("namespace"), c.Param("project")
	values := queryConfig(c.Request.URL.Query())

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)
	ep := wsdevice.New(conn)

	sess, resumed, err := h.openSession(c.Request.Context(), c.Query("session_id"), namespace, project, values)
	if err != nil {
		h.reject(ep, err)
		return
	}
	logger := h.logger.ForSession(sess.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := xio.NewPublisher(ep, sess.Epoch, xio.PublisherConfig{
		AudioBudget:          h.config.Pipeline.OutboundAudioBudget,
		InterimDropThreshold: h.config.Pipeline.InterimDropThreshold,
	}, logger)

	lease, err := h.store.Acquire(ctx, sess, func() {
		logger.Infof("session revoked")
		pub.Closed()
		cancel()
	})
	if err != nil {
		pub.Error(err, true)
		pub.Closed()
		h.drain(pub, ep)
		return
	}
	defer lease.Release()

	connection := &Connection{
		SessionID:   sess.ID,
		Namespace:   namespace,
		Project:     project,
		Resumed:     resumed,
		Endpoint:    ep,
		Publisher:   pub,
		ConnectedAt: time.Now(),
		cancel:      cancel,
	}
	h.connectionManager.RegisterConnection(connection)
	defer h.connectionManager.UnregisterConnection(connection)

	pub.SessionInfo(sess.ID, resumed)
	p := pipeline.New(h.deps, sess, pub)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		if err := p.Run(ctx); err != nil {
			logger.Infof("session ended: %v", err)
		}
		h.drain(pub, ep)
	}()

	h.readLoop(ctx, conn, ep, p, logger)
	cancel()
	<-closed
}

func (h *WebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, ep device.Endpoint, p *pipeline.Pipeline, logger *Logger.Logger) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				logger.Warnf("websocket read error: %v", err)
			}
			return
		}
		ep.Touch()
		if err := h.inputs.Dispatch(ctx, p, messageType, data); err != nil {
			if !errors.Is(err, pipeline.ErrPipelineClosed) && ctx.Err() == nil {
				logger.Warnf("dropping client frame: %v", err)
			}
			return
		}
	}
}

// openSession resumes session_id when given and still alive, otherwise
// starts a fresh session from the project defaults. values override either.
func (h *WebSocketHandler) openSession(ctx context.Context, sessionID, namespace, project string, values map[string]string) (*session.Session, bool, error) {
	if sessionID != "" {
		sess, err := h.store.Resume(ctx, sessionID)
		switch {
		case err == nil:
			cfg, err := sess.Config().Merge(values)
			if err != nil {
				return nil, false, err
			}
			if err := h.deps.Validate(cfg); err != nil {
				return nil, false, err
			}
			sess.SetConfig(cfg)
			return sess, true, nil
		case utils.IsKind(err, utils.KindSessionNotFound):
			h.logger.Debugf("session %s not resumable, starting fresh", sessionID)
		default:
			h.logger.Warnf("resume of %s failed, starting fresh: %v", sessionID, err)
		}
	}

	cfg, err := session.ConfigFromDefaults(h.config.ProjectDefaults(namespace, project)).Merge(values)
	if err != nil {
		return nil, false, err
	}
	if err := h.deps.Validate(cfg); err != nil {
		return nil, false, err
	}
	return h.store.Create(cfg), false, nil
}

// reject reports a fatal setup error on a socket that never got a session.
func (h *WebSocketHandler) reject(ep device.Endpoint, err error) {
	h.logger.Infof("rejecting voice connection: %v", err)
	_ = ep.WriteJSON(xio.ErrorMsg{Type: xio.MsgError, Message: err.Error(), Code: string(utils.KindOf(err)), Fatal: true})
	_ = ep.WriteJSON(xio.ClosedMsg{Type: xio.MsgClosed})
	_ = ep.Close()
}

// drain flushes what is queued for the client, then closes the socket.
func (h *WebSocketHandler) drain(pub *xio.Publisher, ep device.Endpoint) {
	ctx, cancel := context.WithTimeout(context.Background(), drainWait)
	defer cancel()
	if err := pub.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		h.logger.Debugf("outbound queue ended with: %v", err)
	}
	_ = ep.Close()
}

// Close cancels every live session.
func (h *WebSocketHandler) Close(ctx context.Context) error {
	return h.connectionManager.Close(ctx)
}
