package server

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/atriumchat/atrium/pkg/protocol"
	"github.com/atriumchat/atrium/pkg/storage"
)

// Server exposes the node over HTTP: a health probe, a public invite
// preview page and the websocket endpoint carrying the framed protocol.
type Server struct {
	hub  *Hub
	log  zerolog.Logger
	addr string

	engine   *gin.Engine
	upgrader websocket.Upgrader
}

// New builds the HTTP surface around a hub
func New(hub *Hub, log zerolog.Logger, addr string) *Server {
	s := &Server{
		hub:  hub,
		log:  log,
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway in front of this node enforces origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/invite/:code", s.handleInvitePreview)
	engine.GET("/ws", s.handleWS)

	s.engine = engine
	return s
}

// Run serves until the context is cancelled, then drains
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler exposes the router, for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.hub.SessionCount(),
	})
}

var inviteTemplate = template.Must(template.New("invite").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Join {{.Name}}</title>
</head>
<body>
  <h1>{{.Name}}</h1>
  <p>{{.Description}}</p>
  <p>You have been invited to join this community. Open the invite code
  <code>{{.Code}}</code> in your client to accept.</p>
</body>
</html>
`))

// handleInvitePreview renders a public preview of the community behind
// an invite code. Expired or unknown codes 404 without distinguishing
// the two.
func (s *Server) handleInvitePreview(c *gin.Context) {
	code := c.Param("code")

	community, err := s.hub.store.LookupInvite(code, protocol.NowUnixMilli())
	if err != nil {
		c.String(http.StatusNotFound, "invite not found")
		return
	}

	name, description, err := s.hub.store.CommunityMeta(community)
	if err != nil {
		c.String(http.StatusNotFound, "invite not found")
		return
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	_ = inviteTemplate.Execute(c.Writer, gin.H{
		"Name":        name,
		"Description": description,
		"Code":        code,
	})
}

// handleWS upgrades the connection and runs the session. Identity comes
// from the authenticating gateway in front of this node.
func (s *Server) handleWS(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		username = c.GetHeader("X-Atrium-User")
	}

	user, err := s.hub.store.EnsureUser(username)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid username")
		return
	}
	s.hub.persist("ensure_user", func(db *storage.DB) error {
		return db.SaveUser(*user)
	})

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := newSession(s.hub, user.ID, conn)

	// The snapshot is the first unit on the wire; reconnection has no
	// other resumption path.
	session.push(protocol.ClientReady{
		User: user.ID,
		Profile: protocol.Profile{
			ID:          user.ID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
		},
		Communities: s.hub.store.Snapshot(user.ID),
	})

	go session.run()
}
