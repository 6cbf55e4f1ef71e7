// Package server exposes the inbound HTTP surface: the subscription
// verification handshake, webhook event delivery, health, and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"faqbot/internal/domain"
	"faqbot/internal/messenger"
	"faqbot/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// eventDispatcher runs the reply flow for one classified event.
type eventDispatcher interface {
	Dispatch(ctx context.Context, token string, ev messenger.Event) error
}

// Config configures the webhook server.
type Config struct {
	Host            string
	Port            int
	WebhookPath     string
	VerifyToken     string // subscription handshake secret
	BroadcastEchoes bool
	Channels        domain.ChannelStore
	Dispatcher      eventDispatcher
	Logger          *slog.Logger
}

// Server handles webhook deliveries from the messaging platform.
type Server struct {
	host            string
	port            int
	webhookPath     string
	verifyToken     string
	broadcastEchoes bool
	channels        domain.ChannelStore
	dispatcher      eventDispatcher
	logger          *slog.Logger
	engine          *gin.Engine
	server          *http.Server
}

func New(cfg Config) *Server {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/api/webhook"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		host:            cfg.Host,
		port:            cfg.Port,
		webhookPath:     cfg.WebhookPath,
		verifyToken:     cfg.VerifyToken,
		broadcastEchoes: cfg.BroadcastEchoes,
		channels:        cfg.Channels,
		dispatcher:      cfg.Dispatcher,
		logger:          cfg.Logger,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(s.webhookPath, s.handleVerify)
	r.POST(s.webhookPath, s.handleReceive)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Collector.Handler()))

	s.engine = r
	return s
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("webhook server starting", "addr", s.server.Addr, "path", s.webhookPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

// handleVerify answers the platform's subscription handshake: echo the
// challenge for a matching verify token, 403 otherwise.
func (s *Server) handleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == s.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	s.logger.Warn("webhook verification rejected", "mode", mode)
	c.String(http.StatusForbidden, "")
}

// handleReceive processes one webhook delivery. Events are dispatched
// strictly in order; no per-event failure ever changes the response,
// which is always 200 "ok" so the platform does not retry.
func (s *Server) handleReceive(c *gin.Context) {
	var body messenger.WebhookBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.logger.Warn("malformed webhook body", "err", err)
		c.String(http.StatusOK, "ok")
		return
	}

	if body.Object != "page" {
		c.String(http.StatusNotFound, "")
		return
	}

	deliveryID := uuid.NewString()
	metrics.DeliveryReceived()

	events := messenger.Classify(&body, s.broadcastEchoes)
	s.logger.Info("webhook delivery", "delivery", deliveryID, "entries", len(body.Entry), "events", len(events))

	for _, ev := range events {
		metrics.EventClassified(string(ev.Kind))

		token, err := s.channels.AccessToken(c.Request.Context(), ev.ChannelID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				s.logger.Debug("no credentials for channel, dropping event",
					"delivery", deliveryID, "channel", ev.ChannelID)
			} else {
				s.logger.Error("channel lookup failed",
					"delivery", deliveryID, "channel", ev.ChannelID, "err", err)
			}
			metrics.EventDropped()
			continue
		}

		if err := s.dispatcher.Dispatch(c.Request.Context(), token, ev); err != nil {
			s.logger.Error("event handling failed",
				"delivery", deliveryID,
				"kind", ev.Kind,
				"sender", ev.SenderID,
				"err", err,
			)
			metrics.DispatchError()
		}
	}

	c.String(http.StatusOK, "ok")
}
