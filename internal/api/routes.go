package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/sandiwara/domain/entities"
	"github.com/satriahrh/sandiwara/domain/repositories"
	"github.com/satriahrh/sandiwara/internal/auth"
	"github.com/satriahrh/sandiwara/internal/protocol"
	"github.com/satriahrh/sandiwara/usecase"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200

	// SessionIDHeader carries the synthesis session id of a /synthesize response
	SessionIDHeader = "X-Session-Id"
)

// InitRoutes initializes all API routes
func InitRoutes(
	e *echo.Echo,
	narration *usecase.NarrationService,
	history repositories.SynthesisRepository,
	authenticator *auth.Authenticator,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "sandiwara",
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := e.Group("/api/v1")
	requireToken := authenticator.Middleware()

	v1.POST("/auth/token", func(c echo.Context) error {
		return issueToken(c, authenticator, logger)
	})

	v1.POST("/synthesize", func(c echo.Context) error {
		return synthesize(c, narration, logger)
	}, requireToken)

	v1.POST("/narrate", func(c echo.Context) error {
		return narrate(c, narration, logger)
	}, requireToken)

	v1.GET("/syntheses", func(c echo.Context) error {
		return listSyntheses(c, history, logger)
	}, requireToken)

	v1.GET("/syntheses/:id", func(c echo.Context) error {
		return getSynthesis(c, history, logger)
	}, requireToken)
}

func issueToken(c echo.Context, authenticator *auth.Authenticator, logger *zap.Logger) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	token, expiresAt, err := authenticator.IssueToken(req.ClientID, req.ClientSecret)
	if err != nil {
		logger.Warn("Client authentication failed",
			zap.String("client_id", req.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid client credentials",
		})
	}

	logger.Info("Client authenticated", zap.String("client_id", req.ClientID))
	return c.JSON(http.StatusOK, TokenResponse{Token: token, ExpiresAt: expiresAt})
}

func synthesize(c echo.Context, narration *usecase.NarrationService, logger *zap.Logger) error {
	var req SynthesizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	speech, err := narration.Synthesize(c.Request().Context(), repositories.SpeechRequest{
		Text:    req.Text,
		Speaker: req.Speaker,
	})
	if err != nil {
		return synthesisError(c, err, logger)
	}

	c.Response().Header().Set(SessionIDHeader, speech.SessionID)
	return c.Blob(http.StatusOK, contentType(speech.Format), speech.Audio)
}

func narrate(c echo.Context, narration *usecase.NarrationService, logger *zap.Logger) error {
	var req NarrateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	result, err := narration.Narrate(c.Request().Context(), &entities.Script{
		Title: req.Title,
		Lines: req.Lines,
	})
	if err != nil {
		return synthesisError(c, err, logger)
	}
	return c.JSON(http.StatusOK, result)
}

func listSyntheses(c echo.Context, history repositories.SynthesisRepository, logger *zap.Logger) error {
	limit := defaultHistoryLimit
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be a positive integer",
			})
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := history.ListRecent(c.Request().Context(), limit)
	if err != nil {
		logger.Error("Failed to list synthesis records", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
	}
	if records == nil {
		records = []*entities.SynthesisRecord{}
	}
	return c.JSON(http.StatusOK, HistoryResponse{Records: records})
}

func getSynthesis(c echo.Context, history repositories.SynthesisRepository, logger *zap.Logger) error {
	record, err := history.GetByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found"})
	}
	if err != nil {
		logger.Error("Failed to get synthesis record", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
	}
	return c.JSON(http.StatusOK, record)
}

// synthesisError maps synthesis failures onto HTTP statuses.
func synthesisError(c echo.Context, err error, logger *zap.Logger) error {
	var serverErr *protocol.ServerError
	switch {
	case errors.Is(err, entities.ErrEmptyScript), errors.Is(err, entities.ErrEmptyLine):
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_script",
			Message: err.Error(),
		})
	case errors.As(err, &serverErr):
		logger.Warn("Speech service rejected request",
			zap.Uint32("code", serverErr.Code),
			zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "speech_service_error",
			Message: serverErr.Message,
		})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "timeout"})
	default:
		logger.Error("Synthesis failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "synthesis_failed",
			Message: "Failed to synthesize speech",
		})
	}
}

func contentType(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "ogg_opus":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	case "pcm":
		return "audio/pcm"
	default:
		return echo.MIMEOctetStream
	}
}
