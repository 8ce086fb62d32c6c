package handler

import (
	"bufio"
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/paperproof/paperproof-api/internal/config"
	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/service"
	"github.com/paperproof/paperproof-api/internal/utils"
)

// FactCheckHandler exposes the fact-check pipeline over HTTP.
type FactCheckHandler struct {
	factcheck service.FactCheckService
	sessions  service.SessionService
	chat      service.ChatService
	cfg       config.Config
	logger    zerolog.Logger
}

// NewFactCheckHandler constructs the fact-check handler.
func NewFactCheckHandler(factcheck service.FactCheckService, sessions service.SessionService, chat service.ChatService, cfg config.Config, logger zerolog.Logger) *FactCheckHandler {
	return &FactCheckHandler{
		factcheck: factcheck,
		sessions:  sessions,
		chat:      chat,
		cfg:       cfg,
		logger:    logger.With().Str("component", "factcheck_handler").Logger(),
	}
}

// Register wires fact-check routes under the provided router group.
func (h *FactCheckHandler) Register(router fiber.Router) {
	router.Post("/search", h.search)
	router.Post("/verdict", h.verdict)
	router.Post("/analyze", h.analyze)
	router.Post("/analyze-batch", h.analyzeBatch)
	router.Post("/run", h.run)
	router.Post("/session", h.createSession)
	router.Get("/session", h.getSession)
	router.Post("/chat", h.chatStream)
}

func (h *FactCheckHandler) search(c *fiber.Ctx) error {
	var payload dto.SearchRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.factcheck.Search(c.UserContext(), payload)
	if err != nil {
		return h.sendServiceError(c, err, "search failed")
	}

	return utils.SendSuccess(c, "search completed", response)
}

func (h *FactCheckHandler) verdict(c *fiber.Ctx) error {
	var payload dto.VerdictRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	verdict, err := h.factcheck.Verdict(c.UserContext(), payload)
	if err != nil {
		return h.sendServiceError(c, err, "verdict aggregation failed")
	}

	return utils.SendSuccess(c, "verdict aggregated", verdict)
}

func (h *FactCheckHandler) analyze(c *fiber.Ctx) error {
	var payload dto.AnalyzeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.factcheck.Analyze(c.UserContext(), payload)
	if err != nil {
		return h.sendServiceError(c, err, "analysis failed")
	}

	return utils.SendSuccess(c, "analysis completed", response)
}

func (h *FactCheckHandler) analyzeBatch(c *fiber.Ctx) error {
	var payload dto.AnalyzeBatchRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.factcheck.AnalyzeBatch(c.UserContext(), payload)
	if err != nil {
		return h.sendServiceError(c, err, "batch analysis failed")
	}

	return utils.SendSuccess(c, "batch analysis completed", response)
}

func (h *FactCheckHandler) run(c *fiber.Ctx) error {
	var payload dto.SearchRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.factcheck.Run(c.UserContext(), payload)
	if err != nil {
		return h.sendServiceError(c, err, "fact-check run failed")
	}

	return utils.SendSuccess(c, "fact-check completed", response)
}

func (h *FactCheckHandler) createSession(c *fiber.Ctx) error {
	var payload dto.SessionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.sessions.Create(c.UserContext(), payload)
	if err != nil {
		return h.sendServiceError(c, err, "failed to store session")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "session stored", response)
}

func (h *FactCheckHandler) getSession(c *fiber.Ctx) error {
	shareableID := c.Query("shareableId")
	if shareableID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "shareableId required")
	}

	session, err := h.sessions.Get(c.UserContext(), shareableID)
	if err != nil {
		return h.sendServiceError(c, err, "failed to load session")
	}

	return utils.SendSuccess(c, "session loaded", session)
}

// chatStream answers follow-up questions as a plain-text token stream. The
// session context is resolved before streaming starts so lookup failures
// still come back as the JSON envelope; once streaming starts the status is
// already committed.
func (h *FactCheckHandler) chatStream(c *fiber.Ctx) error {
	var payload dto.ChatRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := requestLogger(h.logger, c)

	if payload.ShareableID != "" {
		session, err := h.sessions.Get(ctx, payload.ShareableID)
		if err != nil {
			return h.sendServiceError(c, err, "failed to load session")
		}
		payload.DirectData = &session
		payload.ShareableID = ""
	}

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "no-cache")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		err := h.chat.Stream(ctx, payload, func(delta string) error {
			if _, writeErr := w.WriteString(delta); writeErr != nil {
				return writeErr
			}
			return w.Flush()
		})
		if err != nil {
			logger.Error().Err(err).Msg("chat stream aborted")
		}
	}))

	return nil
}

func (h *FactCheckHandler) sendServiceError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrNoUsableEvidence):
		return utils.SendError(c, fiber.StatusBadRequest, "no papers with usable abstracts")
	case errors.Is(err, service.ErrNoAnalysisSource):
		return utils.SendError(c, fiber.StatusBadRequest, "paper has neither pdf url nor abstract")
	case errors.Is(err, service.ErrNoChatContext):
		return utils.SendError(c, fiber.StatusBadRequest, "shareable_id or direct_data required")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		message := fallback
		if !h.cfg.IsProduction() {
			message = err.Error()
		}
		return utils.SendError(c, fiber.StatusInternalServerError, message)
	}
}
