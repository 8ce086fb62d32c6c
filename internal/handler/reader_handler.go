package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/paperproof/paperproof-api/internal/config"
	"github.com/paperproof/paperproof-api/internal/dto"
	"github.com/paperproof/paperproof-api/internal/service"
	"github.com/paperproof/paperproof-api/internal/utils"
)

// ReaderHandler exposes the read-mode structure extraction over HTTP.
type ReaderHandler struct {
	reader service.ReaderService
	cfg    config.Config
	logger zerolog.Logger
}

// NewReaderHandler constructs the reader handler.
func NewReaderHandler(reader service.ReaderService, cfg config.Config, logger zerolog.Logger) *ReaderHandler {
	return &ReaderHandler{
		reader: reader,
		cfg:    cfg,
		logger: logger.With().Str("component", "reader_handler").Logger(),
	}
}

// Register wires reader routes under the provided router group.
func (h *ReaderHandler) Register(router fiber.Router) {
	router.Post("/documents", h.createDocument)
	router.Get("/documents/:shareableId", h.getDocument)
}

func (h *ReaderHandler) createDocument(c *fiber.Ctx) error {
	var payload dto.DocumentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.reader.CreateDocument(c.UserContext(), payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}

		requestLogger(h.logger, c).Error().Err(err).Str("url", payload.PDFURL).Msg("document extraction failed")
		message := "document extraction failed"
		if !h.cfg.IsProduction() {
			message = err.Error()
		}
		return utils.SendError(c, fiber.StatusInternalServerError, message)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "document extracted", response)
}

func (h *ReaderHandler) getDocument(c *fiber.Ctx) error {
	shareableID := c.Params("shareableId")

	response, err := h.reader.GetDocument(c.UserContext(), shareableID)
	if err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "document not found")
		}

		requestLogger(h.logger, c).Error().Err(err).Msg("failed to load document")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load document")
	}

	return utils.SendSuccess(c, "document loaded", response)
}
