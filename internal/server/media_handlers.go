package server

import (
	"io"

	"loop/internal/featureflags"
	"loop/internal/media"
	"loop/internal/models"

	"github.com/gofiber/fiber/v2"
)

// UploadMedia handles POST /api/media
// @Summary Upload a media file for a loop
// @Tags media
// @Accept mpfd
// @Produce json
// @Param file formData file true "Image, video, audio or document"
// @Success 201 {object} media.Asset
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /media [post]
// @Security BearerAuth
func (s *Server) UploadMedia(c *fiber.Ctx) error {
	userID := currentUserID(c)
	if !s.featureFlags.EnabledOr(featureflags.MediaUploads, userID, true) {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("Media uploads are not enabled for this account"))
	}

	file, err := c.FormFile("file")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("No file uploaded"))
	}
	if file.Size > s.media.MaxBytes() {
		return respondError(c, models.NewValidationError("File too large"))
	}

	src, err := file.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}

	asset, err := s.media.Upload(c.UserContext(), media.UploadInput{
		UserID:      userID,
		Filename:    file.Filename,
		ContentType: file.Header.Get(fiber.HeaderContentType),
		Content:     content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(asset)
}
