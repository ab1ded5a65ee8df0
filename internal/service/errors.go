package service

import (
	"context"
	"errors"
	"fmt"

	"loop/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// translateError maps store errors onto the AppError taxonomy. AppErrors pass
// through unchanged; resource names the entity for not-found messages.
func translateError(err error, resource string, id any) error {
	if err == nil {
		return nil
	}

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var pgErr *pgconn.PgError
	hasPg := errors.As(err, &pgErr)

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.NewNotFoundError(resource, id)
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPg && pgErr.Code == pgUniqueViolation:
		return models.NewConflictError(fmt.Sprintf("%s already exists", resource))
	case errors.Is(err, gorm.ErrForeignKeyViolated), hasPg && pgErr.Code == pgForeignKeyViolation:
		return &models.AppError{
			Code:    models.CodeNotFound,
			Message: "Referenced resource not found",
			Err:     err,
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return models.NewUnavailableError(err)
	default:
		return models.NewInternalError(err)
	}
}
