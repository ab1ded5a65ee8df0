package service

import (
	"context"
	"unicode/utf8"

	"loop/internal/authz"
	"loop/internal/models"
	"loop/internal/repository"
	"loop/internal/validation"

	"github.com/google/uuid"
)

type CommentService struct {
	commentRepo repository.CommentRepository
	counters    repository.CounterRepository
	checker     authz.Checker
	access      loopAccess
	fx          sideEffects
}

type CreateCommentInput struct {
	UserID uuid.UUID
	LoopID uuid.UUID
	Body   string
}

type DeleteCommentInput struct {
	UserID    uuid.UUID
	LoopID    uuid.UUID
	CommentID uuid.UUID
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	counters repository.CounterRepository,
	loops repository.LoopRepository,
	circles repository.CircleRepository,
	follows repository.FollowRepository,
	checker authz.Checker,
	pub Publisher,
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		counters:    counters,
		checker:     checker,
		access:      loopAccess{loops: loops, circles: circles, follows: follows},
		fx:          sideEffects{pub: pub},
	}
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if err := s.checker.EnsureActive(ctx, in.UserID); err != nil {
		return nil, err
	}
	body := validation.SanitizeText(in.Body)
	if body == "" {
		return nil, models.NewValidationError("Comment body is required")
	}
	if utf8.RuneCountInString(body) > models.MaxCommentLength {
		return nil, models.NewValidationError("Comment too long (max 2000 characters)")
	}

	loop, err := s.access.load(ctx, in.UserID, in.LoopID)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{
		LoopID:   loop.ID,
		AuthorID: in.UserID,
		Body:     body,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, translateError(err, "Loop", in.LoopID)
	}

	adjustAfterCommit(ctx, s.counters, s.fx, loop.ID, models.CounterComments, 1)

	actor := in.UserID
	s.fx.notify(ctx, loop.AuthorID, &actor, models.NotificationComment,
		"New comment", excerpt(body, 140),
		models.JSONMap{"loop_id": loop.ID.String(), "comment_id": comment.ID.String()})
	s.fx.broadcast(ctx, LoopRoom(loop.ID), "comment.created", map[string]any{
		"loop_id":    loop.ID.String(),
		"comment_id": comment.ID.String(),
	})
	return comment, nil
}

func (s *CommentService) ListComments(ctx context.Context, loopID, viewer uuid.UUID, limit, offset int) ([]*models.Comment, error) {
	if _, err := s.access.load(ctx, viewer, loopID); err != nil {
		return nil, err
	}
	comments, err := s.commentRepo.ListByLoop(ctx, loopID, limit, offset)
	if err != nil {
		return nil, translateError(err, "Loop", loopID)
	}
	return comments, nil
}

// DeleteComment is allowed for the comment author, the loop author and
// content moderators.
func (s *CommentService) DeleteComment(ctx context.Context, in DeleteCommentInput) error {
	comment, err := s.commentRepo.GetByID(ctx, in.CommentID)
	if err != nil {
		return translateError(err, "Comment", in.CommentID)
	}
	if comment.LoopID != in.LoopID {
		return models.NewNotFoundError("Comment", in.CommentID)
	}

	if comment.AuthorID != in.UserID {
		loop, err := s.access.loops.GetByID(ctx, comment.LoopID)
		if err != nil {
			return translateError(err, "Loop", comment.LoopID)
		}
		if loop.AuthorID != in.UserID {
			ok, err := s.checker.HasCapability(ctx, in.UserID, authz.ModerateContent)
			if err != nil {
				return translateError(err, "Comment", in.CommentID)
			}
			if !ok {
				return models.NewForbiddenError("Not allowed to delete this comment")
			}
		}
	}

	if err := s.commentRepo.Delete(ctx, comment.ID); err != nil {
		return translateError(err, "Comment", in.CommentID)
	}
	adjustAfterCommit(ctx, s.counters, s.fx, comment.LoopID, models.CounterComments, -1)
	return nil
}

// excerpt shortens s to at most n runes.
func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
