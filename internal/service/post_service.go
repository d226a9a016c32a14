// Package service holds the business rules behind the HTTP handlers.
package service

import (
	"context"
	"strings"

	"socialnet/internal/models"
	"socialnet/internal/observability"
	"socialnet/internal/repository"
	"socialnet/internal/validation"
)

const defaultPageSize = 50

// MaxPageSize is the largest page any list endpoint returns.
const MaxPageSize = 100

type PostService struct {
	postRepo repository.PostRepository
}

type CreatePostInput struct {
	UserID uint
	Data   string
}

type ListPostsInput struct {
	CreatorID uint
	Limit     int
	Offset    int
}

type UpdatePostInput struct {
	UserID uint
	PostID uint
	Data   string
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

func NewPostService(postRepo repository.PostRepository) *PostService {
	return &PostService{postRepo: postRepo}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := validation.ValidatePostData(in.Data); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	post := &models.Post{
		UserID: in.UserID,
		Data:   strings.TrimSpace(in.Data),
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	return s.postRepo.GetByID(ctx, id)
}

// ListPosts returns posts newest first, optionally for a single creator.
func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) ([]*models.Post, error) {
	return s.postRepo.List(ctx, repository.PostFilter{
		CreatorID: in.CreatorID,
		Limit:     ClampLimit(in.Limit),
		Offset:    max(in.Offset, 0),
	})
}

func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}

	if post.UserID != in.UserID {
		return nil, models.NewForbiddenError("You can only update your own posts")
	}
	if err := validation.ValidatePostData(in.Data); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	post.Data = strings.TrimSpace(in.Data)
	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	post, err := s.postRepo.GetByID(ctx, in.PostID)
	if err != nil {
		return err
	}

	if post.UserID != in.UserID {
		return models.NewForbiddenError("You can only delete your own posts")
	}
	return s.postRepo.Delete(ctx, in.PostID)
}

// LikePost makes userID a fan of the post. created is false when the like
// already existed.
func (s *PostService) LikePost(ctx context.Context, userID, postID uint) (post *models.Post, created bool, err error) {
	defer func() {
		observability.LikesTotal.WithLabelValues("like", likeOutcome(created, err)).Inc()
	}()

	post, err = s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, false, err
	}

	created, err = s.postRepo.Like(ctx, userID, postID)
	if err != nil {
		return nil, false, err
	}
	return post, created, nil
}

// UnlikePost removes a like. Unliking a post that was never liked is forbidden.
func (s *PostService) UnlikePost(ctx context.Context, userID, postID uint) (err error) {
	defer func() {
		observability.LikesTotal.WithLabelValues("unlike", observability.Outcome(err)).Inc()
	}()

	if _, err = s.postRepo.GetByID(ctx, postID); err != nil {
		return err
	}

	removed, err := s.postRepo.Unlike(ctx, userID, postID)
	if err != nil {
		return err
	}
	if !removed {
		return models.NewForbiddenError("Post cant be unliked by the user. It was not liked previously")
	}
	return nil
}

func likeOutcome(created bool, err error) string {
	if err == nil && !created {
		return "duplicate"
	}
	return observability.Outcome(err)
}

// ClampLimit applies the default page size and caps oversized pages.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	return min(limit, MaxPageSize)
}
