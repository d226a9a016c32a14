package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"socialnet/internal/enrichment"
	"socialnet/internal/featureflags"
	"socialnet/internal/middleware"
	"socialnet/internal/models"
	"socialnet/internal/observability"
	"socialnet/internal/repository"
	"socialnet/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	userRepo     repository.UserRepository
	verifier     enrichment.EmailVerifier
	enricher     enrichment.NameEnricher
	flags        *featureflags.Manager
	passwordCost int
}

type SignupInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// UpdateProfileInput carries optional name changes; nil leaves a field as is.
type UpdateProfileInput struct {
	UserID    uint
	FirstName *string
	LastName  *string
}

type DeleteUserInput struct {
	ActorID  uint
	TargetID uint
}

// NewUserService wires the user service. Nil verifier or enricher disable the
// corresponding signup step.
func NewUserService(
	userRepo repository.UserRepository,
	verifier enrichment.EmailVerifier,
	enricher enrichment.NameEnricher,
	flags *featureflags.Manager,
) *UserService {
	if verifier == nil {
		verifier = enrichment.NoopVerifier{}
	}
	if enricher == nil {
		enricher = enrichment.NoopEnricher{}
	}
	return &UserService{
		userRepo:     userRepo,
		verifier:     verifier,
		enricher:     enricher,
		flags:        flags,
		passwordCost: bcrypt.DefaultCost,
	}
}

// Signup validates and stores a new account.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (user *models.User, err error) {
	defer func() {
		observability.SignupsTotal.WithLabelValues(signupOutcome(err)).Inc()
	}()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateName("first_name", in.FirstName); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateName("last_name", in.LastName); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	existing, err := s.userRepo.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("A user with that username already exists")
	}
	existing, err = s.userRepo.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("A user with that email already exists")
	}

	if s.flags.Enabled(featureflags.EmailVerification, 0) {
		verdict, verr := s.verifier.Verify(ctx, in.Email)
		if verr != nil {
			middleware.Logger.WarnContext(ctx, "email verification failed", "error", verr)
		} else if verdict.Undeliverable() {
			return nil, models.NewValidationError(fmt.Sprintf("Email %s can not be reached", in.Email))
		}
	}

	if s.flags.Enabled(featureflags.NameEnrichment, 0) && (in.FirstName == "" || in.LastName == "") {
		name, nerr := s.enricher.Lookup(ctx, in.Email)
		if nerr != nil {
			middleware.Logger.WarnContext(ctx, "name enrichment failed", "error", nerr)
		} else if name != nil {
			if in.FirstName == "" {
				in.FirstName = name.GivenName
			}
			if in.LastName == "" {
				in.LastName = name.FamilyName
			}
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.passwordCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user = &models.User{
		Username:  in.Username,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Password:  string(hashed),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func signupOutcome(err error) string {
	if err != nil && models.StatusFor(err) == http.StatusBadRequest {
		return "rejected"
	}
	return observability.Outcome(err)
}

// Authenticate checks a username/password pair.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	const msg = "No active account found with the given credentials"

	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError(msg)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewUnauthorizedError(msg)
	}
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.userRepo.List(ctx, limit, offset)
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// LeastFavorite lists users who have posts but no likes on any of them.
func (s *UserService) LeastFavorite(ctx context.Context) ([]models.User, error) {
	return s.userRepo.ListLeastFavorite(ctx)
}

func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	if in.FirstName != nil {
		name := strings.TrimSpace(*in.FirstName)
		if err := validation.ValidateName("first_name", name); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.FirstName = name
	}
	if in.LastName != nil {
		name := strings.TrimSpace(*in.LastName)
		if err := validation.ValidateName("last_name", name); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.LastName = name
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes an account. Users may only delete themselves.
func (s *UserService) DeleteUser(ctx context.Context, in DeleteUserInput) error {
	if in.ActorID != in.TargetID {
		return models.NewForbiddenError("You can only delete your own account")
	}
	return s.userRepo.Delete(ctx, in.TargetID)
}
