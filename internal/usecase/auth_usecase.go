package usecase

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"shop/internal/config"
	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// accesstokenの有効期限
const accessTokenTTL = 24 * time.Hour

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type AuthUsecase struct {
	cfg      config.Config
	userRepo repo.UserRepository
}

func NewAuthUsecase(cfg config.Config, userRepo repo.UserRepository) *AuthUsecase {
	return &AuthUsecase{cfg: cfg, userRepo: userRepo}
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

type LoginInput struct {
	Email    string
	Password string
}

type UserOutput struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type AuthOutput struct {
	User        UserOutput `json:"user"`
	AccessToken string     `json:"access_token,omitempty"`
	ExpiresIn   int        `json:"expires_in,omitempty"`
}

func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (AuthOutput, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !emailRe.MatchString(email) {
		return AuthOutput{}, NewHTTPError(http.StatusBadRequest, "invalid email")
	}
	if len(in.Password) < 8 {
		return AuthOutput{}, NewHTTPError(http.StatusBadRequest, "password must be at least 8 characters")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 100 {
		return AuthOutput{}, NewHTTPError(http.StatusBadRequest, "invalid name")
	}
	if len(in.Phone) > 20 {
		return AuthOutput{}, NewHTTPError(http.StatusBadRequest, "invalid phone")
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	user := &model.User{
		Email:        email,
		PasswordHash: string(pwHash),
		Name:         name,
		Phone:        strings.TrimSpace(in.Phone),
		Role:         model.RoleUser,
	}
	if err := u.userRepo.Create(ctx, user); err != nil {
		if err == repo.ErrConflict {
			return AuthOutput{}, NewHTTPError(http.StatusConflict, "email already registered")
		}
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return AuthOutput{User: toUserOutput(*user)}, nil
}

func (u *AuthUsecase) Login(ctx context.Context, in LoginInput) (AuthOutput, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return AuthOutput{}, NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	user, err := u.userRepo.FindByEmail(ctx, email)
	if err == repo.ErrNotFound {
		//存在有無は漏らさない
		return AuthOutput{}, NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	token, expiresIn, err := u.issueAccessToken(user)
	if err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return AuthOutput{
		User:        toUserOutput(user),
		AccessToken: token,
		ExpiresIn:   expiresIn,
	}, nil
}

func (u *AuthUsecase) Me(ctx context.Context, userID int64) (UserOutput, error) {
	if userID <= 0 {
		return UserOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	user, err := u.userRepo.FindByID(ctx, userID)
	if err == repo.ErrNotFound {
		return UserOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err != nil {
		return UserOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return toUserOutput(user), nil
}

// jwt発行
func (u *AuthUsecase) issueAccessToken(user model.User) (string, int, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(accessTokenTTL).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(u.cfg.JWTSecret))
	if err != nil {
		return "", 0, err
	}

	return signed, int(accessTokenTTL.Seconds()), nil
}

func toUserOutput(u model.User) UserOutput {
	return UserOutput{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  string(u.Role),
	}
}
