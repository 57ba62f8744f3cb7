package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/model/dto"
	"github.com/qs3c/vendor_portal_server/internal/pkg/jwt"
	"github.com/qs3c/vendor_portal_server/internal/repository"
)

// Principal 登录成功后的身份
type Principal struct {
	ID     int64
	Name   string
	Email  string
	Mobile string
	Role   model.UserRole
}

// CredentialStore 凭据来源
type CredentialStore interface {
	// Authenticate 用邮箱或手机号加密码登录，失败返回 ErrInvalidCredentials
	Authenticate(ctx context.Context, login, password string) (*Principal, error)
	// Lookup 按 ID 查询身份
	Lookup(ctx context.Context, id int64) (*Principal, error)
}

// DBCredentialStore 使用 users 表与 bcrypt 哈希
type DBCredentialStore struct {
	users *repository.UserRepository
}

func NewDBCredentialStore(users *repository.UserRepository) *DBCredentialStore {
	return &DBCredentialStore{users: users}
}

func (s *DBCredentialStore) Authenticate(ctx context.Context, login, password string) (*Principal, error) {
	login = strings.TrimSpace(login)

	var user *model.User
	var err error
	if strings.Contains(login, "@") {
		user, err = s.users.GetByEmail(ctx, strings.ToLower(login))
	} else {
		user, err = s.users.GetByMobile(ctx, strings.ReplaceAll(login, " ", ""))
	}
	if err != nil {
		if errors.Is(translate(err, "user"), ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return principalOf(user), nil
}

func (s *DBCredentialStore) Lookup(ctx context.Context, id int64) (*Principal, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "user")
	}
	return principalOf(user), nil
}

func principalOf(user *model.User) *Principal {
	p := &Principal{ID: user.ID, Name: user.Name, Role: user.Role}
	if user.Email != nil {
		p.Email = *user.Email
	}
	if user.Mobile != nil {
		p.Mobile = *user.Mobile
	}
	return p
}

// StaticCredentialStore 配置文件中的固定账号，用于没有数据库账号的审核环境
type StaticCredentialStore struct {
	users []config.StaticUser
}

func NewStaticCredentialStore(users []config.StaticUser) *StaticCredentialStore {
	return &StaticCredentialStore{users: users}
}

func (s *StaticCredentialStore) Authenticate(ctx context.Context, login, password string) (*Principal, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	for _, u := range s.users {
		if strings.ToLower(u.Email) != login {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
			return nil, ErrInvalidCredentials
		}
		return staticPrincipal(u), nil
	}
	return nil, ErrInvalidCredentials
}

func (s *StaticCredentialStore) Lookup(ctx context.Context, id int64) (*Principal, error) {
	for _, u := range s.users {
		if u.ID == id {
			return staticPrincipal(u), nil
		}
	}
	return nil, notFound("user not found")
}

func staticPrincipal(u config.StaticUser) *Principal {
	return &Principal{ID: u.ID, Name: u.Name, Email: u.Email, Role: model.UserRole(u.Role)}
}

// NewCredentialStore 按 auth.credential_store 选择实现
func NewCredentialStore(cfg *config.Config, users *repository.UserRepository) CredentialStore {
	if cfg.Auth.CredentialStore == "static" {
		return NewStaticCredentialStore(cfg.Auth.StaticUsers)
	}
	return NewDBCredentialStore(users)
}

type AuthService struct {
	store CredentialStore
	cfg   *config.Config
	rt    Runtime
}

func NewAuthService(store CredentialStore, cfg *config.Config, rt Runtime) *AuthService {
	return &AuthService{store: store, cfg: cfg, rt: rt}
}

// Login 登录并签发令牌
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	p, err := s.store.Authenticate(ctx, req.Login, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.rt.log().Info("login failed", "login", req.Login)
		}
		return nil, err
	}
	if !p.Role.Valid() {
		return nil, ErrInvalidCredentials
	}

	token, err := jwt.GenerateToken(p.ID, string(p.Role), s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		Token: token,
		User:  userInfo(p),
	}, nil
}

// Me 当前登录账号
func (s *AuthService) Me(ctx context.Context, userID int64) (*dto.UserInfo, error) {
	p, err := s.store.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userInfo(p), nil
}

func userInfo(p *Principal) *dto.UserInfo {
	return &dto.UserInfo{
		ID:     p.ID,
		Name:   p.Name,
		Email:  p.Email,
		Mobile: p.Mobile,
		Role:   string(p.Role),
	}
}
