package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"roboadvisor/pkg/auth"
	"roboadvisor/pkg/middleware"
	"roboadvisor/pkg/models"
	"roboadvisor/pkg/repository"
)

// AuthController 注册与登录
type AuthController struct {
	repo   *repository.Repository
	tokens *auth.TokenManager
}

// NewAuthController 创建认证控制器
func NewAuthController(repo *repository.Repository, tokens *auth.TokenManager) *AuthController {
	return &AuthController{repo: repo, tokens: tokens}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

// LoginRequest 登录请求；表单登录时邮箱放在 username 字段
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password" binding:"required"`
}

// TokenResponse 登录响应
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// UserResponse 用户信息
type UserResponse struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func userResponse(u *models.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Name: u.Name}
}

// Register 注册新用户
func (a *AuthController) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.Warnf("注册参数错误: %v", err)
		respondError(c, http.StatusBadRequest, "invalid request body", CodeInvalidParams)
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		badRequest(c, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	_, err := a.repo.GetUserByEmail(c.Request.Context(), email)
	switch {
	case err == nil:
		respondError(c, http.StatusBadRequest, "email already registered", "EMAIL_TAKEN")
		return
	case !errors.Is(err, repository.ErrNotFound):
		storeError(c, err, "user")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logrus.Errorf("密码哈希失败: %v", err)
		respondError(c, http.StatusInternalServerError, "internal server error", CodeInternal)
		return
	}

	user := &models.User{Email: email, Name: strings.TrimSpace(req.Name), Password: hash}
	if err := a.repo.CreateUser(c.Request.Context(), user); err != nil {
		storeError(c, err, "user")
		return
	}

	logrus.WithField("userID", user.ID).Info("用户注册成功")
	c.JSON(http.StatusCreated, userResponse(user))
}

// Login 用户登录，接受JSON或表单
func (a *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		logrus.Warnf("登录参数错误: %v", err)
		respondError(c, http.StatusBadRequest, "invalid request body", CodeInvalidParams)
		return
	}
	email := req.Email
	if email == "" {
		email = req.Username
	}
	if strings.TrimSpace(email) == "" {
		respondError(c, http.StatusBadRequest, "email is required", CodeInvalidParams)
		return
	}

	user, err := a.repo.GetUserByEmail(c.Request.Context(), email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		storeError(c, err, "user")
		return
	}
	if user == nil || !auth.CheckPassword(user.Password, req.Password) {
		logrus.Warnf("登录失败: 邮箱或密码错误 - %s", email)
		c.Header("WWW-Authenticate", "Bearer")
		respondError(c, http.StatusUnauthorized, "incorrect email or password", "INVALID_CREDENTIALS")
		return
	}

	token, err := a.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		logrus.Errorf("生成token失败: %v", err)
		respondError(c, http.StatusInternalServerError, "failed to generate token", "TOKEN_GENERATION_FAILED")
		return
	}

	logrus.WithField("userID", user.ID).Info("用户登录成功")
	c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Me 当前用户信息
func (a *AuthController) Me(c *gin.Context) {
	user, err := a.repo.GetUserByID(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		storeError(c, err, "user")
		return
	}
	c.JSON(http.StatusOK, userResponse(user))
}
