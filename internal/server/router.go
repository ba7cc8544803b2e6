package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spotter-app/backend/internal/auth"
	"github.com/spotter-app/backend/internal/comments"
	"github.com/spotter-app/backend/internal/media"
	"github.com/spotter-app/backend/internal/posts"
	"github.com/spotter-app/backend/internal/ranking"
	"github.com/spotter-app/backend/internal/users"
	"github.com/spotter-app/backend/internal/workouts"
	"go.uber.org/zap"
)

const identityContextKey = "spotter_identity"

// maxUploadBytes bounds media payload size at 32 MiB.
const maxUploadBytes = 32 << 20

var (
	errMissingTokenManager    = errors.New("token manager dependency required")
	errMissingUsersService    = errors.New("users service dependency required")
	errMissingWorkoutsService = errors.New("workouts service dependency required")
	errMissingCommentsService = errors.New("comments service dependency required")
	errMissingRankingService  = errors.New("ranking service dependency required")
	errMissingPostsService    = errors.New("posts service dependency required")
	errMissingMediaService    = errors.New("media service dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// SessionTokenManager validates the bearer tokens minted at login.
type SessionTokenManager interface {
	ValidateToken(token string) (auth.Identity, error)
}

// Dependencies carries the wired services for the HTTP handler.
type Dependencies struct {
	TokenManager    SessionTokenManager
	UsersService    *users.Service
	WorkoutsService *workouts.Service
	CommentsService *comments.Service
	RankingService  *ranking.Service
	PostsService    *posts.Service
	MediaService    *media.Service
	Logger          *zap.Logger
}

// NewHTTPHandler wires the API routes onto a gin engine.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.WorkoutsService == nil {
		return nil, errMissingWorkoutsService
	}
	if deps.CommentsService == nil {
		return nil, errMissingCommentsService
	}
	if deps.RankingService == nil {
		return nil, errMissingRankingService
	}
	if deps.PostsService == nil {
		return nil, errMissingPostsService
	}
	if deps.MediaService == nil {
		return nil, errMissingMediaService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	router.MaxMultipartMemory = maxUploadBytes

	handler := &httpHandler{
		tokens:   deps.TokenManager,
		users:    deps.UsersService,
		workouts: deps.WorkoutsService,
		comments: deps.CommentsService,
		ranking:  deps.RankingService,
		posts:    deps.PostsService,
		media:    deps.MediaService,
		logger:   logger,
	}

	v1 := router.Group("/v1")
	v1.POST("/auth/register", handler.handleRegister)
	v1.POST("/auth/login", handler.handleLogin)
	v1.GET("/ranking", handler.handleRanking)
	v1.GET("/media/:key", handler.handleMediaOpen)

	protected := v1.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/profile", handler.handleGetProfile)
	protected.PATCH("/auth/profile", handler.handleUpdateProfile)
	protected.PUT("/auth/password", handler.handleChangePassword)
	protected.PUT("/auth/device-token", handler.handleSetDeviceToken)

	protected.POST("/workouts", handler.handleCreateWorkout)
	protected.GET("/workouts", handler.handleListWorkouts)
	protected.GET("/workouts/:id", handler.handleGetWorkout)
	protected.PATCH("/workouts/:id", handler.handleUpdateWorkout)
	protected.DELETE("/workouts/:id", handler.handleDeleteWorkout)

	protected.POST("/workouts/:id/comments", handler.handleCreateComment)
	protected.GET("/workouts/:id/comments", handler.handleListComments)
	protected.DELETE("/comments/:id", handler.handleDeleteComment)

	protected.POST("/posts", handler.handleCreatePost)
	protected.GET("/posts", handler.handleListPosts)
	protected.DELETE("/posts/:id", handler.handleDeletePost)
	protected.POST("/posts/:id/like", handler.handleToggleLike)

	protected.POST("/media", handler.handleMediaUpload)
	protected.DELETE("/media/:key", handler.handleMediaRemove)

	return router, nil
}

type httpHandler struct {
	tokens   SessionTokenManager
	users    *users.Service
	workouts *workouts.Service
	comments *comments.Service
	ranking  *ranking.Service
	posts    *posts.Service
	media    *media.Service
	logger   *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	identity, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

func (h *httpHandler) identity(c *gin.Context) (auth.Identity, bool) {
	value, exists := c.Get(identityContextKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return auth.Identity{}, false
	}
	return identity, true
}

type registerRequestPayload struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	FiscalCode string `json:"fiscal_code"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.users.Register(c.Request.Context(), users.RegisterParams{
		Username:   request.Username,
		Password:   request.Password,
		FiscalCode: request.FiscalCode,
	})
	switch {
	case errors.Is(err, users.ErrUsernameTaken), errors.Is(err, users.ErrFiscalCodeTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, users.ErrInvalidFiscalCode), errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	case err != nil:
		h.logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "username": user.Username})
}

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	UserID      uint   `json:"user_id"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.users.Login(c.Request.Context(), request.Username, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: result.Token,
		ExpiresIn:   result.ExpiresIn,
		TokenType:   "Bearer",
		UserID:      result.UserID,
	})
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	view, err := h.users.GetProfile(c.Request.Context(), identity.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("profile read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_failed"})
		return
	}
	c.JSON(http.StatusOK, view)
}

type updateProfileRequestPayload struct {
	Username string `json:"username"`
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	var request updateProfileRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	err := h.users.UpdateProfile(c.Request.Context(), identity.UserID, request.Username)
	switch {
	case errors.Is(err, users.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, users.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	case err != nil:
		h.logger.Error("profile update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_update_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type changePasswordRequestPayload struct {
	Password string `json:"password"`
}

func (h *httpHandler) handleChangePassword(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	var request changePasswordRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	err := h.users.ChangePassword(c.Request.Context(), identity.UserID, request.Password)
	switch {
	case errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	case errors.Is(err, users.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	case err != nil:
		h.logger.Error("password change failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "password_change_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type deviceTokenRequestPayload struct {
	DeviceToken string `json:"device_token"`
}

func (h *httpHandler) handleSetDeviceToken(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	var request deviceTokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	err := h.users.SetDeviceToken(c.Request.Context(), identity.UserID, request.DeviceToken)
	if errors.Is(err, users.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("device token update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "device_token_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type workoutRequestPayload struct {
	StartedAt *time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	Notes     *string    `json:"notes"`
}

func (h *httpHandler) handleCreateWorkout(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	var request workoutRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.StartedAt == nil || request.EndedAt == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	notes := ""
	if request.Notes != nil {
		notes = *request.Notes
	}
	workout, err := h.workouts.Create(c.Request.Context(), identity, workouts.CreateParams{
		StartedAt: *request.StartedAt,
		EndedAt:   *request.EndedAt,
		Notes:     notes,
	})
	if err != nil {
		h.respondWorkoutError(c, err)
		return
	}
	c.JSON(http.StatusCreated, workout)
}

func (h *httpHandler) handleListWorkouts(c *gin.Context) {
	views, err := h.workouts.List(c.Request.Context())
	if err != nil {
		h.respondWorkoutError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *httpHandler) handleGetWorkout(c *gin.Context) {
	workoutID, ok := parseIDParam(c)
	if !ok {
		return
	}
	view, err := h.workouts.Get(c.Request.Context(), workoutID)
	if err != nil {
		h.respondWorkoutError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleUpdateWorkout(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	workoutID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var request workoutRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	workout, err := h.workouts.Update(c.Request.Context(), identity, workoutID, workouts.UpdateParams{
		StartedAt: request.StartedAt,
		EndedAt:   request.EndedAt,
		Notes:     request.Notes,
	})
	if err != nil {
		h.respondWorkoutError(c, err)
		return
	}
	c.JSON(http.StatusOK, workout)
}

func (h *httpHandler) handleDeleteWorkout(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	workoutID, ok := parseIDParam(c)
	if !ok {
		return
	}

	mode := workouts.SoftDelete
	if c.Query("hard") == "true" {
		// Hard deletion is an administrative operation.
		if !identity.Elevated() {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		mode = workouts.HardDelete
	}

	if err := h.workouts.Delete(c.Request.Context(), identity, workoutID, mode); err != nil {
		h.respondWorkoutError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) respondWorkoutError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, workouts.ErrWorkoutNotFound), errors.Is(err, workouts.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, workouts.ErrNotOwner):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	default:
		var serviceErr *workouts.ServiceError
		if errors.As(err, &serviceErr) {
			h.logger.Error("workout operation failed", zap.String("code", serviceErr.Code()), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": serviceErr.Code()})
			return
		}
		h.logger.Error("workout operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "workout_failed"})
	}
}

type commentRequestPayload struct {
	Text string `json:"text"`
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	workoutID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	comment, err := h.comments.Create(c.Request.Context(), identity.UserID, workoutID, request.Text)
	switch {
	case errors.Is(err, comments.ErrEmptyText):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	case errors.Is(err, comments.ErrWorkoutNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	case err != nil:
		h.logger.Error("comment create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "comment_failed"})
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	workoutID, ok := parseIDParam(c)
	if !ok {
		return
	}
	views, err := h.comments.ListForWorkout(c.Request.Context(), workoutID)
	if err != nil {
		h.logger.Error("comment list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "comment_failed"})
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	commentID, ok := parseIDParam(c)
	if !ok {
		return
	}
	err := h.comments.Remove(c.Request.Context(), identity.UserID, commentID)
	switch {
	case errors.Is(err, comments.ErrCommentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	case errors.Is(err, comments.ErrNotAuthor):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	case err != nil:
		h.logger.Error("comment delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "comment_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRanking(c *gin.Context) {
	entries, err := h.ranking.Leaderboard(c.Request.Context())
	if err != nil {
		h.logger.Error("ranking failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ranking_failed"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

type postRequestPayload struct {
	Text string `json:"text"`
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	var request postRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	post, err := h.posts.Create(c.Request.Context(), identity.UserID, request.Text)
	if errors.Is(err, posts.ErrEmptyText) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err != nil {
		h.logger.Error("post create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "post_failed"})
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *httpHandler) handleListPosts(c *gin.Context) {
	limit := parseQueryInt(c, "limit", 0)
	skip := parseQueryInt(c, "skip", 0)
	views, err := h.posts.FindAll(c.Request.Context(), limit, skip)
	if err != nil {
		h.logger.Error("post list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "post_failed"})
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *httpHandler) handleDeletePost(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	postID, ok := parseIDParam(c)
	if !ok {
		return
	}
	err := h.posts.Remove(c.Request.Context(), identity.UserID, postID)
	if errors.Is(err, posts.ErrPostNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("post delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "post_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleToggleLike(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	postID, ok := parseIDParam(c)
	if !ok {
		return
	}
	liked, err := h.posts.ToggleLike(c.Request.Context(), identity.UserID, postID)
	if errors.Is(err, posts.ErrPostNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("like toggle failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "post_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked})
}

func (h *httpHandler) handleMediaUpload(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}

	category := media.Category(strings.ToUpper(strings.TrimSpace(c.PostForm("category"))))
	parentID := uint(parseQueryIntValue(c.PostForm("parent_id"), 0))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	mimeType := fileHeader.Header.Get("Content-Type")

	view, err := h.media.Attach(c.Request.Context(), identity.UserID, category, parentID, data, mimeType)
	switch {
	case errors.Is(err, media.ErrInvalidCategory):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	case errors.Is(err, media.ErrParentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	case errors.Is(err, media.ErrStorageDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_disabled"})
		return
	case err != nil:
		h.logger.Error("media upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "media_failed"})
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *httpHandler) handleMediaRemove(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}
	key := c.Param("key")
	err := h.media.Remove(c.Request.Context(), identity.UserID, key)
	switch {
	case errors.Is(err, media.ErrMediaNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	case errors.Is(err, media.ErrParentNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	case err != nil:
		h.logger.Error("media remove failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "media_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleMediaOpen proxies stored objects. Protected objects accept the token
// either as a bearer header or a token query parameter, so plain <img> tags
// can load them.
func (h *httpHandler) handleMediaOpen(c *gin.Context) {
	key := c.Param("key")

	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if token == "" {
		token = c.Query("token")
	}

	reader, mimeType, err := h.media.Open(c.Request.Context(), key, token)
	switch {
	case errors.Is(err, media.ErrMediaNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	case errors.Is(err, media.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	case errors.Is(err, media.ErrStorageDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_disabled"})
		return
	case err != nil:
		h.logger.Error("media open failed", zap.Error(err), zap.String("key", key))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "media_failed"})
		return
	}
	defer reader.Close()

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, mimeType, reader, nil)
}

func parseIDParam(c *gin.Context) (uint, bool) {
	value, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || value == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return 0, false
	}
	return uint(value), true
}

func parseQueryInt(c *gin.Context, name string, fallback int) int {
	return parseQueryIntValue(c.Query(name), fallback)
}

func parseQueryIntValue(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
