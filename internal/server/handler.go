package server

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/tiputa/apuri/internal/auth"
	"github.com/tiputa/apuri/internal/models"
	"github.com/tiputa/apuri/internal/service"
	"github.com/tiputa/apuri/internal/ws"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
// 授权失败按照产品约定静默重定向到安全页面，而不是返回错误。
type Handler struct {
	userSvc    *service.UserService
	postSvc    *service.PostService
	roomSvc    *service.RoomService
	msgSvc     *service.MessageService
	dmSvc      *service.DMService
	profileSvc *service.ProfileService
	hub        *ws.Hub
	uploadDir  string
}

func NewHandler(
	userSvc *service.UserService,
	postSvc *service.PostService,
	roomSvc *service.RoomService,
	msgSvc *service.MessageService,
	dmSvc *service.DMService,
	profileSvc *service.ProfileService,
	hub *ws.Hub,
	uploadDir string,
) *Handler {
	return &Handler{
		userSvc:    userSvc,
		postSvc:    postSvc,
		roomSvc:    roomSvc,
		msgSvc:     msgSvc,
		dmSvc:      dmSvc,
		profileSvc: profileSvc,
		hub:        hub,
		uploadDir:  uploadDir,
	}
}

func pathID(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

// Signup 处理用户注册请求。
func (h *Handler) Signup(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Username) < 2 || len(req.Username) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	result, err := h.userSvc.Register(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("signup")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": result.ID, "username": result.Username})
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user":          gin.H{"id": result.User.ID, "username": result.User.Username},
	})
}

// Refresh 处理 token 刷新请求。
func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.RefreshTokens(req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": result.AccessToken, "refresh_token": result.RefreshToken})
}

// Logout 吊销 refresh token。
func (h *Handler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.userSvc.Logout(req.RefreshToken); err != nil {
		log.Error().Err(err).Msg("logout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Home 返回最近 24 小时的投稿，最新的在前。
func (h *Handler) Home(c *gin.Context) {
	posts, err := h.postSvc.ListRecent()
	if err != nil {
		log.Error().Err(err).Msg("list posts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list posts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// CreatePost 创建投稿，multipart 形式，图片可选。
func (h *Handler) CreatePost(c *gin.Context) {
	text := c.PostForm("text")
	imagePath := ""
	if file, err := c.FormFile("image"); err == nil && file != nil {
		name := fmt.Sprintf("post_%d_%d%s", auth.GetUserID(c), time.Now().UnixNano(), filepath.Ext(file.Filename))
		dst := filepath.Join(h.uploadDir, name)
		if err := c.SaveUploadedFile(file, dst); err != nil {
			log.Error().Err(err).Msg("save post image")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save image"})
			return
		}
		imagePath = dst
	}
	post, err := h.postSvc.Create(auth.GetUserID(c), text, imagePath)
	if err != nil {
		if errors.Is(err, service.ErrEmptyText) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
			return
		}
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("create post")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create post"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": post.ID, "text": post.Text, "image_path": post.ImagePath})
}

// CreateRoom 创建房间，调用者成为 host。
func (h *Handler) CreateRoom(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if len(req.Name) > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room name"})
		return
	}
	room, err := h.roomSvc.Create(req.Name, req.Description, auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Uint("host_id", auth.GetUserID(c)).Str("name", req.Name).Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": room.ID, "name": room.Name, "description": room.Description})
}

// ListRooms 返回房间一览，附带调用者的状态、在线人数与待审批角标数。
func (h *Handler) ListRooms(c *gin.Context) {
	viewerID := auth.GetUserID(c)
	rooms, err := h.roomSvc.List(viewerID)
	if err != nil {
		log.Error().Err(err).Msg("list rooms")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}
	pending, err := h.roomSvc.PendingCount(viewerID)
	if err != nil {
		log.Error().Err(err).Msg("pending count")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}
	type roomDTO struct {
		service.RoomDTO
		Online int `json:"online"`
	}
	out := make([]roomDTO, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, roomDTO{RoomDTO: r, Online: h.hub.Online(r.ID)})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out, "pending_requests": pending})
}

// RequestJoin 发送入室申请。重复申请静默吸收，结果都回到房间一览。
func (h *Handler) RequestJoin(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	if err := h.roomSvc.RequestJoin(auth.GetUserID(c), roomID); err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		log.Error().Err(err).Uint("room_id", roomID).Msg("request join")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to request"})
		return
	}
	c.Redirect(http.StatusFound, "/rooms/")
}

// ListRequests 返回调用者名下房间的待审批申请。
func (h *Handler) ListRequests(c *gin.Context) {
	reqs, err := h.roomSvc.ListPending(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Msg("list requests")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list requests"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// ApproveRequest 批准入室申请。非 host 调用不产生变更，静默回到申请一览。
func (h *Handler) ApproveRequest(c *gin.Context) {
	requestID, ok := pathID(c, "request_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	err := h.roomSvc.Approve(requestID, auth.GetUserID(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRequestNotFound), errors.Is(err, service.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		case errors.Is(err, service.ErrNotHost):
			c.Redirect(http.StatusFound, "/requests/")
			return
		}
		log.Error().Err(err).Uint("request_id", requestID).Msg("approve request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to approve"})
		return
	}
	c.Redirect(http.StatusFound, "/requests/")
}

// RoomDetail 打开房间：先做懒清理删掉过期消息，再按时间升序返回剩余消息。
// 未获批准的用户静默重定向回房间一览。
func (h *Handler) RoomDetail(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	room, err := h.roomSvc.Get(roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	allowed, err := h.roomSvc.CanEnter(auth.GetUserID(c), room)
	if err != nil {
		log.Error().Err(err).Uint("room_id", roomID).Msg("room access check")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open room"})
		return
	}
	if !allowed {
		c.Redirect(http.StatusFound, "/rooms/")
		return
	}
	msgs, err := h.msgSvc.ListByRoom(roomID)
	if err != nil {
		log.Error().Err(err).Uint("room_id", roomID).Msg("list room messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room": gin.H{
			"id":          room.ID,
			"name":        room.Name,
			"description": room.Description,
			"host_id":     room.HostID,
		},
		"messages": msgs,
	})
}

// PostMessage 在房间里发言，同样受入室判定约束，成功后同步广播给 ws 客户端。
func (h *Handler) PostMessage(c *gin.Context) {
	roomID, ok := pathID(c, "room_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	room, err := h.roomSvc.Get(roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	userID := auth.GetUserID(c)
	allowed, err := h.roomSvc.CanEnter(userID, room)
	if err != nil {
		log.Error().Err(err).Uint("room_id", roomID).Msg("room access check")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to post message"})
		return
	}
	if !allowed {
		c.Redirect(http.StatusFound, "/rooms/")
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.msgSvc.Post(roomID, userID, req.Text)
	if err != nil {
		if errors.Is(err, service.ErrEmptyText) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
			return
		}
		log.Error().Err(err).Uint("room_id", roomID).Msg("post message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to post message"})
		return
	}
	h.hub.BroadcastMessage(roomID, msg.ID, userID, usernameFromCtx(c), msg.Text, msg.CreatedAt)
	c.JSON(http.StatusOK, gin.H{"id": msg.ID, "room_id": msg.RoomID, "text": msg.Text, "created_at": msg.CreatedAt})
}

// DMList 返回会话对象一览，按最近活动倒序。
func (h *Handler) DMList(c *gin.Context) {
	partners, err := h.dmSvc.Partners(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Msg("list dm partners")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list partners"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"partners": partners})
}

// DMConversation 返回与指定用户的双向私信，按时间升序。
func (h *Handler) DMConversation(c *gin.Context) {
	otherID, ok := pathID(c, "user_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if _, err := h.profileSvc.Get(otherID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	msgs, err := h.dmSvc.Conversation(auth.GetUserID(c), otherID)
	if err != nil {
		log.Error().Err(err).Uint("other_id", otherID).Msg("list conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// DMSend 发送私信。
func (h *Handler) DMSend(c *gin.Context) {
	otherID, ok := pathID(c, "user_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.dmSvc.Send(auth.GetUserID(c), otherID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyText):
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		case errors.Is(err, service.ErrSelfMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot message yourself"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			log.Error().Err(err).Uint("receiver_id", otherID).Msg("send dm")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": msg.ID, "receiver_id": msg.ReceiverID, "text": msg.Text, "created_at": msg.CreatedAt})
}

// ListUsers 返回除调用者外的全部用户。
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.userSvc.ListOthers(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Msg("list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// ShowProfile 展示个人资料。
func (h *Handler) ShowProfile(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	profile, err := h.profileSvc.Get(userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.Error().Err(err).Uint("user_id", userID).Msg("show profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

// EditProfileForm 返回编辑用的当前资料。他人的资料页静默重定向回展示页。
func (h *Handler) EditProfileForm(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if userID != auth.GetUserID(c) {
		c.Redirect(http.StatusFound, fmt.Sprintf("/profile/%d/", userID))
		return
	}
	h.ShowProfile(c)
}

// EditProfile 更新本人资料，multipart 形式，图片可选。
func (h *Handler) EditProfile(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	imagePath := ""
	if file, err := c.FormFile("image"); err == nil && file != nil {
		name := fmt.Sprintf("profile_%d_%d%s", userID, time.Now().UnixNano(), filepath.Ext(file.Filename))
		dst := filepath.Join(h.uploadDir, name)
		if err := c.SaveUploadedFile(file, dst); err != nil {
			log.Error().Err(err).Msg("save profile image")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save image"})
			return
		}
		imagePath = dst
	}
	profile, err := h.profileSvc.Update(userID, auth.GetUserID(c), c.PostForm("bio"), imagePath)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotProfileOwner):
			c.Redirect(http.StatusFound, fmt.Sprintf("/profile/%d/", userID))
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			log.Error().Err(err).Uint("user_id", userID).Msg("edit profile")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func usernameFromCtx(c *gin.Context) string {
	if v, ok := c.Get("user"); ok {
		if u, ok2 := v.(models.User); ok2 {
			return u.Username
		}
	}
	return ""
}
