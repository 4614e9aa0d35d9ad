package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tiputa/apuri/internal/auth"
	"github.com/tiputa/apuri/internal/clock"
	"github.com/tiputa/apuri/internal/config"
	"github.com/tiputa/apuri/internal/metrics"
	"github.com/tiputa/apuri/internal/mw"
	"github.com/tiputa/apuri/internal/service"
	"github.com/tiputa/apuri/internal/ws"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、业务路由与 WebSocket 端点。
// now 为空时使用系统时钟，测试可以注入假时钟验证保留策略。
func SetupRouter(cfg config.Config, gdb *gorm.DB, hub *ws.Hub, now clock.Func) *gin.Engine {
	if now == nil {
		now = time.Now
	}
	retention := time.Duration(cfg.RetentionHours) * time.Hour

	sweeper := service.NewSweeper(gdb, now, retention)
	userSvc := service.NewUserService(gdb, cfg)
	postSvc := service.NewPostService(gdb, now, retention)
	roomSvc := service.NewRoomService(gdb)
	msgSvc := service.NewMessageService(gdb, sweeper)
	dmSvc := service.NewDMService(gdb)
	profileSvc := service.NewProfileService(gdb)
	h := NewHandler(userSvc, postSvc, roomSvc, msgSvc, dmSvc, profileSvc, hub, cfg.UploadDir)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Static("/uploads", cfg.UploadDir)

	r.POST("/signup/", h.Signup)
	r.POST("/login/", h.Login)
	r.POST("/refresh/", h.Refresh)
	r.POST("/logout/", h.Logout)

	authed := r.Group("")
	authed.Use(auth.AuthMiddleware(cfg, gdb))

	authed.GET("/home/", h.Home)
	authed.POST("/post/new/", h.CreatePost)

	authed.POST("/create-room/", h.CreateRoom)
	authed.GET("/rooms/", h.ListRooms)
	authed.POST("/rooms/request/:room_id/", h.RequestJoin)
	authed.GET("/requests/", h.ListRequests)
	authed.POST("/requests/approve/:request_id/", h.ApproveRequest)
	authed.GET("/rooms/:room_id/", h.RoomDetail)
	authed.POST("/rooms/:room_id/", h.PostMessage)

	authed.GET("/dm/", h.DMList)
	authed.GET("/dm/:user_id/", h.DMConversation)
	authed.POST("/dm/:user_id/", h.DMSend)

	authed.GET("/users/", h.ListUsers)
	authed.GET("/profile/:user_id/", h.ShowProfile)
	authed.GET("/profile/:user_id/edit/", h.EditProfileForm)
	authed.POST("/profile/:user_id/edit/", h.EditProfile)

	r.GET("/ws", ws.Serve(hub, gdb, roomSvc, msgSvc, cfg))

	return r
}
