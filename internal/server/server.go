package server

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/circlesplus/backend/internal/middleware"
	"github.com/circlesplus/backend/pkg/storage"

	circleHttp "github.com/circlesplus/backend/internal/modules/circle/delivery/http"
	circleRepo "github.com/circlesplus/backend/internal/modules/circle/repository"
	circleService "github.com/circlesplus/backend/internal/modules/circle/service"

	messageHttp "github.com/circlesplus/backend/internal/modules/message/delivery/http"
	messageRepo "github.com/circlesplus/backend/internal/modules/message/repository"
	messageService "github.com/circlesplus/backend/internal/modules/message/service"

	notiHttp "github.com/circlesplus/backend/internal/modules/notification/delivery/http"
	notifRepo "github.com/circlesplus/backend/internal/modules/notification/repository"
	notifService "github.com/circlesplus/backend/internal/modules/notification/service"

	postHttp "github.com/circlesplus/backend/internal/modules/post/delivery/http"
	postRepo "github.com/circlesplus/backend/internal/modules/post/repository"
	postService "github.com/circlesplus/backend/internal/modules/post/service"

	profileHttp "github.com/circlesplus/backend/internal/modules/profile/delivery/http"
	profileService "github.com/circlesplus/backend/internal/modules/profile/service"

	searchService "github.com/circlesplus/backend/internal/modules/search/service"

	storyHttp "github.com/circlesplus/backend/internal/modules/story/delivery/http"
	storyRepo "github.com/circlesplus/backend/internal/modules/story/repository"
	storyService "github.com/circlesplus/backend/internal/modules/story/service"

	userHttp "github.com/circlesplus/backend/internal/modules/user/delivery/http"
	userRepo "github.com/circlesplus/backend/internal/modules/user/repository"
	userService "github.com/circlesplus/backend/internal/modules/user/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/meilisearch/meilisearch-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
	stories     storyService.StoryService
}

func NewServer(db *gorm.DB, redisClient *redis.Client) *Server {
	users := userRepo.NewUserRepository(db)

	mediaStorage, err := storage.NewCloudinaryStorage()
	if err != nil {
		log.Printf("cloudinary storage unavailable, media uploads disabled: %v", err)
		mediaStorage = nil
	}

	var searchSvc searchService.CircleSearchService
	if host := os.Getenv("MEILISEARCH_HOST"); host != "" {
		if !strings.HasPrefix(host, "http") {
			host = "http://" + host + ":7700"
		}
		meiliClient := meilisearch.New(host, meilisearch.WithAPIKey(os.Getenv("MEILI_MASTER_KEY")))
		searchSvc = searchService.NewCircleSearchService(meiliClient)
	}

	authSvc := userService.NewAuthService(users)
	authHandler := userHttp.NewAuthHandler(authSvc)

	profileSvc := profileService.NewProfileService(users, mediaStorage)
	profileHandler := profileHttp.NewProfileHandler(profileSvc)

	notificationRepository := notifRepo.NewNotificationRepository(db)
	notificationSvc := notifService.NewNotificationService(notificationRepository, redisClient)
	notificationHandler := notiHttp.NewNotificationHandler(notificationSvc, redisClient)

	circles := circleRepo.NewCircleRepository(db)
	circleSvc := circleService.NewCircleService(circles, users, notificationSvc, searchSvc, redisClient)
	circleHandler := circleHttp.NewCircleHandler(circleSvc)

	// Invite and join_request notifications settle memberships through the
	// circle service; bind it once both sides exist.
	notificationSvc.BindResolver(circleSvc)

	posts := postRepo.NewPostRepository(db)
	postSvc := postService.NewPostService(posts, circleSvc, notificationSvc, mediaStorage, redisClient)
	postHandler := postHttp.NewPostHandler(postSvc)

	stories := storyRepo.NewStoryRepository(db)
	storySvc := storyService.NewStoryService(stories, circleSvc, mediaStorage, redisClient)
	storyHandler := storyHttp.NewStoryHandler(storySvc)

	messages := messageRepo.NewMessageRepository(db)
	messageSvc := messageService.NewMessageService(messages, users, circleSvc, redisClient)
	messageHandler := messageHttp.NewMessageHandler(messageSvc, redisClient)

	router := gin.New()

	setupCORS(router)

	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	authMiddleware := middleware.NewAuthMiddleware()

	api := router.Group("/api")

	// Public routes
	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	protected.Use(middleware.GlobalWriteRateLimit(redisClient))
	{
		// Account routes
		protected.GET("/auth/me", authHandler.Me)
		protected.PUT("/auth/password", authHandler.UpdatePassword)
		protected.DELETE("/auth/account", authHandler.DeleteAccount)

		// Profile routes
		protected.GET("/users/search", profileHandler.SearchUsers)
		protected.GET("/profile/me", profileHandler.GetCurrentProfile)
		protected.GET("/profile/:username", profileHandler.GetProfileByUsername)
		protected.PUT("/profile", profileHandler.UpdateProfile)

		// Circle routes
		protected.POST("/circles", circleHandler.CreateCircle)
		protected.GET("/circles", circleHandler.GetMyCircles)
		protected.GET("/circles/suggested", circleHandler.GetSuggested)
		protected.GET("/circles/search", circleHandler.SearchCircles)
		protected.GET("/circles/:circle_id", circleHandler.GetCircle)
		protected.PUT("/circles/:circle_id", circleHandler.UpdateCircle)
		protected.DELETE("/circles/:circle_id", circleHandler.DeleteCircle)
		protected.POST("/circles/:circle_id/join", circleHandler.JoinCircle)
		protected.POST("/circles/:circle_id/leave", circleHandler.LeaveCircle)
		protected.POST("/circles/:circle_id/invites", circleHandler.InviteMember)
		protected.GET("/circles/:circle_id/members", circleHandler.GetMembers)
		protected.GET("/circles/:circle_id/requests", circleHandler.GetPendingRequests)
		protected.POST("/circles/:circle_id/requests/:profile_id/approve", circleHandler.ApproveRequest)
		protected.POST("/circles/:circle_id/requests/:profile_id/reject", circleHandler.RejectRequest)
		protected.DELETE("/circles/:circle_id/members/:profile_id", circleHandler.RemoveMember)
		protected.PUT("/circles/:circle_id/members/:profile_id/admin", circleHandler.SetAdmin)

		// Post routes
		protected.POST("/circles/:circle_id/posts", postHandler.CreatePost)
		protected.GET("/circles/:circle_id/posts", postHandler.ListPosts)
		protected.GET("/posts/:post_id", postHandler.GetPost)
		protected.PUT("/posts/:post_id", postHandler.UpdatePost)
		protected.DELETE("/posts/:post_id", postHandler.DeletePost)
		protected.POST("/posts/:post_id/comments", postHandler.AddComment)
		protected.GET("/posts/:post_id/comments", postHandler.ListComments)
		protected.DELETE("/comments/:comment_id", postHandler.DeleteComment)
		protected.POST("/posts/:post_id/like", postHandler.ToggleLike)

		// Story routes
		protected.POST("/circles/:circle_id/stories", storyHandler.CreateStory)
		protected.GET("/circles/:circle_id/stories", storyHandler.ListStories)
		protected.GET("/stories/:story_id", storyHandler.GetStory)
		protected.PUT("/stories/:story_id", storyHandler.EditStory)
		protected.DELETE("/stories/:story_id", storyHandler.DeleteStory)

		// Notification routes
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.PUT("/notifications/:notification_id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.POST("/notifications/:notification_id/resolve", notificationHandler.Resolve)
		protected.GET("/notifications/ws", notificationHandler.HandleWebSocket)

		// Direct messaging routes
		protected.POST("/conversations", messageHandler.StartConversation)
		protected.GET("/conversations", messageHandler.ListConversations)
		protected.POST("/conversations/:conversation_id/messages", messageHandler.SendMessage)
		protected.GET("/conversations/:conversation_id/messages", messageHandler.ListMessages)
		protected.GET("/conversations/:conversation_id/ws", messageHandler.HandleConversationSocket)

		// Circle chat routes
		protected.POST("/circles/:circle_id/messages", messageHandler.SendCircleMessage)
		protected.GET("/circles/:circle_id/messages", messageHandler.ListCircleMessages)
		protected.GET("/circles/:circle_id/chat/ws", messageHandler.HandleCircleChatSocket)
	}

	return &Server{
		engine:      router,
		db:          db,
		redisClient: redisClient,
		stories:     storySvc,
	}
}

// StartStorySweeper deletes expired stories on an interval until ctx is
// done. Listing already hides expired stories; the sweep reclaims rows and
// media references.
func (s *Server) StartStorySweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n, err := s.stories.SweepExpired(ctx)
				if err != nil {
					log.Printf("story sweep failed: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("story sweep removed %d expired stories", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func setupCORS(router *gin.Engine) {
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	} else {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
