package main

import (
	"outreach-platform/internal/auth"
	"outreach-platform/internal/httpapi"
	"outreach-platform/internal/provider"
	"outreach-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	AuthMW   gin.HandlerFunc
	Handlers httpapi.Handlers
	Webhooks *provider.WebhookHandler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Voice provider webhooks (public; shared-secret checked by the handler
	// when configured). The handler always acks so the provider never
	// retry-storms us.
	r.POST("/webhooks/voice/events", deps.Webhooks.HandleEvent)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(deps.AuthMW)
	{
		h := deps.Handlers

		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			wid, _ := auth.WorkspaceID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "workspace_id": wid, "role": role})
		})

		// AUTH routes (token issuance).
		// NOTE: This is a placeholder login route; real credential validation is not implemented.
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", h.Login)
		}

		// BATCH routes: starting and cancelling runs needs an operating role;
		// polling is open to analysts too.
		batches := v1.Group("/batches")
		batches.Use(rbac.RequireWorkspace())
		{
			batches.POST("", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleCoordinator, rbac.RoleSuperAdmin), h.StartBatch)
			batches.POST("/:id/cancel", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleCoordinator, rbac.RoleSuperAdmin), h.CancelBatch)
			batches.GET("/:id", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleCoordinator, rbac.RoleAnalyst, rbac.RoleSuperAdmin), h.GetBatch)
		}

		// CASE routes
		cases := v1.Group("/cases")
		cases.Use(rbac.RequireWorkspace())
		cases.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleCoordinator, rbac.RoleSuperAdmin))
		{
			cases.GET("/eligible", h.ListEligible)
		}

		// CALL routes
		callsGroup := v1.Group("/calls")
		callsGroup.Use(rbac.RequireWorkspace())
		callsGroup.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleCoordinator, rbac.RoleAnalyst, rbac.RoleSuperAdmin))
		{
			callsGroup.GET("", h.ListCalls)
		}

		// REPORT routes
		reports := v1.Group("/reports")
		reports.Use(rbac.RequireWorkspace())
		reports.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAnalyst, rbac.RoleSuperAdmin))
		{
			reports.GET("/calls-summary", h.CallsSummary)
			reports.GET("/spend-summary", h.SpendSummary)
		}
	}
}
