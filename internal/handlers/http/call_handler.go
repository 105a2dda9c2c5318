package http

import (
	"net/http"

	"skillcall/internal/core/domain"
	"skillcall/internal/core/ports"
	"skillcall/internal/core/services"
	"skillcall/internal/infrastructure/middleware"
	"skillcall/pkg/errors"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	callStore   ports.CallStore
	credentials *services.CredentialService
	authService services.AuthService
}

func NewCallHandler(callStore ports.CallStore, credentials *services.CredentialService, authService services.AuthService) *CallHandler {
	return &CallHandler{
		callStore:   callStore,
		credentials: credentials,
		authService: authService,
	}
}

func (h *CallHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/calls")
	api.Use(middleware.AuthMiddleware(h.authService))
	{
		api.GET("/:callId/ice-servers", h.GetICEServers)
	}
}

// GetICEServers mints short-lived TURN credentials for a participant of an
// active call. The credentials are bound to the caller's identity and the
// call, so they cannot be reused for other sessions.
func (h *CallHandler) GetICEServers(c *gin.Context) {
	userID := domain.UserID(c.GetString("user_id"))
	callID := domain.CallID(c.Param("callId"))

	call, err := h.callStore.Get(c.Request.Context(), callID)
	if err != nil {
		c.Error(errors.NewNotFound("call"))
		return
	}
	if !call.IsParticipant(userID) {
		c.Error(errors.NewForbidden("not a participant of this call"))
		return
	}

	cred := h.credentials.Mint(userID, callID)
	c.JSON(http.StatusOK, gin.H{
		"ice_servers": h.credentials.ICEServers(userID, callID),
		"username":    cred.Username,
		"credential":  cred.Credential,
		"expires_at":  cred.ExpiresAt,
	})
}
