package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/services"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// RestUserHandler resolves participant ids into display names for chat clients.
type RestUserHandler struct {
	userService services.IUserService
}

// NewRestUserHandler creates a new RestUserHandler.
func NewRestUserHandler(userService services.IUserService) *RestUserHandler {
	return &RestUserHandler{userService: userService}
}

// PublicUser represents the data returned for a conversation participant.
type PublicUser struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Role       models.Role `json:"role"`
	DateJoined string      `json:"date_joined"`
}

// GetUserByID handles GET /v1/users/:id
func (h *RestUserHandler) GetUserByID(c *gin.Context) {
	userID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
		}
		return
	}

	c.JSON(http.StatusOK, publicUser(user))
}

func publicUser(user *models.User) PublicUser {
	return PublicUser{
		ID:         user.ID.String(),
		Name:       user.Name,
		Role:       user.Role,
		DateJoined: user.CreatedAt.Format("2006-01-02"),
	}
}

// ListStaff handles GET /v1/staff, the roster new enquiries are routed to.
// Mounted behind StaffMiddleware.
func (h *RestUserHandler) ListStaff(c *gin.Context) {
	staff, err := h.userService.ListStaff(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve staff"})
		return
	}
	out := make([]PublicUser, 0, len(staff))
	for i := range staff {
		out = append(out, publicUser(&staff[i]))
	}
	c.JSON(http.StatusOK, gin.H{"staff": out})
}
