package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/speakeasy-rtc/speakeasy/internal/auth"
	"github.com/speakeasy-rtc/speakeasy/internal/config"
	"github.com/speakeasy-rtc/speakeasy/internal/db"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// SetupWizard exposes the one-time "change the bootstrap admin password"
// flow a fresh deployment's operator completes before the default admin
// account (see db.Store.bootstrapAdmin) is usable day to day. Grounded
// on the teacher's POSTUser handler's pwned-password gate, generalized
// from account registration to a forced password change.
type SetupWizard struct {
	Users     db.UserRepo
	HIBPAPIKey string
}

// ApplyRoutes binds the wizard's routes under group.
func (w *SetupWizard) ApplyRoutes(group *gin.RouterGroup) {
	group.GET("/status/:userID", w.getStatus)
	group.POST("/complete", w.postComplete)
}

type statusResponse struct {
	MustChangePassword bool `json:"must_change_password"`
}

func (w *SetupWizard) getStatus(c *gin.Context) {
	id, err := identifiers.ParseUserID(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := w.Users.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "looking up user"})
		return
	}

	c.JSON(http.StatusOK, statusResponse{MustChangePassword: user.MustChangePw})
}

type completeRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (w *SetupWizard) postComplete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := identifiers.ParseUserID(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := w.Users.FindByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "looking up user"})
		return
	}

	ok, err := auth.VerifyPassword(req.OldPassword, user.PasswordHash)
	if err != nil || !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect current password"})
		return
	}

	if req.NewPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password cannot be blank"})
		return
	}

	if w.HIBPAPIKey != "" {
		pwned, err := auth.CheckPwned(w.HIBPAPIKey, req.NewPassword)
		if err != nil {
			if errors.Is(err, auth.ErrPwnedRateLimited) {
				c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please try again in a minute"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "checking breach corpus"})
			return
		}
		if pwned {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password has been reported in a data breach, please use another one"})
			return
		}
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hashing password"})
		return
	}

	if err := w.Users.UpdatePasswordHash(id, hash, false); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "saving password"})
		return
	}

	c.Status(http.StatusNoContent)
}

// NewSetupWizard builds a SetupWizard from the repo and config's security
// section, an empty HIBPAPIKey meaning the breach check is skipped.
func NewSetupWizard(users db.UserRepo, cfg config.Security) *SetupWizard {
	return &SetupWizard{Users: users, HIBPAPIKey: cfg.HIBPAPIKey}
}
