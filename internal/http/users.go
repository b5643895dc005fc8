package http

import (
	"github.com/gin-gonic/gin"
)

// UserDataStore defines the account-deletion cascade. Implemented by
// database.Database.
type UserDataStore interface {
	DeleteUserData(userID uint) error
}

type UserController struct {
	store UserDataStore
}

func NewUserController(store UserDataStore) *UserController {
	return &UserController{store: store}
}

// DeleteUserData removes all progress, session, bookmark, library, and
// preference rows for a user. Called by the account subsystem on deletion.
// DELETE /api/users/:id/data
func (uc *UserController) DeleteUserData(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := uc.store.DeleteUserData(userID); err != nil {
		respondInternalError(c, err, "delete user data")
		return
	}

	respondSuccess(c, "user data deleted")
}
