package util

import (
	"github.com/gin-gonic/gin"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

const (
	UserIDKey   = "x-user-id"
	UsernameKey = "x-user-name"

	RolePlatformKey = "x-role-platform"

	ProfileKey = "x-profile"
)

func SetJWTContext(
	c *gin.Context,
	msg JWTMessage,
) {
	c.Set(UserIDKey, msg.UserID)
	c.Set(UsernameKey, msg.Username)
	c.Set(RolePlatformKey, msg.RolePlatform)
	if msg.HasProfile() {
		c.Set(ProfileKey, *msg.Profile)
	}
}

func GetToken(ctx *gin.Context) JWTMessage {
	var msg JWTMessage
	msg.UserID = ctx.GetUint(UserIDKey)
	msg.Username = ctx.GetString(UsernameKey)

	if rolePlatform, ok := ctx.Get(RolePlatformKey); ok {
		msg.RolePlatform, _ = rolePlatform.(model.PlatformRole)
	}
	if profile, ok := ctx.Get(ProfileKey); ok {
		if p, ok := profile.(ProfileClaim); ok {
			msg.Profile = &p
		}
	}
	return msg
}
