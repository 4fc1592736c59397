package util

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	jwt "github.com/golang-jwt/jwt/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

func TestTokenManager(t *testing.T) {
	Convey("Token round trip", t, func() {
		tm := NewTokenManager("secret", 1, 2)
		msg := JWTMessage{
			UserID:       3,
			Username:     "mario",
			RolePlatform: model.PlatformUser,
			Profile:      &ProfileClaim{ID: 9, CompanyID: 4, Role: model.RoleDelegate},
		}
		access, refresh, err := tm.CreateTokens(&msg)
		So(err, ShouldBeNil)

		got, err := tm.CheckToken(access)
		So(err, ShouldBeNil)
		So(got, ShouldResemble, msg)

		Convey("the profile travels in extra.profile", func() {
			claims := jwt.MapClaims{}
			_, _, err := jwt.NewParser().ParseUnverified(access, claims)
			So(err, ShouldBeNil)
			extra := claims["extra"].(map[string]any)
			profile := extra["profile"].(map[string]any)
			So(profile["id"], ShouldEqual, float64(9))
			So(profile["company_id"], ShouldEqual, float64(4))
		})

		Convey("refresh and access tokens are not interchangeable", func() {
			_, err := tm.CheckToken(refresh)
			So(err, ShouldEqual, ErrWrongTokenType)
			r, err := tm.CheckRefreshToken(refresh)
			So(err, ShouldBeNil)
			So(r.Profile.ID, ShouldEqual, 9)
		})

		Convey("a token signed with another secret is rejected", func() {
			_, err := NewTokenManager("other", 1, 1).CheckToken(access)
			So(err, ShouldNotBeNil)
		})

		Convey("an expired token is rejected", func() {
			expired := NewTokenManager("secret", -1, -1)
			a, _, err := expired.CreateTokens(&msg)
			So(err, ShouldBeNil)
			_, err = tm.CheckToken(a)
			So(errors.Is(err, jwt.ErrTokenExpired), ShouldBeTrue)
		})

		Convey("a token without profile has none", func() {
			a, _, err := tm.CreateTokens(&JWTMessage{UserID: 1, Username: "u"})
			So(err, ShouldBeNil)
			got, err := tm.CheckToken(a)
			So(err, ShouldBeNil)
			So(got.HasProfile(), ShouldBeFalse)
		})
	})
}

func TestJWTContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	Convey("Context keeps the token", t, func() {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		msg := JWTMessage{UserID: 1, Username: "u", RolePlatform: model.PlatformAdmin,
			Profile: &ProfileClaim{ID: 2, CompanyID: 3, Role: model.RoleOwner}}
		SetJWTContext(c, msg)
		So(GetToken(c), ShouldResemble, msg)

		c2, _ := gin.CreateTestContext(httptest.NewRecorder())
		SetJWTContext(c2, JWTMessage{UserID: 1})
		So(GetToken(c2).Profile, ShouldBeNil)
	})
}

func TestValidators(t *testing.T) {
	Convey("Custom validators", t, func() {
		v := validator.New()
		So(v.RegisterValidation("vat", validateVAT), ShouldBeNil)
		So(v.RegisterValidation("profilerole", validateProfileRole), ShouldBeNil)

		So(v.Var("IT01234567890", "vat"), ShouldBeNil)
		So(v.Var("01234567890", "vat"), ShouldBeNil)
		So(v.Var("it-123", "vat"), ShouldNotBeNil)

		So(v.Var(uint8(model.RoleLevel2), "profilerole"), ShouldBeNil)
		So(v.Var(uint8(7), "profilerole"), ShouldNotBeNil)
	})
}
