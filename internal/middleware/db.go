package middleware

import (
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/query"
)

var getDB = func() *gorm.DB { return query.GetDB() }
