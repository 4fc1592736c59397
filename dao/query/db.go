package query

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"

	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

var (
	once     sync.Once
	instance *gorm.DB
)

// GetDB returns the singleton instance of the database connection.
func GetDB() *gorm.DB {
	once.Do(func() {
		dbConfig := config.GetConfig()

		host := dbConfig.Postgres.Host
		port := dbConfig.Postgres.Port
		dbName := dbConfig.Postgres.DBName
		user := dbConfig.Postgres.User
		password := dbConfig.Postgres.Password
		sslMode := dbConfig.Postgres.SSLMode
		timeZone := dbConfig.Postgres.TimeZone

		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			host, user, password, dbName, port, sslMode, timeZone)
		var err error
		instance, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
		if err != nil {
			panic(err)
		}

		if len(dbConfig.Postgres.Replicas) > 0 {
			replicas := make([]gorm.Dialector, 0, len(dbConfig.Postgres.Replicas))
			for _, r := range dbConfig.Postgres.Replicas {
				replicas = append(replicas, postgres.Open(r))
			}
			err = instance.Use(dbresolver.Register(dbresolver.Config{
				Replicas: replicas,
				Policy:   dbresolver.RandomPolicy{},
			}))
			if err != nil {
				panic(err)
			}
			logutils.Log.Infof("Postgres read replicas registered: %d", len(replicas))
		}

		maxIdleConns := 5
		maxOpenConns := 20
		sqlDB, err := instance.DB()
		if err != nil {
			panic(err)
		}
		sqlDB.SetMaxIdleConns(maxIdleConns)
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Hour)

		logutils.Log.Info("Postgres init success!")
	})
	return instance
}

// SetDB overrides the singleton, e.g. with a connection bound to a test schema.
func SetDB(db *gorm.DB) {
	once.Do(func() {})
	instance = db
}
