package config

import (
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"
)

type Config struct {
	// Port Settings
	Host        string `json:"host"`        // The public domain name of the server, used in mail links.
	ServerAddr  string `json:"serverAddr"`  // The address the server endpoint binds to.
	AutoMigrate bool   `json:"autoMigrate"` // Run schema migrations on startup.

	Auth struct {
		AccessTokenSecret      string `json:"accessTokenSecret"`
		AccessTokenExpiryHour  int    `json:"accessTokenExpiryHour"`
		RefreshTokenExpiryHour int    `json:"refreshTokenExpiryHour"`
	} `json:"auth"`

	Postgres struct {
		Host     string   `json:"host"`
		Port     string   `json:"port"`
		DBName   string   `json:"dbname"`
		User     string   `json:"user"`
		Password string   `json:"password"`
		SSLMode  string   `json:"sslmode"`
		TimeZone string   `json:"TimeZone"`
		Replicas []string `json:"replicas"` // DSNs of read replicas, optional
	} `json:"postgres"`

	Redis struct {
		Addr     string `json:"addr"` // empty disables the cache
		Password string `json:"password"`
		DB       int    `json:"db"`
		TTL      int    `json:"ttlSeconds"`
	} `json:"redis"`

	MinIO struct {
		Endpoint         string `json:"endpoint"`
		AccessKey        string `json:"accessKey"`
		SecretKey        string `json:"secretKey"`
		Bucket           string `json:"bucket"`
		UseSSL           bool   `json:"useSSL"`
		PresignedMinutes int    `json:"presignedMinutes"`
	} `json:"minio"`

	Mail struct {
		Backend string `json:"backend"` // smtp, sendgrid or none
		From    string `json:"from"`
		AppName string `json:"appName"`
		SMTP    struct {
			Host     string `json:"host"`
			Port     int    `json:"port"`
			User     string `json:"user"`
			Password string `json:"password"`
		} `json:"smtp"`
		SendGrid struct {
			APIKey string `json:"apiKey"`
		} `json:"sendgrid"`
	} `json:"mail"`

	Webhook struct {
		URL string `json:"url"` // notifications are also posted here when set
	} `json:"webhook"`

	LDAP struct {
		Enable   bool   `json:"enable"`
		UserName string `json:"userName"`
		Password string `json:"password"`
		Address  string `json:"address"`
		SearchDN string `json:"searchDN"`
	} `json:"ldap"`

	Rollbar struct {
		Token       string `json:"token"`
		Environment string `json:"environment"`
	} `json:"rollbar"`

	CORS struct {
		AllowOrigins []string `json:"allowOrigins"`
	} `json:"cors"`
}

var (
	once   sync.Once
	config *Config
)

func GetConfig() *Config {
	once.Do(func() {
		config = initConfig()
	})
	return config
}

// SetConfig replaces the singleton, used by tests and tools that build the config in code.
func SetConfig(c *Config) {
	once.Do(func() {})
	config = c
}

func IsDebugMode() bool {
	return gin.Mode() == gin.DebugMode
}

// initConfig reads ./etc/debug-config.yaml (or EDILCLOUD_DEBUG_CONFIG_PATH) in debug mode,
// /etc/edilcloud/config.yaml otherwise.
func initConfig() *Config {
	config := &Config{}
	var configPath string
	if IsDebugMode() {
		if os.Getenv("EDILCLOUD_DEBUG_CONFIG_PATH") != "" {
			configPath = os.Getenv("EDILCLOUD_DEBUG_CONFIG_PATH")
		} else {
			configPath = "./etc/debug-config.yaml"
		}
	} else {
		configPath = "/etc/edilcloud/config.yaml"
	}
	klog.Info("config path: ", configPath)

	err := readConfig(configPath, config)
	if err != nil {
		klog.Error("init config", err)
		panic(err)
	}
	applyDefaults(config)
	return config
}

func readConfig(filePath string, config *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

func applyDefaults(c *Config) {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8000"
	}
	if c.Auth.AccessTokenExpiryHour == 0 {
		c.Auth.AccessTokenExpiryHour = 24
	}
	if c.Auth.RefreshTokenExpiryHour == 0 {
		c.Auth.RefreshTokenExpiryHour = 24 * 7
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 60
	}
	if c.MinIO.PresignedMinutes == 0 {
		c.MinIO.PresignedMinutes = 30
	}
	if c.Mail.AppName == "" {
		c.Mail.AppName = "Edilcloud"
	}
}
