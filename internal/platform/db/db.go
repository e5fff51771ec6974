package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	driverName        = "mysql"
	ConfigFilePath    = "config/config.yaml"
	mysqlDuplicateKey = 1062
	mysqlNoReferenced = 1452 // foreign key constraint fails
)

const (
	ModeDev     = "dev"
	ModeRelease = "release"
	ModeDemo    = "demo" // MySQLなし、インメモリストアで起動
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
	TLS       Certs  `yaml:"tls"`
}

type SchoolConfig struct {
	Name     string `yaml:"name"`
	City     string `yaml:"city"` // 署名欄の地名
	Timezone string `yaml:"timezone"`
}

type CacheConfig struct {
	RosterPolicy string `yaml:"roster_policy"` // merge | reload
}

type AuthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Secret        string `yaml:"secret"`
	TokenTTL      string `yaml:"token_ttl"`
	AdminID       string `yaml:"admin_id"`       // 初回起動時に作る管理者
	AdminPassword string `yaml:"admin_password"` // 空なら作らない
}

type Config struct {
	Version string         `yaml:"version"`
	Mode    string         `yaml:"mode"`
	Server  ServerConfig   `yaml:"server"`
	DB      DatabaseConfig `yaml:"database"`
	School  SchoolConfig   `yaml:"school"`
	Cache   CacheConfig    `yaml:"cache"`
	Auth    AuthConfig     `yaml:"auth"`
}

// LoadConfig は YAML を読み、.env と環境変数で上書きする。
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[WARN] .env could not be loaded: %v", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Mode = getEnv("ABSENSI_MODE", c.Mode)
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.DB.Host = getEnv("DB_HOST", c.DB.Host)
	c.DB.Port = getEnvAsInt("DB_PORT", c.DB.Port)
	c.DB.Username = getEnv("DB_USER", c.DB.Username)
	c.DB.Password = getEnv("DB_PASSWORD", c.DB.Password)
	c.DB.DBName = getEnv("DB_NAME", c.DB.DBName)
	c.Auth.Secret = getEnv("AUTH_SECRET", c.Auth.Secret)
	c.Auth.AdminPassword = getEnv("AUTH_ADMIN_PASSWORD", c.Auth.AdminPassword)
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.School.Timezone == "" {
		c.School.Timezone = "Asia/Jakarta"
	}
	if c.Cache.RosterPolicy == "" {
		c.Cache.RosterPolicy = "merge"
	}
	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = "24h"
	}
	if c.Auth.AdminID == "" {
		c.Auth.AdminID = "admin"
	}
}

// Location は学校のタイムゾーン。読めなければ UTC。
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.School.Timezone)
	if err != nil {
		log.Printf("[WARN] unknown timezone %q, falling back to UTC", c.School.Timezone)
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[WARN] invalid integer for %s, fallback to %d", key, def)
		return def
	}
	return n
}

// DSN: 認証情報はエスケープが要るので mysql.Config に組ませる
func DSN(c DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = c.Username
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.TLSConfig = "false"
	mc.Timeout = 3 * time.Second
	mc.ReadTimeout = 5 * time.Second
	mc.WriteTimeout = 5 * time.Second
	_ = mc.Apply(mysql.Charset("utf8mb4", ""))
	return mc.FormatDSN()
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName, DSN(c))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// IsDuplicateKey は UNIQUE 制約違反 (MySQL 1062) かどうか。
func IsDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateKey
	}
	return false
}

// IsForeignKeyViolation は参照先が存在しない (MySQL 1452) かどうか。
func IsForeignKeyViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlNoReferenced
	}
	return false
}
