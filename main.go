package main

import (
	"context"
	"errors"
	"log"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"absensi-backend/docs"
	"absensi-backend/internal/attendance"
	"absensi-backend/internal/changefeed"
	"absensi-backend/internal/classes"
	"absensi-backend/internal/dashboard"
	"absensi-backend/internal/datacache"
	"absensi-backend/internal/memstore"
	"absensi-backend/internal/platform/auth"
	"absensi-backend/internal/platform/db"
	"absensi-backend/internal/realtime"
	"absensi-backend/internal/report"
	"absensi-backend/internal/students"
)

// @title        Absensi TK API
// @version      1.0
// @description  Kindergarten attendance backend
// @BasePath     /api/v1
// @securityDefinitions.apikey BearerAuth
// @in           header
// @name         Authorization
func main() {
	// 設定読み込み
	cfg, err := db.LoadConfig(db.ConfigFilePath)
	if err != nil {
		log.Fatal(err)
	}

	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)
	if mode != db.ModeDev && mode != db.ModeRelease && mode != db.ModeDemo {
		log.Fatalf("[ERROR] mode must be dev, release or demo (got %q)", mode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ストア: demo はインメモリ、それ以外は MySQL
	var (
		classRepo   classes.Repository
		studentRepo students.Repository
		attendRepo  attendance.Repository
		accounts    auth.AccountStore
	)
	if mode == db.ModeDemo {
		mem := memstore.New()
		classRepo, studentRepo, attendRepo = mem, mem, mem
		accounts = auth.NewMemoryStore()
		log.Printf("[INFO] using in-memory store (demo)")
	} else {
		conn, err := db.Connect(cfg.DB)
		if err != nil {
			log.Fatal(err)
		}
		defer conn.Close()
		log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

		if err := db.Migrate(conn); err != nil {
			log.Fatal(err)
		}
		classRepo, studentRepo, attendRepo = classes.NewStore(conn), students.NewStore(conn), attendance.NewStore(conn)
		accounts = auth.NewStore(conn)
	}

	loc := cfg.Location()
	broker := changefeed.NewBroker(changefeed.DefaultBuffer)
	defer broker.Close()

	// キャッシュ: 自プロセスの書き込みは publish 前に反映し、それ以外は購読で追従
	cache := datacache.New(datacache.NewRepoSource(studentRepo, classRepo, attendRepo), broker,
		datacache.Options{RosterPolicy: datacache.ParsePolicy(cfg.Cache.RosterPolicy)})
	defer cache.Close()
	feed := cache.WriteThrough(broker)

	classSvc := classes.NewService(classRepo, feed)
	studentSvc := students.NewService(studentRepo, feed)
	attendSvc := attendance.NewService(attendRepo, studentRepo, feed, loc)

	authSvc := auth.NewService(accounts, cfg.Auth.Secret, auth.ParseTTL(cfg.Auth.TokenTTL))
	if cfg.Auth.Enabled && cfg.Auth.AdminPassword != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.Auth.AdminID, cfg.Auth.AdminPassword); err != nil {
			log.Fatal(err)
		}
	}

	if mode == db.ModeDemo {
		seedDemo(ctx, classSvc, studentSvc)
	}

	// 初回ロード → 変更購読
	cache.Load(ctx)
	if err := cache.Subscribe(ctx); err != nil {
		log.Fatal(err)
	}

	hub := realtime.NewHub(func() any { return cache.Snapshot() })
	go hub.Run(ctx)
	go hub.Relay(ctx, broker.Subscribe())

	if mode == db.ModeRelease {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode != db.ModeRelease {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowCredentials: true,
		}))
		docs.SwaggerInfo.BasePath = "/api/v1"
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "loading": cache.Loading(), "clients": hub.Clients()})
	})

	// /api/v1
	api := r.Group("/api/v1")
	guard := authSvc.WriteGuard(cfg.Auth.Enabled)
	if cfg.Auth.Enabled {
		auth.RegisterRoutes(api, authSvc)
	}
	classes.RegisterRoutes(api, classSvc, guard...)
	students.RegisterRoutes(api, studentSvc, guard...)
	attendance.RegisterRoutes(api, attendSvc, guard...)
	datacache.RegisterRoutes(api, cache)
	dashboard.RegisterRoutes(api, dashboard.NewHandler(cache, loc))
	report.RegisterRoutes(api, report.NewHandler(cache, report.Config{
		School:   cfg.School.Name,
		City:     cfg.School.City,
		Location: loc,
	}))
	realtime.RegisterRoutes(api, hub)

	if cfg.Server.StaticDir != "" {
		r.NoRoute(spaHandler(cfg.Server.StaticDir))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if cfg.Server.TLS.Cert != "" && cfg.Server.TLS.Key != "" {
			log.Printf("[INFO] listening on https://%s", cfg.Server.Addr)
			err = srv.ListenAndServeTLS(cfg.Server.TLS.Cert, cfg.Server.TLS.Key)
		} else {
			log.Printf("[INFO] listening on http://%s", cfg.Server.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Println("[INFO] shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] shutdown: %v", err)
	}
}

// spaHandler: フロントのビルド出力を配信し、無ければ index.html にフォールバック
func spaHandler(dir string) gin.HandlerFunc {
	fileFS := http.Dir(dir)
	return func(c *gin.Context) {
		// API は対象外
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Status(http.StatusNotFound)
			return
		}

		reqPath := strings.TrimPrefix(path.Clean(c.Request.URL.Path), "/")
		if reqPath == "" {
			reqPath = "index.html"
		}

		// 実ファイルがあるならそれを返す（index.html 以外はキャッシュ付与）
		if f, err := fileFS.Open(reqPath); err == nil {
			defer f.Close()
			if fi, err := f.Stat(); err == nil && !fi.IsDir() {
				if ct := mime.TypeByExtension(filepath.Ext(reqPath)); ct != "" {
					c.Header("Content-Type", ct)
				}
				if !strings.HasSuffix(reqPath, "index.html") {
					c.Header("Cache-Control", "public, max-age=86400, immutable")
				}
				http.ServeContent(c.Writer, c.Request, reqPath, fi.ModTime(), f)
				return
			}
		}

		idx, err := fileFS.Open("index.html")
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		defer idx.Close()
		fi, err := idx.Stat()
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Header("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(c.Writer, c.Request, "index.html", fi.ModTime(), idx)
	}
}

// seedDemo: demo モードで空の画面にならないよう最低限のクラスと園児を入れる
func seedDemo(ctx context.Context, cs *classes.Service, ss *students.Service) {
	teacher, head := "Ibu Sri Wahyuni", "Bapak Suparno"
	for _, name := range []string{"TK A", "TK B"} {
		if _, err := cs.Create(ctx, classes.ClassRequest{Name: name, TeacherName: &teacher, HeadmasterName: &head}); err != nil {
			log.Printf("[WARN] demo seed class %s: %v", name, err)
		}
	}
	kids := []students.CreateStudentRequest{
		{Name: "Aditya Pratama", NIS: "2024001", ClassName: "TK A"},
		{Name: "Bunga Lestari", NIS: "2024002", ClassName: "TK A"},
		{Name: "Citra Dewi", NIS: "2024003", ClassName: "TK B"},
		{Name: "Dimas Saputra", NIS: "2024004", ClassName: "TK B"},
	}
	for _, k := range kids {
		if _, err := ss.Create(ctx, k); err != nil {
			log.Printf("[WARN] demo seed student %s: %v", k.Name, err)
		}
	}
}
