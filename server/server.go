package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/green-corridor/clock"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
)

var log = logrus.WithField("module", "server")

const (
	ServiceName  = "Green Corridor Traffic Controller"
	maxBodyBytes = 10 << 20
)

// Server 对外HTTP接口
// 功能：将信号灯与绿波通道操作暴露为JSON接口，同时挂载实时事件websocket
// 说明：所有路由同时挂载在根路径与/api前缀下，通道接口另有/emergency别名
type Server struct {
	clock     clock.Clock
	signals   entity.ISignalManager
	corridors entity.ICorridorManager
	hub       *Hub
	mockMode  bool
	startedAt time.Time

	router chi.Router
}

// New 创建HTTP服务并构建路由
// 参数：c-时间源，signals-信号灯管理器，corridors-通道协调器，hub-事件推送（可为nil），mockMode-是否为模拟模式
func New(
	c clock.Clock,
	signals entity.ISignalManager,
	corridors entity.ICorridorManager,
	hub *Hub,
	mockMode bool,
) *Server {
	s := &Server{
		clock:     c,
		signals:   signals,
		corridors: corridors,
		hub:       hub,
		mockMode:  mockMode,
		startedAt: c.Now(),
	}
	s.router = s.buildRouter()
	return s
}

// Router 返回路由，调用方可继续挂载其他handler（如connect RPC）
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		requestLogger,
		cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler,
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Message: "Route not found", Path: r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Message: "Method not allowed", Path: r.URL.Path})
	})

	r.Get("/health", s.health)
	if s.hub != nil {
		r.Handle("/ws", s.hub)
	}
	s.routes(r)
	r.Route("/api", s.routes)
	return r
}

func (s *Server) routes(r chi.Router) {
	r.Route("/signals", func(r chi.Router) {
		r.Get("/", s.listSignals)
		r.Post("/", s.registerSignal)
		r.Post("/init", s.registerSignal)
		r.Get("/{signalID}", s.getSignal)
		r.Delete("/{signalID}", s.deleteSignal)
		r.Patch("/{signalID}/state", s.setSignalState)
		r.Post("/{signalID}/reset", s.resetSignal)
	})
	s.corridorRoutes(r)
	r.Route("/emergency", s.corridorRoutes)
}

func (s *Server) corridorRoutes(r chi.Router) {
	r.Post("/corridor", s.createCorridor)
	r.Get("/corridor", s.listCorridors)
	r.Get("/corridor/{vehicleID}", s.getCorridor)
	r.Delete("/corridor/{vehicleID}", s.clearCorridor)
	r.Patch("/vehicle/{vehicleID}/location", s.updateLocation)
	r.Post("/override", s.overrideSignal)
}

// requestLogger 记录每个请求的方法、路径、状态码与耗时
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.WithFields(logrus.Fields{
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		}).Infof("%s %s", r.Method, r.URL.Path)
	})
}
