package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-roles-modifier/internal/console/handler"
	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
	"github.com/xela07ax/spaceai-roles-modifier/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка токенов консоли (RS256)
	authValidator auth.TokenValidator

	// Обработчики
	authHandler    *handler.AuthHandler    // /auth/token
	roleHandler    *handler.RoleHandler    // /v1/roles, /v1/invokers/{address}/roles
	invokerHandler *handler.InvokerHandler // /v1/invokers/{address}/revoke (Kill-Switch)
	auditHandler   *handler.AuditHandler   // /v1/audit
}

// NewConsoleServer инициализирует сервер админки со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	roleH *handler.RoleHandler,
	invokerH *handler.InvokerHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:         chi.NewRouter(),
		logger:         logger.Named("console-api"),
		authValidator:  validator,
		authHandler:    authH,
		roleHandler:    roleH,
		invokerHandler: invokerH,
		auditHandler:   auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Post("/auth/token", s.authHandler.Login)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Чтение доступно любому оператору
		r.Get("/v1/roles/{role}", s.roleHandler.Get)
		r.Get("/v1/audit", s.auditHandler.GetLogs)

		// Мутации только для roles.admin
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(domain.ScopeRolesAdmin))

			r.Route("/v1/invokers/{address}", func(r chi.Router) {
				r.Post("/roles", s.roleHandler.AssignRoles)
				r.Put("/default-role", s.roleHandler.SetDefaultRole)
				r.Post("/revoke", s.invokerHandler.Revoke)
				r.Delete("/revoke", s.invokerHandler.Restore)
				r.Put("/simulation", s.invokerHandler.SetSimulation)
			})

			r.Route("/v1/roles/{role}/targets/{target}", func(r chi.Router) {
				r.Put("/", s.roleHandler.SetTarget)
				r.Delete("/", s.roleHandler.RevokeTarget)
				r.Route("/functions/{selector}", func(r chi.Router) {
					r.Put("/", s.roleHandler.SetFunction)
					r.Delete("/", s.roleHandler.RevokeFunction)
					r.Put("/parameters/{index}", s.roleHandler.ScopeParameter)
					r.Delete("/parameters/{index}", s.roleHandler.UnscopeParameter)
				})
			})
		})
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
