package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/trip-report-tracker/internal/handler"
	"github.com/iliyamo/trip-report-tracker/internal/middleware"
	"github.com/iliyamo/trip-report-tracker/internal/model"
)

// Deps carries the handlers and shared middleware the routes are built from.
// RateLimit, LoginRateLimit and Cache pass requests through when Redis is
// not configured.
type Deps struct {
	Auth        *handler.AuthHandler
	Admin       *handler.AdminHandler
	Reports     *handler.ReportHandler
	Threads     *handler.ThreadHandler
	Attachments *handler.AttachmentHandler
	Equipment   *handler.EquipmentHandler
	Master      *handler.MasterHandler
	UserStaff   *handler.UserStaffHandler

	DB      handler.Pinger
	Metrics *middleware.Metrics

	Session        echo.MiddlewareFunc
	RateLimit      echo.MiddlewareFunc
	LoginRateLimit echo.MiddlewareFunc
	Cache          echo.MiddlewareFunc
	RequestTimeout time.Duration
}

// Register wires every route group onto e.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e, d)
	api := protected(e, "/v1", d)
	RegisterAuth(e, api, d)
	RegisterReports(api, d)
	RegisterThreads(api, d)
	RegisterEquipment(api, d)
	RegisterAdmin(api, d)
	RegisterMaster(e, d)
	RegisterUserStaff(e, d)
}

// RegisterRoutes registers routes that do not require authentication:
// probes and metrics.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	if d.DB != nil {
		e.GET("/readyz", handler.Ready(d.DB))
	}
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}
}

// RegisterAuth registers login and registration under /v1/auth, behind
// the stricter per-IP limiter, and the session endpoints on the protected
// group.
func RegisterAuth(e *echo.Echo, api *echo.Group, d Deps) {
	g := e.Group("/v1/auth")
	g.POST("/login", d.Auth.Login, orPass(d.LoginRateLimit))
	g.POST("/register", d.Auth.Register, orPass(d.LoginRateLimit))

	api.GET("/me", d.Auth.Me)
	api.POST("/logout", d.Auth.Logout)
	api.PUT("/me/password", d.Auth.ChangePassword)
}

// protected builds a group that requires a session.  Database work is
// bounded by RequestTimeout except on streaming attachment routes.
func protected(e *echo.Echo, prefix string, d Deps) *echo.Group {
	g := e.Group(prefix, d.Session, orPass(d.RateLimit))
	if d.RequestTimeout > 0 {
		g.Use(echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
			Timeout: d.RequestTimeout,
			Skipper: isTransfer,
		}))
	}
	return g
}

// isTransfer matches uploads and downloads, whose duration depends on file size.
func isTransfer(c echo.Context) bool {
	p := c.Path()
	switch {
	case strings.HasSuffix(p, "/download"):
		return true
	case strings.HasSuffix(p, "/attachments") && c.Request().Method == http.MethodPost:
		return true
	}
	return false
}

// RegisterReports registers /v1/reports.  Decisions need Admin or Approver.
func RegisterReports(g *echo.Group, d Deps) {
	r := d.Reports
	g.GET("/reports", r.List)
	g.POST("/reports", r.Create)
	g.GET("/reports/:id", r.Get)
	g.PUT("/reports/:id", r.Update)
	g.DELETE("/reports/:id", r.Delete)

	approver := middleware.RequireRole(model.RoleAdmin, model.RoleApprover)
	g.POST("/reports/:id/approve", r.Approve, approver)
	g.POST("/reports/:id/reject", r.Reject, approver)
	g.PUT("/reports/:id/status", r.Decide, approver)

	g.POST("/reports/:id/read", r.MarkRead)
	g.GET("/reports/:id/read", r.ReadStatus)
	g.GET("/reports/:id/readers", r.ReadUsers)
	g.GET("/reports/:id/non-readers", r.UnreadUsers)

	g.POST("/reports/:id/attachments", r.UploadAttachments)
	g.POST("/reports/:id/comments", r.AddComment)
	g.GET("/reports/:id/threads", r.ListThreads)
	g.POST("/reports/:id/threads", r.CreateThread)
}

// RegisterThreads registers threads, comments and attachments.
func RegisterThreads(g *echo.Group, d Deps) {
	t := d.Threads
	g.GET("/threads", t.ListByCompany)
	g.POST("/threads", t.Create)
	g.GET("/threads/:id", t.Get)
	g.DELETE("/threads/:id", t.Delete)
	g.GET("/threads/:id/comments", t.Comments)
	g.POST("/threads/:id/comments", t.AddComment)
	g.POST("/threads/:id/attachments", t.AddAttachments)
	g.DELETE("/comments/:id", t.DeleteComment)

	a := d.Attachments
	g.GET("/attachments/:id", a.Get)
	g.GET("/attachments/:id/download", a.Download)
	g.GET("/attachments/:id/url", a.SignedURL)
	g.DELETE("/attachments/:id", a.Delete)
}

func RegisterEquipment(g *echo.Group, d Deps) {
	q := d.Equipment
	g.GET("/equipment", q.List)
	g.POST("/equipment", q.Create)
	g.GET("/equipment/:id", q.Get)
	g.PUT("/equipment/:id", q.Update)
	g.DELETE("/equipment/:id", q.Delete)
}

// RegisterAdmin registers user administration under /v1/admin (Admin only).
func RegisterAdmin(g *echo.Group, d Deps) {
	a := g.Group("/admin", middleware.RequireRole(model.RoleAdmin))
	a.GET("/users", d.Admin.ListUsers)
	a.POST("/users", d.Admin.CreateUser)
	a.GET("/users/:id", d.Admin.GetUser)
	a.PUT("/users/:id", d.Admin.UpdateUser)
	a.PUT("/users/:id/password", d.Admin.SetPassword)
	a.PUT("/users/:id/roles", d.Admin.ReplaceRoles)
	a.DELETE("/users/:id", d.Admin.DeleteUser)
	a.GET("/roles", d.Admin.ListRoles)
}

// RegisterMaster registers the read-only master data passthrough under
// /api/kpro.  GET responses are cached in Redis.
func RegisterMaster(e *echo.Echo, d Deps) {
	g := e.Group("/api/kpro", d.Session, orPass(d.RateLimit), orPass(d.Cache))
	m := d.Master
	g.GET("/companies", m.Companies)
	g.GET("/companies/:cd", m.Company)
	g.GET("/customers", m.Customers)
	g.GET("/customers/:cd", m.Customer)
	g.GET("/customers/:cd/staffs", m.CustomerContactsByCustomer)
	g.GET("/customers/:cd/staffs/:staff", m.CustomerContact)
	g.GET("/customer-staffs", m.CustomerContacts)
	g.GET("/estimates", m.Estimates)
	g.GET("/estimates/:id", m.Estimate)
	g.GET("/orders", m.Orders)
	g.GET("/orders/:id", m.Order)
	g.GET("/order-details", m.OrderDetails)
	g.GET("/order-details/:id/:no/:detail", m.OrderDetail)
	g.GET("/staffs", m.Staffs)
	g.GET("/staffs/:cd", m.Staff)
}

// RegisterUserStaff registers /api/users, the user to staff link.
func RegisterUserStaff(e *echo.Echo, d Deps) {
	g := e.Group("/api/users", d.Session, orPass(d.RateLimit))
	u := d.UserStaff
	g.GET("", u.List)
	g.GET("/:id/staff", u.Get)
	g.POST("/:id/staff", u.Link)
	g.DELETE("/:id/staff", u.Unlink, middleware.RequireRole(model.RoleAdmin))
}

func orPass(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	if mw == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return mw
}
