package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trip-report-tracker/internal/model"
)

// MasterData is the read-only view of the external business database.
type MasterData interface {
	Companies(ctx context.Context) ([]model.Company, error)
	Company(ctx context.Context, companyCd string) (model.Company, error)
	Customers(ctx context.Context) ([]model.Customer, error)
	Customer(ctx context.Context, customerCd string) (model.Customer, error)
	SearchCustomers(ctx context.Context, term string) ([]model.Customer, error)
	CustomerContacts(ctx context.Context) ([]model.CustomerContact, error)
	CustomerContactsByCustomer(ctx context.Context, customerCd string) ([]model.CustomerContact, error)
	CustomerContact(ctx context.Context, customerCd, staffCd string) (model.CustomerContact, error)
	Estimates(ctx context.Context) ([]model.Estimate, error)
	Estimate(ctx context.Context, id string) (model.Estimate, error)
	Orders(ctx context.Context) ([]model.Order, error)
	Order(ctx context.Context, id string) (model.Order, error)
	OrderDetails(ctx context.Context) ([]model.OrderDetail, error)
	OrderDetailsByOrder(ctx context.Context, orderID string) ([]model.OrderDetail, error)
	OrderDetail(ctx context.Context, orderID, orderNo string, detailNo int) (model.OrderDetail, error)
	Staffs(ctx context.Context) ([]model.Staff, error)
	StaffBySerial(ctx context.Context, serialNo string) (model.Staff, error)
	StaffByCode(ctx context.Context, staffCd string) (model.Staff, error)
	SearchStaff(ctx context.Context, name string) ([]model.Staff, error)
}

// MasterHandler serves /api/kpro.  Responses are cached by the router.
type MasterHandler struct{ Master MasterData }

func NewMasterHandler(m MasterData) *MasterHandler { return &MasterHandler{Master: m} }

// respond writes v or the mapped error.  Nil slices become [].
func respond[T any](c echo.Context, v T, err error) error {
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func respondList[T any](c echo.Context, v []T, err error) error {
	if v == nil {
		v = []T{}
	}
	return respond(c, v, err)
}

func (h *MasterHandler) Companies(c echo.Context) error {
	v, err := h.Master.Companies(c.Request().Context())
	return respondList(c, v, err)
}

func (h *MasterHandler) Company(c echo.Context) error {
	v, err := h.Master.Company(c.Request().Context(), c.Param("cd"))
	return respond(c, v, err)
}

// Customers handles GET /api/kpro/customers; ?search= switches to the
// capped, case-sensitive search.
func (h *MasterHandler) Customers(c echo.Context) error {
	ctx := c.Request().Context()
	if term := strings.TrimSpace(c.QueryParam("search")); term != "" {
		v, err := h.Master.SearchCustomers(ctx, term)
		return respondList(c, v, err)
	}
	v, err := h.Master.Customers(ctx)
	return respondList(c, v, err)
}

func (h *MasterHandler) Customer(c echo.Context) error {
	v, err := h.Master.Customer(c.Request().Context(), c.Param("cd"))
	return respond(c, v, err)
}

// CustomerContacts handles GET /api/kpro/customer-staffs[?customer_cd=].
func (h *MasterHandler) CustomerContacts(c echo.Context) error {
	ctx := c.Request().Context()
	if cd := c.QueryParam("customer_cd"); cd != "" {
		v, err := h.Master.CustomerContactsByCustomer(ctx, cd)
		return respondList(c, v, err)
	}
	v, err := h.Master.CustomerContacts(ctx)
	return respondList(c, v, err)
}

// CustomerContactsByCustomer handles GET /api/kpro/customers/:cd/staffs.
func (h *MasterHandler) CustomerContactsByCustomer(c echo.Context) error {
	v, err := h.Master.CustomerContactsByCustomer(c.Request().Context(), c.Param("cd"))
	return respondList(c, v, err)
}

func (h *MasterHandler) CustomerContact(c echo.Context) error {
	v, err := h.Master.CustomerContact(c.Request().Context(), c.Param("cd"), c.Param("staff"))
	return respond(c, v, err)
}

func (h *MasterHandler) Estimates(c echo.Context) error {
	v, err := h.Master.Estimates(c.Request().Context())
	return respondList(c, v, err)
}

func (h *MasterHandler) Estimate(c echo.Context) error {
	v, err := h.Master.Estimate(c.Request().Context(), c.Param("id"))
	return respond(c, v, err)
}

func (h *MasterHandler) Orders(c echo.Context) error {
	v, err := h.Master.Orders(c.Request().Context())
	return respondList(c, v, err)
}

func (h *MasterHandler) Order(c echo.Context) error {
	v, err := h.Master.Order(c.Request().Context(), c.Param("id"))
	return respond(c, v, err)
}

// OrderDetails handles GET /api/kpro/order-details[?order_id=].
func (h *MasterHandler) OrderDetails(c echo.Context) error {
	ctx := c.Request().Context()
	if id := c.QueryParam("order_id"); id != "" {
		v, err := h.Master.OrderDetailsByOrder(ctx, id)
		return respondList(c, v, err)
	}
	v, err := h.Master.OrderDetails(ctx)
	return respondList(c, v, err)
}

// OrderDetail handles GET /api/kpro/order-details/:id/:no/:detail.
func (h *MasterHandler) OrderDetail(c echo.Context) error {
	n, err := strconv.Atoi(c.Param("detail"))
	if err != nil {
		return badID(c, "detail")
	}
	v, err := h.Master.OrderDetail(c.Request().Context(), c.Param("id"), c.Param("no"), n)
	return respond(c, v, err)
}

// Staffs handles GET /api/kpro/staffs; ?search= filters by name and
// ?serial_no= returns the single matching staff member.
func (h *MasterHandler) Staffs(c echo.Context) error {
	ctx := c.Request().Context()
	if sn := strings.TrimSpace(c.QueryParam("serial_no")); sn != "" {
		v, err := h.Master.StaffBySerial(ctx, sn)
		return respond(c, v, err)
	}
	if term := strings.TrimSpace(c.QueryParam("search")); term != "" {
		v, err := h.Master.SearchStaff(ctx, term)
		return respondList(c, v, err)
	}
	v, err := h.Master.Staffs(ctx)
	return respondList(c, v, err)
}

func (h *MasterHandler) Staff(c echo.Context) error {
	v, err := h.Master.StaffByCode(c.Request().Context(), c.Param("cd"))
	return respond(c, v, err)
}
