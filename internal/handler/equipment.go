package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trip-report-tracker/internal/model"
)

// EquipmentStore is the equipment table.
type EquipmentStore interface {
	Create(ctx context.Context, e model.Equipment) (model.Equipment, error)
	GetByID(ctx context.Context, id uint64) (model.Equipment, error)
	Update(ctx context.Context, e model.Equipment) (model.Equipment, error)
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context) ([]model.Equipment, error)
	Search(ctx context.Context, term string) ([]model.Equipment, error)
	ListByCompany(ctx context.Context, companyCd string) ([]model.Equipment, error)
}

type EquipmentHandler struct{ Equipment EquipmentStore }

func NewEquipmentHandler(s EquipmentStore) *EquipmentHandler { return &EquipmentHandler{Equipment: s} }

type equipmentBody struct {
	CompanyCd    *string `json:"company_cd"`
	Name         string  `json:"name"`
	TotalCounter *int64  `json:"total_counter"`
}

func (b equipmentBody) model() (model.Equipment, bool) {
	name := strings.TrimSpace(b.Name)
	if name == "" {
		return model.Equipment{}, false
	}
	e := model.Equipment{Name: name, TotalCounter: b.TotalCounter}
	if b.CompanyCd != nil && strings.TrimSpace(*b.CompanyCd) != "" {
		cd := strings.TrimSpace(*b.CompanyCd)
		e.CompanyCd = &cd
	}
	return e, true
}

// List handles GET /v1/equipment with optional q or company_cd.
func (h *EquipmentHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		out []model.Equipment
		err error
	)
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		out, err = h.Equipment.Search(ctx, q)
	} else if cd := strings.TrimSpace(c.QueryParam("company_cd")); cd != "" {
		out, err = h.Equipment.ListByCompany(ctx, cd)
	} else {
		out, err = h.Equipment.List(ctx)
	}
	if err != nil {
		return fail(c, err)
	}
	if out == nil {
		out = []model.Equipment{}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *EquipmentHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	e, err := h.Equipment.GetByID(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *EquipmentHandler) Create(c echo.Context) error {
	var body equipmentBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	e, ok := body.model()
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	out, err := h.Equipment.Create(c.Request().Context(), e)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *EquipmentHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	var body equipmentBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	e, ok := body.model()
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	e.ID = id
	out, err := h.Equipment.Update(c.Request().Context(), e)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Delete refuses with 409 while reports or threads still point at the equipment.
func (h *EquipmentHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	if err := h.Equipment.Delete(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
