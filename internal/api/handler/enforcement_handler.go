package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/authgate/internal/core/ports"
)

// EnforcementHandler reads and flips the global enforcement switch.
type EnforcementHandler struct {
	toggle ports.EnforcementToggle
}

func NewEnforcementHandler(toggle ports.EnforcementToggle) *EnforcementHandler {
	return &EnforcementHandler{toggle: toggle}
}

// Get handles GET /admin/enforcement.
//
// @Summary      Read enforcement setting
// @Tags         enforcement
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  enforcementResponse
// @Router       /admin/enforcement [get]
func (h *EnforcementHandler) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, toEnforcementResponse(h.toggle.Read(c.Request().Context())))
}

// Set handles PUT /admin/enforcement.
//
// @Summary      Enable or disable enforcement
// @Tags         enforcement
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      enforcementRequest  true  "Desired state"
// @Success      200   {object}  enforcementResponse
// @Failure      400   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /admin/enforcement [put]
func (h *EnforcementHandler) Set(c echo.Context) error {
	var req enforcementRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	_, by := actor(c)
	setting, err := h.toggle.Write(c.Request().Context(), *req.AuthenticationEnabled, by)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toEnforcementResponse(setting))
}
