package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/authgate/internal/core/domain"
	"github.com/99minutos/authgate/internal/core/ports"
)

// AccountHandler serves the administrative account endpoints.
type AccountHandler struct {
	service ports.AccountService
}

func NewAccountHandler(service ports.AccountService) *AccountHandler {
	return &AccountHandler{service: service}
}

// Create handles POST /admin/accounts.
//
// @Summary      Create an account
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createAccountRequest  true  "Account details"
// @Success      201   {object}  domain.AccountView
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /admin/accounts [post]
func (h *AccountHandler) Create(c echo.Context) error {
	var req createAccountRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	view, err := h.service.Create(c.Request().Context(), req.Username, req.Password, domain.Role(req.Role))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, view)
}

// List handles GET /admin/accounts. Inactive accounts are included.
//
// @Summary      List accounts
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  accountListResponse
// @Failure      403  {object}  errorResponse
// @Router       /admin/accounts [get]
func (h *AccountHandler) List(c echo.Context) error {
	views, err := h.service.List(c.Request().Context())
	if err != nil {
		return err
	}
	if views == nil {
		views = []domain.AccountView{}
	}

	return c.JSON(http.StatusOK, accountListResponse{Accounts: views, Total: len(views)})
}

// Update handles PATCH /admin/accounts/:id.
//
// @Summary      Update account fields
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                   true  "Account id"
// @Param        body  body      updateAccountRequest  true  "Fields to change"
// @Success      200   {object}  domain.AccountView
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /admin/accounts/{id} [patch]
func (h *AccountHandler) Update(c echo.Context) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}

	var req updateAccountRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	update := domain.AccountUpdate{Username: req.Username, IsActive: req.IsActive}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		update.Role = &role
	}

	actorID, _ := actor(c)
	view, err := h.service.Update(c.Request().Context(), actorID, id, update)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, view)
}

// UpdateRole handles PUT /admin/accounts/:id/role.
//
// @Summary      Change account role
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                true  "Account id"
// @Param        body  body      updateRoleRequest  true  "New role"
// @Success      200   {object}  domain.AccountView
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /admin/accounts/{id}/role [put]
func (h *AccountHandler) UpdateRole(c echo.Context) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}

	var req updateRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	actorID, _ := actor(c)
	view, err := h.service.UpdateRole(c.Request().Context(), actorID, id, domain.Role(req.Role))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, view)
}

// ResetPassword handles POST /admin/accounts/:id/password.
//
// @Summary      Reset account password
// @Tags         accounts
// @Accept       json
// @Security     BearerAuth
// @Param        id    path  int                   true  "Account id"
// @Param        body  body  resetPasswordRequest  true  "New password"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Failure      422  {object}  errorResponse
// @Router       /admin/accounts/{id}/password [post]
func (h *AccountHandler) ResetPassword(c echo.Context) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}

	var req resetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.service.ResetPassword(c.Request().Context(), id, req.Password); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Deactivate handles DELETE /admin/accounts/:id (soft delete).
//
// @Summary      Deactivate an account
// @Tags         accounts
// @Security     BearerAuth
// @Param        id  path  int  true  "Account id"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /admin/accounts/{id} [delete]
func (h *AccountHandler) Deactivate(c echo.Context) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}

	actorID, _ := actor(c)
	if err := h.service.Deactivate(c.Request().Context(), actorID, id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// HardDelete handles DELETE /admin/accounts/:id/hard?confirm=<username>.
//
// @Summary      Permanently delete an account
// @Tags         accounts
// @Security     BearerAuth
// @Param        id       path   int     true  "Account id"
// @Param        confirm  query  string  true  "Username of the account, as confirmation"
// @Success      204
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /admin/accounts/{id}/hard [delete]
func (h *AccountHandler) HardDelete(c echo.Context) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}

	confirm := c.QueryParam("confirm")
	if confirm == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "confirm query parameter is required")
	}

	actorID, _ := actor(c)
	if err := h.service.HardDelete(c.Request().Context(), actorID, id, confirm); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
