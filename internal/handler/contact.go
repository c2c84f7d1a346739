package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-api/internal/middleware"
	"github.com/iliyamo/contacts-api/internal/repository"
)

const birthdayLayout = "2006-01-02"

// ContactStore is the slice of the contact directory the handlers need.
// *repository.ContactRepo satisfies it.
type ContactStore interface {
	Create(ctx context.Context, c *repository.Contact) error
	ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]*repository.Contact, error)
	GetByIDAndUser(ctx context.Context, id, userID uint64) (*repository.Contact, error)
	Update(ctx context.Context, id, userID uint64, upd repository.ContactUpdate) (*repository.Contact, error)
	DeleteByIDAndUser(ctx context.Context, id, userID uint64) error
	Search(ctx context.Context, userID uint64, query string) ([]*repository.Contact, error)
	UpcomingBirthdays(ctx context.Context, userID uint64) ([]*repository.Contact, error)
}

// ContactHandler serves the per-user contact CRUD and query endpoints.
// Every operation is scoped to the authenticated user resolved by the
// access gate; no handler ever reads another user's rows.
type ContactHandler struct {
	Contacts ContactStore
}

func NewContactHandler(contacts ContactStore) *ContactHandler {
	return &ContactHandler{Contacts: contacts}
}

// ----- DTOs -----

type contactReq struct {
	FirstName string  `json:"first_name" validate:"required,max=50"`
	LastName  string  `json:"last_name" validate:"required,max=50"`
	Email     string  `json:"email" validate:"required,email"`
	Phone     string  `json:"phone" validate:"required,max=20"`
	Birthday  string  `json:"birthday" validate:"required,datetime=2006-01-02"`
	ExtraInfo *string `json:"extra_info" validate:"omitempty,max=250"`
}

type contactUpdateReq struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=50"`
	LastName  *string `json:"last_name" validate:"omitempty,max=50"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
	Birthday  *string `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
	ExtraInfo *string `json:"extra_info" validate:"omitempty,max=250"`
}

type contactResp struct {
	ID        uint64    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Birthday  string    `json:"birthday"`
	ExtraInfo string    `json:"extra_info,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func contactRespFrom(c *repository.Contact) contactResp {
	return contactResp{
		ID:        c.ID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Phone:     c.Phone,
		Birthday:  c.Birthday.Format(birthdayLayout),
		ExtraInfo: c.ExtraInfo.String,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func contactListFrom(items []*repository.Contact) []contactResp {
	out := make([]contactResp, 0, len(items))
	for _, c := range items {
		out = append(out, contactRespFrom(c))
	}
	return out
}

// Create handles POST /api/contacts.
func (h *ContactHandler) Create(c echo.Context) error {
	snap, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req contactReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	}
	birthday, _ := time.Parse(birthdayLayout, req.Birthday)

	contact := &repository.Contact{
		UserID:    snap.ID,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     strings.TrimSpace(req.Phone),
		Birthday:  birthday,
	}
	if req.ExtraInfo != nil {
		contact.ExtraInfo = sql.NullString{String: *req.ExtraInfo, Valid: true}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Contacts.Create(ctx, contact); err != nil {
		if errors.Is(err, repository.ErrDuplicateContact) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "contact with this email or phone already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create contact"})
	}
	return c.JSON(http.StatusCreated, contactRespFrom(contact))
}

// List handles GET /api/contacts with limit/offset pagination.
func (h *ContactHandler) List(c echo.Context) error {
	snap, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Contacts.ListByUser(ctx, snap.ID, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, contactListFrom(items))
}

// Get handles GET /api/contacts/:id.
func (h *ContactHandler) Get(c echo.Context) error {
	snap, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	contact, err := h.Contacts.GetByIDAndUser(ctx, id, snap.ID)
	if err != nil {
		if errors.Is(err, repository.ErrContactNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "contact not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, contactRespFrom(contact))
}

// Update handles PUT /api/contacts/:id with a partial body; omitted fields
// are left unchanged.
func (h *ContactHandler) Update(c echo.Context) error {
	snap, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req contactUpdateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	}
	// omitempty skips fields that decode to "", so a present-but-blank
	// value would slip past the tags and erase data the create schema
	// requires.  Absent means "leave unchanged"; blank is rejected.
	for _, f := range []*string{req.FirstName, req.LastName, req.Email, req.Phone, req.Birthday} {
		if f != nil && strings.TrimSpace(*f) == "" {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "fields must not be blank"})
		}
	}

	upd := repository.ContactUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		ExtraInfo: req.ExtraInfo,
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		upd.Email = &email
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		upd.Phone = &phone
	}
	if req.Birthday != nil {
		birthday, _ := time.Parse(birthdayLayout, *req.Birthday)
		upd.Birthday = &birthday
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	contact, err := h.Contacts.Update(ctx, id, snap.ID, upd)
	if err != nil {
		if errors.Is(err, repository.ErrContactNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "contact not found"})
		}
		if errors.Is(err, repository.ErrDuplicateContact) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "another contact with this email or phone already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, contactRespFrom(contact))
}

// Delete handles DELETE /api/contacts/:id.
func (h *ContactHandler) Delete(c echo.Context) error {
	snap, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Contacts.DeleteByIDAndUser(ctx, id, snap.ID); err != nil {
		if errors.Is(err, repository.ErrContactNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "contact not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Search handles GET /api/contacts/search/?query= with a case-insensitive
// substring match over first name, last name and email.
func (h *ContactHandler) Search(c echo.Context) error {
	snap, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	query := strings.TrimSpace(c.QueryParam("query"))
	if query == "" {
		return c.JSON(http.StatusOK, []contactResp{})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Contacts.Search(ctx, snap.ID, query)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, contactListFrom(items))
}

// UpcomingBirthdays handles GET /api/contacts/upcoming/birthdays.  The
// window is the next 7 days compared against the stored birthday date.
func (h *ContactHandler) UpcomingBirthdays(c echo.Context) error {
	snap, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Contacts.UpcomingBirthdays(ctx, snap.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, contactListFrom(items))
}
