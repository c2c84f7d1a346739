package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-api/internal/auth"
	"github.com/iliyamo/contacts-api/internal/repository"
	"github.com/iliyamo/contacts-api/internal/validation"
)

// fakeContactStore is an in-memory ContactStore with the same duplicate
// and ownership semantics as the SQL repository.
type fakeContactStore struct {
	mu     sync.Mutex
	nextID uint64
	items  map[uint64]*repository.Contact
}

func newFakeContactStore() *fakeContactStore {
	return &fakeContactStore{nextID: 1, items: map[uint64]*repository.Contact{}}
}

func (s *fakeContactStore) duplicate(userID, excludeID uint64, email, phone string) bool {
	for _, c := range s.items {
		if c.UserID != userID || c.ID == excludeID {
			continue
		}
		if c.Email == email || c.Phone == phone {
			return true
		}
	}
	return false
}

func (s *fakeContactStore) Create(ctx context.Context, c *repository.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duplicate(c.UserID, 0, c.Email, c.Phone) {
		return repository.ErrDuplicateContact
	}
	c.ID = s.nextID
	s.nextID++
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	s.items[c.ID] = &cp
	return nil
}

func (s *fakeContactStore) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]*repository.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.owned(userID)
	if offset >= len(all) {
		return []*repository.Contact{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *fakeContactStore) owned(userID uint64) []*repository.Contact {
	out := []*repository.Contact{}
	for id := uint64(1); id < s.nextID; id++ {
		if c, ok := s.items[id]; ok && c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out
}

func (s *fakeContactStore) GetByIDAndUser(ctx context.Context, id, userID uint64) (*repository.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok || c.UserID != userID {
		return nil, repository.ErrContactNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeContactStore) Update(ctx context.Context, id, userID uint64, upd repository.ContactUpdate) (*repository.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok || c.UserID != userID {
		return nil, repository.ErrContactNotFound
	}
	email, phone := c.Email, c.Phone
	if upd.Email != nil {
		email = *upd.Email
	}
	if upd.Phone != nil {
		phone = *upd.Phone
	}
	if (upd.Email != nil || upd.Phone != nil) && s.duplicate(userID, id, email, phone) {
		return nil, repository.ErrDuplicateContact
	}
	if upd.FirstName != nil {
		c.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		c.LastName = *upd.LastName
	}
	c.Email = email
	c.Phone = phone
	if upd.Birthday != nil {
		c.Birthday = *upd.Birthday
	}
	if upd.ExtraInfo != nil {
		c.ExtraInfo = sql.NullString{String: *upd.ExtraInfo, Valid: true}
	}
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

func (s *fakeContactStore) DeleteByIDAndUser(ctx context.Context, id, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok || c.UserID != userID {
		return repository.ErrContactNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *fakeContactStore) Search(ctx context.Context, userID uint64, query string) ([]*repository.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(query)
	out := []*repository.Contact{}
	for _, c := range s.owned(userID) {
		if strings.Contains(strings.ToLower(c.FirstName), q) ||
			strings.Contains(strings.ToLower(c.LastName), q) ||
			strings.Contains(strings.ToLower(c.Email), q) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeContactStore) UpcomingBirthdays(ctx context.Context, userID uint64) ([]*repository.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	today := time.Now().UTC().Truncate(24 * time.Hour)
	end := today.AddDate(0, 0, 7)
	out := []*repository.Contact{}
	for _, c := range s.owned(userID) {
		if !c.Birthday.Before(today) && !c.Birthday.After(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

func newContactFixture() (*ContactHandler, *fakeContactStore, *echo.Echo) {
	store := newFakeContactStore()
	e := echo.New()
	e.Validator = validation.New()
	return NewContactHandler(store), store, e
}

// asUser builds a context carrying the snapshot the access gate would
// have stored.
func asUser(e *echo.Echo, userID uint64, req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user", auth.UserSnapshot{ID: userID, Username: "jane", Role: repository.RoleUser})
	c.Set("user_id", strconv.FormatUint(userID, 10))
	c.Set("role", repository.RoleUser)
	return c, rec
}

func contactJSON(e *echo.Echo, userID uint64, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return asUser(e, userID, req)
}

func createContact(t *testing.T, h *ContactHandler, e *echo.Echo, userID uint64, body string) contactResp {
	t.Helper()
	c, rec := contactJSON(e, userID, http.MethodPost, "/api/contacts", body)
	if err := h.Create(c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var resp contactResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

const janeBody = `{"first_name":"Jane","last_name":"Doe","email":"jane.d@example.com","phone":"+123456","birthday":"1990-04-12","extra_info":"college"}`

func TestContactCreateAndGet(t *testing.T) {
	h, _, e := newContactFixture()

	created := createContact(t, h, e, 1, janeBody)
	if created.ID == 0 || created.Birthday != "1990-04-12" || created.ExtraInfo != "college" {
		t.Fatalf("unexpected response: %+v", created)
	}

	c, rec := asUser(e, 1, httptest.NewRequest(http.MethodGet, "/api/contacts/1", nil))
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatUint(created.ID, 10))
	if err := h.Get(c); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got contactResp
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Email != "jane.d@example.com" || got.FirstName != "Jane" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestContactCreateValidation(t *testing.T) {
	h, _, e := newContactFixture()

	cases := []struct {
		name string
		body string
	}{
		{"missing first name", `{"last_name":"Doe","email":"a@b.io","phone":"1","birthday":"1990-04-12"}`},
		{"bad email", `{"first_name":"J","last_name":"D","email":"nope","phone":"1","birthday":"1990-04-12"}`},
		{"bad birthday", `{"first_name":"J","last_name":"D","email":"a@b.io","phone":"1","birthday":"12.04.1990"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := contactJSON(e, 1, http.MethodPost, "/api/contacts", tc.body)
			if err := h.Create(c); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestContactDuplicateWithinUser(t *testing.T) {
	h, _, e := newContactFixture()
	createContact(t, h, e, 1, janeBody)

	// Same email, different phone: conflict for the same user.
	c, rec := contactJSON(e, 1, http.MethodPost, "/api/contacts",
		`{"first_name":"Other","last_name":"Doe","email":"jane.d@example.com","phone":"+999","birthday":"1991-01-01"}`)
	if err := h.Create(c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	// The same contact data under another user is fine.
	c, rec = contactJSON(e, 2, http.MethodPost, "/api/contacts", janeBody)
	if err := h.Create(c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 for another user", rec.Code)
	}
}

func TestContactListIsScopedAndPaged(t *testing.T) {
	h, _, e := newContactFixture()
	for i := 0; i < 3; i++ {
		body := `{"first_name":"A","last_name":"B","email":"a` + strconv.Itoa(i) + `@b.io","phone":"` + strconv.Itoa(i) + `","birthday":"1990-04-12"}`
		createContact(t, h, e, 1, body)
	}
	createContact(t, h, e, 2, janeBody)

	c, rec := asUser(e, 1, httptest.NewRequest(http.MethodGet, "/api/contacts?limit=2&offset=1", nil))
	if err := h.List(c); err != nil {
		t.Fatalf("List: %v", err)
	}
	var got []contactResp
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, item := range got {
		if strings.HasPrefix(item.Email, "jane.d") {
			t.Fatal("another user's contact leaked into the listing")
		}
	}
}

func TestContactPartialUpdate(t *testing.T) {
	h, _, e := newContactFixture()
	created := createContact(t, h, e, 1, janeBody)

	c, rec := contactJSON(e, 1, http.MethodPut, "/api/contacts/1", `{"phone":"+777"}`)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatUint(created.ID, 10))
	if err := h.Update(c); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var got contactResp
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Phone != "+777" {
		t.Fatalf("phone = %q, want updated value", got.Phone)
	}
	if got.FirstName != "Jane" || got.Email != "jane.d@example.com" || got.Birthday != "1990-04-12" {
		t.Fatalf("omitted fields changed: %+v", got)
	}
}

func TestContactUpdateRejectsBlankFields(t *testing.T) {
	h, _, e := newContactFixture()
	created := createContact(t, h, e, 1, janeBody)
	id := strconv.FormatUint(created.ID, 10)

	cases := []struct {
		name string
		body string
	}{
		{"empty email", `{"email":""}`},
		{"empty phone", `{"phone":""}`},
		{"whitespace first name", `{"first_name":"   "}`},
		{"empty birthday", `{"birthday":""}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := contactJSON(e, 1, http.MethodPut, "/api/contacts/"+id, tc.body)
			c.SetParamNames("id")
			c.SetParamValues(id)
			if err := h.Update(c); err != nil {
				t.Fatalf("Update: %v", err)
			}
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body)
			}
		})
	}

	// The contact survives the rejected updates untouched.
	c, rec := asUser(e, 1, httptest.NewRequest(http.MethodGet, "/api/contacts/"+id, nil))
	c.SetParamNames("id")
	c.SetParamValues(id)
	if err := h.Get(c); err != nil {
		t.Fatalf("Get: %v", err)
	}
	var got contactResp
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Email != "jane.d@example.com" || got.FirstName != "Jane" {
		t.Fatalf("contact changed by rejected updates: %+v", got)
	}
}

func TestContactUpdateConflictsAndMisses(t *testing.T) {
	h, _, e := newContactFixture()
	createContact(t, h, e, 1, janeBody)
	second := createContact(t, h, e, 1,
		`{"first_name":"Bob","last_name":"Ray","email":"bob@example.com","phone":"+555","birthday":"1985-06-01"}`)

	// Taking the first contact's email is a conflict.
	c, rec := contactJSON(e, 1, http.MethodPut, "/api/contacts/2", `{"email":"jane.d@example.com"}`)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatUint(second.ID, 10))
	if err := h.Update(c); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	// Updating someone else's contact is a 404, not a 403.
	c, rec = contactJSON(e, 2, http.MethodPut, "/api/contacts/2", `{"phone":"+1"}`)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatUint(second.ID, 10))
	if err := h.Update(c); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestContactDelete(t *testing.T) {
	h, _, e := newContactFixture()
	created := createContact(t, h, e, 1, janeBody)
	id := strconv.FormatUint(created.ID, 10)

	c, rec := asUser(e, 1, httptest.NewRequest(http.MethodDelete, "/api/contacts/"+id, nil))
	c.SetParamNames("id")
	c.SetParamValues(id)
	if err := h.Delete(c); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	c, rec = asUser(e, 1, httptest.NewRequest(http.MethodGet, "/api/contacts/"+id, nil))
	c.SetParamNames("id")
	c.SetParamValues(id)
	if err := h.Get(c); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d after delete, want 404", rec.Code)
	}
}

func TestContactSearch(t *testing.T) {
	h, _, e := newContactFixture()
	createContact(t, h, e, 1, janeBody)
	createContact(t, h, e, 1,
		`{"first_name":"Bob","last_name":"Ray","email":"bob@example.com","phone":"+555","birthday":"1985-06-01"}`)
	createContact(t, h, e, 2,
		`{"first_name":"Janet","last_name":"Smith","email":"janet@example.com","phone":"+1","birthday":"1980-01-01"}`)

	c, rec := asUser(e, 1, httptest.NewRequest(http.MethodGet,
		"/api/contacts/search/?"+url.Values{"query": {"JANE"}}.Encode(), nil))
	if err := h.Search(c); err != nil {
		t.Fatalf("Search: %v", err)
	}
	var got []contactResp
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].FirstName != "Jane" {
		t.Fatalf("search matched %+v, want only Jane", got)
	}

	// Blank query returns the empty list without touching the store.
	c, rec = asUser(e, 1, httptest.NewRequest(http.MethodGet, "/api/contacts/search/", nil))
	if err := h.Search(c); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("body = %s, want []", body)
	}
}

func TestContactUpcomingBirthdays(t *testing.T) {
	h, _, e := newContactFixture()
	soon := time.Now().UTC().AddDate(0, 0, 3).Format(birthdayLayout)
	far := time.Now().UTC().AddDate(0, 0, 30).Format(birthdayLayout)

	createContact(t, h, e, 1,
		`{"first_name":"Soon","last_name":"Bday","email":"soon@example.com","phone":"+2","birthday":"`+soon+`"}`)
	createContact(t, h, e, 1,
		`{"first_name":"Far","last_name":"Bday","email":"far@example.com","phone":"+3","birthday":"`+far+`"}`)

	c, rec := asUser(e, 1, httptest.NewRequest(http.MethodGet, "/api/contacts/upcoming/birthdays", nil))
	if err := h.UpcomingBirthdays(c); err != nil {
		t.Fatalf("UpcomingBirthdays: %v", err)
	}
	var got []contactResp
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].FirstName != "Soon" {
		t.Fatalf("birthdays = %+v, want only the one inside the window", got)
	}
}

func TestContactUnauthenticated(t *testing.T) {
	h, _, e := newContactFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.List(c); err != nil {
		t.Fatalf("List: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a snapshot", rec.Code)
	}
}
