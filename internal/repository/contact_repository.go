// This file defines the Contact model and repository methods for CRUD,
// search and birthday range queries.  Every operation is scoped by the
// owning user's id; a contact is never visible outside its owner.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// Contact represents a contact entity persisted in the database.  Email and
// phone are unique within the owning user's contacts, enforced by the
// pre-checks in Create and Update which run in the same transaction as the
// write.
type Contact struct {
	ID        uint64
	UserID    uint64
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Birthday  time.Time
	ExtraInfo sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContactUpdate carries a partial update.  Nil fields are left unchanged.
type ContactUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
	Phone     *string
	Birthday  *time.Time
	ExtraInfo *string
}

// ContactRepo encapsulates all database queries related to contacts.
type ContactRepo struct {
	db *sql.DB
}

func NewContactRepo(db *sql.DB) *ContactRepo {
	return &ContactRepo{db: db}
}

const contactColumns = "id, user_id, first_name, last_name, email, phone, birthday, extra_info, created_at, updated_at"

func scanContact(s interface{ Scan(...any) error }) (*Contact, error) {
	c := new(Contact)
	err := s.Scan(&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&c.Birthday, &c.ExtraInfo, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a new contact after verifying that neither the email nor
// the phone is already used by another contact of the same user.  The check
// and the insert run in one transaction so concurrent requests cannot both
// pass the check.  On success the contact's generated fields are populated
// with a follow-up SELECT.  The error return is named so the deferred
// commit can report its failure to the caller.
func (r *ContactRepo) Create(ctx context.Context, c *Contact) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	var existing uint64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM contacts WHERE user_id=? AND (email=? OR phone=?) LIMIT 1",
		c.UserID, c.Email, c.Phone).Scan(&existing)
	if err == nil {
		err = ErrDuplicateContact
		return err
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	err = nil

	res, execErr := tx.ExecContext(ctx,
		"INSERT INTO contacts (user_id, first_name, last_name, email, phone, birthday, extra_info) VALUES (?,?,?,?,?,?,?)",
		c.UserID, c.FirstName, c.LastName, c.Email, c.Phone, c.Birthday, c.ExtraInfo)
	if execErr != nil {
		err = execErr
		return err
	}
	id, idErr := res.LastInsertId()
	if idErr != nil {
		err = idErr
		return err
	}
	c.ID = uint64(id)

	row := tx.QueryRowContext(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE id=?", c.ID)
	loaded, scanErr := scanContact(row)
	if scanErr != nil {
		err = scanErr
		return err
	}
	*c = *loaded
	return nil
}

// ListByUser returns a page of the user's contacts ordered by id.
func (r *ContactRepo) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]*Contact, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE user_id=? ORDER BY id LIMIT ? OFFSET ?",
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContacts(rows)
}

// GetByIDAndUser fetches a contact only if it belongs to the given user.
func (r *ContactRepo) GetByIDAndUser(ctx context.Context, id, userID uint64) (*Contact, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE id=? AND user_id=?", id, userID)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Update applies a partial update.  Like Create, the duplicate check for a
// changed email or phone runs in the same transaction as the UPDATE, and
// the named returns let the deferred commit surface its failure.
func (r *ContactRepo) Update(ctx context.Context, id, userID uint64, upd ContactUpdate) (updated *Contact, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if err = tx.Commit(); err != nil {
			updated = nil
		}
	}()

	row := tx.QueryRowContext(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE id=? AND user_id=?", id, userID)
	c, scanErr := scanContact(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		err = ErrContactNotFound
		return nil, err
	}
	if scanErr != nil {
		err = scanErr
		return nil, err
	}

	var conds []string
	var args []any
	if upd.Email != nil {
		conds = append(conds, "email=?")
		args = append(args, *upd.Email)
	}
	if upd.Phone != nil {
		conds = append(conds, "phone=?")
		args = append(args, *upd.Phone)
	}
	if len(conds) > 0 {
		q := "SELECT id FROM contacts WHERE user_id=? AND (" + strings.Join(conds, " OR ") + ") AND id<>? LIMIT 1"
		qargs := append([]any{userID}, args...)
		qargs = append(qargs, id)
		var existing uint64
		dupErr := tx.QueryRowContext(ctx, q, qargs...).Scan(&existing)
		if dupErr == nil {
			err = ErrDuplicateContact
			return nil, err
		}
		if !errors.Is(dupErr, sql.ErrNoRows) {
			err = dupErr
			return nil, err
		}
	}

	if upd.FirstName != nil {
		c.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		c.LastName = *upd.LastName
	}
	if upd.Email != nil {
		c.Email = *upd.Email
	}
	if upd.Phone != nil {
		c.Phone = *upd.Phone
	}
	if upd.Birthday != nil {
		c.Birthday = *upd.Birthday
	}
	if upd.ExtraInfo != nil {
		c.ExtraInfo = sql.NullString{String: *upd.ExtraInfo, Valid: true}
	}

	_, execErr := tx.ExecContext(ctx,
		`UPDATE contacts
		 SET first_name=?, last_name=?, email=?, phone=?, birthday=?, extra_info=?, updated_at=CURRENT_TIMESTAMP
		 WHERE id=? AND user_id=?`,
		c.FirstName, c.LastName, c.Email, c.Phone, c.Birthday, c.ExtraInfo, id, userID)
	if execErr != nil {
		err = execErr
		return nil, err
	}

	row = tx.QueryRowContext(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE id=?", id)
	updated, scanErr2 := scanContact(row)
	if scanErr2 != nil {
		err = scanErr2
		return nil, err
	}
	return updated, nil
}

// DeleteByIDAndUser removes a contact owned by the user.  It returns
// ErrContactNotFound when no row is affected.
func (r *ContactRepo) DeleteByIDAndUser(ctx context.Context, id, userID uint64) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM contacts WHERE id=? AND user_id=?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrContactNotFound
	}
	return nil
}

// Search matches the query case-insensitively against first name, last name
// or email, within one user's contacts.
func (r *ContactRepo) Search(ctx context.Context, userID uint64, query string) ([]*Contact, error) {
	like := "%" + strings.ToLower(query) + "%"
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts
		 WHERE user_id=? AND (LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ?)
		 ORDER BY id`,
		userID, like, like, like)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContacts(rows)
}

// UpcomingBirthdays returns contacts whose stored birthday date falls in
// [today, today+7 days].  The comparison is on the literal column value, so
// a birthday stored with its birth year only matches when that absolute
// date is inside the window.
func (r *ContactRepo) UpcomingBirthdays(ctx context.Context, userID uint64) ([]*Contact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts
		 WHERE user_id=? AND birthday BETWEEN CURDATE() AND DATE_ADD(CURDATE(), INTERVAL 7 DAY)
		 ORDER BY birthday`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContacts(rows)
}

func collectContacts(rows *sql.Rows) ([]*Contact, error) {
	out := []*Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
