/*
Package sqlite provides a SQLite-backed implementation of booking.Store.

PURPOSE:
  Persists classes, students, registrations, payment attempts and products.
  Every invariant the Registration Engine depends on is enforced here by a
  single SQL statement or a schema constraint, so the guarantees hold across
  processes sharing the database file.

INVARIANT-PROTECTING STATEMENTS:
  ReserveSeat:             conditional increment of classes.current_students
  TransitionPaymentStatus: conditional update keyed on payment_status
  ConfirmPaymentAttempt:   conditional update keyed on confirmed = 0
  CreditBalance:           balance = balance + ? (no read-modify-write)

KEY TABLES:
  classes:          Capacity-limited sessions. CHECK 0 <= current <= max.
  students:         Accounts with wallet balance. Unique email.
  registrations:    One row per (student_id, class_id) - unique index.
  payment_attempts: One row per gateway reference - unique index.
  products:         Shop catalog for cart checkout.

CONCURRENCY:
  No in-process locks. Transactions start with BEGIN IMMEDIATE (_txlock) so
  writers serialize on the database lock and a busy timeout absorbs
  contention. ":memory:" databases are pinned to one connection because every
  connection to ":memory:" is a separate database.

TIME FORMAT:
  Timestamps are TEXT in a fixed-width UTC layout so that lexical order equals
  chronological order in range queries.

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - booking/store.go: Interface definitions
  - store/postgres: Same contract on PostgreSQL
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/swim-engine/booking"
)

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Store implements booking.Store using SQLite.
type Store struct {
	ledger
	db *sql.DB
}

var _ booking.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{ledger: ledger{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS classes (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		class_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
		starts_at TEXT NOT NULL,
		skill_level TEXT NOT NULL DEFAULT 'all',
		max_students INTEGER NOT NULL CHECK (max_students > 0),
		current_students INTEGER NOT NULL DEFAULT 0,
		price INTEGER NOT NULL DEFAULT 0 CHECK (price >= 0),
		instructor TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (current_students >= 0 AND current_students <= max_students)
	);

	CREATE INDEX IF NOT EXISTS idx_classes_starts_at
		ON classes(starts_at);
	CREATE INDEX IF NOT EXISTS idx_classes_type
		ON classes(class_type);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		balance INTEGER NOT NULL DEFAULT 0,
		swimming_type TEXT NOT NULL DEFAULT 'normal',
		skill_level TEXT NOT NULL DEFAULT 'beginner',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_students_email
		ON students(email);

	-- CRITICAL: one registration per (student, class)
	CREATE TABLE IF NOT EXISTS registrations (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		class_id TEXT NOT NULL REFERENCES classes(id),
		payment_amount INTEGER NOT NULL DEFAULT 0,
		payment_status TEXT NOT NULL,
		payment_reference TEXT,
		status TEXT NOT NULL DEFAULT 'registered',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (student_id, class_id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_registrations_reference
		ON registrations(payment_reference) WHERE payment_reference IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_registrations_pending
		ON registrations(payment_status, created_at);

	CREATE TABLE IF NOT EXISTS payment_attempts (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		amount INTEGER NOT NULL,
		reference TEXT NOT NULL UNIQUE,
		purpose TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		confirmed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		confirmed_at TEXT
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price INTEGER NOT NULL CHECK (price >= 0),
		category TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		in_stock INTEGER NOT NULL DEFAULT 1,
		quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		active INTEGER NOT NULL DEFAULT 1,
		brand TEXT NOT NULL DEFAULT '',
		size TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_category
		ON products(category);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER (booking.Ledger interface)
// =============================================================================

type ledger struct {
	q querier
}

func (l ledger) InsertRegistration(ctx context.Context, reg booking.Registration) error {
	_, err := l.q.ExecContext(ctx, `
		INSERT INTO registrations
		(id, student_id, class_id, payment_amount, payment_status, payment_reference,
		 status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reg.ID,
		reg.StudentID,
		reg.ClassID,
		reg.PaymentAmount.IntPart(),
		reg.PaymentStatus,
		nullString(reg.PaymentReference),
		reg.Status,
		reg.Notes,
		formatTime(reg.CreatedAt),
		formatTime(reg.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "registrations.student_id") {
			return booking.ErrDuplicateRegistration
		}
		if isUniqueViolation(err, "registrations.payment_reference") {
			return booking.ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert registration: %w", err)
	}
	return nil
}

func (l ledger) InsertPaymentAttempt(ctx context.Context, a booking.PaymentAttempt) error {
	_, err := l.q.ExecContext(ctx, `
		INSERT INTO payment_attempts
		(id, student_id, amount, reference, purpose, description, confirmed, created_at, confirmed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.StudentID,
		a.Amount.IntPart(),
		a.Reference,
		a.Purpose,
		a.Description,
		a.Confirmed,
		formatTime(a.CreatedAt),
		nullTime(a.ConfirmedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "payment_attempts.reference") {
			return booking.ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert payment attempt: %w", err)
	}
	return nil
}

func (l ledger) ReserveSeat(ctx context.Context, classID booking.ClassID) (bool, error) {
	res, err := l.q.ExecContext(ctx, `
		UPDATE classes
		SET current_students = current_students + 1, updated_at = ?
		WHERE id = ? AND active = 1 AND current_students < max_students`,
		formatTime(time.Now()), classID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reserve seat: %w", err)
	}
	return affectedOne(res)
}

func (l ledger) TransitionPaymentStatus(ctx context.Context, id booking.RegistrationID, from, to booking.PaymentStatus, notes string) (bool, error) {
	res, err := l.q.ExecContext(ctx, `
		UPDATE registrations
		SET payment_status = ?,
		    notes = CASE WHEN ? = '' THEN notes ELSE ? END,
		    updated_at = ?
		WHERE id = ? AND payment_status = ?`,
		to, notes, notes, formatTime(time.Now()), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition payment status: %w", err)
	}
	return affectedOne(res)
}

func (l ledger) ConfirmPaymentAttempt(ctx context.Context, reference string, at time.Time) (bool, error) {
	res, err := l.q.ExecContext(ctx, `
		UPDATE payment_attempts
		SET confirmed = 1, confirmed_at = ?
		WHERE reference = ? AND confirmed = 0`,
		formatTime(at), reference,
	)
	if err != nil {
		return false, fmt.Errorf("failed to confirm payment attempt: %w", err)
	}
	return affectedOne(res)
}

func (l ledger) CreditBalance(ctx context.Context, studentID booking.StudentID, amount decimal.Decimal) error {
	if err := booking.ValidateAmount(amount); err != nil {
		return err
	}
	res, err := l.q.ExecContext(ctx,
		"UPDATE students SET balance = balance + ? WHERE id = ?",
		amount.IntPart(), studentID,
	)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return booking.ErrStudentNotFound
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. The transaction is
// rolled back if fn returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(booking.Ledger) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ledger{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// CLASSES
// =============================================================================

const classColumns = `id, title, class_type, description, duration_minutes, starts_at,
	skill_level, max_students, current_students, price, instructor, location,
	active, notes, created_at, updated_at`

func (s *Store) GetClass(ctx context.Context, id booking.ClassID) (*booking.ClassSession, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+classColumns+" FROM classes WHERE id = ?", id)
	class, err := scanClass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrClassNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get class: %w", err)
	}
	return class, nil
}

func (s *Store) ListClasses(ctx context.Context, filter booking.ClassFilter) ([]booking.ClassSession, error) {
	var (
		where []string
		args  []any
	)
	if !filter.IncludeInactive {
		where = append(where, "active = 1")
	}
	if filter.Type != "" {
		where = append(where, "class_type = ?")
		args = append(args, filter.Type)
	}
	if filter.SkillLevel != "" {
		where = append(where, "skill_level = ?")
		args = append(args, filter.SkillLevel)
	}
	if filter.Day != nil {
		where = append(where, "starts_at >= ? AND starts_at < ?")
		args = append(args, formatTime(*filter.Day), formatTime(filter.Day.Add(24*time.Hour)))
	}
	if filter.AvailableAt != nil {
		where = append(where, "active = 1 AND starts_at >= ? AND current_students < max_students")
		args = append(args, formatTime(*filter.AvailableAt))
	}

	query := "SELECT " + classColumns + " FROM classes"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY starts_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	defer rows.Close()

	var classes []booking.ClassSession
	for rows.Next() {
		class, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan class: %w", err)
		}
		classes = append(classes, *class)
	}
	return classes, rows.Err()
}

func (s *Store) CreateClass(ctx context.Context, c booking.ClassSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classes (`+classColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Type, c.Description, c.DurationMinutes, formatTime(c.StartsAt),
		c.SkillLevel, c.MaxStudents, c.CurrentStudents, c.Price.IntPart(), c.Instructor, c.Location,
		c.Active, c.Notes, formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create class: %w", err)
	}
	return nil
}

// UpdateClass rewrites the editable fields. current_students is never
// written and max_students cannot drop below it.
func (s *Store) UpdateClass(ctx context.Context, c booking.ClassSession) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE classes
		SET title = ?, class_type = ?, description = ?, duration_minutes = ?, starts_at = ?,
		    skill_level = ?, max_students = ?, price = ?, instructor = ?, location = ?,
		    active = ?, notes = ?, updated_at = ?
		WHERE id = ? AND current_students <= ?`,
		c.Title, c.Type, c.Description, c.DurationMinutes, formatTime(c.StartsAt),
		c.SkillLevel, c.MaxStudents, c.Price.IntPart(), c.Instructor, c.Location,
		c.Active, c.Notes, formatTime(c.UpdatedAt),
		c.ID, c.MaxStudents,
	)
	if err != nil {
		return fmt.Errorf("failed to update class: %w", err)
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := s.GetClass(ctx, c.ID); err != nil {
		return err
	}
	return booking.ErrCapacityBelowEnrolled
}

func (s *Store) DeleteClass(ctx context.Context, id booking.ClassID) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM registrations WHERE class_id = ?", id,
		).Scan(&count); err != nil {
			return fmt.Errorf("failed to count registrations: %w", err)
		}
		if count > 0 {
			return booking.ErrClassHasRegistrations
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM classes WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete class: %w", err)
		}
		ok, err := affectedOne(res)
		if err != nil {
			return err
		}
		if !ok {
			return booking.ErrClassNotFound
		}
		return nil
	})
}

func scanClass(row scanner) (*booking.ClassSession, error) {
	var (
		c                              booking.ClassSession
		price                          int64
		startsAt, createdAt, updatedAt string
	)
	err := row.Scan(
		&c.ID, &c.Title, &c.Type, &c.Description, &c.DurationMinutes, &startsAt,
		&c.SkillLevel, &c.MaxStudents, &c.CurrentStudents, &price, &c.Instructor, &c.Location,
		&c.Active, &c.Notes, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Price = decimal.NewFromInt(price)
	c.StartsAt = parseTime(startsAt)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// =============================================================================
// STUDENTS
// =============================================================================

const studentColumns = `id, name, email, phone, password_hash, balance,
	swimming_type, skill_level, active, created_at`

func (s *Store) CreateStudent(ctx context.Context, st booking.Student) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Name, normalizeEmail(st.Email), st.Phone, st.PasswordHash, st.Balance.IntPart(),
		st.SwimmingType, st.SkillLevel, st.Active, formatTime(st.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "students.email") {
			return booking.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

func (s *Store) GetStudent(ctx context.Context, id booking.StudentID) (*booking.Student, error) {
	return s.getStudent(ctx, "id = ?", id)
}

func (s *Store) GetStudentByEmail(ctx context.Context, email string) (*booking.Student, error) {
	return s.getStudent(ctx, "email = ?", normalizeEmail(email))
}

func (s *Store) getStudent(ctx context.Context, cond string, arg any) (*booking.Student, error) {
	st, err := scanStudent(s.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE "+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return st, nil
}

// ListStudents returns every student account, newest first.
func (s *Store) ListStudents(ctx context.Context) ([]booking.Student, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+studentColumns+" FROM students ORDER BY created_at DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var out []booking.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func scanStudent(row scanner) (*booking.Student, error) {
	var (
		st        booking.Student
		balance   int64
		createdAt string
	)
	if err := row.Scan(
		&st.ID, &st.Name, &st.Email, &st.Phone, &st.PasswordHash, &balance,
		&st.SwimmingType, &st.SkillLevel, &st.Active, &createdAt,
	); err != nil {
		return nil, err
	}
	st.Balance = decimal.NewFromInt(balance)
	st.CreatedAt = parseTime(createdAt)
	return &st, nil
}

// =============================================================================
// REGISTRATIONS
// =============================================================================

const registrationColumns = `r.id, r.student_id, r.class_id, r.payment_amount, r.payment_status,
	r.payment_reference, r.status, r.notes, r.created_at, r.updated_at`

func (s *Store) FindRegistration(ctx context.Context, studentID booking.StudentID, classID booking.ClassID) (*booking.Registration, error) {
	return s.getRegistration(ctx, "r.student_id = ? AND r.class_id = ?", studentID, classID)
}

func (s *Store) GetRegistrationByReference(ctx context.Context, reference string) (*booking.Registration, error) {
	return s.getRegistration(ctx, "r.payment_reference = ?", reference)
}

func (s *Store) getRegistration(ctx context.Context, cond string, args ...any) (*booking.Registration, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+registrationColumns+" FROM registrations r WHERE "+cond, args...)
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

func (s *Store) ListRegistrationsByStudent(ctx context.Context, studentID booking.StudentID) ([]booking.RegistrationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+registrationColumns+`,
		       c.title, c.class_type, c.starts_at, c.instructor, c.location
		FROM registrations r
		JOIN classes c ON c.id = r.class_id
		WHERE r.student_id = ?
		ORDER BY r.created_at DESC, r.id DESC`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	var out []booking.RegistrationSummary
	for rows.Next() {
		var (
			sum       booking.RegistrationSummary
			amount    int64
			ref       sql.NullString
			createdAt string
			updatedAt string
			startsAt  string
		)
		r := &sum.Registration
		if err := rows.Scan(
			&r.ID, &r.StudentID, &r.ClassID, &amount, &r.PaymentStatus,
			&ref, &r.Status, &r.Notes, &createdAt, &updatedAt,
			&sum.ClassTitle, &sum.ClassType, &startsAt, &sum.ClassInstructor, &sum.ClassLocation,
		); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		r.PaymentAmount = decimal.NewFromInt(amount)
		r.PaymentReference = ref.String
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		sum.ClassStartsAt = parseTime(startsAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) ListPendingRegistrations(ctx context.Context, createdBefore time.Time) ([]booking.Registration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+registrationColumns+`
		FROM registrations r
		WHERE r.payment_status = 'pending'
		  AND r.payment_reference IS NOT NULL
		  AND r.created_at < ?
		ORDER BY r.created_at ASC`,
		formatTime(createdBefore),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending registrations: %w", err)
	}
	defer rows.Close()

	var out []booking.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		out = append(out, *reg)
	}
	return out, rows.Err()
}

func scanRegistration(row scanner) (*booking.Registration, error) {
	var (
		r                    booking.Registration
		amount               int64
		ref                  sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&r.ID, &r.StudentID, &r.ClassID, &amount, &r.PaymentStatus,
		&ref, &r.Status, &r.Notes, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	r.PaymentAmount = decimal.NewFromInt(amount)
	r.PaymentReference = ref.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// =============================================================================
// PAYMENT ATTEMPTS
// =============================================================================

func (s *Store) GetPaymentAttempt(ctx context.Context, reference string) (*booking.PaymentAttempt, error) {
	var (
		a           booking.PaymentAttempt
		amount      int64
		createdAt   string
		confirmedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, amount, reference, purpose, description, confirmed, created_at, confirmed_at
		FROM payment_attempts WHERE reference = ?`, reference,
	).Scan(&a.ID, &a.StudentID, &amount, &a.Reference, &a.Purpose, &a.Description,
		&a.Confirmed, &createdAt, &confirmedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment attempt: %w", err)
	}
	a.Amount = decimal.NewFromInt(amount)
	a.CreatedAt = parseTime(createdAt)
	if confirmedAt.Valid {
		t := parseTime(confirmedAt.String)
		a.ConfirmedAt = &t
	}
	return &a, nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

const productColumns = `id, name, price, category, description, image, in_stock,
	quantity, active, brand, size, color, created_at, updated_at`

func (s *Store) GetProduct(ctx context.Context, id booking.ProductID) (*booking.Product, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// ListProducts returns active products, optionally narrowed to a category.
func (s *Store) ListProducts(ctx context.Context, category booking.ProductCategory) ([]booking.Product, error) {
	query := "SELECT " + productColumns + " FROM products WHERE active = 1"
	var args []any
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []booking.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// SaveProduct inserts or replaces a product.
func (s *Store) SaveProduct(ctx context.Context, p booking.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			category = excluded.category,
			description = excluded.description,
			image = excluded.image,
			in_stock = excluded.in_stock,
			quantity = excluded.quantity,
			active = excluded.active,
			brand = excluded.brand,
			size = excluded.size,
			color = excluded.color,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Price.IntPart(), p.Category, p.Description, p.Image, p.InStock,
		p.Quantity, p.Active, p.Brand, p.Size, p.Color, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id booking.ProductID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return booking.ErrProductNotFound
	}
	return nil
}

func scanProduct(row scanner) (*booking.Product, error) {
	var (
		p                    booking.Product
		price                int64
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&p.ID, &p.Name, &price, &p.Category, &p.Description, &p.Image, &p.InStock,
		&p.Quantity, &p.Active, &p.Brand, &p.Size, &p.Color, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	p.Price = decimal.NewFromInt(price)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		tables := []string{"payment_attempts", "registrations", "products", "classes", "students"}
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Helper functions

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// isUniqueViolation reports whether err is a UNIQUE failure whose message
// names the given table.column.
func isUniqueViolation(err error, column string) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	if sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique &&
		sqliteErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return false
	}
	return strings.Contains(sqliteErr.Error(), column)
}
