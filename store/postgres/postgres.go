/*
Package postgres provides a PostgreSQL implementation of booking.Store
using pgx directly (no ORM).

PURPOSE:
  The multi-instance deployment target. Contract and invariants are the same
  as store/sqlite; only dialect differs.

CONCURRENCY:
  READ COMMITTED is enough. Each guarded write is a single UPDATE whose WHERE
  clause is re-evaluated against the latest row version after any row lock
  wait, so two transactions racing for the last seat cannot both match.
  Concurrent inserts of the same (student_id, class_id) block on the unique
  index and the loser gets 23505.

SEE ALSO:
  - booking/store.go: Interface definitions
  - store/sqlite: Development and test store
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/swim-engine/booking"
)

const uniqueViolation = "23505"

// Store implements booking.Store on a pgx connection pool.
type Store struct {
	ledger
	pool *pgxpool.Pool
}

var _ booking.Store = (*Store)(nil)

// New connects, verifies the connection and migrates the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{ledger: ledger{q: pool}, pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS classes (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		class_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
		starts_at TIMESTAMPTZ NOT NULL,
		skill_level TEXT NOT NULL DEFAULT 'all',
		max_students INTEGER NOT NULL CHECK (max_students > 0),
		current_students INTEGER NOT NULL DEFAULT 0,
		price BIGINT NOT NULL DEFAULT 0 CHECK (price >= 0),
		instructor TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT classes_capacity_check CHECK (current_students >= 0 AND current_students <= max_students)
	);
	CREATE INDEX IF NOT EXISTS idx_classes_starts_at ON classes(starts_at);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		balance BIGINT NOT NULL DEFAULT 0,
		swimming_type TEXT NOT NULL DEFAULT 'normal',
		skill_level TEXT NOT NULL DEFAULT 'beginner',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT students_email_key UNIQUE (email)
	);

	CREATE TABLE IF NOT EXISTS registrations (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		class_id TEXT NOT NULL REFERENCES classes(id),
		payment_amount BIGINT NOT NULL DEFAULT 0,
		payment_status TEXT NOT NULL,
		payment_reference TEXT,
		status TEXT NOT NULL DEFAULT 'registered',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT registrations_student_class_key UNIQUE (student_id, class_id)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS registrations_reference_key
		ON registrations(payment_reference) WHERE payment_reference IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_registrations_pending
		ON registrations(payment_status, created_at);

	CREATE TABLE IF NOT EXISTS payment_attempts (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		amount BIGINT NOT NULL,
		reference TEXT NOT NULL,
		purpose TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		confirmed_at TIMESTAMPTZ,
		CONSTRAINT payment_attempts_reference_key UNIQUE (reference)
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price BIGINT NOT NULL CHECK (price >= 0),
		category TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		in_stock BOOLEAN NOT NULL DEFAULT TRUE,
		quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		brand TEXT NOT NULL DEFAULT '',
		size TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
	`)
	return err
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// =============================================================================
// LEDGER
// =============================================================================

type ledger struct {
	q querier
}

func (l ledger) InsertRegistration(ctx context.Context, reg booking.Registration) error {
	_, err := l.q.Exec(ctx, `
		INSERT INTO registrations
		(id, student_id, class_id, payment_amount, payment_status, payment_reference,
		 status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		reg.ID, reg.StudentID, reg.ClassID, reg.PaymentAmount.IntPart(), reg.PaymentStatus,
		nullable(reg.PaymentReference), reg.Status, reg.Notes, reg.CreatedAt, reg.UpdatedAt,
	)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, "registrations_student_class_key"):
		return booking.ErrDuplicateRegistration
	case isUniqueViolation(err, "registrations_reference_key"):
		return booking.ErrDuplicateReference
	default:
		return fmt.Errorf("insert registration: %w", err)
	}
}

func (l ledger) InsertPaymentAttempt(ctx context.Context, a booking.PaymentAttempt) error {
	_, err := l.q.Exec(ctx, `
		INSERT INTO payment_attempts
		(id, student_id, amount, reference, purpose, description, confirmed, created_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.StudentID, a.Amount.IntPart(), a.Reference, a.Purpose, a.Description,
		a.Confirmed, a.CreatedAt, a.ConfirmedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "payment_attempts_reference_key") {
			return booking.ErrDuplicateReference
		}
		return fmt.Errorf("insert payment attempt: %w", err)
	}
	return nil
}

func (l ledger) ReserveSeat(ctx context.Context, classID booking.ClassID) (bool, error) {
	tag, err := l.q.Exec(ctx, `
		UPDATE classes
		SET current_students = current_students + 1, updated_at = now()
		WHERE id = $1 AND active AND current_students < max_students`,
		classID,
	)
	if err != nil {
		return false, fmt.Errorf("reserve seat: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (l ledger) TransitionPaymentStatus(ctx context.Context, id booking.RegistrationID, from, to booking.PaymentStatus, notes string) (bool, error) {
	tag, err := l.q.Exec(ctx, `
		UPDATE registrations
		SET payment_status = $1,
		    notes = CASE WHEN $2 = '' THEN notes ELSE $2 END,
		    updated_at = now()
		WHERE id = $3 AND payment_status = $4`,
		to, notes, id, from,
	)
	if err != nil {
		return false, fmt.Errorf("transition payment status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (l ledger) ConfirmPaymentAttempt(ctx context.Context, reference string, at time.Time) (bool, error) {
	tag, err := l.q.Exec(ctx, `
		UPDATE payment_attempts
		SET confirmed = TRUE, confirmed_at = $1
		WHERE reference = $2 AND NOT confirmed`,
		at, reference,
	)
	if err != nil {
		return false, fmt.Errorf("confirm payment attempt: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (l ledger) CreditBalance(ctx context.Context, studentID booking.StudentID, amount decimal.Decimal) error {
	if err := booking.ValidateAmount(amount); err != nil {
		return err
	}
	tag, err := l.q.Exec(ctx,
		`UPDATE students SET balance = balance + $1 WHERE id = $2`,
		amount.IntPart(), studentID,
	)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrStudentNotFound
	}
	return nil
}

// WithTx executes fn within a transaction, rolling back if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(booking.Ledger) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ledger{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
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
	c, err := scanClass(s.pool.QueryRow(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrClassNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get class: %w", err)
	}
	return c, nil
}

func (s *Store) ListClasses(ctx context.Context, filter booking.ClassFilter) ([]booking.ClassSession, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if !filter.IncludeInactive {
		where = append(where, "active")
	}
	if filter.Type != "" {
		where = append(where, "class_type = "+arg(filter.Type))
	}
	if filter.SkillLevel != "" {
		where = append(where, "skill_level = "+arg(filter.SkillLevel))
	}
	if filter.Day != nil {
		where = append(where, "starts_at >= "+arg(*filter.Day)+" AND starts_at < "+arg(filter.Day.Add(24*time.Hour)))
	}
	if filter.AvailableAt != nil {
		where = append(where, "active AND current_students < max_students AND starts_at >= "+arg(*filter.AvailableAt))
	}

	query := `SELECT ` + classColumns + ` FROM classes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY starts_at, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var out []booking.ClassSession
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) CreateClass(ctx context.Context, c booking.ClassSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO classes (`+classColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.Title, c.Type, c.Description, c.DurationMinutes, c.StartsAt,
		c.SkillLevel, c.MaxStudents, c.CurrentStudents, c.Price.IntPart(), c.Instructor, c.Location,
		c.Active, c.Notes, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

func (s *Store) UpdateClass(ctx context.Context, c booking.ClassSession) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE classes
		SET title = $1, class_type = $2, description = $3, duration_minutes = $4, starts_at = $5,
		    skill_level = $6, max_students = $7, price = $8, instructor = $9, location = $10,
		    active = $11, notes = $12, updated_at = $13
		WHERE id = $14 AND current_students <= $7`,
		c.Title, c.Type, c.Description, c.DurationMinutes, c.StartsAt,
		c.SkillLevel, c.MaxStudents, c.Price.IntPart(), c.Instructor, c.Location,
		c.Active, c.Notes, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetClass(ctx, c.ID); err != nil {
		return err
	}
	return booking.ErrCapacityBelowEnrolled
}

// DeleteClass removes a class with no registrations. The NOT EXISTS guard
// and the delete are one statement.
func (s *Store) DeleteClass(ctx context.Context, id booking.ClassID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM classes c
		WHERE c.id = $1
		  AND NOT EXISTS (SELECT 1 FROM registrations r WHERE r.class_id = c.id)`,
		id,
	)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetClass(ctx, id); err != nil {
		return err
	}
	return booking.ErrClassHasRegistrations
}

func scanClass(row pgx.Row) (*booking.ClassSession, error) {
	var (
		c     booking.ClassSession
		price int64
	)
	if err := row.Scan(
		&c.ID, &c.Title, &c.Type, &c.Description, &c.DurationMinutes, &c.StartsAt,
		&c.SkillLevel, &c.MaxStudents, &c.CurrentStudents, &price, &c.Instructor, &c.Location,
		&c.Active, &c.Notes, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Price = decimal.NewFromInt(price)
	c.StartsAt = c.StartsAt.UTC()
	return &c, nil
}

// =============================================================================
// STUDENTS
// =============================================================================

const studentColumns = `id, name, email, phone, password_hash, balance,
	swimming_type, skill_level, active, created_at`

func (s *Store) CreateStudent(ctx context.Context, st booking.Student) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		st.ID, st.Name, normalizeEmail(st.Email), st.Phone, st.PasswordHash, st.Balance.IntPart(),
		st.SwimmingType, st.SkillLevel, st.Active, st.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "students_email_key") {
			return booking.ErrDuplicateEmail
		}
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

func (s *Store) GetStudent(ctx context.Context, id booking.StudentID) (*booking.Student, error) {
	return s.getStudent(ctx, "id = $1", id)
}

func (s *Store) GetStudentByEmail(ctx context.Context, email string) (*booking.Student, error) {
	return s.getStudent(ctx, "email = $1", normalizeEmail(email))
}

func (s *Store) getStudent(ctx context.Context, cond string, arg any) (*booking.Student, error) {
	st, err := scanStudent(s.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE `+cond, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return st, nil
}

func (s *Store) ListStudents(ctx context.Context) ([]booking.Student, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+studentColumns+` FROM students ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var out []booking.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func scanStudent(row pgx.Row) (*booking.Student, error) {
	var (
		st      booking.Student
		balance int64
	)
	if err := row.Scan(
		&st.ID, &st.Name, &st.Email, &st.Phone, &st.PasswordHash, &balance,
		&st.SwimmingType, &st.SkillLevel, &st.Active, &st.CreatedAt,
	); err != nil {
		return nil, err
	}
	st.Balance = decimal.NewFromInt(balance)
	return &st, nil
}

// =============================================================================
// REGISTRATIONS
// =============================================================================

const registrationColumns = `r.id, r.student_id, r.class_id, r.payment_amount, r.payment_status,
	COALESCE(r.payment_reference, ''), r.status, r.notes, r.created_at, r.updated_at`

func (s *Store) FindRegistration(ctx context.Context, studentID booking.StudentID, classID booking.ClassID) (*booking.Registration, error) {
	return s.getRegistration(ctx, "r.student_id = $1 AND r.class_id = $2", studentID, classID)
}

func (s *Store) GetRegistrationByReference(ctx context.Context, reference string) (*booking.Registration, error) {
	return s.getRegistration(ctx, "r.payment_reference = $1", reference)
}

func (s *Store) getRegistration(ctx context.Context, cond string, args ...any) (*booking.Registration, error) {
	reg, err := scanRegistration(s.pool.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations r WHERE `+cond, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

func (s *Store) ListRegistrationsByStudent(ctx context.Context, studentID booking.StudentID) ([]booking.RegistrationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+registrationColumns+`,
		       c.title, c.class_type, c.starts_at, c.instructor, c.location
		FROM registrations r
		JOIN classes c ON c.id = r.class_id
		WHERE r.student_id = $1
		ORDER BY r.created_at DESC, r.id DESC`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var out []booking.RegistrationSummary
	for rows.Next() {
		var (
			sum    booking.RegistrationSummary
			amount int64
		)
		r := &sum.Registration
		if err := rows.Scan(
			&r.ID, &r.StudentID, &r.ClassID, &amount, &r.PaymentStatus,
			&r.PaymentReference, &r.Status, &r.Notes, &r.CreatedAt, &r.UpdatedAt,
			&sum.ClassTitle, &sum.ClassType, &sum.ClassStartsAt, &sum.ClassInstructor, &sum.ClassLocation,
		); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		r.PaymentAmount = decimal.NewFromInt(amount)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) ListPendingRegistrations(ctx context.Context, createdBefore time.Time) ([]booking.Registration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+registrationColumns+`
		FROM registrations r
		WHERE r.payment_status = 'pending'
		  AND r.payment_reference IS NOT NULL
		  AND r.created_at < $1
		ORDER BY r.created_at`,
		createdBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending registrations: %w", err)
	}
	defer rows.Close()

	var out []booking.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, *reg)
	}
	return out, rows.Err()
}

func scanRegistration(row pgx.Row) (*booking.Registration, error) {
	var (
		r      booking.Registration
		amount int64
	)
	if err := row.Scan(
		&r.ID, &r.StudentID, &r.ClassID, &amount, &r.PaymentStatus,
		&r.PaymentReference, &r.Status, &r.Notes, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.PaymentAmount = decimal.NewFromInt(amount)
	return &r, nil
}

// =============================================================================
// PAYMENT ATTEMPTS
// =============================================================================

func (s *Store) GetPaymentAttempt(ctx context.Context, reference string) (*booking.PaymentAttempt, error) {
	var (
		a      booking.PaymentAttempt
		amount int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, student_id, amount, reference, purpose, description, confirmed, created_at, confirmed_at
		FROM payment_attempts WHERE reference = $1`, reference,
	).Scan(&a.ID, &a.StudentID, &amount, &a.Reference, &a.Purpose, &a.Description,
		&a.Confirmed, &a.CreatedAt, &a.ConfirmedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment attempt: %w", err)
	}
	a.Amount = decimal.NewFromInt(amount)
	return &a, nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

const productColumns = `id, name, price, category, description, image, in_stock,
	quantity, active, brand, size, color, created_at, updated_at`

func (s *Store) GetProduct(ctx context.Context, id booking.ProductID) (*booking.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, category booking.ProductCategory) ([]booking.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE active`
	var args []any
	if category != "" {
		query += " AND category = $1"
		args = append(args, category)
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []booking.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) SaveProduct(ctx context.Context, p booking.Product) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			description = EXCLUDED.description,
			image = EXCLUDED.image,
			in_stock = EXCLUDED.in_stock,
			quantity = EXCLUDED.quantity,
			active = EXCLUDED.active,
			brand = EXCLUDED.brand,
			size = EXCLUDED.size,
			color = EXCLUDED.color,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.Price.IntPart(), p.Category, p.Description, p.Image, p.InStock,
		p.Quantity, p.Active, p.Brand, p.Size, p.Color, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id booking.ProductID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrProductNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (*booking.Product, error) {
	var (
		p     booking.Product
		price int64
	)
	if err := row.Scan(
		&p.ID, &p.Name, &price, &p.Category, &p.Description, &p.Image, &p.InStock,
		&p.Quantity, &p.Active, &p.Brand, &p.Size, &p.Color, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Price = decimal.NewFromInt(price)
	return &p, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`TRUNCATE payment_attempts, registrations, products, classes, students`)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}
