// Package external gives read-only access to the legacy master data
// database (companies, customers, contacts, staff, estimates, orders).
// Table and column names come from a configurable mapping; every query
// selects physical columns under their logical names so rows scan straight
// into the model structs.  The package never issues DML.
package external

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/iliyamo/trip-report-tracker/internal/config"
	"github.com/iliyamo/trip-report-tracker/internal/model"
)

var (
	// ErrNotFound is a lookup miss.
	ErrNotFound = errors.New("external record not found")
	// ErrUnavailable means the legacy database could not be reached.
	ErrUnavailable = errors.New("external database unavailable")
)

const (
	customerSearchLimit = 200
	staffSearchLimit    = 50
	activeFlag          = "0"
)

// Gateway runs mapped, read-only queries against the legacy database.
type Gateway struct {
	db             *sqlx.DB
	mapping        config.Mapping
	timeout        time.Duration
	excludeDeleted bool
}

// Open creates the connection pool.  No connection is made until the first
// query, so an unreachable legacy server only affects master data routes.
func Open(cfg config.ExternalConfig) (*Gateway, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: EXTERNAL_DB_DSN is not set", ErrUnavailable)
	}
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return New(db, cfg), nil
}

// New wraps an existing handle.
func New(db *sqlx.DB, cfg config.ExternalConfig) *Gateway {
	m := cfg.Mapping
	if m == nil {
		m = config.DefaultMapping()
	}
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{db: db, mapping: m, timeout: timeout, excludeDeleted: cfg.ExcludeDeleted}
}

// Ping checks connectivity within the command timeout.
func (g *Gateway) Ping(ctx context.Context) error {
	if g == nil || g.db == nil {
		return ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return classify(g.db.PingContext(ctx))
}

// Close releases the pool.
func (g *Gateway) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}

// cond is one "logical = ?" predicate.
type cond struct {
	col string
	val any
}

// query describes one mapped SELECT.  When term is set, at least one of
// the match columns must contain it, compared case-sensitively.
type query struct {
	entity  string
	where   []cond
	match   []string
	term    string
	orderBy []string
	limit   int
}

func (q query) args() []any {
	args := make([]any, 0, len(q.where)+len(q.match))
	for _, w := range q.where {
		args = append(args, w.val)
	}
	if q.term != "" {
		pattern := "%" + likeEscaper.Replace(q.term) + "%"
		for range q.match {
			args = append(args, pattern)
		}
	}
	return args
}

// likeEscaper escapes LIKE wildcards with '!', which neither dialect
// treats specially inside string literals.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_", "[", "![")

func (g *Gateway) build(q query, dest any) string {
	tm := g.mapping.Table(q.entity)
	cols := logicalColumns(dest)
	sel := make([]string, len(cols))
	for i, c := range cols {
		sel[i] = tm.Column(c) + " AS " + c
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(sel, ", "))
	b.WriteString(" FROM ")
	b.WriteString(tm.Table)

	var preds []string
	for _, w := range q.where {
		preds = append(preds, tm.Column(w.col)+" = ?")
	}
	if q.term != "" && len(q.match) > 0 {
		likes := make([]string, len(q.match))
		for i, m := range q.match {
			likes[i] = g.caseSensitive(tm.Column(m)) + " LIKE ? ESCAPE '!'"
		}
		preds = append(preds, "("+strings.Join(likes, " OR ")+")")
	}
	if g.excludeDeleted {
		preds = append(preds, tm.Column("delete_flg")+" = '"+activeFlag+"'")
	}
	if len(preds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(preds, " AND "))
	}
	if len(q.orderBy) > 0 {
		order := make([]string, len(q.orderBy))
		for i, o := range q.orderBy {
			order[i] = tm.Column(o)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(order, ", "))
		if q.limit > 0 {
			b.WriteString(g.limitClause(q.limit))
		}
	}
	return g.db.Rebind(b.String())
}

func (g *Gateway) isSQLServer() bool {
	switch g.db.DriverName() {
	case "sqlserver", "mssql":
		return true
	}
	return false
}

// caseSensitive forces a case-sensitive comparison on col regardless of
// the column's default collation.
func (g *Gateway) caseSensitive(col string) string {
	if g.isSQLServer() {
		return col + " COLLATE Latin1_General_CS_AS"
	}
	return col + " COLLATE utf8mb4_bin"
}

// limitClause caps an ordered query.  SQL Server needs ORDER BY before
// OFFSET/FETCH, which build guarantees.
func (g *Gateway) limitClause(n int) string {
	if g.isSQLServer() {
		return fmt.Sprintf(" OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", n)
	}
	return fmt.Sprintf(" LIMIT %d", n)
}

// selectAll runs q and scans into dest, a pointer to a slice of structs.
// The row cap is also enforced while scanning, so a mapping that points
// at a view without ORDER BY support still stops early.
func (g *Gateway) selectAll(ctx context.Context, q query, dest any) error {
	if g == nil || g.db == nil {
		return ErrUnavailable
	}
	slice := reflect.ValueOf(dest).Elem()
	elemType := slice.Type().Elem()
	stmt := g.build(q, reflect.New(elemType).Interface())

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	rows, err := g.db.QueryxContext(ctx, stmt, q.args()...)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		if q.limit > 0 && slice.Len() >= q.limit {
			break
		}
		item := reflect.New(elemType)
		if err := rows.StructScan(item.Interface()); err != nil {
			return classify(err)
		}
		slice.Set(reflect.Append(slice, item.Elem()))
	}
	return classify(rows.Err())
}

// selectOne runs q and scans the first row into dest.
func (g *Gateway) selectOne(ctx context.Context, q query, dest any) error {
	if g == nil || g.db == nil {
		return ErrUnavailable
	}
	stmt := g.build(q, dest)
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	rows, err := g.db.QueryxContext(ctx, stmt, q.args()...)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return classify(err)
		}
		return ErrNotFound
	}
	return classify(rows.StructScan(dest))
}

// logicalColumns lists the db tags of the struct dest points to.
func logicalColumns(dest any) []string {
	t := reflect.TypeOf(dest)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	cols := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("db"); tag != "" && tag != "-" {
			cols = append(cols, tag)
		}
	}
	return cols
}

// classify maps driver errors onto ErrNotFound and ErrUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) && msErr.Number == 18456 { // login failed
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// Companies returns every company ordered by code.
func (g *Gateway) Companies(ctx context.Context) ([]model.Company, error) {
	out := []model.Company{}
	err := g.selectAll(ctx, query{entity: config.EntityCompany, orderBy: []string{"company_cd"}}, &out)
	return out, err
}

// Company looks up a company by code.
func (g *Gateway) Company(ctx context.Context, companyCd string) (model.Company, error) {
	var c model.Company
	err := g.selectOne(ctx, query{entity: config.EntityCompany, where: []cond{{"company_cd", companyCd}}}, &c)
	return c, err
}

// Customers returns every customer ordered by name.
func (g *Gateway) Customers(ctx context.Context) ([]model.Customer, error) {
	out := []model.Customer{}
	err := g.selectAll(ctx, query{entity: config.EntityCustomer, orderBy: []string{"company_nm", "customer_cd"}}, &out)
	return out, err
}

// Customer looks up a customer by code.
func (g *Gateway) Customer(ctx context.Context, customerCd string) (model.Customer, error) {
	var c model.Customer
	err := g.selectOne(ctx, query{entity: config.EntityCustomer, where: []cond{{"customer_cd", customerCd}}}, &c)
	return c, err
}

// SearchCustomers matches term as a case-sensitive substring of the name,
// abbreviation, phonetic name, address or phone number.  At most 200 rows
// are returned, ordered by name.
func (g *Gateway) SearchCustomers(ctx context.Context, term string) ([]model.Customer, error) {
	out := []model.Customer{}
	err := g.selectAll(ctx, query{
		entity:  config.EntityCustomer,
		match:   []string{"company_nm", "company_ab", "company_kn", "address1", "address2", "tel_no"},
		term:    strings.TrimSpace(term),
		orderBy: []string{"company_nm", "customer_cd"},
		limit:   customerSearchLimit,
	}, &out)
	return out, err
}

// CustomerContacts returns every contact.
func (g *Gateway) CustomerContacts(ctx context.Context) ([]model.CustomerContact, error) {
	out := []model.CustomerContact{}
	err := g.selectAll(ctx, query{entity: config.EntityCustomerContact, orderBy: []string{"customer_cd", "staff_cd"}}, &out)
	return out, err
}

// CustomerContactsByCustomer returns the contacts of one customer.
func (g *Gateway) CustomerContactsByCustomer(ctx context.Context, customerCd string) ([]model.CustomerContact, error) {
	out := []model.CustomerContact{}
	err := g.selectAll(ctx, query{
		entity:  config.EntityCustomerContact,
		where:   []cond{{"customer_cd", customerCd}},
		orderBy: []string{"staff_cd"},
	}, &out)
	return out, err
}

// CustomerContact looks up a contact by customer and staff code.
func (g *Gateway) CustomerContact(ctx context.Context, customerCd, staffCd string) (model.CustomerContact, error) {
	var c model.CustomerContact
	err := g.selectOne(ctx, query{
		entity: config.EntityCustomerContact,
		where:  []cond{{"customer_cd", customerCd}, {"staff_cd", staffCd}},
	}, &c)
	return c, err
}

// Estimates returns every estimate.
func (g *Gateway) Estimates(ctx context.Context) ([]model.Estimate, error) {
	out := []model.Estimate{}
	err := g.selectAll(ctx, query{entity: config.EntityEstimate, orderBy: []string{"estimate_id"}}, &out)
	return out, err
}

// Estimate looks up an estimate by id.
func (g *Gateway) Estimate(ctx context.Context, id string) (model.Estimate, error) {
	var e model.Estimate
	err := g.selectOne(ctx, query{entity: config.EntityEstimate, where: []cond{{"estimate_id", id}}}, &e)
	return e, err
}

// Orders returns every order.
func (g *Gateway) Orders(ctx context.Context) ([]model.Order, error) {
	out := []model.Order{}
	err := g.selectAll(ctx, query{entity: config.EntityOrder, orderBy: []string{"order_id"}}, &out)
	return out, err
}

// Order looks up an order by id.
func (g *Gateway) Order(ctx context.Context, id string) (model.Order, error) {
	var o model.Order
	err := g.selectOne(ctx, query{entity: config.EntityOrder, where: []cond{{"order_id", id}}}, &o)
	return o, err
}

// OrderDetails returns every order detail line.
func (g *Gateway) OrderDetails(ctx context.Context) ([]model.OrderDetail, error) {
	out := []model.OrderDetail{}
	err := g.selectAll(ctx, query{entity: config.EntityOrderDetail, orderBy: []string{"order_id", "order_no", "detail_no"}}, &out)
	return out, err
}

// OrderDetailsByOrder returns the lines of one order.
func (g *Gateway) OrderDetailsByOrder(ctx context.Context, orderID string) ([]model.OrderDetail, error) {
	out := []model.OrderDetail{}
	err := g.selectAll(ctx, query{
		entity:  config.EntityOrderDetail,
		where:   []cond{{"order_id", orderID}},
		orderBy: []string{"order_no", "detail_no"},
	}, &out)
	return out, err
}

// OrderDetail looks up a single line by its composite key.
func (g *Gateway) OrderDetail(ctx context.Context, orderID, orderNo string, detailNo int) (model.OrderDetail, error) {
	var d model.OrderDetail
	err := g.selectOne(ctx, query{
		entity: config.EntityOrderDetail,
		where:  []cond{{"order_id", orderID}, {"order_no", orderNo}, {"detail_no", detailNo}},
	}, &d)
	return d, err
}

// Staffs returns every staff member ordered by code.
func (g *Gateway) Staffs(ctx context.Context) ([]model.Staff, error) {
	out := []model.Staff{}
	err := g.selectAll(ctx, query{entity: config.EntityStaff, orderBy: []string{"staff_cd"}}, &out)
	return out, err
}

// StaffBySerial looks up a staff member by internal serial number.
func (g *Gateway) StaffBySerial(ctx context.Context, serialNo string) (model.Staff, error) {
	var s model.Staff
	err := g.selectOne(ctx, query{entity: config.EntityStaff, where: []cond{{"serial_no", serialNo}}}, &s)
	return s, err
}

// StaffByCode looks up a staff member by staff code.
func (g *Gateway) StaffByCode(ctx context.Context, staffCd string) (model.Staff, error) {
	var s model.Staff
	err := g.selectOne(ctx, query{entity: config.EntityStaff, where: []cond{{"staff_cd", staffCd}}}, &s)
	return s, err
}

// SearchStaff matches a name substring; at most 50 rows ordered by name.
func (g *Gateway) SearchStaff(ctx context.Context, name string) ([]model.Staff, error) {
	out := []model.Staff{}
	err := g.selectAll(ctx, query{
		entity:  config.EntityStaff,
		match:   []string{"staff_nm", "staff_kn"},
		term:    strings.TrimSpace(name),
		orderBy: []string{"staff_nm", "staff_cd"},
		limit:   staffSearchLimit,
	}, &out)
	return out, err
}
