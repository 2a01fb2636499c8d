package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/efreitasn/simmarket/internal/domain"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name       string
	schema     []string
	positional bool   // $1, $2 ... instead of ?
	forUpdate  string // row lock suffix for reads that precede writes
}

// rebind rewrites ? placeholders for dialects with positional parameters.
func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore is a Store backed by database/sql.
type SQLStore struct {
	db      *sql.DB
	d       dialect
	now     func() time.Time
	onClose func()
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create %s schema: %w", d.name, err)
		}
	}
	return &SQLStore{db: db, d: d, now: time.Now}, nil
}

// WithTx runs fn inside a database transaction. A panic in fn rolls the
// transaction back before propagating, so the connection is released.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(&sqlTx{tx: tx, d: s.d, now: s.now}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	err := s.db.Close()
	if s.onClose != nil {
		s.onClose()
	}
	return err
}

type sqlTx struct {
	tx  *sql.Tx
	d   dialect
	now func() time.Time
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.d.rebind(query), args...)
}

func (t *sqlTx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.d.rebind(query), args...)
}

func (t *sqlTx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.d.rebind(query), args...)
}

func micros(ts time.Time) int64 { return ts.UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

func (t *sqlTx) GetOrCreateUser(ctx context.Context, userID string, initialBalance float64) (domain.User, error) {
	_, err := t.exec(ctx,
		"INSERT INTO users (user_id, balance, created_at) VALUES (?, ?, ?) ON CONFLICT (user_id) DO NOTHING",
		userID, initialBalance, micros(t.now()),
	)
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return t.GetUser(ctx, userID)
}

func (t *sqlTx) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var u domain.User
	var created int64
	err := t.queryRow(ctx,
		"SELECT user_id, balance, created_at FROM users WHERE user_id = ?"+t.d.forUpdate,
		userID,
	).Scan(&u.UserID, &u.Balance, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = fromMicros(created)
	return u, nil
}

func (t *sqlTx) UpdateBalance(ctx context.Context, userID string, balance float64) error {
	res, err := t.exec(ctx, "UPDATE users SET balance = ? WHERE user_id = ?", balance, userID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (t *sqlTx) ResetUser(ctx context.Context, userID string, balance float64) error {
	_, err := t.exec(ctx,
		"INSERT INTO users (user_id, balance, created_at) VALUES (?, ?, ?) ON CONFLICT (user_id) DO UPDATE SET balance = excluded.balance",
		userID, balance, micros(t.now()),
	)
	if err != nil {
		return fmt.Errorf("reset balance: %w", err)
	}
	if _, err := t.exec(ctx, "DELETE FROM holdings WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete holdings: %w", err)
	}
	if _, err := t.exec(ctx, "DELETE FROM orders WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete orders: %w", err)
	}
	return nil
}

func (t *sqlTx) GetHolding(ctx context.Context, userID, symbol string) (domain.Holding, bool, error) {
	h := domain.Holding{UserID: userID, Symbol: symbol}
	err := t.queryRow(ctx,
		"SELECT amount FROM holdings WHERE user_id = ? AND symbol = ?"+t.d.forUpdate,
		userID, symbol,
	).Scan(&h.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Holding{}, false, nil
	}
	if err != nil {
		return domain.Holding{}, false, fmt.Errorf("get holding: %w", err)
	}
	return h, true, nil
}

func (t *sqlTx) UpsertHolding(ctx context.Context, h domain.Holding) error {
	_, err := t.exec(ctx,
		"INSERT INTO holdings (user_id, symbol, amount) VALUES (?, ?, ?) ON CONFLICT (user_id, symbol) DO UPDATE SET amount = excluded.amount",
		h.UserID, h.Symbol, h.Amount,
	)
	if err != nil {
		return fmt.Errorf("upsert holding: %w", err)
	}
	return nil
}

func (t *sqlTx) ListHoldings(ctx context.Context, userID string) ([]domain.Holding, error) {
	rows, err := t.query(ctx,
		"SELECT user_id, symbol, amount FROM holdings WHERE user_id = ? ORDER BY symbol",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()

	holdings := make([]domain.Holding, 0)
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.UserID, &h.Symbol, &h.Amount); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holdings: %w", err)
	}
	return holdings, nil
}

const orderColumns = "id, user_id, symbol, side, price, amount, status, created_at, exec_price, filled_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (domain.Order, error) {
	var (
		o         domain.Order
		side      string
		status    string
		price     sql.NullFloat64
		execPrice sql.NullFloat64
		created   int64
		filled    sql.NullInt64
	)
	if err := r.Scan(&o.ID, &o.UserID, &o.Symbol, &side, &price, &o.Amount, &status, &created, &execPrice, &filled); err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = fromMicros(created)
	if price.Valid {
		o.Price = &price.Float64
	}
	if execPrice.Valid {
		o.ExecPrice = &execPrice.Float64
	}
	if filled.Valid {
		ts := fromMicros(filled.Int64)
		o.FilledAt = &ts
	}
	return o, nil
}

func (t *sqlTx) listOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func (t *sqlTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = t.now()
	}
	var price sql.NullFloat64
	if o.Price != nil {
		price = sql.NullFloat64{Float64: *o.Price, Valid: true}
	}
	err := t.queryRow(ctx,
		"INSERT INTO orders (user_id, symbol, side, price, amount, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id",
		o.UserID, o.Symbol, string(o.Side), price, o.Amount, string(o.Status), micros(o.CreatedAt),
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *sqlTx) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	o, err := scanOrder(t.queryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = ?"+t.d.forUpdate,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (t *sqlTx) ListPendingOrders(ctx context.Context) ([]domain.Order, error) {
	return t.listOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE status = ? ORDER BY id"+t.d.forUpdate,
		string(domain.OrderStatusPending),
	)
}

func (t *sqlTx) ListOrdersByUser(ctx context.Context, userID string, status *domain.OrderStatus, since time.Time) ([]domain.Order, error) {
	if status == nil {
		return t.listOrders(ctx,
			"SELECT "+orderColumns+" FROM orders WHERE user_id = ? AND created_at >= ? ORDER BY id",
			userID, micros(since),
		)
	}
	return t.listOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = ? AND created_at >= ? AND status = ? ORDER BY id",
		userID, micros(since), string(*status),
	)
}

func (t *sqlTx) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	res, err := t.exec(ctx, "UPDATE orders SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (t *sqlTx) FillOrder(ctx context.Context, id int64, execPrice float64, filledAt time.Time) error {
	res, err := t.exec(ctx,
		"UPDATE orders SET status = ?, exec_price = ?, filled_at = ? WHERE id = ?",
		string(domain.OrderStatusFilled), execPrice, micros(filledAt), id,
	)
	if err != nil {
		return fmt.Errorf("fill order: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (t *sqlTx) InsertMarketHistory(ctx context.Context, c domain.Candle) error {
	_, err := t.exec(ctx,
		"INSERT INTO market_history (symbol, period_start, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.Symbol, micros(c.PeriodStart), c.Open, c.High, c.Low, c.Close, c.Volume,
	)
	if err != nil {
		return fmt.Errorf("insert market history: %w", err)
	}
	return nil
}

const historyColumns = "symbol, period_start, open, high, low, close, volume"

func scanCandle(r rowScanner) (domain.Candle, error) {
	var c domain.Candle
	var start int64
	if err := r.Scan(&c.Symbol, &start, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
		return domain.Candle{}, err
	}
	c.PeriodStart = fromMicros(start)
	return c, nil
}

func (t *sqlTx) LatestHistory(ctx context.Context, symbol string) (domain.Candle, bool, error) {
	c, err := scanCandle(t.queryRow(ctx,
		"SELECT "+historyColumns+" FROM market_history WHERE symbol = ? ORDER BY period_start DESC, id DESC LIMIT 1",
		symbol,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Candle{}, false, nil
	}
	if err != nil {
		return domain.Candle{}, false, fmt.Errorf("latest history: %w", err)
	}
	return c, true, nil
}

func (t *sqlTx) ListHistory(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.Candle, error) {
	query := "SELECT " + historyColumns + " FROM market_history WHERE symbol = ? AND period_start >= ? ORDER BY period_start DESC, id DESC"
	args := []any{symbol, micros(since)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	candles := make([]domain.Candle, 0)
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	// Newest first from the query; callers want chronological order.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

func (t *sqlTx) InsertNews(ctx context.Context, n *domain.News) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = t.now()
	}
	err := t.queryRow(ctx,
		"INSERT INTO news (symbol, title, content, created_at) VALUES (?, ?, ?, ?) RETURNING id",
		n.Symbol, n.Title, n.Content, micros(n.CreatedAt),
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("insert news: %w", err)
	}
	return nil
}

func (t *sqlTx) ListNews(ctx context.Context, since time.Time, limit int) ([]domain.News, error) {
	query := "SELECT id, symbol, title, content, created_at FROM news WHERE created_at >= ? ORDER BY id DESC"
	args := []any{micros(since)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	defer rows.Close()

	news := make([]domain.News, 0)
	for rows.Next() {
		var n domain.News
		var created int64
		if err := rows.Scan(&n.ID, &n.Symbol, &n.Title, &n.Content, &created); err != nil {
			return nil, fmt.Errorf("scan news: %w", err)
		}
		n.CreatedAt = fromMicros(created)
		news = append(news, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate news: %w", err)
	}
	return news, nil
}
