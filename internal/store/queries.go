package store

// PostgreSQL statements. Amounts travel as text and are cast at the boundary
// so no value ever passes through a float.
const (
	pgInsertUser = `INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`

	pgSelectUserByID = `SELECT id, email, password_hash, created_at FROM users WHERE id = $1`

	pgSelectUserByEmail = `SELECT id, email, password_hash, created_at FROM users WHERE email = $1`

	pgInsertWallet = `INSERT INTO wallets (id, owner_id, balance, status, version, created_at, updated_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)`

	pgWalletColumns = `SELECT id, owner_id, balance::text, status, version, created_at, updated_at FROM wallets`

	pgSelectWalletByID = pgWalletColumns + ` WHERE id = $1`

	pgSelectWalletByOwner = pgWalletColumns + ` WHERE owner_id = $1`

	pgLockWallet = pgWalletColumns + ` WHERE id = $1 FOR UPDATE`

	pgUpdateWallet = `UPDATE wallets SET balance = $1::numeric, status = $2, version = version + 1, updated_at = $3
        WHERE id = $4 AND version = $5`

	pgInsertTransaction = `INSERT INTO transactions (id, wallet_id, amount, idempotency_key, transaction_type, status, created_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)`

	pgTransactionColumns = `SELECT id, wallet_id, amount::text, idempotency_key, transaction_type, status, created_at FROM transactions`

	pgSelectTransactionByKey = pgTransactionColumns + ` WHERE idempotency_key = $1`

	pgCountTransactions = `SELECT COUNT(*) FROM transactions WHERE wallet_id = $1`

	pgSelectTransactionPage = pgTransactionColumns + ` WHERE wallet_id = $1
        ORDER BY created_at DESC, seq DESC LIMIT $2 OFFSET $3`

	pgNetAmount = `SELECT COALESCE(SUM(CASE WHEN transaction_type IN ('deposit', 'received') THEN amount ELSE -amount END), 0)::text
        FROM transactions WHERE wallet_id = $1 AND status = 'completed'`
)

// SQLite statements. Amounts are stored as integer minor units and
// timestamps as Unix nanoseconds.
const (
	sqliteInsertUser = `INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`

	sqliteSelectUserByID = `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`

	sqliteSelectUserByEmail = `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`

	sqliteInsertWallet = `INSERT INTO wallets (id, owner_id, balance_minor, status, version, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`

	sqliteWalletColumns = `SELECT id, owner_id, balance_minor, status, version, created_at, updated_at FROM wallets`

	sqliteSelectWalletByID = sqliteWalletColumns + ` WHERE id = ?`

	sqliteSelectWalletByOwner = sqliteWalletColumns + ` WHERE owner_id = ?`

	sqliteUpdateWallet = `UPDATE wallets SET balance_minor = ?, status = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND version = ?`

	sqliteInsertTransaction = `INSERT INTO transactions (id, wallet_id, amount_minor, idempotency_key, transaction_type, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`

	sqliteTransactionColumns = `SELECT id, wallet_id, amount_minor, idempotency_key, transaction_type, status, created_at FROM transactions`

	sqliteSelectTransactionByKey = sqliteTransactionColumns + ` WHERE idempotency_key = ?`

	sqliteCountTransactions = `SELECT COUNT(*) FROM transactions WHERE wallet_id = ?`

	sqliteSelectTransactionPage = sqliteTransactionColumns + ` WHERE wallet_id = ?
        ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`

	sqliteNetAmount = `SELECT COALESCE(SUM(CASE WHEN transaction_type IN ('deposit', 'received') THEN amount_minor ELSE -amount_minor END), 0)
        FROM transactions WHERE wallet_id = ? AND status = 'completed'`
)
