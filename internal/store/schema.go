package store

// Schema DDL, one constant per dialect. Decimal columns are TEXT on sqlite
// and NUMERIC on postgres; both scan into shopspring decimals. The indexes
// keep the per-tick scans O(active set): price lookups by (symbol, ts),
// pending-order scans by (game_id, status), equity history unique per
// (game_id, player_id, game_state).

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS game_state (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    current_tick INTEGER  NOT NULL DEFAULT 0,
    last_tick_at DATETIME NOT NULL,
    updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS games (
    id               TEXT PRIMARY KEY,
    player1_id       TEXT NOT NULL,
    player2_id       TEXT,
    status           TEXT NOT NULL DEFAULT 'waiting',
    initial_balance  TEXT NOT NULL,
    duration_minutes INTEGER NOT NULL,
    started_at       DATETIME,
    ended_at         DATETIME,
    winner_id        TEXT,
    created_at       DATETIME NOT NULL,
    updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS game_players (
    game_id    TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    balance    TEXT NOT NULL,
    equity     TEXT NOT NULL,
    joined_at  DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (game_id, user_id)
);

CREATE TABLE IF NOT EXISTS positions (
    id             TEXT PRIMARY KEY,
    game_id        TEXT NOT NULL,
    player_id      TEXT NOT NULL,
    symbol         TEXT NOT NULL,
    side           TEXT NOT NULL,
    quantity       TEXT NOT NULL,
    entry_price    TEXT NOT NULL,
    current_price  TEXT,
    leverage       TEXT NOT NULL DEFAULT '1',
    unrealized_pnl TEXT NOT NULL DEFAULT '0',
    status         TEXT NOT NULL DEFAULT 'open',
    created_at     DATETIME NOT NULL,
    updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    id            TEXT PRIMARY KEY,
    game_id       TEXT NOT NULL,
    player_id     TEXT NOT NULL,
    symbol        TEXT NOT NULL,
    order_type    TEXT NOT NULL,
    side          TEXT NOT NULL,
    quantity      TEXT,
    price         TEXT,
    trigger_price TEXT,
    position_id   TEXT,
    status        TEXT NOT NULL DEFAULT 'pending',
    filled_price  TEXT,
    filled_at     DATETIME,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS order_executions (
    id              TEXT PRIMARY KEY,
    order_id        TEXT NOT NULL,
    game_id         TEXT NOT NULL,
    player_id       TEXT NOT NULL,
    symbol          TEXT NOT NULL,
    side            TEXT NOT NULL,
    quantity        TEXT NOT NULL,
    execution_price TEXT NOT NULL,
    game_state      INTEGER NOT NULL,
    created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS price_data (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol     TEXT NOT NULL,
    price      TEXT NOT NULL,
    game_state INTEGER NOT NULL,
    ts         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS equity_history (
    game_id    TEXT NOT NULL,
    player_id  TEXT NOT NULL,
    game_state INTEGER NOT NULL,
    balance    TEXT NOT NULL,
    equity     TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (game_id, player_id, game_state)
);

CREATE INDEX IF NOT EXISTS idx_games_status       ON games(status);
CREATE INDEX IF NOT EXISTS idx_players_game       ON game_players(game_id);
CREATE INDEX IF NOT EXISTS idx_positions_game     ON positions(game_id, status);
CREATE INDEX IF NOT EXISTS idx_orders_game_status ON orders(game_id, status);
CREATE INDEX IF NOT EXISTS idx_executions_order   ON order_executions(order_id);
CREATE INDEX IF NOT EXISTS idx_price_symbol_ts    ON price_data(symbol, ts);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS game_state (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    current_tick BIGINT      NOT NULL DEFAULT 0,
    last_tick_at TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS games (
    id               TEXT PRIMARY KEY,
    player1_id       TEXT NOT NULL,
    player2_id       TEXT,
    status           TEXT NOT NULL DEFAULT 'waiting',
    initial_balance  NUMERIC NOT NULL,
    duration_minutes INTEGER NOT NULL,
    started_at       TIMESTAMPTZ,
    ended_at         TIMESTAMPTZ,
    winner_id        TEXT,
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS game_players (
    game_id    TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    balance    NUMERIC NOT NULL,
    equity     NUMERIC NOT NULL,
    joined_at  TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (game_id, user_id)
);

CREATE TABLE IF NOT EXISTS positions (
    id             TEXT PRIMARY KEY,
    game_id        TEXT NOT NULL,
    player_id      TEXT NOT NULL,
    symbol         TEXT NOT NULL,
    side           TEXT NOT NULL,
    quantity       NUMERIC NOT NULL,
    entry_price    NUMERIC NOT NULL,
    current_price  NUMERIC,
    leverage       NUMERIC NOT NULL DEFAULT 1,
    unrealized_pnl NUMERIC NOT NULL DEFAULT 0,
    status         TEXT NOT NULL DEFAULT 'open',
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    id            TEXT PRIMARY KEY,
    game_id       TEXT NOT NULL,
    player_id     TEXT NOT NULL,
    symbol        TEXT NOT NULL,
    order_type    TEXT NOT NULL,
    side          TEXT NOT NULL,
    quantity      NUMERIC,
    price         NUMERIC,
    trigger_price NUMERIC,
    position_id   TEXT,
    status        TEXT NOT NULL DEFAULT 'pending',
    filled_price  NUMERIC,
    filled_at     TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS order_executions (
    id              TEXT PRIMARY KEY,
    order_id        TEXT NOT NULL,
    game_id         TEXT NOT NULL,
    player_id       TEXT NOT NULL,
    symbol          TEXT NOT NULL,
    side            TEXT NOT NULL,
    quantity        NUMERIC NOT NULL,
    execution_price NUMERIC NOT NULL,
    game_state      BIGINT  NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS price_data (
    id         BIGSERIAL PRIMARY KEY,
    symbol     TEXT NOT NULL,
    price      NUMERIC NOT NULL,
    game_state BIGINT  NOT NULL,
    ts         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS equity_history (
    game_id    TEXT NOT NULL,
    player_id  TEXT NOT NULL,
    game_state BIGINT NOT NULL,
    balance    NUMERIC NOT NULL,
    equity     NUMERIC NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (game_id, player_id, game_state)
);

CREATE INDEX IF NOT EXISTS idx_games_status       ON games(status);
CREATE INDEX IF NOT EXISTS idx_players_game       ON game_players(game_id);
CREATE INDEX IF NOT EXISTS idx_positions_game     ON positions(game_id, status);
CREATE INDEX IF NOT EXISTS idx_orders_game_status ON orders(game_id, status);
CREATE INDEX IF NOT EXISTS idx_executions_order   ON order_executions(order_id);
CREATE INDEX IF NOT EXISTS idx_price_symbol_ts    ON price_data(symbol, ts);
`
