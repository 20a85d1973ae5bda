package repository

// Table names.
const (
	tableReceipts     = "receipts"
	tableJobs         = "processing_jobs"
	tableDecisions    = "receipt_decisions"
	tableRules        = "suggestion_rules"
	tableTransactions = "financial_transactions"
	tableEntries      = "transaction_entries"
)

// TableColumns lists the columns of every table in DDL order.
// The ent schema in db/ent/schema is checked against it.
var TableColumns = map[string][]string{
	tableReceipts: {
		"id", "image_data", "mime_type", "file_name", "uploaded_by", "uploaded_at",
		"document_date", "seller_name", "seller_tax_id", "customer_name", "customer_tax_id",
		"net_amount", "vat_amount", "total_amount", "currency_code",
		"normalized_data", "ocr_text", "ocr_confidence", "status", "transaction_id", "updated_at",
	},
	tableJobs: {
		"id", "receipt_id", "status", "created_at", "available_at", "started_at", "completed_at",
		"retry_count", "error_message",
	},
	tableDecisions: {
		"id", "receipt_id", "purpose_account_id", "posting_account_id", "vat_override",
		"total_override", "notes", "created_by", "created_at",
	},
	tableRules: {
		"id", "seller_name", "purpose_account_id", "posting_account_id", "occurrence_count",
		"created_at", "last_updated_at",
	},
	tableTransactions: {
		"id", "receipt_id", "reference_number", "description", "transaction_date",
		"total_amount", "vat_amount", "created_by", "created_at", "updated_at",
	},
	tableEntries: {
		"id", "transaction_id", "account_id", "debit", "credit", "line_no",
	},
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS receipts (
	id              UUID PRIMARY KEY,
	image_data      BYTEA NOT NULL,
	mime_type       TEXT NOT NULL,
	file_name       TEXT NOT NULL DEFAULT '',
	uploaded_by     UUID NOT NULL,
	uploaded_at     TIMESTAMPTZ NOT NULL,
	document_date   TIMESTAMPTZ,
	seller_name     TEXT,
	seller_tax_id   TEXT,
	customer_name   TEXT,
	customer_tax_id TEXT,
	net_amount      NUMERIC(14,2),
	vat_amount      NUMERIC(14,2),
	total_amount    NUMERIC(14,2),
	currency_code   TEXT NOT NULL DEFAULT '',
	normalized_data BYTEA,
	ocr_text        TEXT,
	ocr_confidence  DOUBLE PRECISION,
	status          TEXT NOT NULL CHECK (status IN ('Pending','Processing','Completed','Failed')),
	transaction_id  UUID,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_receipts_status_uploaded ON receipts(status, uploaded_at);

CREATE TABLE IF NOT EXISTS processing_jobs (
	id            UUID PRIMARY KEY,
	receipt_id    UUID NOT NULL REFERENCES receipts(id),
	status        TEXT NOT NULL CHECK (status IN ('Pending','Processing','Completed','Failed')),
	created_at    TIMESTAMPTZ NOT NULL,
	available_at  TIMESTAMPTZ NOT NULL,
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	error_message VARCHAR(1024)
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_available ON processing_jobs(status, available_at, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_status_completed ON processing_jobs(status, completed_at);
CREATE INDEX IF NOT EXISTS idx_jobs_receipt ON processing_jobs(receipt_id, created_at);

CREATE TABLE IF NOT EXISTS receipt_decisions (
	id                 UUID PRIMARY KEY,
	receipt_id         UUID NOT NULL REFERENCES receipts(id),
	purpose_account_id UUID,
	posting_account_id UUID,
	vat_override       NUMERIC(14,2),
	total_override     NUMERIC(14,2),
	notes              TEXT,
	created_by         UUID NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_receipt ON receipt_decisions(receipt_id);

CREATE TABLE IF NOT EXISTS suggestion_rules (
	id                 UUID PRIMARY KEY,
	seller_name        TEXT NOT NULL,
	purpose_account_id UUID NOT NULL,
	posting_account_id UUID NOT NULL,
	occurrence_count   INTEGER NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	last_updated_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (seller_name, purpose_account_id, posting_account_id)
);

CREATE TABLE IF NOT EXISTS financial_transactions (
	id               UUID PRIMARY KEY,
	receipt_id       UUID NOT NULL UNIQUE REFERENCES receipts(id),
	reference_number TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	transaction_date TIMESTAMPTZ NOT NULL,
	total_amount     NUMERIC(14,2),
	vat_amount       NUMERIC(14,2),
	created_by       UUID NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transaction_entries (
	id             UUID PRIMARY KEY,
	transaction_id UUID NOT NULL REFERENCES financial_transactions(id) ON DELETE CASCADE,
	account_id     UUID NOT NULL,
	debit          NUMERIC(14,2) NOT NULL DEFAULT 0,
	credit         NUMERIC(14,2) NOT NULL DEFAULT 0,
	line_no        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_transaction ON transaction_entries(transaction_id);
`

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS receipts (
	id              TEXT PRIMARY KEY,
	image_data      BLOB NOT NULL,
	mime_type       TEXT NOT NULL,
	file_name       TEXT NOT NULL DEFAULT '',
	uploaded_by     TEXT NOT NULL,
	uploaded_at     DATETIME NOT NULL,
	document_date   DATETIME,
	seller_name     TEXT,
	seller_tax_id   TEXT,
	customer_name   TEXT,
	customer_tax_id TEXT,
	net_amount      REAL,
	vat_amount      REAL,
	total_amount    REAL,
	currency_code   TEXT NOT NULL DEFAULT '',
	normalized_data BLOB,
	ocr_text        TEXT,
	ocr_confidence  REAL,
	status          TEXT NOT NULL CHECK (status IN ('Pending','Processing','Completed','Failed')),
	transaction_id  TEXT,
	updated_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_receipts_status_uploaded ON receipts(status, uploaded_at);

CREATE TABLE IF NOT EXISTS processing_jobs (
	id            TEXT PRIMARY KEY,
	receipt_id    TEXT NOT NULL REFERENCES receipts(id),
	status        TEXT NOT NULL CHECK (status IN ('Pending','Processing','Completed','Failed')),
	created_at    DATETIME NOT NULL,
	available_at  DATETIME NOT NULL,
	started_at    DATETIME,
	completed_at  DATETIME,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_available ON processing_jobs(status, available_at, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_status_completed ON processing_jobs(status, completed_at);
CREATE INDEX IF NOT EXISTS idx_jobs_receipt ON processing_jobs(receipt_id, created_at);

CREATE TABLE IF NOT EXISTS receipt_decisions (
	id                 TEXT PRIMARY KEY,
	receipt_id         TEXT NOT NULL REFERENCES receipts(id),
	purpose_account_id TEXT,
	posting_account_id TEXT,
	vat_override       REAL,
	total_override     REAL,
	notes              TEXT,
	created_by         TEXT NOT NULL,
	created_at         DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_receipt ON receipt_decisions(receipt_id);

CREATE TABLE IF NOT EXISTS suggestion_rules (
	id                 TEXT PRIMARY KEY,
	seller_name        TEXT NOT NULL,
	purpose_account_id TEXT NOT NULL,
	posting_account_id TEXT NOT NULL,
	occurrence_count   INTEGER NOT NULL,
	created_at         DATETIME NOT NULL,
	last_updated_at    DATETIME NOT NULL,
	UNIQUE (seller_name, purpose_account_id, posting_account_id)
);

CREATE TABLE IF NOT EXISTS financial_transactions (
	id               TEXT PRIMARY KEY,
	receipt_id       TEXT NOT NULL UNIQUE REFERENCES receipts(id),
	reference_number TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	transaction_date DATETIME NOT NULL,
	total_amount     REAL,
	vat_amount       REAL,
	created_by       TEXT NOT NULL,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS transaction_entries (
	id             TEXT PRIMARY KEY,
	transaction_id TEXT NOT NULL REFERENCES financial_transactions(id) ON DELETE CASCADE,
	account_id     TEXT NOT NULL,
	debit          REAL NOT NULL DEFAULT 0,
	credit         REAL NOT NULL DEFAULT 0,
	line_no        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_transaction ON transaction_entries(transaction_id);
`
