package store

// schemaStatements creates the archival model. Natural keys carry UNIQUE
// constraints so the indexer's insert-or-ignore discipline stays idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS archival_process (
		uuid TEXT PRIMARY KEY
	);`,

	`CREATE TABLE IF NOT EXISTS document_class (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);`,

	`CREATE TABLE IF NOT EXISTS aip (
		uuid TEXT PRIMARY KEY,
		document_class_id INTEGER NOT NULL REFERENCES document_class(id),
		archival_process_uuid TEXT REFERENCES archival_process(uuid),
		root_path TEXT NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS document (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		root_path TEXT NOT NULL,
		aip_uuid TEXT NOT NULL REFERENCES aip(uuid),
		aggregation_id INTEGER,
		UNIQUE(root_path, aip_uuid)
	);`,

	`CREATE TABLE IF NOT EXISTS file (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		relative_path TEXT NOT NULL,
		root_path TEXT NOT NULL,
		is_main INTEGER NOT NULL DEFAULT 0,
		document_id INTEGER NOT NULL REFERENCES document(id),
		UNIQUE(relative_path, document_id)
	);`,

	`CREATE TABLE IF NOT EXISTS metadata (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'string',
		document_id INTEGER NOT NULL REFERENCES document(id),
		file_id INTEGER REFERENCES file(id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_metadata_document ON metadata(document_id);`,
	`CREATE INDEX IF NOT EXISTS idx_metadata_file ON metadata(file_id);`,

	`CREATE TABLE IF NOT EXISTS subject (
		id INTEGER PRIMARY KEY AUTOINCREMENT
	);`,

	`CREATE TABLE IF NOT EXISTS natural_person (
		id INTEGER PRIMARY KEY REFERENCES subject(id),
		first_name TEXT,
		last_name TEXT,
		tax_code TEXT,
		digital_address TEXT,
		role TEXT
	);`,

	`CREATE TABLE IF NOT EXISTS legal_entity (
		id INTEGER PRIMARY KEY REFERENCES subject(id),
		name TEXT,
		tax_code TEXT,
		digital_address TEXT,
		role TEXT
	);`,

	`CREATE TABLE IF NOT EXISTS internal_public_administration (
		id INTEGER PRIMARY KEY REFERENCES subject(id),
		name TEXT,
		admin_code TEXT,
		office TEXT,
		digital_address TEXT,
		role TEXT
	);`,

	`CREATE TABLE IF NOT EXISTS external_public_administration (
		id INTEGER PRIMARY KEY REFERENCES subject(id),
		name TEXT,
		admin_code TEXT,
		digital_address TEXT,
		role TEXT
	);`,

	`CREATE TABLE IF NOT EXISTS other_subject (
		id INTEGER PRIMARY KEY REFERENCES subject(id),
		description TEXT,
		digital_address TEXT,
		role TEXT
	);`,

	`CREATE TABLE IF NOT EXISTS qualified_system (
		id INTEGER PRIMARY KEY REFERENCES subject(id),
		name TEXT,
		role TEXT
	);`,

	`CREATE TABLE IF NOT EXISTS document_subject (
		document_id INTEGER NOT NULL REFERENCES document(id),
		subject_id INTEGER NOT NULL REFERENCES subject(id),
		PRIMARY KEY(document_id, subject_id)
	);`,

	`CREATE TABLE IF NOT EXISTS administrative_procedure (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		catalog_uri TEXT,
		title TEXT,
		subject_of_interest TEXT,
		document_id INTEGER REFERENCES document(id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_procedure_document ON administrative_procedure(document_id);`,

	`CREATE TABLE IF NOT EXISTS phase (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		procedure_id INTEGER NOT NULL REFERENCES administrative_procedure(id)
	);`,

	`CREATE TABLE IF NOT EXISTS document_aggregation (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		procedure_id INTEGER REFERENCES administrative_procedure(id),
		type TEXT
	);`,

	`CREATE TABLE IF NOT EXISTS integrity_check (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES file(id),
		valid INTEGER NOT NULL,
		expected_digest TEXT NOT NULL,
		actual_digest TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		checked_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE INDEX IF NOT EXISTS idx_integrity_file ON integrity_check(file_id);`,
}
