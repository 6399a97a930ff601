package storage

// schema is applied on every open; CREATE IF NOT EXISTS keeps it
// idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS parser (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS note (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	data        TEXT NOT NULL,
	keywords    TEXT NOT NULL DEFAULT '',
	parser_id   INTEGER NOT NULL REFERENCES parser(id),
	custom_data TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS card (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	note_id           INTEGER NOT NULL REFERENCES note(id) ON DELETE CASCADE,
	card_order        INTEGER NOT NULL,
	back_type         INTEGER NOT NULL DEFAULT 1,
	stability         REAL NOT NULL DEFAULT 0,
	difficulty        REAL NOT NULL DEFAULT 0,
	desired_retention REAL NOT NULL DEFAULT 0,
	state             INTEGER NOT NULL DEFAULT 0,
	due               INTEGER NOT NULL DEFAULT 0,
	special_state     INTEGER NOT NULL DEFAULT 0,
	custom_data       TEXT NOT NULL DEFAULT '',
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL,
	UNIQUE (note_id, card_order)
);

CREATE TABLE IF NOT EXISTS review_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	card_id        INTEGER NOT NULL REFERENCES card(id) ON DELETE CASCADE,
	reviewed_at    INTEGER NOT NULL,
	rating         INTEGER NOT NULL,
	scheduler_name TEXT NOT NULL,
	scheduled_time INTEGER NOT NULL,
	duration       INTEGER NOT NULL DEFAULT 0,
	previous_state INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tag (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_id   INTEGER REFERENCES tag(id) ON DELETE SET NULL,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	query       TEXT,
	auto_delete INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS note_tag (
	note_id INTEGER NOT NULL REFERENCES note(id) ON DELETE CASCADE,
	tag_id  INTEGER NOT NULL REFERENCES tag(id) ON DELETE CASCADE,
	PRIMARY KEY (note_id, tag_id)
);

CREATE TABLE IF NOT EXISTS card_tag (
	card_id INTEGER NOT NULL REFERENCES card(id) ON DELETE CASCADE,
	tag_id  INTEGER NOT NULL REFERENCES tag(id) ON DELETE CASCADE,
	PRIMARY KEY (card_id, tag_id)
);

CREATE TABLE IF NOT EXISTS note_link (
	parent_note_id   INTEGER NOT NULL REFERENCES note(id) ON DELETE CASCADE,
	linked_note_id   INTEGER REFERENCES note(id) ON DELETE SET NULL,
	link_order       INTEGER NOT NULL,
	searched_keyword TEXT NOT NULL,
	matched_keyword  TEXT,
	PRIMARY KEY (parent_note_id, link_order)
);

CREATE INDEX IF NOT EXISTS idx_card_note ON card(note_id);
CREATE INDEX IF NOT EXISTS idx_card_due ON card(due);
CREATE INDEX IF NOT EXISTS idx_review_log_card ON review_log(card_id, reviewed_at);
CREATE INDEX IF NOT EXISTS idx_note_tag_tag ON note_tag(tag_id);
`
