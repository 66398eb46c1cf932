package storage

// Schema is the SQL schema for the memory database. The branch named
// "main" is pre-seeded with id 1 and owns every entity created without
// an explicit branch.
const Schema = `
CREATE TABLE IF NOT EXISTS branches (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL UNIQUE,
    purpose     TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

INSERT OR IGNORE INTO branches (id, name, purpose) VALUES (1, 'main', 'Default memory branch');

CREATE TABLE IF NOT EXISTS entities (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    name              TEXT NOT NULL,
    entity_type       TEXT NOT NULL,
    branch_id         INTEGER NOT NULL REFERENCES branches(id) ON DELETE CASCADE,
    status            TEXT NOT NULL DEFAULT 'active'
                      CHECK(status IN ('active', 'deprecated', 'archived', 'draft')),
    status_reason     TEXT NOT NULL DEFAULT '',
    original_content  TEXT NOT NULL DEFAULT '',
    optimized_content TEXT NOT NULL DEFAULT '',
    token_count       INTEGER NOT NULL DEFAULT 0,
    compression_ratio REAL NOT NULL DEFAULT 1.0,
    created_at        TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at        TEXT NOT NULL DEFAULT (datetime('now')),
    last_accessed     TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(name, branch_id)
);

CREATE TABLE IF NOT EXISTS observations (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id         INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    content           TEXT NOT NULL,
    optimized_content TEXT NOT NULL DEFAULT '',
    sequence_order    INTEGER NOT NULL CHECK(sequence_order >= 0),
    created_at        TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(entity_id, sequence_order)
);

CREATE TABLE IF NOT EXISTS relations (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    from_entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    to_entity_id   INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    relation_type  TEXT NOT NULL,
    branch_id      INTEGER NOT NULL REFERENCES branches(id) ON DELETE CASCADE,
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(from_entity_id, to_entity_id, relation_type)
);

CREATE TABLE IF NOT EXISTS keywords (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    keyword   TEXT NOT NULL,
    entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    weight    REAL NOT NULL DEFAULT 1.0,
    context   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS cross_references (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    from_entity_id     INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    target_branch_id   INTEGER NOT NULL REFERENCES branches(id) ON DELETE CASCADE,
    target_entity_name TEXT NOT NULL,
    created_at         TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(from_entity_id, target_branch_id, target_entity_name)
);

CREATE VIRTUAL TABLE IF NOT EXISTS entities_fts USING fts5(
    name,
    entity_type,
    optimized_content,
    content='entities',
    content_rowid='id'
);

CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
CREATE INDEX IF NOT EXISTS idx_entities_branch ON entities(branch_id);
CREATE INDEX IF NOT EXISTS idx_entities_status ON entities(status);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_entities_accessed ON entities(last_accessed);
CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_entity_id);
CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_entity_id);
CREATE INDEX IF NOT EXISTS idx_relations_type ON relations(relation_type);
CREATE INDEX IF NOT EXISTS idx_keywords_keyword ON keywords(keyword);
CREATE INDEX IF NOT EXISTS idx_keywords_entity ON keywords(entity_id);
`

// Triggers keep the entities_fts shadow in sync with the entities table.
// A shadow row exists iff an entity with the same rowid exists.
const Triggers = `
CREATE TRIGGER IF NOT EXISTS entities_ai AFTER INSERT ON entities BEGIN
    INSERT INTO entities_fts(rowid, name, entity_type, optimized_content)
    VALUES (new.id, new.name, new.entity_type, new.optimized_content);
END;
CREATE TRIGGER IF NOT EXISTS entities_ad AFTER DELETE ON entities BEGIN
    INSERT INTO entities_fts(entities_fts, rowid, name, entity_type, optimized_content)
    VALUES ('delete', old.id, old.name, old.entity_type, old.optimized_content);
END;
CREATE TRIGGER IF NOT EXISTS entities_au AFTER UPDATE ON entities BEGIN
    INSERT INTO entities_fts(entities_fts, rowid, name, entity_type, optimized_content)
    VALUES ('delete', old.id, old.name, old.entity_type, old.optimized_content);
    INSERT INTO entities_fts(rowid, name, entity_type, optimized_content)
    VALUES (new.id, new.name, new.entity_type, new.optimized_content);
END;
`
