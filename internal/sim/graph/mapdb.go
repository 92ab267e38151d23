package graph

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"freightcraft.ai/internal/sim/model"
)

// Map database: the persisted form of a city graph. One sqlite file holds the
// node and edge tables plus a meta table with the schema version. The file is
// written wholesale by cmd/mapimport and read once at server boot.

const mapSchemaVersion = "1"

func openMapDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func initMapSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			x REAL NOT NULL,
			y REAL NOT NULL,
			building TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS edges (
			source TEXT NOT NULL,
			target TEXT NOT NULL,
			length REAL NOT NULL,
			mode TEXT NOT NULL,
			PRIMARY KEY (source, target, mode)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// SaveMapDB writes the graph into a sqlite map database, replacing any
// previous content.
func SaveMapDB(path string, g *Graph) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	db, err := openMapDB(path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := initMapSchema(db); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{`DELETE FROM nodes`, `DELETE FROM edges`} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	insNode, err := tx.Prepare(`INSERT INTO nodes(id,x,y,building) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insNode.Close()
	for _, n := range g.Nodes() {
		var blob any
		if n.Building != nil {
			b, err := json.Marshal(n.Building)
			if err != nil {
				return fmt.Errorf("mapdb: node %s building blob: %w", n.ID, err)
			}
			blob = string(b)
		}
		if _, err := insNode.Exec(string(n.ID), n.X, n.Y, blob); err != nil {
			return fmt.Errorf("mapdb: insert node %s: %w", n.ID, err)
		}
	}

	insEdge, err := tx.Prepare(`INSERT INTO edges(source,target,length,mode) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insEdge.Close()
	for _, n := range g.Nodes() {
		for _, e := range g.Out(n.ID) {
			if _, err := insEdge.Exec(string(e.From), string(e.To), e.Length, e.Mode); err != nil {
				return fmt.Errorf("mapdb: insert edge %s->%s: %w", e.From, e.To, err)
			}
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	metas := [][2]string{
		{"schema_version", mapSchemaVersion},
		{"saved_at", now},
		{"nodes", fmt.Sprintf("%d", g.NodeCount())},
		{"edges", fmt.Sprintf("%d", g.EdgeCount())},
	}
	for _, kv := range metas {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, kv[0], kv[1]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadMapDB reads a sqlite map database into a validated Graph. Rows are read
// in id order, so two loads of the same file build identical graphs.
func LoadMapDB(path string) (*Graph, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := openMapDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var version string
	err = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("mapdb: %s: not a map database: %w", path, err)
	}
	if version != mapSchemaVersion {
		return nil, fmt.Errorf("mapdb: %s: schema version %s, want %s", path, version, mapSchemaVersion)
	}

	g := New()

	rows, err := db.Query(`SELECT id,x,y,building FROM nodes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   string
			x, y float64
			blob sql.NullString
		)
		if err := rows.Scan(&id, &x, &y, &blob); err != nil {
			return nil, err
		}
		n := Node{ID: model.NodeID(id), X: x, Y: y}
		if blob.Valid && blob.String != "" {
			var b Building
			if err := json.Unmarshal([]byte(blob.String), &b); err != nil {
				return nil, fmt.Errorf("mapdb: node %s building blob: %w", id, err)
			}
			n.Building = &b
		}
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	erows, err := db.Query(`SELECT source,target,length,mode FROM edges ORDER BY source,target,mode`)
	if err != nil {
		return nil, err
	}
	defer erows.Close()
	for erows.Next() {
		var (
			src, dst, mode string
			length         float64
		)
		if err := erows.Scan(&src, &dst, &length, &mode); err != nil {
			return nil, err
		}
		e := Edge{From: model.NodeID(src), To: model.NodeID(dst), Length: length, Mode: mode}
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	if err := erows.Err(); err != nil {
		return nil, err
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("mapdb: %s: %w", path, err)
	}
	return g, nil
}

// LoadMap loads a map from either a .graphml document or a sqlite map
// database, picked by file extension.
func LoadMap(path string) (*Graph, error) {
	switch filepath.Ext(path) {
	case ".graphml", ".xml":
		return LoadGraphMLFile(path)
	default:
		return LoadMapDB(path)
	}
}
