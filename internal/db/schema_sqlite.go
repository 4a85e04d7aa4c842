package db

import (
	"galos/internal/config"
	"galos/internal/galaxy"
)

// SQLite keeps coordinates as plain REAL columns and indexes them with an
// R*Tree virtual table holding one degenerate box per system.
var sqliteDialect = (&dialect{
	name: config.DialectSQLite,
	migrations: []migration{
		{
			name: "systems, spatial index, jumps, routes",
			statements: []string{
				`CREATE TABLE IF NOT EXISTS systems (
					address           INTEGER PRIMARY KEY,
					name              TEXT NOT NULL,
					x                 REAL NOT NULL,
					y                 REAL NOT NULL,
					z                 REAL NOT NULL,
					population        INTEGER,
					security          TEXT,
					government        TEXT,
					allegiance        TEXT,
					primary_economy   TEXT,
					secondary_economy TEXT,
					updated_at        INTEGER NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_systems_name ON systems(name)`,
				`CREATE VIRTUAL TABLE IF NOT EXISTS systems_position USING rtree(
					id,
					min_x, max_x,
					min_y, max_y,
					min_z, max_z
				)`,
				`CREATE TABLE IF NOT EXISTS jumps (
					id                     TEXT PRIMARY KEY,
					current_system_address INTEGER NOT NULL,
					distance               REAL,
					fuel_used              REAL,
					fuel_level             REAL,
					fuel_type              TEXT CHECK (fuel_type IN ('tritium', 'hydrogen')),
					future                 INTEGER NOT NULL DEFAULT 0,
					timestamp              INTEGER,
					next_jump_id           TEXT REFERENCES jumps(id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_jumps_system ON jumps(current_system_address)`,
				`CREATE INDEX IF NOT EXISTS idx_jumps_timestamp ON jumps(timestamp)`,
				`CREATE TABLE IF NOT EXISTS routes (
					id            INTEGER PRIMARY KEY AUTOINCREMENT,
					name          TEXT NOT NULL,
					start_jump_id TEXT NOT NULL REFERENCES jumps(id)
				)`,
			},
		},
	},

	selectSystem: `
		SELECT address, name, x, y, z, population,
		       security, government, allegiance, primary_economy, secondary_economy,
		       updated_at
		  FROM systems`,

	readPosition: `SELECT x, y, z FROM systems WHERE address = ?`,

	upsertSystem: `
		INSERT INTO systems
			(address, name, x, y, z, population,
			 security, government, allegiance, primary_economy, secondary_economy,
			 updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET
			name              = excluded.name,
			population        = excluded.population,
			security          = excluded.security,
			government        = excluded.government,
			allegiance        = excluded.allegiance,
			primary_economy   = excluded.primary_economy,
			secondary_economy = excluded.secondary_economy,
			updated_at        = excluded.updated_at
		WHERE systems.updated_at < excluded.updated_at`,

	// The box is taken from the stored row so a conflicting observation never
	// moves an indexed system.
	indexPosition: `
		INSERT INTO systems_position (id, min_x, max_x, min_y, max_y, min_z, max_z)
		SELECT address, x, x, y, y, z, z
		  FROM systems
		 WHERE address = ?
		   AND NOT EXISTS (SELECT 1 FROM systems_position WHERE id = ?)`,

	// R*Tree boxes are stored as float32 rounded outwards, so the box test is a
	// superset; the squared-distance predicate on the REAL columns makes it exact.
	within: `
		SELECT s.address, s.name, s.x, s.y, s.z, s.population,
		       s.security, s.government, s.allegiance, s.primary_economy, s.secondary_economy,
		       s.updated_at
		  FROM systems_position AS p
		  JOIN systems AS s ON s.address = p.id
		 WHERE p.max_x >= ? AND p.min_x <= ?
		   AND p.max_y >= ? AND p.min_y <= ?
		   AND p.max_z >= ? AND p.min_z <= ?
		   AND (s.x - ?) * (s.x - ?) + (s.y - ?) * (s.y - ?) + (s.z - ?) * (s.z - ?) <= ?`,

	withinArgs: func(c galaxy.Coordinate, r float64) []any {
		return []any{
			c.X - r, c.X + r,
			c.Y - r, c.Y + r,
			c.Z - r, c.Z + r,
			c.X, c.X, c.Y, c.Y, c.Z, c.Z,
			r * r,
		}
	},

	insertJump: `
		INSERT INTO jumps
			(id, current_system_address, distance, fuel_used, fuel_level, fuel_type,
			 future, timestamp, next_jump_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,

	linkJump: `UPDATE jumps SET next_jump_id = ? WHERE id = ? AND next_jump_id IS NULL`,

	selectJumps: `
		SELECT id, current_system_address, distance, fuel_used, fuel_level, fuel_type,
		       future, timestamp, next_jump_id
		  FROM jumps
		 ORDER BY timestamp IS NULL, timestamp DESC
		 LIMIT ?`,

	searchByPrefix: `
		SELECT address, name, x, y, z, population,
		       security, government, allegiance, primary_economy, secondary_economy,
		       updated_at
		  FROM systems
		 WHERE name LIKE ? ESCAPE '\'
		 ORDER BY name, address
		 LIMIT ?`,
}).build()
