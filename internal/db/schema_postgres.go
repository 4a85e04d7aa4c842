package db

import (
	"galos/internal/config"
	"galos/internal/galaxy"
)

// PostgreSQL stores positions as PostGIS PointZ geometries under an n-d GIST
// index, which ST_3DDWithin uses for range queries.
var postgresDialect = (&dialect{
	name: config.DialectPostgres,
	migrations: []migration{
		{
			name: "systems, spatial index, jumps, routes",
			statements: []string{
				`CREATE EXTENSION IF NOT EXISTS postgis`,
				`CREATE TABLE IF NOT EXISTS systems (
					address           BIGINT PRIMARY KEY,
					name              TEXT NOT NULL,
					position          GEOMETRY(PointZ) NOT NULL,
					population        BIGINT,
					security          TEXT,
					government        TEXT,
					allegiance        TEXT,
					primary_economy   TEXT,
					secondary_economy TEXT,
					updated_at        TIMESTAMPTZ NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_systems_name ON systems(name)`,
				`CREATE INDEX IF NOT EXISTS systems_position_idx ON systems USING GIST (position gist_geometry_ops_nd)`,
				`CREATE TABLE IF NOT EXISTS jumps (
					id                     UUID PRIMARY KEY,
					current_system_address BIGINT NOT NULL,
					distance               DOUBLE PRECISION,
					fuel_used              DOUBLE PRECISION,
					fuel_level             DOUBLE PRECISION,
					fuel_type              TEXT CHECK (fuel_type IN ('tritium', 'hydrogen')),
					future                 BOOLEAN NOT NULL DEFAULT FALSE,
					timestamp              TIMESTAMPTZ,
					next_jump_id           UUID REFERENCES jumps(id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_jumps_system ON jumps(current_system_address)`,
				`CREATE INDEX IF NOT EXISTS idx_jumps_timestamp ON jumps(timestamp)`,
				`CREATE TABLE IF NOT EXISTS routes (
					id            BIGSERIAL PRIMARY KEY,
					name          TEXT NOT NULL,
					start_jump_id UUID NOT NULL REFERENCES jumps(id)
				)`,
			},
		},
	},

	selectSystem: `
		SELECT address, name, ST_X(position), ST_Y(position), ST_Z(position), population,
		       security, government, allegiance, primary_economy, secondary_economy,
		       updated_at
		  FROM systems`,

	readPosition: `SELECT ST_X(position), ST_Y(position), ST_Z(position) FROM systems WHERE address = ?`,

	upsertSystem: `
		INSERT INTO systems
			(address, name, position, population,
			 security, government, allegiance, primary_economy, secondary_economy,
			 updated_at)
		VALUES (?, ?, ST_MakePoint(?, ?, ?), ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET
			name              = EXCLUDED.name,
			population        = EXCLUDED.population,
			security          = EXCLUDED.security,
			government        = EXCLUDED.government,
			allegiance        = EXCLUDED.allegiance,
			primary_economy   = EXCLUDED.primary_economy,
			secondary_economy = EXCLUDED.secondary_economy,
			updated_at        = EXCLUDED.updated_at
		WHERE systems.updated_at < EXCLUDED.updated_at`,

	within: `
		SELECT address, name, ST_X(position), ST_Y(position), ST_Z(position), population,
		       security, government, allegiance, primary_economy, secondary_economy,
		       updated_at
		  FROM systems
		 WHERE ST_3DDWithin(position, ST_MakePoint(?, ?, ?), ?)`,

	withinArgs: func(c galaxy.Coordinate, r float64) []any {
		return []any{c.X, c.Y, c.Z, r}
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
		SELECT address, name, ST_X(position), ST_Y(position), ST_Z(position), population,
		       security, government, allegiance, primary_economy, secondary_economy,
		       updated_at
		  FROM systems
		 WHERE name LIKE ? ESCAPE '\'
		 ORDER BY name, address
		 LIMIT ?`,
}).build()
