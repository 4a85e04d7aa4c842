package db

import (
	"strconv"
	"strings"

	"galos/internal/config"
	"galos/internal/galaxy"
)

type migration struct {
	name       string
	statements []string
}

// dialect carries the SQL that differs between backends. Queries are written
// with ? placeholders and rebound once when the dialect is built.
type dialect struct {
	name       config.Dialect
	migrations []migration

	selectSystem   string // column list + FROM, no WHERE
	systemByAddr   string // derived in build
	systemByName   string // derived in build
	readPosition   string
	upsertSystem   string
	indexPosition  string // empty when the index is maintained by the database
	within         string
	withinArgs     func(c galaxy.Coordinate, radius float64) []any
	insertJump     string
	linkJump       string
	selectJumps    string
	searchByPrefix string
	countByPrefix  string
}

func (d *dialect) rebind(query string) string {
	if d.name != config.DialectPostgres {
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

func (d *dialect) build() *dialect {
	d.systemByAddr = d.selectSystem + systemFilterByAddress
	d.systemByName = d.selectSystem + systemFilterByName
	d.countByPrefix = systemCount + systemFilterByPrefix
	for _, q := range []*string{
		&d.selectSystem, &d.systemByAddr, &d.systemByName, &d.readPosition, &d.upsertSystem, &d.indexPosition,
		&d.within, &d.insertJump, &d.linkJump, &d.selectJumps, &d.searchByPrefix, &d.countByPrefix,
	} {
		*q = d.rebind(*q)
	}
	return d
}

// Shared by both dialects.
const (
	systemFilterByAddress = " WHERE address = ?"
	systemFilterByName    = " WHERE name = ? ORDER BY address LIMIT 2"
	systemFilterByPrefix  = ` WHERE name LIKE ? ESCAPE '\'`
	systemCount           = "SELECT COUNT(*) FROM systems"
)
