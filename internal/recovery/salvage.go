package recovery

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"
)

// Raw b-tree salvage. Used when the driver cannot read the file at all:
// the pages are walked directly and every decodable record is kept. Rows
// whose payload spills to overflow pages are skipped rather than guessed at.

const (
	pageInteriorTable = 0x05
	pageLeafTable     = 0x0d
)

type rawDB struct {
	data     []byte
	pageSize int
	usable   int
}

type salvagedRow struct {
	rowid int64
	vals  []any
}

type walkStats struct {
	badPages int
	badCells int
	overflow int
}

// salvageTables rebuilds table contents by walking b-tree pages directly.
// The schema itself is salvaged first from page 1 (sqlite_master), so this
// works even when the driver refuses the file.
func salvageTables(path string) ([]recoveredTable, []string, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(raw) < 100 {
		return nil, nil, nil, fmt.Errorf("file too short to salvage")
	}
	pageSize := int(binary.BigEndian.Uint16(raw[16:18]))
	if pageSize == 1 {
		pageSize = 65536
	}
	if pageSize < 512 || pageSize > 65536 || pageSize&(pageSize-1) != 0 {
		return nil, nil, nil, fmt.Errorf("invalid page size %d", pageSize)
	}
	reserved := int(raw[20])
	db := &rawDB{data: raw, pageSize: pageSize, usable: pageSize - reserved}

	var schemaStats walkStats
	schemaRows := db.walkTable(1, &schemaStats)
	if len(schemaRows) == 0 {
		return nil, nil, nil, fmt.Errorf("schema page unreadable")
	}

	type schemaEntry struct {
		name      string
		rootpage  int
		createSQL string
	}
	var schema []schemaEntry
	for _, row := range schemaRows {
		if len(row.vals) < 5 {
			continue
		}
		if asString(row.vals[0]) != "table" {
			continue
		}
		name := asString(row.vals[1])
		if name == "" || strings.HasPrefix(name, "sqlite_") {
			continue
		}
		root := int(asInt(row.vals[3]))
		if root <= 0 {
			continue
		}
		schema = append(schema, schemaEntry{name: name, rootpage: root, createSQL: asString(row.vals[4])})
	}
	if len(schema) == 0 {
		return nil, nil, nil, fmt.Errorf("no table entries in salvaged schema")
	}

	var tables []recoveredTable
	var allNames []string
	var warns []string
	if schemaStats.badPages > 0 || schemaStats.badCells > 0 {
		warns = append(warns, fmt.Sprintf("schema partially damaged: %d pages and %d cells skipped",
			schemaStats.badPages, schemaStats.badCells))
	}
	for _, e := range schema {
		allNames = append(allNames, e.name)
		var stats walkStats
		rows := db.walkTable(e.rootpage, &stats)
		if len(rows) == 0 && (stats.badPages > 0 || stats.badCells > 0) {
			warns = append(warns, fmt.Sprintf("table %s: no rows salvageable", e.name))
			continue
		}
		cols, rowidAlias := parseColumns(e.createSQL)
		t := recoveredTable{name: e.name, createSQL: e.createSQL}
		for _, row := range rows {
			vals := row.vals
			if len(cols) > 0 {
				vals = fitRow(vals, len(cols))
			}
			if rowidAlias >= 0 && rowidAlias < len(vals) && vals[rowidAlias] == nil {
				vals[rowidAlias] = row.rowid
			}
			t.rows = append(t.rows, vals)
		}
		tables = append(tables, t)
		if stats.badPages > 0 || stats.badCells > 0 || stats.overflow > 0 {
			warns = append(warns, fmt.Sprintf("table %s: kept %d rows, skipped %d pages, %d cells, %d overflowing rows",
				e.name, len(t.rows), stats.badPages, stats.badCells, stats.overflow))
		}
	}
	return tables, allNames, warns, nil
}

func (d *rawDB) page(n int) []byte {
	if n < 1 {
		return nil
	}
	start := (n - 1) * d.pageSize
	end := start + d.pageSize
	if start < 0 || end > len(d.data) {
		return nil
	}
	return d.data[start:end]
}

// walkTable collects every decodable row in the table rooted at page root.
// Damaged pages and cells are counted and skipped so one bad page cannot
// hide the rest of the tree.
func (d *rawDB) walkTable(root int, stats *walkStats) []salvagedRow {
	var rows []salvagedRow
	visited := map[int]bool{}
	stack := []int{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true

		page := d.page(n)
		if page == nil {
			stats.badPages++
			continue
		}
		hdr := 0
		if n == 1 {
			hdr = 100
		}
		switch page[hdr] {
		case pageInteriorTable:
			cellCount := int(binary.BigEndian.Uint16(page[hdr+3 : hdr+5]))
			right := int(binary.BigEndian.Uint32(page[hdr+8 : hdr+12]))
			stack = append(stack, right)
			ptrs := hdr + 12
			for i := 0; i < cellCount; i++ {
				off := ptrs + 2*i
				if off+2 > len(page) {
					stats.badCells++
					break
				}
				c := int(binary.BigEndian.Uint16(page[off : off+2]))
				if c+4 > len(page) {
					stats.badCells++
					continue
				}
				stack = append(stack, int(binary.BigEndian.Uint32(page[c:c+4])))
			}
		case pageLeafTable:
			cellCount := int(binary.BigEndian.Uint16(page[hdr+3 : hdr+5]))
			ptrs := hdr + 8
			for i := 0; i < cellCount; i++ {
				off := ptrs + 2*i
				if off+2 > len(page) {
					stats.badCells++
					break
				}
				c := int(binary.BigEndian.Uint16(page[off : off+2]))
				row, ok := d.decodeLeafCell(page, c, stats)
				if !ok {
					continue
				}
				rows = append(rows, row)
			}
		default:
			stats.badPages++
		}
	}
	return rows
}

// decodeLeafCell parses one table-leaf cell: payload length, rowid, record.
func (d *rawDB) decodeLeafCell(page []byte, c int, stats *walkStats) (salvagedRow, bool) {
	if c < 0 || c >= len(page) {
		stats.badCells++
		return salvagedRow{}, false
	}
	payloadLen, n1 := readVarint(page[c:])
	if n1 == 0 || payloadLen < 0 {
		stats.badCells++
		return salvagedRow{}, false
	}
	rowid, n2 := readVarint(page[c+n1:])
	if n2 == 0 {
		stats.badCells++
		return salvagedRow{}, false
	}
	maxLocal := int64(d.usable - 35)
	if payloadLen > maxLocal {
		stats.overflow++
		return salvagedRow{}, false
	}
	start := c + n1 + n2
	end := start + int(payloadLen)
	if end > len(page) {
		stats.badCells++
		return salvagedRow{}, false
	}
	vals, ok := decodeRecord(page[start:end])
	if !ok {
		stats.badCells++
		return salvagedRow{}, false
	}
	return salvagedRow{rowid: rowid, vals: vals}, true
}

// decodeRecord parses the serial-type header and value body of one record.
func decodeRecord(payload []byte) ([]any, bool) {
	hdrLen, n := readVarint(payload)
	if n == 0 || hdrLen < int64(n) || hdrLen > int64(len(payload)) {
		return nil, false
	}
	var serials []int64
	pos := n
	for int64(pos) < hdrLen {
		st, sn := readVarint(payload[pos:])
		if sn == 0 {
			return nil, false
		}
		serials = append(serials, st)
		pos += sn
	}
	vals := make([]any, 0, len(serials))
	body := int(hdrLen)
	for _, st := range serials {
		size, ok := serialSize(st)
		if !ok || body+size > len(payload) {
			return nil, false
		}
		vals = append(vals, decodeSerial(st, payload[body:body+size]))
		body += size
	}
	return vals, true
}

func serialSize(st int64) (int, bool) {
	switch {
	case st == 0, st == 8, st == 9:
		return 0, true
	case st == 1:
		return 1, true
	case st == 2:
		return 2, true
	case st == 3:
		return 3, true
	case st == 4:
		return 4, true
	case st == 5:
		return 6, true
	case st == 6, st == 7:
		return 8, true
	case st >= 12 && st%2 == 0:
		return int(st-12) / 2, true
	case st >= 13:
		return int(st-13) / 2, true
	default:
		return 0, false
	}
}

func decodeSerial(st int64, b []byte) any {
	switch {
	case st == 0:
		return nil
	case st >= 1 && st <= 6:
		return readBEInt(b)
	case st == 7:
		return math.Float64frombits(binary.BigEndian.Uint64(b))
	case st == 8:
		return int64(0)
	case st == 9:
		return int64(1)
	case st >= 12 && st%2 == 0:
		return append([]byte(nil), b...)
	default:
		return string(b)
	}
}

// asString and asInt read salvaged values whose serial types may disagree
// with the schema's declared affinity.
func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case int64:
		return fmt.Sprintf("%d", s)
	}
	return ""
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

// readBEInt sign-extends a big-endian integer of 1 to 8 bytes.
func readBEInt(b []byte) int64 {
	var v int64
	if len(b) > 0 && b[0]&0x80 != 0 {
		v = -1
	}
	for _, by := range b {
		v = v<<8 | int64(by)
	}
	return v
}

// readVarint decodes SQLite's 1-to-9 byte varint. A zero length means the
// input was exhausted mid-value.
func readVarint(b []byte) (int64, int) {
	var u uint64
	for i := 0; i < len(b) && i < 8; i++ {
		u = u<<7 | uint64(b[i]&0x7f)
		if b[i]&0x80 == 0 {
			return int64(u), i + 1
		}
	}
	if len(b) < 9 {
		return 0, 0
	}
	u = u<<8 | uint64(b[8])
	return int64(u), 9
}
