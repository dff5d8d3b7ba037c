package sqlite

import (
	"encoding/binary"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/mesh-intelligence/litewrap/pkg/engine"
)

// TableDigest returns an order-independent hash of every row of the named table.
// Two tables with the same rows, NULLs and storage classes included, hash equal.
func (c *Conn) TableDigest(table string) (uint64, error) {
	cur, err := c.ExecQuery("SELECT * FROM " + quoteIdent(table))
	if err != nil {
		return 0, err
	}
	defer cur.Finalize()

	var rows []uint64
	h := xxhash.New()
	for !cur.Eof() {
		h.Reset()
		for i := 0; i < cur.NumFields(); i++ {
			t, err := cur.FieldDataType(i)
			if err != nil {
				return 0, err
			}
			h.Write([]byte{byte(t)})
			if t != engine.TypeNull {
				v, err := cur.Bytes(i)
				if err != nil {
					return 0, err
				}
				writeLen(h, len(v))
				h.Write(v)
			}
		}
		rows = append(rows, h.Sum64())
		if err := cur.NextRow(); err != nil {
			return 0, err
		}
	}

	slices.Sort(rows)
	h.Reset()
	var buf [8]byte
	for _, r := range rows {
		binary.LittleEndian.PutUint64(buf[:], r)
		h.Write(buf[:])
	}
	return h.Sum64(), nil
}

// Digest returns a hash of every user table in the main database, keyed by table
// name.
func (c *Conn) Digest() (map[string]uint64, error) {
	t, err := c.GetTable("select name from sqlite_master where type='table' and name not like 'sqlite_%' order by name")
	if err != nil {
		return nil, err
	}
	defer t.Finalize()

	n, _ := t.NumRows()
	out := make(map[string]uint64, n)
	for r := 0; r < n; r++ {
		if err := t.SetRow(r); err != nil {
			return nil, err
		}
		name, err := t.FieldValue(0)
		if err != nil {
			return nil, err
		}
		d, err := c.TableDigest(name)
		if err != nil {
			return nil, err
		}
		out[name] = d
	}
	return out, nil
}

func writeLen(h *xxhash.Digest, n int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	h.Write(buf[:])
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
