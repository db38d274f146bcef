package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// addressToDB converts an optional checksummed address into the hex string
// Table's hand-written SQL expects. Table writes bypass meddler's PreWrite
// hook (they go through plain ExecContext), so the conversion is done here
// instead.
func addressToDB(addr *common.Address) interface{} {
	if addr == nil {
		return nil
	}
	return addr.Hex()
}

// forbiddenUpdateColumns can never be set through Table.update: the primary
// key and timestamps are repository-managed (spec §4.8: "name, immutable
// fields account_id, created_at, updated_at are forbidden").
var forbiddenUpdateColumns = map[string]bool{
	"account_id": true,
	"created_at": true,
	"updated_at": true,
}

// Table is the shared SQL builder behind every entity repository: schema-
// qualified table name, primary key column, and an explicit allow-list of
// columns that may be set through update.
type Table struct {
	db      *sql.DB
	name    string // schema-qualified
	pk      string
	allowed map[string]bool
}

// NewTable constructs a Table helper. allowedUpdateColumns is the
// update() allow-list; pk and the event-pointer/timestamp columns never
// need to appear in it.
func NewTable(database *sql.DB, schema, tableName, pk string, allowedUpdateColumns []string) *Table {
	allowed := make(map[string]bool, len(allowedUpdateColumns))
	for _, c := range allowedUpdateColumns {
		allowed[c] = true
	}
	return &Table{db: database, name: schema + "." + tableName, pk: pk, allowed: allowed}
}

// upsertPartial inserts fields (plus pk and the event pointer) or, on
// conflict, updates the same fixed set of columns, guarded so a write with
// an older-or-equal pointer than the stored one is a no-op (spec §4.8:
// "upsertPartial(baseline) ... replayable").
func (t *Table) upsertPartial(ctx context.Context, tx *sql.Tx, pkValue string, fields map[string]interface{}, pointer EventPointer) error {
	cols := sortedKeys(fields)

	insertCols := append([]string{t.pk}, cols...)
	insertCols = append(insertCols, "last_event_block", "last_event_tx_index", "last_event_log_index")

	args := make([]interface{}, 0, len(insertCols))
	placeholders := make([]string, 0, len(insertCols))
	args = append(args, pkValue)
	placeholders = append(placeholders, "$1")
	for _, c := range cols {
		args = append(args, fields[c])
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	args = append(args, pointer.Block, pointer.TxIndex, pointer.LogIndex)
	placeholders = append(placeholders,
		fmt.Sprintf("$%d", len(args)-2), fmt.Sprintf("$%d", len(args)-1), fmt.Sprintf("$%d", len(args)))

	setClauses := make([]string, 0, len(cols)+3)
	for _, c := range cols {
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	setClauses = append(setClauses,
		"last_event_block = EXCLUDED.last_event_block",
		"last_event_tx_index = EXCLUDED.last_event_tx_index",
		"last_event_log_index = EXCLUDED.last_event_log_index",
		"updated_at = now()")

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)
		 ON CONFLICT (%s) DO UPDATE SET %s
		 WHERE (%s.last_event_block, %s.last_event_tx_index, %s.last_event_log_index)
		       < (EXCLUDED.last_event_block, EXCLUDED.last_event_tx_index, EXCLUDED.last_event_log_index)`,
		t.name, strings.Join(insertCols, ", "), strings.Join(placeholders, ", "),
		t.pk, strings.Join(setClauses, ", "), t.name, t.name, t.name)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting %s %s: %w", t.name, pkValue, err)
	}
	return nil
}

// update sets only the provided fields, rejecting any outside the
// allow-list, guarded by the event pointer. Exactly one row must be
// affected: the entity must already exist (spec §4.8).
func (t *Table) update(ctx context.Context, tx *sql.Tx, pkValue string, fields map[string]interface{}, pointer EventPointer) error {
	for c := range fields {
		if forbiddenUpdateColumns[c] {
			return fmt.Errorf("updating %s: column %q is immutable", t.name, c)
		}
		if !t.allowed[c] {
			return fmt.Errorf("updating %s: column %q is not in the update allow-list", t.name, c)
		}
	}

	cols := sortedKeys(fields)
	setClauses := make([]string, 0, len(cols)+4)
	args := make([]interface{}, 0, len(cols)+5)

	for _, c := range cols {
		args = append(args, fields[c])
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", c, len(args)))
	}

	args = append(args, pointer.Block)
	setClauses = append(setClauses, fmt.Sprintf("last_event_block = $%d", len(args)))
	args = append(args, pointer.TxIndex)
	setClauses = append(setClauses, fmt.Sprintf("last_event_tx_index = $%d", len(args)))
	args = append(args, pointer.LogIndex)
	setClauses = append(setClauses, fmt.Sprintf("last_event_log_index = $%d", len(args)))
	setClauses = append(setClauses, "updated_at = now()")

	args = append(args, pkValue)
	pkArg := len(args)
	args = append(args, pointer.Block, pointer.TxIndex, pointer.LogIndex)

	query := fmt.Sprintf(
		`UPDATE %s SET %s
		 WHERE %s = $%d
		   AND (last_event_block, last_event_tx_index, last_event_log_index) < ($%d, $%d, $%d)`,
		t.name, strings.Join(setClauses, ", "), t.pk, pkArg, pkArg+1, pkArg+2, pkArg+3)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating %s %s: %w", t.name, pkValue, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating %s %s: checking rows affected: %w", t.name, pkValue, err)
	}
	if n != 1 {
		return fmt.Errorf("updating %s %s: expected to affect 1 row, affected %d (missing or stale pointer %s)",
			t.name, pkValue, n, pointer)
	}
	return nil
}

// ensureExists inserts fields if pkValue is absent; it never updates an
// existing row nor advances its event pointer (reference semantics, spec
// §4.8: "does not update event pointer on re-encounter").
func (t *Table) ensureExists(ctx context.Context, tx *sql.Tx, pkValue string, fields map[string]interface{}) error {
	cols := sortedKeys(fields)
	insertCols := append([]string{t.pk}, cols...)

	args := make([]interface{}, 0, len(insertCols))
	placeholders := make([]string, 0, len(insertCols))
	args = append(args, pkValue)
	placeholders = append(placeholders, "$1")
	for _, c := range cols {
		args = append(args, fields[c])
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING`,
		t.name, strings.Join(insertCols, ", "), strings.Join(placeholders, ", "), t.pk)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ensuring %s %s exists: %w", t.name, pkValue, err)
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
