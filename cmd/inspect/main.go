// Command inspect dumps gateway records straight from a Badger directory.
// Handy while debugging delivery issues: it reads the same keys the
// repositories write, without going through the gateway.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg:, user:, server:, chat:)")
	flag.Parse()

	// BypassLockGuard allows opening while the gateway holds the lock.
	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Detail"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			err := item.Value(func(v []byte) error {
				table.Append([]string{key, kindOf(key), describe(key, v)})
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Scan failed: ", err)
	}

	table.Render()
	color.Green.Printf("%d records under prefix %q\n", count, *prefix)
}

func kindOf(key string) string {
	switch {
	case strings.HasPrefix(key, "msg:"):
		return "MESSAGE"
	case strings.HasPrefix(key, "user:"):
		return "USER"
	case strings.HasPrefix(key, "username:"):
		return "INDEX"
	case strings.HasPrefix(key, "server:"):
		return "SERVER"
	case strings.HasPrefix(key, "chat:"):
		return "CHAT"
	case strings.HasPrefix(key, "chatmember:"), strings.HasPrefix(key, "servermember:"):
		return "MEMBERSHIP"
	default:
		return "OTHER"
	}
}

// describe renders a compact human-readable line per record. Unknown or
// valueless rows fall back to the raw bytes.
func describe(key string, value []byte) string {
	if len(value) == 0 {
		return "-"
	}

	var fields map[string]any
	if err := json.Unmarshal(value, &fields); err != nil {
		return string(value)
	}

	switch kindOf(key) {
	case "MESSAGE":
		at := "?"
		if nanos, ok := fields["at"].(float64); ok {
			at = time.Unix(0, int64(nanos)).UTC().Format(time.RFC3339)
		}
		return fmt.Sprintf("%v @ %s: %v", fields["author"], at, fields["content"])
	case "USER":
		return fmt.Sprintf("%v online=%v last_active=%v", fields["username"], fields["is_online"], fields["last_active"])
	case "SERVER":
		return fmt.Sprintf("%v owner=%v", fields["name"], fields["owner_id"])
	case "CHAT":
		return fmt.Sprintf("%v server=%v direct=%v", fields["name"], fields["server_id"], fields["is_direct"])
	default:
		return string(value)
	}
}
