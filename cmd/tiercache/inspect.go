package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite"
)

// inspectOptions filter what inspectDatabase prints.
type inspectOptions struct {
	tag     string
	limit   int
	expired bool
}

var inspectFlags inspectOptions

var inspectCmd = &cobra.Command{
	Use:   "inspect <database>",
	Short: "List the entries in a durable tier database",
	Long: `Open a durable tier SQLite database read-only and print its entries:
key, payload size, priority, expiry, access count, and tags. The live
cache keeps writing while inspect reads.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspectDatabase(cmd.Context(), cmd.OutOrStdout(), args[0], inspectFlags)
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFlags.tag, "tag", "", "only print entries carrying this tag")
	inspectCmd.Flags().IntVar(&inspectFlags.limit, "limit", 0, "maximum entries to print (0 = all)")
	inspectCmd.Flags().BoolVar(&inspectFlags.expired, "expired", false, "include entries past their expiry")
	rootCmd.AddCommand(inspectCmd)
}

func inspectDatabase(ctx context.Context, w io.Writer, path string, opts inspectOptions) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot open database: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", url.PathEscape(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, `
		SELECT key, size_bytes, compressed, priority, expires_at, access_count, tags
		FROM cache_entries
		ORDER BY key`)
	if err != nil {
		return fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	now := time.Now().UnixNano()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSIZE\tZSTD\tPRIORITY\tEXPIRES\tACCESS\tTAGS")

	printed, total := 0, 0
	var totalBytes int64
	for rows.Next() {
		var (
			key, priority, tags string
			size, expiresAt     int64
			accessCount         int64
			compressed          bool
		)
		if err := rows.Scan(&key, &size, &compressed, &priority, &expiresAt, &accessCount, &tags); err != nil {
			return fmt.Errorf("scan entry: %w", err)
		}

		expired := expiresAt > 0 && expiresAt <= now
		if expired && !opts.expired {
			continue
		}
		if opts.tag != "" && !hasTag(tags, opts.tag) {
			continue
		}

		total++
		totalBytes += size
		if opts.limit > 0 && printed >= opts.limit {
			continue
		}
		printed++

		expiresCol := "-"
		if expiresAt > 0 {
			expiresCol = time.Unix(0, expiresAt).UTC().Format(time.RFC3339)
			if expired {
				expiresCol += " (expired)"
			}
		}
		zstdCol := "-"
		if compressed {
			zstdCol = "yes"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\t%s\n",
			key, size, zstdCol, priority, expiresCol, accessCount, formatTags(tags))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan entries: %w", err)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if printed < total {
		fmt.Fprintf(w, "\n%d of %d entries shown, %d bytes total\n", printed, total, totalBytes)
	} else {
		fmt.Fprintf(w, "\n%d entries, %d bytes total\n", total, totalBytes)
	}
	return nil
}

// hasTag reports whether the JSON tag array contains tag.
func hasTag(raw, tag string) bool {
	for _, v := range gjson.Parse(raw).Array() {
		if v.String() == tag {
			return true
		}
	}
	return false
}

// formatTags renders the stored JSON array as a comma list for the table.
func formatTags(raw string) string {
	vals := gjson.Parse(raw).Array()
	if len(vals) == 0 {
		return "-"
	}
	out := ""
	for i, v := range vals {
		if i > 0 {
			out += ","
		}
		out += v.String()
	}
	return out
}
