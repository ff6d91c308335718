package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/pubsub/internal/config"
	"github.com/Iron-Ham/pubsub/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the pubsub debug log",
	Long: `View and filter the JSON debug log written when logging.enabled is true.

Examples:
  # Show the last 50 entries
  pubsub logs

  # Only warnings about one script
  pubsub logs --level warn --script basic

  # Follow new entries
  pubsub logs -f

  # Entries from the last hour mentioning a key
  pubsub logs --since 1h --grep "user\\."`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail   int
	logsFollow bool
	logsLevel  string
	logsSince  string
	logsGrep   string
	logsScript string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsScript, "script", "", "Only entries for this script name")
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Time   time.Time      `json:"time"`
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Script string         `json:"script,omitempty"`
	Key    string         `json:"key,omitempty"`
	Extra  map[string]any `json:"-"`
}

// UnmarshalJSON captures fields other than the known ones in Extra.
func (e *logEntry) UnmarshalJSON(data []byte) error {
	type Alias logEntry
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, known := range []string{"time", "level", "msg", "script", "key"} {
		delete(all, known)
	}
	if len(all) > 0 {
		e.Extra = all
	}

	return nil
}

// logFilter holds the parsed filter flags.
type logFilter struct {
	minLevel int
	since    time.Time
	grep     *regexp.Regexp
	script   string
}

// levelPriority returns the priority of a log level for filtering
func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

func newLogFilter(level, since, grep, script string, now time.Time) (logFilter, error) {
	f := logFilter{minLevel: -1, script: script}

	if level != "" {
		f.minLevel = levelPriority(logging.ParseLevel(level))
	}
	if since != "" {
		d, err := time.ParseDuration(since)
		if err != nil {
			return f, fmt.Errorf("invalid duration format: %w", err)
		}
		f.since = now.Add(-d)
	}
	if grep != "" {
		re, err := regexp.Compile(grep)
		if err != nil {
			return f, fmt.Errorf("invalid grep pattern: %w", err)
		}
		f.grep = re
	}
	return f, nil
}

// passes checks if a log entry passes all filter criteria
func (f logFilter) passes(entry *logEntry) bool {
	if f.minLevel >= 0 && levelPriority(entry.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && entry.Time.Before(f.since) {
		return false
	}
	if f.script != "" && entry.Script != f.script {
		return false
	}
	if f.grep != nil {
		searchText := entry.Msg + " " + entry.Key
		for _, v := range entry.Extra {
			searchText += " " + fmt.Sprintf("%v", v)
		}
		if !f.grep.MatchString(searchText) {
			return false
		}
	}
	return true
}

func (p palette) level(level string) string {
	label := "[" + strings.ToUpper(level) + "]"
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return p.dim.Render(label)
	case logging.LevelInfo:
		return p.info.Render(label)
	case logging.LevelWarn:
		return p.warn.Render(label)
	case logging.LevelError:
		return p.fail.Render(label)
	default:
		return label
	}
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(p palette, entry *logEntry) string {
	var sb strings.Builder

	sb.WriteString(p.dim.Render("[" + entry.Time.Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	sb.WriteString(p.level(entry.Level))
	sb.WriteString(" ")
	sb.WriteString(entry.Msg)

	if entry.Script != "" {
		sb.WriteString(" " + p.key.Render("script=") + entry.Script)
	}
	if entry.Key != "" {
		sb.WriteString(" " + p.key.Render("key=") + entry.Key)
	}

	keys := make([]string, 0, len(entry.Extra))
	for k := range entry.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(" " + p.key.Render(k+"=") + fmt.Sprintf("%v", entry.Extra[k]))
	}

	return sb.String()
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()
	logPath := filepath.Join(cfg.Logging.ResolveDir(), logging.FileName)

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "No logs found.")
		fmt.Fprintln(out, "Logs are stored at:", logPath)
		if !cfg.Logging.Enabled {
			fmt.Fprintln(out, "Enable them with: pubsub config set logging.enabled true")
		}
		return nil
	}

	filter, err := newLogFilter(logsLevel, logsSince, logsGrep, logsScript, time.Now())
	if err != nil {
		return err
	}
	p := newPalette(out, colorEnabled(out, cfg.Output.Color))

	if logsFollow {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return followLogs(ctx, out, logPath, p, filter)
	}
	return displayLogs(out, logPath, logsTail, p, filter)
}

// displayLogs reads the log file and displays filtered entries
func displayLogs(out io.Writer, logPath string, tail int, p palette, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var entry logEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			lines = append(lines, line)
			continue
		}
		if !filter.passes(&entry) {
			continue
		}
		lines = append(lines, formatLogEntry(p, &entry))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	if len(lines) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
	}

	return nil
}

// followLogs prints entries appended to the log file until ctx is done.
func followLogs(ctx context.Context, out io.Writer, logPath string, p palette, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(out, "Following logs... (Ctrl+C to stop)\n\n")

	reader := bufio.NewReader(file)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var partial string
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			partial += line
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				continue
			}
		}
		if err != nil {
			return fmt.Errorf("error reading log file: %w", err)
		}

		line = strings.TrimSpace(partial + line)
		partial = ""
		if line == "" {
			continue
		}

		var entry logEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			fmt.Fprintln(out, line)
			continue
		}
		if filter.passes(&entry) {
			fmt.Fprintln(out, formatLogEntry(p, &entry))
		}
	}
}
