package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/inkvault/comictrack/internal/clock"
	"github.com/inkvault/comictrack/internal/database"
	"github.com/inkvault/comictrack/internal/database/progress"
	"github.com/inkvault/comictrack/internal/reading"
)

// SweepSessionsCommand force-closes stale reading sessions from the command
// line, for operators who want to run the sweep outside the scheduler.
type SweepSessionsCommand struct {
	DatabasePath string
	MaxAge       time.Duration
}

// NewSweepSessionsCommand creates a new SweepSessionsCommand
func NewSweepSessionsCommand() *SweepSessionsCommand {
	return &SweepSessionsCommand{}
}

// ParseFlags parses command line flags
func (cmd *SweepSessionsCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("sweep-sessions", flag.ExitOnError)

	fs.StringVar(&cmd.DatabasePath, "db", "./comictrack.db", "Path to the database file")
	fs.DurationVar(&cmd.MaxAge, "max-age", 8*time.Hour, "Close sessions active longer than this")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sweep-sessions [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Close reading sessions abandoned by disconnected clients.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s sweep-sessions\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s sweep-sessions -db /data/comictrack.db -max-age 4h\n", os.Args[0])
	}

	return fs.Parse(args)
}

// Run executes the sweep command
func (cmd *SweepSessionsCommand) Run() error {
	absDBPath, err := filepath.Abs(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for database: %w", err)
	}
	cmd.DatabasePath = absDBPath

	db, err := database.NewDatabase(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	fmt.Printf("Database: %s\n", cmd.DatabasePath)
	fmt.Printf("Max age:  %s\n", cmd.MaxAge)

	clk := clock.System()
	repo := progress.NewRepository(db.DB, clk)
	manager := reading.NewSessionManager(repo, nil, clk)

	closed, err := manager.CloseStale(cmd.MaxAge)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	fmt.Printf("Closed %d stale sessions\n", closed)
	return nil
}
