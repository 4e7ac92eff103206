// Widget CLI: runs the valuation conversation on stdin/stdout.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashureev/wealth-widget/internal/conversation"
	"github.com/ashureev/wealth-widget/internal/domain"
	"github.com/ashureev/wealth-widget/internal/sink"
	"github.com/ashureev/wealth-widget/internal/store"
)

func main() {
	_ = godotenv.Load()

	dbPath := flag.String("db", "", "SQLite database to store the lead in (prints JSON to stdout when empty)")
	strict := flag.Bool("strict", false, "reject non-positive amounts and one-letter names")
	timeout := flag.Duration("submit-timeout", 5*time.Second, "maximum time to wait for the lead sink")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var submitter sink.Sink = stdoutSink(os.Stdout)
	if *dbPath != "" {
		db, err := store.NewSQLite(*dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		submitter = db
	}

	opts := conversation.DefaultOptions()
	if *strict {
		opts = conversation.StrictOptions()
	}
	opts.SubmitTimeout = *timeout

	if err := run(ctx, os.Stdin, os.Stdout, submitter, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run drives one conversation until it completes or input ends.
func run(ctx context.Context, in io.Reader, out io.Writer, submitter conversation.Submitter, opts conversation.Options) error {
	session := domain.NewSession("cli", "tty", time.Now())
	driver := conversation.NewDriver(session, submitter, opts)
	printMessages(out, driver.Start().Messages)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "[%s] > ", driver.Prompt().Placeholder)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		reply, err := driver.Handle(ctx, scanner.Text())
		if err != nil {
			if errors.Is(err, conversation.ErrComplete) {
				return nil
			}
			return err
		}
		printMessages(out, reply.Messages)

		if reply.Complete() {
			if reply.SubmitErr != nil {
				return fmt.Errorf("lead not stored: %w", reply.SubmitErr)
			}
			return nil
		}
	}
}

func printMessages(out io.Writer, msgs []domain.Message) {
	for _, m := range msgs {
		if m.Speaker != domain.SpeakerAssistant {
			continue
		}
		fmt.Fprintf(out, "assistant: %s\n", strings.TrimSpace(m.Text))
	}
}

func stdoutSink(out io.Writer) sink.Func {
	return sink.Func{
		Label: "stdout",
		Fn: func(_ context.Context, rec domain.SubmissionRecord) error {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
}
