package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"audit-rag/internal/di"
	"audit-rag/internal/infra/config"
	"audit-rag/internal/infra/logger"
)

var errUsage = errors.New("usage error")

func main() {
	root := &cobra.Command{
		Use:   "auditrag [query]",
		Short: "Tax audit case search over the findings corpus",
		Long: "auditrag answers questions about tax audit cases.\n" +
			"With a query argument it answers once and exits; without one it\n" +
			"starts an interactive loop.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("%w: expected at most one query argument", errUsage)
			}
			return nil
		},
		RunE: run,
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	log := logger.NewWithOTel(cfg.LogOTel)
	slog.SetDefault(log)

	components, err := di.NewApplicationComponents(cfg, log)
	if err != nil {
		return err
	}
	defer components.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) == 1 {
		fmt.Println(components.AnswerQuery.RunQuery(ctx, args[0]))
		return nil
	}
	return interactive(ctx, components)
}

func interactive(ctx context.Context, components *di.ApplicationComponents) error {
	fmt.Println("세무조사 사례 검색 (종료: exit, quit, 종료)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("\n질문> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "exit", "quit", "종료":
			return nil
		}
		fmt.Println(components.AnswerQuery.RunQuery(ctx, line))
	}
	return scanner.Err()
}
