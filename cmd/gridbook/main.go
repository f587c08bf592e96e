// Package main provides the CLI entry point for gridbook.
package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"gridbook/internal/config"
	"gridbook/internal/engine"
	"gridbook/internal/server"
	"gridbook/internal/store"
	"gridbook/internal/xlsx"
)

var (
	addr    string
	dataDir string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gridbook",
		Short: "In-memory workbook engine with an HTTP and WebSocket API",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gridbook server",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")

	importCmd := &cobra.Command{
		Use:   "import [input.xlsx] [workbook-id]",
		Short: "Load an .xlsx file into a stored workbook",
		Args:  cobra.ExactArgs(2),
		RunE:  runImport,
	}
	importCmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")

	exportCmd := &cobra.Command{
		Use:   "export [workbook-id] [output.xlsx]",
		Short: "Write a stored workbook to an .xlsx file",
		Args:  cobra.ExactArgs(2),
		RunE:  runExport,
	}
	exportCmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")

	rootCmd.AddCommand(serveCmd, importCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if dataDir != "" {
		cfg.Data.Dir = dataDir
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	books := store.NewWorkbookManager(cfg.Data.Dir)
	books.Load()

	users := server.NewUserManager(cfg.Data.Dir, time.Duration(cfg.Auth.SessionTimeoutMinutes)*time.Minute)
	users.Load()

	hub := server.NewHub(books)
	go hub.Run()

	srv := server.New(books, users, hub)

	log.Printf("Server started on %s", cfg.Server.Addr)
	return http.ListenAndServe(cfg.Server.Addr, srv.Routes())
}

func runImport(cmd *cobra.Command, args []string) error {
	inputPath, id := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	in, err := xlsx.Read(file)
	if err != nil {
		return fmt.Errorf("parse %s: %w", inputPath, err)
	}

	books := store.NewWorkbookManager(cfg.Data.Dir)
	books.Load()

	if _, err := books.Create(id); err != nil && !errors.Is(err, store.ErrWorkbookExists) {
		return err
	}
	if err := books.With(id, func(wb *engine.Workbook) error {
		wb.Load(in)
		return nil
	}); err != nil {
		return err
	}

	log.Printf("Imported %s into workbook %s", inputPath, id)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	id, outputPath := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	books := store.NewWorkbookManager(cfg.Data.Dir)
	books.Load()

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	if err := books.View(id, func(wb *engine.Workbook) error {
		return xlsx.Write(out, wb)
	}); err != nil {
		return err
	}

	log.Printf("Exported workbook %s to %s", id, outputPath)
	return nil
}
