package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/yungbote/noticeserve-backend/internal/client/batchclient"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

const defaultBackoff = batchclient.DefaultBackoffUnit

func newClient(cmd *cli.Command) (*batchclient.Client, *logger.Logger, error) {
	log, err := logger.New(cmd.String("log-mode"))
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	c, err := batchclient.New(log, batchclient.Config{
		BaseURL:     cmd.String("server"),
		Token:       cmd.String("token"),
		MaxRetries:  int(cmd.Int("max-retries")),
		BackoffUnit: cmd.Duration("backoff"),
	})
	if err != nil {
		return nil, nil, err
	}
	return c, log, nil
}

func batchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "batch-id", Usage: "Batch id; generated by the server when empty"},
		&cli.StringFlag{Name: "server-address", Usage: "TRON address of the serving party", Required: true, Category: "Batch"},
		&cli.StringSliceFlag{Name: "recipient", Aliases: []string{"r"}, Usage: "Recipient TRON address (repeatable)", Required: true, Category: "Batch"},
		&cli.StringFlag{Name: "case-number", Category: "Batch"},
		&cli.StringFlag{Name: "notice-type", Category: "Batch"},
		&cli.StringFlag{Name: "issuing-agency", Category: "Batch"},
		&cli.StringFlag{Name: "ipfs-hash", Category: "Batch"},
		&cli.StringFlag{Name: "encryption-key", Category: "Batch", Sources: cli.EnvVars("NOTICE_ENCRYPTION_KEY")},
		&cli.StringFlag{Name: "alert-ids", Usage: "Comma separated alert ids", Category: "Batch"},
		&cli.StringFlag{Name: "document-ids", Usage: "Comma separated document ids", Category: "Batch"},
		&cli.StringFlag{Name: "thumbnail", Usage: "Path to the alert image", Category: "Files"},
		&cli.StringFlag{Name: "document", Usage: "Path to the notice document", Category: "Files"},
	}
}

func batchFromFlags(cmd *cli.Command) (batchclient.BatchData, error) {
	data := batchclient.BatchData{
		BatchID:       cmd.String("batch-id"),
		ServerAddress: cmd.String("server-address"),
		Recipients:    cmd.StringSlice("recipient"),
		CaseNumber:    cmd.String("case-number"),
		NoticeType:    cmd.String("notice-type"),
		IssuingAgency: cmd.String("issuing-agency"),
		IPFSHash:      cmd.String("ipfs-hash"),
		EncryptionKey: cmd.String("encryption-key"),
	}
	var err error
	if data.AlertIDs, err = parseIDs(cmd.String("alert-ids")); err != nil {
		return data, fmt.Errorf("--alert-ids: %w", err)
	}
	if data.DocumentIDs, err = parseIDs(cmd.String("document-ids")); err != nil {
		return data, fmt.Errorf("--document-ids: %w", err)
	}
	if data.Thumbnail, err = readFile(cmd.String("thumbnail")); err != nil {
		return data, err
	}
	if data.Document, err = readFile(cmd.String("document")); err != nil {
		return data, err
	}
	return data, nil
}

func cmdUpload() *cli.Command {
	return &cli.Command{
		Name:    "upload",
		Aliases: []string{"u"},
		Usage:   "Upload a batch with optional thumbnail and document",
		Flags:   batchFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, log, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			data, err := batchFromFlags(cmd)
			if err != nil {
				return err
			}
			res, err := c.UploadBatchDocuments(ctx, data)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func cmdStatus() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show a batch and its items",
		ArgsUsage: "<batch-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one batch id")
			}
			c, log, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			st, err := c.GetBatchStatus(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}
}

func cmdValidate() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Run the server-side validator without writing anything",
		Flags: batchFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, log, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			data, err := batchFromFlags(cmd)
			if err != nil {
				return err
			}
			res, err := c.ValidateBatch(ctx, data)
			if err != nil {
				return err
			}
			if err := printJSON(res); err != nil {
				return err
			}
			if !res.Valid {
				return cli.Exit("batch is invalid", 2)
			}
			return nil
		},
	}
}

func parseIDs(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func readFile(path string) (*batchclient.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &batchclient.File{Name: filepath.Base(path), ContentType: ct, Data: data}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

