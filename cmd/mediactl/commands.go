package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-media/pkg/mediaingest"
	"github.com/tendant/simple-media/pkg/mediaingest/config"
	"github.com/tendant/simple-media/pkg/mediaingest/logging"
	"github.com/tendant/simple-media/pkg/mediaingest/repo/postgres"
	"github.com/tendant/simple-media/pkg/mediaingest/retention"
	s3store "github.com/tendant/simple-media/pkg/mediaingest/storage/s3"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func newStorage(ctx context.Context, cfg *config.Config) (*s3store.Backend, error) {
	return s3store.New(ctx, s3store.Config{
		Region:          cfg.Region,
		Bucket:          cfg.Bucket,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Endpoint:        cfg.Endpoint,
		UsePathStyle:    cfg.UsePathStyle,
	})
}

// NewLifecycleCommand creates the lifecycle command group
func NewLifecycleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lifecycle",
		Short: "Manage the raw-upload expiry rule on the media bucket",
	}
	cmd.AddCommand(newLifecycleApplyCommand())
	cmd.AddCommand(newLifecycleShowCommand())
	return cmd
}

func newLifecycleApplyCommand() *cobra.Command {
	var days int32

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Install or update the rule that expires objects under uploads/",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if days <= 0 {
				days = cfg.RetentionDays
			}

			ctx := cmd.Context()
			backend, err := newStorage(ctx, cfg)
			if err != nil {
				return err
			}

			policy := retention.DefaultPolicy().WithDays(days)
			if err := retention.Apply(ctx, backend.Client(), cfg.Bucket, policy); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied rule %q to s3://%s/%s: expire after %d days\n", policy.ID, cfg.Bucket, policy.Prefix, policy.ExpireAfterDays)
			return nil
		},
	}

	cmd.Flags().Int32Var(&days, "days", 0, "retention window in days (default RETENTION_DAYS)")
	return cmd
}

func newLifecycleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the bucket's lifecycle rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			backend, err := newStorage(ctx, cfg)
			if err != nil {
				return err
			}

			rules, err := retention.Current(ctx, backend.Client(), cfg.Bucket)
			if err != nil {
				return err
			}
			printRules(cmd.OutOrStdout(), rules)
			return nil
		},
	}
}

func printRules(out io.Writer, rules []types.LifecycleRule) {
	if len(rules) == 0 {
		fmt.Fprintln(out, "No lifecycle rules")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPREFIX\tEXPIRE DAYS")
	for _, rule := range rules {
		prefix := ""
		if rule.Filter != nil {
			prefix = aws.ToString(rule.Filter.Prefix)
		}
		expire := "-"
		if rule.Expiration != nil && rule.Expiration.Days != nil {
			expire = fmt.Sprintf("%d", aws.ToInt32(rule.Expiration.Days))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", aws.ToString(rule.ID), rule.Status, prefix, expire)
	}
	w.Flush()
}

// NewVariantsCommand prints the active variant list after fallback handling
func NewVariantsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "Print the active variant specs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cfg.Variants())
		},
	}
}

// NewReprocessCommand runs the worker once for a raw upload key
func NewReprocessCommand() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Run the ingest worker for one raw upload",
		Long: `Run the ingest worker for one raw upload key, as if the storage
notification had been delivered again. Use it to replay uploads whose
notifications were lost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, ok := mediaingest.ParseUploadKey(key); !ok {
				return fmt.Errorf("key %q is not a raw upload key", key)
			}

			ctx := cmd.Context()
			rt, err := cfg.Build(ctx, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			rec, err := rt.Worker.Process(ctx, mediaingest.StorageRecord{Bucket: cfg.Bucket, Key: key})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "raw upload key, uploads/{tenant}/{album}/{image}/original/{filename}")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

// NewSchemaCommand prints the Postgres DDL
func NewSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the Postgres schema for the metadata store",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), postgres.Schema)
			return err
		},
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
