package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	s3select "github.com/hugr-lab/s3select-go"
	"github.com/hugr-lab/s3select-go/filter"
	"github.com/hugr-lab/s3select-go/record"
	"github.com/hugr-lab/s3select-go/schema"
)

// scanFlags are shared by plan and scan.
type scanFlags struct {
	configFile string
	options    map[string]string
	bucket     string
	key        string
	schemaDef  string
	columns    []string
	filters    []string
	verbose    bool
}

func (f *scanFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.configFile, "config", "", "YAML file with store options")
	fs.StringToStringVarP(&f.options, "option", "o", nil, "store option as key=value, overrides --config")
	fs.StringVar(&f.bucket, "bucket", "", "bucket name")
	fs.StringVar(&f.key, "key", "", "object key")
	fs.StringVar(&f.schemaDef, "schema", "", "object schema, e.g. 'id:int32,name:string?'")
	fs.StringSliceVar(&f.columns, "columns", nil, "columns to return (default all)")
	fs.StringArrayVar(&f.filters, "filter", nil, "row filter such as 'age >= 30' or 'city in Pune|Chennai'; repeatable")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	_ = cmd.MarkFlagRequired("schema")
}

func (f *scanFlags) config() (s3select.Config, error) {
	opts := map[string]string{}
	if f.configFile != "" {
		data, err := os.ReadFile(f.configFile)
		if err != nil {
			return s3select.Config{}, err
		}
		base, err := s3select.OptionsFromYAML(data)
		if err != nil {
			return s3select.Config{}, err
		}
		opts = base
	}
	for k, v := range f.options {
		opts[k] = v
	}

	cfg, err := s3select.ConfigFromOptions(opts)
	if err != nil {
		return s3select.Config{}, err
	}

	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, nil
}

func (f *scanFlags) input() (s3select.RequestInput, error) {
	s, err := schema.Parse(f.schemaDef)
	if err != nil {
		return s3select.RequestInput{}, err
	}
	preds := make([]filter.Predicate, 0, len(f.filters))
	for _, expr := range f.filters {
		p, err := parseFilter(s, expr)
		if err != nil {
			return s3select.RequestInput{}, err
		}
		preds = append(preds, p)
	}
	return s3select.RequestInput{
		Bucket:  f.bucket,
		Key:     f.key,
		Schema:  s,
		Columns: f.columns,
		Filters: preds,
	}, nil
}

func newPlanCmd() *cobra.Command {
	var flags scanFlags
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the select request a scan would send",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.config()
			if err != nil {
				return err
			}
			in, err := flags.input()
			if err != nil {
				return err
			}
			// Planning needs no object, only a valid request shape.
			if in.Bucket == "" {
				in.Bucket = "bucket"
			}
			if in.Key == "" {
				in.Key = "object"
			}
			req, err := s3select.BuildRequest(cfg, in)
			if err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), req)
		},
	}
	flags.register(cmd)
	return cmd
}

func printPlan(w io.Writer, req s3select.Request) error {
	if _, err := fmt.Fprintln(w, req.Expression); err != nil {
		return err
	}
	if req.Strict() {
		return nil
	}
	fields := filter.Fields(req.Residual...)
	_, err := fmt.Fprintf(w, "-- %d filter(s) evaluated locally on %s\n", len(req.Residual), strings.Join(fields, ", "))
	return err
}

func newScanCmd() *cobra.Command {
	var (
		flags       scanFlags
		noHeader    bool
		showMetrics bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a scan and write the rows as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.config()
			if err != nil {
				return err
			}
			in, err := flags.input()
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			scanner, err := s3select.NewScanner(cfg, s3select.WithMetrics(s3select.NewMetrics(reg)))
			if err != nil {
				return err
			}

			rows, err := scanner.Scan(cmd.Context(), in)
			if err != nil {
				return err
			}
			defer rows.Close()

			if err := writeCSV(cmd.OutOrStdout(), rows, !noHeader); err != nil {
				return err
			}
			if showMetrics {
				return printMetrics(cmd.ErrOrStderr(), reg)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&noHeader, "no-header", false, "omit the column header line")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print scan metrics to stderr")
	return cmd
}

func writeCSV(w io.Writer, rows *record.RowReader, header bool) error {
	out := csv.NewWriter(w)
	s := rows.Schema()
	if header {
		if err := out.Write(s.Names()); err != nil {
			return err
		}
	}

	line := make([]string, s.Len())
	for row, err := range rows.All() {
		if err != nil {
			return err
		}
		for i, v := range row {
			text, err := record.FormatField(v, s.Field(i))
			if err != nil {
				return err
			}
			line[i] = text
		}
		if err := out.Write(line); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				v = m.GetHistogram().GetSampleSum()
			default:
				continue
			}
			if _, err := fmt.Fprintf(w, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), v); err != nil {
				return err
			}
		}
	}
	return nil
}
