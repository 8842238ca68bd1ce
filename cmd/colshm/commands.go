package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andreyvit/colshm"
)

func newAddCommand(v *viper.Viper) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Encode a JSON table and add it to the region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			frame, err := readFrame(in)
			if err != nil {
				return err
			}

			r, err := openRegion(v)
			if err != nil {
				return err
			}
			defer r.Close()
			return r.AddTable(args[0], frame)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON table to add, - for stdin")
	return cmd
}

func newHeadCommand(v *viper.Viper) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "head NAME",
		Short: "Print the first rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRegion(v)
			if err != nil {
				return err
			}
			defer r.Close()
			f, err := r.Head(args[0], n)
			if err != nil {
				return err
			}
			return printFrame(cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().IntVarP(&n, "rows", "n", 5, "Number of rows")
	return cmd
}

func newGroupByCommand(v *viper.Viper) *cobra.Command {
	var by, sum string
	cmd := &cobra.Command{
		Use:   "groupby NAME",
		Short: "Sum one column grouped by another",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRegion(v)
			if err != nil {
				return err
			}
			defer r.Close()
			f, err := r.GroupBySum(args[0], by, sum)
			if err != nil {
				return err
			}
			return printFrame(cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "Grouping column")
	cmd.Flags().StringVar(&sum, "sum", "", "Summed column")
	_ = cmd.MarkFlagRequired("by")
	_ = cmd.MarkFlagRequired("sum")
	return cmd
}

func newMapCommand(v *viper.Viper) *cobra.Command {
	var column string
	var mul, add float64
	cmd := &cobra.Command{
		Use:   "map NAME",
		Short: "Rewrite a numeric column in place as value*mul + add",
		Long: `Rewrite a numeric column in place as value*mul + add.

Int64 columns are scaled with the multiplier and addend truncated to integers.
Utf8 and missing columns are left unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRegion(v)
			if err != nil {
				return err
			}
			defer r.Close()
			n, err := r.MapNumericColumn(args[0], column, colshm.AffineTransform(mul, add))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d values updated\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&column, "column", "", "Column to rewrite")
	cmd.Flags().Float64Var(&mul, "mul", 1, "Multiplier")
	cmd.Flags().Float64Var(&add, "add", 0, "Addend")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func newListCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List the tables in the region",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRegion(v)
			if err != nil {
				return err
			}
			defer r.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tOFFSET\tSIZE\tROWS\tCOLUMNS")
			for _, e := range r.Tables() {
				ts, err := r.TableStats(e.Name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", ts.Name, ts.Offset, ts.Size, ts.Rows, ts.Columns)
			}
			st := r.Stats()
			fmt.Fprintf(w, "\t\t%d/%d used\t\t\n", st.Used, st.Capacity)
			return w.Flush()
		},
	}
}

func newUnlinkCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink",
		Short: "Destroy the region and its directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := readSettings(v)
			opt, err := s.options()
			if err != nil {
				return err
			}
			return colshm.Unlink(s.Region, opt)
		},
	}
}

func newMetricsCommand(v *viper.Viper) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve region metrics over HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRegion(v)
			if err != nil {
				return err
			}
			defer r.Close()

			reg := prometheus.NewRegistry()
			if err := reg.Register(colshm.NewCollector(r)); err != nil {
				return err
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			fmt.Fprintf(cmd.ErrOrStderr(), "serving metrics on %s/metrics\n", listen)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "localhost:9464", "HTTP listen address")
	return cmd
}

func printFrame(out io.Writer, f *colshm.Frame) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, c := range f.Columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c.Name)
	}
	fmt.Fprintln(w)
	for row := range f.Rows() {
		for i := range f.Columns {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, formatValue(f.Columns[i].Value(row)))
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return strconv.Quote(v)
	default:
		return fmt.Sprint(v)
	}
}
