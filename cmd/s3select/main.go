// Command s3select plans and runs S3 Select scans of delimited objects.
//
//	s3select plan --option endpoint=localhost:9000 --option header=true \
//	    --schema 'id:int32,name:string,age:int32?,city:string' \
//	    --columns age,city --filter 'age > 30' --filter 'city = Chennai'
//
//	s3select scan --config store.yaml --bucket data --key people.csv \
//	    --schema 'id:int32,name:string,age:int32?,city:string' --filter 'city starts_with Pu'
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "s3select",
		Short:         "Query delimited objects with S3 Select pushdown",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newPlanCmd(), newScanCmd())
	return root
}
