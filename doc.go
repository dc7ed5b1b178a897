// Package s3select scans delimited text objects through the S3 Select API,
// pushing column pruning and row filtering into the object store.
//
// A scan starts from the object's full schema, the columns to return and
// the filters rows must satisfy:
//
//	cfg, err := s3select.ConfigFromOptions(map[string]string{
//	    "endpoint":          "http://localhost:9000",
//	    "path_style_access": "true",
//	    "header":            "true",
//	})
//	if err != nil {
//	    return err
//	}
//
//	scanner, err := s3select.NewScanner(cfg)
//	if err != nil {
//	    return err
//	}
//
//	rows, err := scanner.Scan(ctx, s3select.RequestInput{
//	    Bucket:  "people",
//	    Key:     "2024/people.csv",
//	    Schema:  schema.MustNew(
//	        schema.Field{Name: "id", Type: schema.TypeInt32},
//	        schema.Field{Name: "age", Type: schema.TypeInt32, Nullable: true},
//	        schema.Field{Name: "city", Type: schema.TypeString},
//	    ),
//	    Columns: []string{"id", "city"},
//	    Filters: []filter.Predicate{
//	        filter.And(
//	            filter.GreaterThan("age", filter.Int(30)),
//	            filter.Equals("city", filter.String("Chennai")),
//	        ),
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	for row, err := range rows.All() {
//	    ...
//	}
//
// # Request Building
//
// BuildRequest is the pure half of a scan. It prunes the schema, pushes
// every filter the S3 Select dialect can express and keeps the rest as
// residual filters, which the Scanner evaluates on decoded rows. Columns
// referenced only by residual filters are fetched and dropped after
// filtering.
//
// # Fallback
//
// With pushdown disabled the Scanner downloads the whole object,
// decompresses it locally and applies every filter itself. Results are the
// same either way.
//
// # Partitions and Tasks
//
// ScanPartitions runs independent scans concurrently with a bounded
// worker count. A Task carries one scan in MessagePack form for execution
// in another process; ScanTask runs it.
package s3select
