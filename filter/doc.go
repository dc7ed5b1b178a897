// Package filter models row predicates and translates them to the S3 Select
// SQL dialect for pushdown into delimited text objects.
//
// Predicates are built with constructors and resolved against a
// schema.Schema when encoded:
//
//	pred := filter.And(
//	    filter.GreaterThan("age", filter.Int(30)),
//	    filter.Equals("city", filter.String("Chennai")),
//	)
//
//	enc := filter.NewS3SelectEncoder(nil)
//	query, err := enc.Translate(s, []filter.Predicate{pred})
//	// SELECT s."age", s."city" FROM S3Object s
//	//   WHERE (CAST(s."age" AS INT) > 30 AND s."city" = 'Chennai')
//
// # Typed Comparisons
//
// Every cell of a delimited object is text to the service. Operands of
// non-String fields are cast before comparison, and nullable fields map the
// empty cell to NULL with NULLIF so the server agrees with the record
// decoder about which rows hold NULL.
//
// # Unsupported Predicates
//
// Translate and EncodeFilters fail with ErrUnsupportedPredicate when any
// predicate cannot be expressed. Split is the partial form: it pushes every
// expressible top-level conjunct and returns the rest, which the caller
// evaluates locally with Matcher:
//
//	where, residual, err := enc.Split(s, preds)
//	match, err := filter.Matcher(s, residual)
//
// A predicate referencing a field absent from the schema is always an error
// (ErrUnknownField), never a residual.
//
// # Positional Columns
//
// Objects without a header row are addressed by position:
//
//	enc := filter.NewS3SelectEncoder(&filter.EncoderOptions{Positional: true})
//	// s._1, s._2, ...
//
// # Wire Format
//
// MarshalPredicates and UnmarshalPredicates serialize predicate trees to
// MessagePack for shipping scan tasks to workers.
package filter
