// Package writer provides the ItemWriters of the export step: Parquet files
// on object storage and rows in a relational database.
package writer
