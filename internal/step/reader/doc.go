// Package reader provides the ItemReader that parses the rental CSV dataset.
package reader
