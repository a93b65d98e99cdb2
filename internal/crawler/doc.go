// Package crawler defines the domain types, error taxonomy and collaborator
// interfaces shared by the harvesting pipeline: index pages, case records,
// fetchers, seen-set stores and dataset sinks.
package crawler
