// Package model holds the immutable train scheduling instance: trains as
// operation DAGs, resource usages with release times, time windows and the
// threshold delay objective. Build turns a decoded instance file into an
// Instance and reports every validation failure as a MalformedError.
package model
