// Package cli holds the pieces shared by the gateway's client commands:
// common flags, endpoint resolution, connection error classification and
// the Printer that renders API responses as tables, JSON or YAML.
//
// Table output uses go-pretty. Status columns are colored when the Printer
// is created with color enabled; tests and pipes get plain text.
package cli
