// Package stores keeps the run history of sous in SQLite.
//
// Every apply becomes a row in runs holding the summary as JSON, and the reporter
// events of the run become rows in events. The schema is embedded and applied with
// golang-migrate. Recorder plugs the store into the engine as a Reporter.
package stores
