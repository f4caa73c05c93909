// Package cli turns command-line arguments into an app.Config.
//
// Flag defaults come from NODEGRID_ environment variables, then from a
// dotenv file, then from built-in values. Usage errors are returned as
// *ExitError carrying the process exit code.
package cli
