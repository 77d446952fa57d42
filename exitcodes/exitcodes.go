// Package exitcodes defines the standard exit codes used by verikit.
package exitcodes

// Exit code constants used by verikit
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every scheduled test passes
// * SuiteFailure (1): Used when one or more tests fail
// * RuntimeErr (2): Used for runtime errors such as panics, bad configuration or unreadable suite files
const (
	Success      = 0 // All tests pass
	SuiteFailure = 1 // Test failures
	RuntimeErr   = 2 // Runtime errors or bad configuration
)
